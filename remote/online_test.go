package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeChecker_Online(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	checker, err := NewProbeChecker(srv.URL, time.Second, testLogger())
	require.NoError(t, err)
	assert.True(t, checker.Online(context.Background()))
}

func TestProbeChecker_Offline(t *testing.T) {
	checker, err := NewProbeChecker("http://127.0.0.1:1", 100*time.Millisecond, testLogger())
	require.NoError(t, err)
	assert.False(t, checker.Online(context.Background()))
}

func TestNewProbeChecker_DefaultPorts(t *testing.T) {
	checker, err := NewProbeChecker("https://api.example.com", 0, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "api.example.com:443", checker.addr)
	assert.Equal(t, DefaultProbeTimeout, checker.timeout)

	checker, err = NewProbeChecker("http://api.example.com", 0, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "api.example.com:80", checker.addr)
}

func TestStaticChecker(t *testing.T) {
	assert.True(t, StaticChecker(true).Online(context.Background()))
	assert.False(t, StaticChecker(false).Online(context.Background()))
}
