package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerClientLimiter_PortDoesNotSplitBudget(t *testing.T) {
	p := newPerClientLimiter(1, 1)

	assert.True(t, p.allow("10.0.0.1:1111"))

	// Same host on a new ephemeral port shares the bucket.
	assert.False(t, p.allow("10.0.0.1:2222"))
	assert.True(t, p.allow("10.0.0.2:1111"))
}

func TestPerClientLimiter_BareHost(t *testing.T) {
	p := newPerClientLimiter(1, 1)

	assert.True(t, p.allow("10.0.0.1"))
	assert.False(t, p.allow("10.0.0.1"))
}

func TestTeeResponseWriter_CapturesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	tee := &teeResponseWriter{ResponseWriter: rec, status: http.StatusOK}

	tee.WriteHeader(http.StatusCreated)
	tee.Write([]byte("payload"))

	assert.Equal(t, http.StatusCreated, tee.status)
	assert.Equal(t, "payload", tee.buf.String())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())
}

func TestTeeResponseWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	tee := &teeResponseWriter{ResponseWriter: rec, status: http.StatusOK}

	// Write without an explicit WriteHeader behaves like net/http.
	tee.Write([]byte("ok"))

	assert.Equal(t, http.StatusOK, tee.status)
	assert.True(t, tee.wroteHeader)
}

func TestTeeResponseWriter_SecondWriteHeaderIgnored(t *testing.T) {
	rec := httptest.NewRecorder()
	tee := &teeResponseWriter{ResponseWriter: rec, status: http.StatusOK}

	tee.WriteHeader(http.StatusBadRequest)
	tee.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusBadRequest, tee.status)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadCache_OnlyGetsAreCached(t *testing.T) {
	rc, err := newReadCache(DefaultReadCacheTTL)
	assert.NoError(t, err)

	calls := 0
	h := rc.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("done"))
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sys/cache/clear", nil))
	}

	assert.Equal(t, 2, calls)
}
