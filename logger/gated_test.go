package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatedWriter_BuffersUntilOpen(t *testing.T) {
	var dst bytes.Buffer
	gw := NewGatedWriter(&dst)

	n, err := gw.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Zero(t, dst.Len(), "nothing should reach the destination while closed")
	assert.Equal(t, 6, gw.BufferedSize())

	require.NoError(t, gw.OpenGate())
	assert.Equal(t, "first\n", dst.String())
	assert.Zero(t, gw.BufferedSize())

	_, err = gw.Write([]byte("second\n"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", dst.String())
}

func TestGatedWriter_PreservesOrder(t *testing.T) {
	var dst bytes.Buffer
	gw := NewGatedWriter(&dst)

	for _, line := range []string{"a\n", "b\n", "c\n"} {
		_, err := gw.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, gw.OpenGate())
	assert.Equal(t, "a\nb\nc\n", dst.String())
}

func TestGatedWriter_DropsOldestWhenFull(t *testing.T) {
	var dst bytes.Buffer
	gw := NewGatedWriter(&dst)
	gw.maxSize = 10

	_, _ = gw.Write([]byte("11111\n"))
	_, _ = gw.Write([]byte("22222\n"))

	require.NoError(t, gw.OpenGate())
	assert.Equal(t, "22222\n", dst.String(), "oldest record should have been dropped")
}

func TestGatedWriter_CloseGateResumesBuffering(t *testing.T) {
	var dst bytes.Buffer
	gw := NewGatedWriter(&dst)

	require.NoError(t, gw.OpenGate())
	assert.True(t, gw.IsOpen())

	gw.CloseGate()
	assert.False(t, gw.IsOpen())

	_, _ = gw.Write([]byte("held\n"))
	assert.NotContains(t, dst.String(), "held")

	require.NoError(t, gw.OpenGate())
	assert.Contains(t, dst.String(), "held")
}

func TestGatedWriter_Clear(t *testing.T) {
	var dst bytes.Buffer
	gw := NewGatedWriter(&dst)

	_, _ = gw.Write([]byte("discard me\n"))
	gw.Clear()
	require.NoError(t, gw.OpenGate())
	assert.Zero(t, dst.Len())
}

func TestGatedWriter_SetDestination(t *testing.T) {
	var first, second bytes.Buffer
	gw := NewGatedWriter(&first)

	_, _ = gw.Write([]byte("redirected\n"))
	gw.SetDestination(&second)
	require.NoError(t, gw.OpenGate())

	assert.Zero(t, first.Len())
	assert.Equal(t, "redirected\n", second.String())
}

func TestGatedLogger_HoldsRecordsUntilOpen(t *testing.T) {
	var dst bytes.Buffer
	cfg := DefaultConfig()
	gl := NewGatedLogger(cfg)
	gl.Gate().SetDestination(&dst)

	gl.Info("startup record", String("phase", "boot"))
	assert.Zero(t, dst.Len())
	assert.Positive(t, gl.Gate().BufferedSize())

	require.NoError(t, gl.Gate().OpenGate())
	records := decodeLines(t, &dst)
	require.Len(t, records, 1)
	assert.Equal(t, "startup record", records[0]["message"])
	assert.Equal(t, "boot", records[0]["phase"])

	gl.Info("live record")
	records = decodeLines(t, &dst)
	require.Len(t, records, 1)
	assert.Equal(t, "live record", records[0]["message"])
}
