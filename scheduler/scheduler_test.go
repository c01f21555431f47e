package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/logger"
)

func testLogger() logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Disabled
	return logger.NewLoggerWithWriter(cfg, io.Discard)
}

type mockRefresher struct {
	mu    sync.Mutex
	calls int
	// errs are returned in order; calls past the end succeed.
	errs []error
	// noop makes successful calls report that no refresh was needed.
	noop bool
}

func (m *mockRefresher) RefreshIfExpiringSoon(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.calls
	m.calls++
	if n < len(m.errs) {
		return false, m.errs[n]
	}
	return !m.noop, nil
}

func (m *mockRefresher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type warmCall struct {
	resource string
	window   event.Window
	force    bool
}

type mockWarmer struct {
	mu    sync.Mutex
	calls []warmCall
	errBy map[string]error
}

func (m *mockWarmer) Fetch(ctx context.Context, resource string, window event.Window, force bool) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, warmCall{resource: resource, window: window, force: force})
	if err := m.errBy[resource]; err != nil {
		return nil, err
	}
	return []event.Event{{ID: "ev-1"}}, nil
}

func (m *mockWarmer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockWarmer) call(i int) warmCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestNewRunner_Validation(t *testing.T) {
	log := testLogger()
	ref := &mockRefresher{}
	warm := &mockWarmer{}

	_, err := NewRunner(DefaultConfig(), nil, warm, log)
	assert.ErrorContains(t, err, "refresher")

	_, err = NewRunner(DefaultConfig(), ref, nil, log)
	assert.ErrorContains(t, err, "warmer")

	_, err = NewRunner(DefaultConfig(), ref, warm, nil)
	assert.ErrorContains(t, err, "logger")

	cfg := DefaultConfig()
	cfg.Resources = []Resource{{Name: "", Window: 7}}
	_, err = NewRunner(cfg, ref, warm, log)
	assert.ErrorContains(t, err, "name")

	cfg.Resources = []Resource{{Name: "events", Window: 0}}
	_, err = NewRunner(cfg, ref, warm, log)
	assert.ErrorContains(t, err, "window")
}

func TestRunner_RunOnce_RefreshesAndWarms(t *testing.T) {
	cfg := fastConfig()
	cfg.Resources = []Resource{
		{Name: "events", Window: 7},
		{Name: "tasks", Window: 1},
	}
	ref := &mockRefresher{}
	warm := &mockWarmer{}
	r, err := NewRunner(cfg, ref, warm, testLogger())
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(context.Background()))

	assert.Equal(t, 1, ref.count())
	require.Equal(t, 2, warm.count())
	assert.Equal(t, warmCall{resource: "events", window: 7, force: false}, warm.call(0))
	assert.Equal(t, warmCall{resource: "tasks", window: 1, force: false}, warm.call(1))

	snap := r.Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap["passes"])
	assert.Equal(t, int64(1), snap["proactive_refreshes"])
	assert.Equal(t, int64(2), snap["warmed_windows"])
	assert.Zero(t, snap["failed_passes"])
}

func TestRunner_RunOnce_FreshTokenIsNotCountedAsRefresh(t *testing.T) {
	ref := &mockRefresher{noop: true}
	r, err := NewRunner(fastConfig(), ref, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(context.Background()))

	assert.Equal(t, 1, ref.count())
	assert.Zero(t, r.Metrics().GetSnapshot()["proactive_refreshes"])
}

func TestRunner_RunOnce_RetriesTransientRefreshFaults(t *testing.T) {
	ref := &mockRefresher{errs: []error{
		fmt.Errorf("token endpoint unreachable: %w", credential.ErrNetwork),
		credential.ErrUnknown,
	}}
	r, err := NewRunner(fastConfig(), ref, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(context.Background()))

	assert.Equal(t, 3, ref.count(), "two transient failures then success")
	snap := r.Metrics().GetSnapshot()
	assert.Equal(t, int64(2), snap["refresh_retries"])
	assert.Zero(t, snap["failed_passes"])
}

func TestRunner_RunOnce_DoesNotRetryReauthFaults(t *testing.T) {
	ref := &mockRefresher{errs: []error{credential.ErrAuthorizationExpired}}
	r, err := NewRunner(fastConfig(), ref, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	err = r.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrAuthorizationExpired)
	assert.Equal(t, 1, ref.count(), "a credential needing the user must not be retried")
	assert.Equal(t, int64(1), r.Metrics().GetSnapshot()["failed_passes"])
}

func TestRunner_RunOnce_WarmsRemainingResourcesOnFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.Resources = []Resource{
		{Name: "events", Window: 7},
		{Name: "tasks", Window: 1},
	}
	warm := &mockWarmer{errBy: map[string]error{"events": fmt.Errorf("boom")}}
	r, err := NewRunner(cfg, &mockRefresher{}, warm, testLogger())
	require.NoError(t, err)

	err = r.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "warm events/7d")

	assert.Equal(t, 2, warm.count(), "the failing window must not keep the others cold")
	snap := r.Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap["warmed_windows"])
	assert.Equal(t, int64(1), snap["failed_passes"])
}

func TestRunner_RunOnce_StopsWarmingOnCanceledContext(t *testing.T) {
	cfg := fastConfig()
	cfg.Resources = []Resource{
		{Name: "events", Window: 7},
		{Name: "tasks", Window: 1},
	}
	r, err := NewRunner(cfg, &mockRefresher{}, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_LoopRunsPasses(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.Resources = []Resource{{Name: "events", Window: 7}}
	ref := &mockRefresher{}
	warm := &mockWarmer{}
	r, err := NewRunner(cfg, ref, warm, testLogger())
	require.NoError(t, err)

	r.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	r.Stop()

	assert.GreaterOrEqual(t, ref.count(), 2, "the loop should have run several passes")
	assert.GreaterOrEqual(t, warm.count(), 2)

	// No passes after Stop.
	n := ref.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, ref.count())
}

func TestRunner_StopIsIdempotent(t *testing.T) {
	r, err := NewRunner(fastConfig(), &mockRefresher{}, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	r.Start(context.Background())
	r.Stop()
	r.Stop()
}

func TestRunner_ContextCancellationStopsLoop(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = 10 * time.Millisecond
	ref := &mockRefresher{}
	r, err := NewRunner(cfg, ref, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	n := ref.count()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, ref.count(), "no passes after the context is canceled")

	r.Stop()
}

func TestRunner_StartIsIdempotent(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = 10 * time.Millisecond
	r, err := NewRunner(cfg, &mockRefresher{}, &mockWarmer{}, testLogger())
	require.NoError(t, err)

	// A second Start must not spawn a second loop; Stop would then
	// deadlock waiting on a goroutine nobody signals.
	r.Start(context.Background())
	r.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	r.Stop()
}
