package credential

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/chronicle/logger"
)

func testLogger() logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Disabled
	return logger.NewLoggerWithWriter(cfg, io.Discard)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// mockRefresher counts refresh calls and mints sequential tokens.
type mockRefresher struct {
	calls  atomic.Int32
	delay  time.Duration
	err    error
	expiry time.Time
}

func (r *mockRefresher) Refresh(ctx context.Context, rec *Record) (*Record, error) {
	n := r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	expiry := r.expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return &Record{
		AccessToken:  fmt.Sprintf("refreshed-token-%d", n),
		RefreshToken: rec.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
		Scopes:       rec.Scopes,
		ObtainedAt:   time.Now().UTC(),
	}, nil
}

// mockValidator counts validation calls and returns a fixed verdict.
type mockValidator struct {
	calls atomic.Int32
	err   error
}

func (v *mockValidator) Validate(_ context.Context, _ *Record) error {
	v.calls.Add(1)
	return v.err
}

func newTestManager(t *testing.T, rec *Record, refresher Refresher, validator Validator) (*Manager, *InmemStore, *fakeClock) {
	t.Helper()
	store := NewInmemStore()
	if rec != nil {
		require.NoError(t, store.Save(context.Background(), rec))
	}
	mgr, err := NewManager(DefaultConfig(), store, refresher, validator, testLogger())
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	mgr.now = clock.Now
	return mgr, store, clock
}

func baseTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func validRecord() *Record {
	return &Record{
		AccessToken:  "live-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		Expiry:       baseTime().Add(time.Hour),
		Scopes:       []string{"calendar.readonly"},
		ObtainedAt:   baseTime().Add(-time.Hour),
	}
}

func expiringRecord() *Record {
	rec := validRecord()
	rec.Expiry = baseTime().Add(2 * time.Minute) // inside the 5m buffer
	return rec
}

func expiredRecord() *Record {
	rec := validRecord()
	rec.Expiry = baseTime().Add(-time.Minute)
	return rec
}

func TestManager_EnsureValid_NoToken(t *testing.T) {
	ref := &mockRefresher{}
	mgr, _, _ := newTestManager(t, nil, ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNoTokenAvailable)
	assert.Zero(t, ref.calls.Load())
}

func TestManager_EnsureValid_ValidToken(t *testing.T) {
	ref := &mockRefresher{}
	mgr, _, _ := newTestManager(t, validRecord(), ref, nil)

	tok, err := mgr.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live-token", tok)
	assert.Zero(t, ref.calls.Load(), "a live token must not trigger a refresh")
}

func TestManager_EnsureValid_RefreshesExpiringToken(t *testing.T) {
	ref := &mockRefresher{expiry: baseTime().Add(time.Hour)}
	mgr, store, _ := newTestManager(t, expiringRecord(), ref, nil)

	tok, err := mgr.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token-1", tok)
	assert.Equal(t, int32(1), ref.calls.Load())

	// The refreshed record must have been persisted.
	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token-1", saved.AccessToken)
	assert.Equal(t, "refresh-token", saved.RefreshToken, "refresh token must survive when not rotated")

	snap := mgr.Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap["refreshes"])
	assert.Zero(t, snap["refresh_failures"])
}

func TestManager_EnsureValid_ConcurrentCallsShareOneRefresh(t *testing.T) {
	ref := &mockRefresher{delay: 80 * time.Millisecond}
	mgr, _, _ := newTestManager(t, expiredRecord(), ref, nil)
	mgr.now = time.Now // real clock so the delayed flight stays in the past-expiry state

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tokens[n], errs[n] = mgr.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, tokens[0], tokens[i], "caller %d got a different token", i)
	}
	assert.LessOrEqual(t, ref.calls.Load(), int32(2),
		"concurrent callers must coalesce onto at most two refresh exchanges")
}

func TestManager_EnsureValid_CallerCancellationDoesNotAbortFlight(t *testing.T) {
	ref := &mockRefresher{delay: 60 * time.Millisecond}
	mgr, _, _ := newTestManager(t, expiredRecord(), ref, nil)
	mgr.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := mgr.EnsureValid(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	// A second caller arriving after the cancellation still gets the
	// result of the flight the first caller started.
	tok, err := mgr.EnsureValid(context.Background())
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token-1", tok)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestManager_EnsureValid_ExpiredWithoutRefreshToken(t *testing.T) {
	rec := expiredRecord()
	rec.RefreshToken = ""
	ref := &mockRefresher{}
	mgr, _, _ := newTestManager(t, rec, ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationExpired)
	assert.Zero(t, ref.calls.Load())
}

func TestManager_EnsureValid_InvalidGrantFailsFast(t *testing.T) {
	ref := &mockRefresher{err: fmt.Errorf("%w: invalid_grant", ErrAuthorizationExpired)}
	mgr, _, _ := newTestManager(t, expiredRecord(), ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationExpired)
	require.Equal(t, int32(1), ref.calls.Load())

	// The dead grant must not be retried on subsequent calls.
	_, err = mgr.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationExpired)
	assert.Equal(t, int32(1), ref.calls.Load())

	state, serr := mgr.State(context.Background())
	require.NoError(t, serr)
	assert.Equal(t, StateExpiredNotRefreshable, state)
}

func TestManager_EnsureValid_ServesUnexpiredTokenOnTransientFailure(t *testing.T) {
	ref := &mockRefresher{err: fmt.Errorf("%w: connection refused", ErrNetwork)}
	mgr, _, _ := newTestManager(t, expiringRecord(), ref, nil)

	tok, err := mgr.EnsureValid(context.Background())
	require.NoError(t, err, "a transient refresh failure must not fail a caller holding a live token")
	assert.Equal(t, "live-token", tok)
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, int64(1), mgr.Metrics().GetSnapshot()["refresh_failures"])
}

func TestManager_EnsureValid_TransientFailureWithDeadToken(t *testing.T) {
	ref := &mockRefresher{err: fmt.Errorf("%w: connection refused", ErrNetwork)}
	mgr, _, _ := newTestManager(t, expiredRecord(), ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
	assert.True(t, Retryable(err))
}

func TestManager_ForceRefresh(t *testing.T) {
	ref := &mockRefresher{expiry: baseTime().Add(time.Hour)}
	mgr, _, _ := newTestManager(t, validRecord(), ref, nil)

	tok, err := mgr.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token-1", tok)
	assert.Equal(t, int32(1), ref.calls.Load(), "force must refresh even a live token")
}

func TestManager_ForceRefresh_NoRefreshToken(t *testing.T) {
	rec := validRecord()
	rec.RefreshToken = ""
	mgr, _, _ := newTestManager(t, rec, &mockRefresher{}, nil)

	_, err := mgr.ForceRefresh(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationExpired)
}

func TestManager_RefreshIfExpiringSoon(t *testing.T) {
	ref := &mockRefresher{expiry: baseTime().Add(time.Hour)}
	mgr, _, _ := newTestManager(t, validRecord(), ref, nil)

	// Plenty of life left: nothing happens.
	refreshed, err := mgr.RefreshIfExpiringSoon(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, ref.calls.Load())

	// Inside the buffer: one refresh.
	mgr2, _, _ := newTestManager(t, expiringRecord(), ref, nil)
	refreshed, err = mgr2.RefreshIfExpiringSoon(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestManager_RefreshIfExpiringSoon_NoRecordIsNoop(t *testing.T) {
	ref := &mockRefresher{}
	mgr, _, _ := newTestManager(t, nil, ref, nil)

	refreshed, err := mgr.RefreshIfExpiringSoon(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, ref.calls.Load())
}

func TestManager_SetToken_InstallsAndRecovers(t *testing.T) {
	ref := &mockRefresher{err: fmt.Errorf("%w: invalid_grant", ErrAuthorizationExpired)}
	mgr, store, _ := newTestManager(t, expiredRecord(), ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationExpired)

	fresh := validRecord()
	fresh.AccessToken = "installed-token"
	require.NoError(t, mgr.SetToken(context.Background(), fresh))

	tok, err := mgr.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "installed-token", tok)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "installed-token", saved.AccessToken)
}

func TestManager_SetToken_RejectsEmptyRecord(t *testing.T) {
	mgr, _, _ := newTestManager(t, nil, &mockRefresher{}, nil)

	err := mgr.SetToken(context.Background(), &Record{})
	assert.Error(t, err)
}

func TestManager_Clear(t *testing.T) {
	mgr, store, _ := newTestManager(t, validRecord(), &mockRefresher{}, nil)

	require.NoError(t, mgr.Clear(context.Background()))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = mgr.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNoTokenAvailable)
}

func TestManager_ClearInvalid(t *testing.T) {
	// A live credential is kept.
	mgr, _, _ := newTestManager(t, validRecord(), &mockRefresher{}, nil)
	removed, err := mgr.ClearInvalid(context.Background())
	require.NoError(t, err)
	assert.False(t, removed)

	// A dead grant is dropped.
	ref := &mockRefresher{err: fmt.Errorf("%w: invalid_grant", ErrAuthorizationExpired)}
	mgr2, store, _ := newTestManager(t, expiredRecord(), ref, nil)
	_, _ = mgr2.EnsureValid(context.Background())

	removed, err = mgr2.ClearInvalid(context.Background())
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// Nothing stored: nothing to remove.
	mgr3, _, _ := newTestManager(t, nil, &mockRefresher{}, nil)
	removed, err = mgr3.ClearInvalid(context.Background())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestManager_State_ErrorAfterFailedRefresh(t *testing.T) {
	ref := &mockRefresher{err: fmt.Errorf("%w: connection refused", ErrNetwork)}
	mgr, _, _ := newTestManager(t, expiredRecord(), ref, nil)

	_, err := mgr.EnsureValid(context.Background())
	require.Error(t, err)

	state, serr := mgr.State(context.Background())
	require.NoError(t, serr)
	assert.Equal(t, StateError, state)
}

func TestManager_Status(t *testing.T) {
	mgr, _, _ := newTestManager(t, validRecord(), &mockRefresher{}, nil)

	st, err := mgr.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateValid, st.State)
	assert.NotEmpty(t, st.TokenHash)
	assert.True(t, st.HasRefreshToken)
	assert.Equal(t, []string{"calendar.readonly"}, st.Scopes)
	assert.Equal(t, "1h0m0s", st.ExpiresIn)
	assert.Empty(t, st.LastError)
}

func TestManager_Status_NoToken(t *testing.T) {
	mgr, _, _ := newTestManager(t, nil, &mockRefresher{}, nil)

	st, err := mgr.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateNoToken, st.State)
	assert.Empty(t, st.TokenHash)
}

func TestManager_IsTokenValid_LocalOnly(t *testing.T) {
	mgr, _, _ := newTestManager(t, validRecord(), &mockRefresher{}, nil)
	assert.True(t, mgr.IsTokenValid(context.Background()))

	mgr2, _, _ := newTestManager(t, expiredRecord(), &mockRefresher{}, nil)
	assert.False(t, mgr2.IsTokenValid(context.Background()))

	mgr3, _, _ := newTestManager(t, nil, &mockRefresher{}, nil)
	assert.False(t, mgr3.IsTokenValid(context.Background()))
}

func TestManager_IsTokenValid_MemoizesVerdict(t *testing.T) {
	val := &mockValidator{}
	mgr, _, clock := newTestManager(t, validRecord(), &mockRefresher{}, val)

	assert.True(t, mgr.IsTokenValid(context.Background()))
	assert.True(t, mgr.IsTokenValid(context.Background()))
	assert.Equal(t, int32(1), val.calls.Load(), "second check within the TTL must hit the memo")
	assert.Equal(t, int64(1), mgr.Metrics().GetSnapshot()["validation_cache_hits"])

	clock.Advance(31 * time.Second)
	assert.True(t, mgr.IsTokenValid(context.Background()))
	assert.Equal(t, int32(2), val.calls.Load(), "an aged memo must be revalidated")
}

func TestManager_IsTokenValid_RemoteRejectionForcesRefresh(t *testing.T) {
	val := &mockValidator{err: fmt.Errorf("%w: validation returned 401", ErrAuthorizationExpired)}
	ref := &mockRefresher{expiry: baseTime().Add(time.Hour)}
	mgr, _, _ := newTestManager(t, validRecord(), ref, val)

	assert.False(t, mgr.IsTokenValid(context.Background()))

	// The locally-fine token was expired by the rejection, so the next
	// EnsureValid must go through a refresh.
	tok, err := mgr.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token-1", tok)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestManager_IsTokenValid_InconclusiveNetworkError(t *testing.T) {
	val := &mockValidator{err: fmt.Errorf("%w: dial tcp: timeout", ErrNetwork)}
	mgr, _, _ := newTestManager(t, validRecord(), &mockRefresher{}, val)

	assert.True(t, mgr.IsTokenValid(context.Background()),
		"transport trouble during validation must not invalidate the token")
}
