package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/stephnangue/chronicle/logger"
)

const (
	// DefaultRefreshBuffer is how long before actual expiry a token is
	// treated as expired, so refreshes land before requests start
	// failing mid-flight.
	DefaultRefreshBuffer = 5 * time.Minute

	// DefaultValidationTTL is how long a remote validation verdict is
	// reused before the remote is asked again.
	DefaultValidationTTL = 30 * time.Second

	// DefaultRefreshTimeout bounds a single refresh exchange.
	DefaultRefreshTimeout = 30 * time.Second
)

// refreshKey is the singleflight key. There is one credential per
// process, so every caller coalesces onto the same flight.
const refreshKey = "refresh"

// Config holds manager construction parameters. Zero values fall back
// to the package defaults.
type Config struct {
	RefreshBuffer  time.Duration
	ValidationTTL  time.Duration
	RefreshTimeout time.Duration
}

// DefaultConfig returns the standard lifecycle timings.
func DefaultConfig() Config {
	return Config{
		RefreshBuffer:  DefaultRefreshBuffer,
		ValidationTTL:  DefaultValidationTTL,
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

// Status is the operator-facing view of the credential lifecycle.
type Status struct {
	State           TokenState `json:"state"`
	TokenHash       string     `json:"token_hash,omitempty"`
	Expiry          time.Time  `json:"expiry,omitempty"`
	ExpiresIn       string     `json:"expires_in,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	Scopes          []string   `json:"scopes,omitempty"`
	ObtainedAt      time.Time  `json:"obtained_at,omitempty"`
	LastRefresh     time.Time  `json:"last_refresh,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Refreshes       int64      `json:"refreshes"`
	RefreshFailures int64      `json:"refresh_failures"`
}

// Manager owns the credential lifecycle: it decides when the stored
// token is still usable, coalesces concurrent refreshes into a single
// exchange, and memoizes remote validation verdicts.
type Manager struct {
	cfg       Config
	store     Store
	refresher Refresher
	validator Validator
	log       logger.Logger
	metrics   *Metrics
	group     singleflight.Group

	lock         sync.RWMutex
	rec          *Record
	loaded       bool
	invalidGrant bool
	lastRefresh  time.Time
	lastErr      error

	validationLock  sync.Mutex
	validatedHash   string
	validatedResult error
	validatedAt     time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewManager creates a credential lifecycle manager. The validator is
// optional; without one, validity checks rely on expiry alone.
func NewManager(cfg Config, store Store, refresher Refresher, validator Validator, log logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("credential: store is required")
	}
	if refresher == nil {
		return nil, errors.New("credential: refresher is required")
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if cfg.ValidationTTL <= 0 {
		cfg.ValidationTTL = DefaultValidationTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		validator: validator,
		log:       log.WithSubsystem("credential"),
		metrics:   &Metrics{},
		now:       time.Now,
	}, nil
}

// Metrics exposes the manager's counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// currentRecord returns the in-memory record, loading it from the
// store on first use. A nil record with nil error means no credential
// has been stored.
func (m *Manager) currentRecord(ctx context.Context) (*Record, error) {
	m.lock.RLock()
	if m.loaded {
		rec := m.rec
		m.lock.RUnlock()
		return rec, nil
	}
	m.lock.RUnlock()

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.loaded {
		return m.rec, nil
	}

	rec, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			m.rec = nil
			m.loaded = true
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	m.rec = rec
	m.loaded = true
	m.log.Debug("credential record loaded",
		logger.String("token_hash", rec.TokenHash()),
		logger.Time("expiry", rec.Expiry),
	)
	return rec, nil
}

// EnsureValid returns an access token that is expected to work right
// now, refreshing first if the stored one is expired or about to be.
// Concurrent callers share a single refresh exchange.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	m.metrics.IncrementEnsureCalls()

	rec, err := m.currentRecord(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNoTokenAvailable
	}

	m.lock.RLock()
	invalidGrant := m.invalidGrant
	m.lock.RUnlock()
	if invalidGrant {
		return "", ErrAuthorizationExpired
	}

	switch rec.State(m.now(), m.cfg.RefreshBuffer) {
	case StateValid:
		return rec.AccessToken, nil

	case StateExpiredRefreshable:
		fresh, err := m.refreshShared(ctx, false)
		if err != nil {
			// A token inside the refresh buffer has not actually died
			// yet. If the refresh only failed transiently, hand out the
			// old token rather than failing the caller.
			if Retryable(err) && rec.HasAccessToken() && !rec.ExpiresWithin(m.now(), 0) {
				m.log.Warn("refresh failed transiently, serving unexpired token",
					logger.String("token_hash", rec.TokenHash()),
					logger.Err(err),
				)
				return rec.AccessToken, nil
			}
			return "", err
		}
		return fresh.AccessToken, nil

	case StateExpiredNotRefreshable:
		return "", ErrAuthorizationExpired

	default:
		return "", ErrNoTokenAvailable
	}
}

// ForceRefresh performs a refresh regardless of the current token's
// remaining lifetime and returns the new access token. A call that
// arrives while a refresh is already in flight joins it.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	rec, err := m.currentRecord(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNoTokenAvailable
	}
	if !rec.HasRefreshToken() {
		return "", ErrAuthorizationExpired
	}

	fresh, err := m.refreshShared(ctx, true)
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// RefreshIfExpiringSoon refreshes when the token is inside its buffer
// window and reports whether a refresh ran. It is a no-op when there
// is nothing to do: no record, no refresh token, or a token with
// plenty of life left.
func (m *Manager) RefreshIfExpiringSoon(ctx context.Context) (bool, error) {
	rec, err := m.currentRecord(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.HasRefreshToken() {
		return false, nil
	}

	m.lock.RLock()
	invalidGrant := m.invalidGrant
	m.lock.RUnlock()
	if invalidGrant {
		return false, nil
	}

	if !rec.ExpiresWithin(m.now(), m.cfg.RefreshBuffer) {
		return false, nil
	}
	if _, err := m.refreshShared(ctx, false); err != nil {
		return false, err
	}
	return true, nil
}

// refreshShared coalesces refresh attempts. The exchange itself runs
// on a detached context bounded by RefreshTimeout so one caller
// hanging up does not abort the flight for everyone else.
func (m *Manager) refreshShared(ctx context.Context, force bool) (*Record, error) {
	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
		defer cancel()
		return m.doRefresh(rctx, force)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// Errors are not worth sharing with future callers.
			m.group.Forget(refreshKey)
			return nil, res.Err
		}
		return res.Val.(*Record), nil
	}
}

func (m *Manager) doRefresh(ctx context.Context, force bool) (*Record, error) {
	m.lock.RLock()
	rec := m.rec
	m.lock.RUnlock()
	if rec == nil {
		return nil, ErrNoTokenAvailable
	}

	// Another flight may have finished between this caller deciding to
	// refresh and the flight starting.
	if !force && !rec.ExpiresWithin(m.now(), m.cfg.RefreshBuffer) && rec.HasAccessToken() {
		return rec, nil
	}

	fresh, err := m.refresher.Refresh(ctx, rec)
	if err != nil {
		m.metrics.IncrementRefreshFailures()
		m.lock.Lock()
		m.lastErr = err
		if errors.Is(err, ErrAuthorizationExpired) {
			m.invalidGrant = true
		}
		m.lock.Unlock()
		return nil, err
	}

	if saveErr := m.store.Save(ctx, fresh); saveErr != nil {
		// The token works even if persisting it did not; the next
		// process start just refreshes again.
		m.log.Warn("failed to persist refreshed credential",
			logger.Err(saveErr),
		)
	}

	m.metrics.IncrementRefreshes()
	m.lock.Lock()
	m.rec = fresh
	m.loaded = true
	m.invalidGrant = false
	m.lastRefresh = m.now()
	m.lastErr = nil
	m.lock.Unlock()
	m.resetValidation()

	return fresh, nil
}

// IsTokenValid reports whether the current token is expected to work.
// When a validator is configured, its verdict is memoized for
// ValidationTTL so hot paths do not hammer the remote.
func (m *Manager) IsTokenValid(ctx context.Context) bool {
	rec, err := m.currentRecord(ctx)
	if err != nil || rec == nil {
		return false
	}

	m.lock.RLock()
	invalidGrant := m.invalidGrant
	m.lock.RUnlock()
	if invalidGrant {
		return false
	}

	if rec.State(m.now(), m.cfg.RefreshBuffer) != StateValid {
		return false
	}
	if m.validator == nil {
		return true
	}
	return m.validateRemote(ctx, rec)
}

func (m *Manager) validateRemote(ctx context.Context, rec *Record) bool {
	hash := rec.TokenHash()

	m.validationLock.Lock()
	if m.validatedHash == hash && m.now().Sub(m.validatedAt) < m.cfg.ValidationTTL {
		result := m.validatedResult
		m.validationLock.Unlock()
		m.metrics.IncrementValidationCacheHits()
		return result == nil
	}
	m.validationLock.Unlock()

	m.metrics.IncrementValidations()
	err := m.validator.Validate(ctx, rec)

	switch {
	case err == nil:
	case errors.Is(err, ErrAuthorizationExpired):
		// The remote rejected a token that looks fine locally. Expire
		// it so the next EnsureValid goes through a refresh.
		m.log.Warn("token rejected by remote validation",
			logger.String("token_hash", hash),
		)
		m.expireAccessToken()
	default:
		// Transport trouble says nothing about the token itself.
		m.log.Debug("validation inconclusive", logger.Err(err))
		return true
	}

	m.validationLock.Lock()
	m.validatedHash = hash
	m.validatedResult = err
	m.validatedAt = m.now()
	m.validationLock.Unlock()

	return err == nil
}

// expireAccessToken rewrites the in-memory record with an expiry in
// the past, forcing the next EnsureValid into the refresh path.
func (m *Manager) expireAccessToken() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.rec == nil {
		return
	}
	rec := m.rec.Clone()
	rec.Expiry = m.now().Add(-time.Second)
	m.rec = rec
}

func (m *Manager) resetValidation() {
	m.validationLock.Lock()
	defer m.validationLock.Unlock()
	m.validatedHash = ""
	m.validatedResult = nil
	m.validatedAt = time.Time{}
}

// SetToken installs a new credential record, typically delivered by a
// login flow, and persists it.
func (m *Manager) SetToken(ctx context.Context, rec *Record) error {
	if rec == nil || (!rec.HasAccessToken() && !rec.HasRefreshToken()) {
		return fmt.Errorf("%w: record carries no token material", ErrUnknown)
	}
	stored := rec.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.ObtainedAt.IsZero() {
		stored.ObtainedAt = m.now().UTC()
	}

	if err := m.store.Save(ctx, stored); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	m.lock.Lock()
	m.rec = stored
	m.loaded = true
	m.invalidGrant = false
	m.lastErr = nil
	m.lock.Unlock()
	m.resetValidation()

	m.log.Info("credential installed",
		logger.String("credential_id", stored.ID),
		logger.String("token_hash", stored.TokenHash()),
		logger.Time("expiry", stored.Expiry),
		logger.Bool("has_refresh_token", stored.HasRefreshToken()),
	)
	return nil
}

// Clear removes the stored credential unconditionally.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	m.lock.Lock()
	m.rec = nil
	m.loaded = true
	m.invalidGrant = false
	m.lastErr = nil
	m.lock.Unlock()
	m.resetValidation()

	m.log.Info("credential cleared")
	return nil
}

// ClearInvalid removes the stored credential only when it can no
// longer authenticate anything. It reports whether a record was
// removed.
func (m *Manager) ClearInvalid(ctx context.Context) (bool, error) {
	state, err := m.State(ctx)
	if err != nil {
		return false, err
	}
	if state == StateNoToken {
		return false, nil
	}
	if state.Recoverable() {
		return false, nil
	}
	if err := m.Clear(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// State classifies the credential as the status surfaces see it: a
// dead grant always reads as not refreshable, and an unresolved
// refresh failure on an otherwise expired token reads as error.
func (m *Manager) State(ctx context.Context) (TokenState, error) {
	rec, err := m.currentRecord(ctx)
	if err != nil {
		return StateError, err
	}
	if rec == nil {
		return StateNoToken, nil
	}

	m.lock.RLock()
	invalidGrant := m.invalidGrant
	lastErr := m.lastErr
	m.lock.RUnlock()

	if invalidGrant {
		return StateExpiredNotRefreshable, nil
	}
	state := rec.State(m.now(), m.cfg.RefreshBuffer)
	if state != StateValid && lastErr != nil {
		return StateError, nil
	}
	return state, nil
}

// Status returns the full operator-facing view.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	state, err := m.State(ctx)
	if err != nil {
		return Status{}, err
	}

	m.lock.RLock()
	rec := m.rec
	lastRefresh := m.lastRefresh
	lastErr := m.lastErr
	m.lock.RUnlock()

	snap := m.metrics.GetSnapshot()
	st := Status{
		State:           state,
		LastRefresh:     lastRefresh,
		Refreshes:       snap["refreshes"],
		RefreshFailures: snap["refresh_failures"],
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if rec != nil {
		st.TokenHash = rec.TokenHash()
		st.Expiry = rec.Expiry
		st.HasRefreshToken = rec.HasRefreshToken()
		st.Scopes = append([]string(nil), rec.Scopes...)
		st.ObtainedAt = rec.ObtainedAt
		if !rec.Expiry.IsZero() {
			if remaining := rec.Expiry.Sub(m.now()); remaining > 0 {
				st.ExpiresIn = remaining.Round(time.Second).String()
			} else {
				st.ExpiresIn = "expired"
			}
		}
	}
	return st, nil
}
