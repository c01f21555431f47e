// Package scheduler runs the periodic maintenance the access layer
// needs: refreshing the credential before it expires and re-warming
// the cache for the windows users actually look at.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/helper"
	"github.com/stephnangue/chronicle/logger"
)

const (
	// DefaultInterval separates maintenance passes.
	DefaultInterval = 5 * time.Minute

	// DefaultJitterFraction spreads the interval so replicas do not
	// fire in lockstep.
	DefaultJitterFraction = 0.1

	// DefaultMaxRetries bounds credential refresh retries per pass.
	DefaultMaxRetries = 4

	// DefaultInitialBackoff and DefaultMaxBackoff shape the retry
	// waits between refresh attempts.
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Resource names one window the maintenance pass keeps warm.
type Resource struct {
	Name   string
	Window event.Window
}

// Config holds runner tunables.
type Config struct {
	Interval       time.Duration
	JitterFraction float64

	// Resources are re-warmed each pass with force=false, so passes
	// are cheap whenever the cache is already hot.
	Resources []Resource

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the runner defaults with no resources.
func DefaultConfig() Config {
	return Config{
		Interval:       DefaultInterval,
		JitterFraction: DefaultJitterFraction,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Refresher is the slice of the credential manager the runner drives.
type Refresher interface {
	RefreshIfExpiringSoon(ctx context.Context) (bool, error)
}

var _ Refresher = (*credential.Manager)(nil)

// Warmer is the slice of the accessor the runner drives.
type Warmer interface {
	Fetch(ctx context.Context, resource string, window event.Window, force bool) ([]event.Event, error)
}

var _ Warmer = (*core.Core)(nil)

// Runner owns the maintenance loop. Create it in the composition root,
// Start it once, Stop it at shutdown.
type Runner struct {
	cfg       Config
	refresher Refresher
	warmer    Warmer
	log       logger.Logger
	metrics   *Metrics

	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewRunner builds a runner. Configured resources are validated here
// so a bad window fails startup instead of every pass.
func NewRunner(cfg Config, refresher Refresher, warmer Warmer, log logger.Logger) (*Runner, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if warmer == nil {
		return nil, fmt.Errorf("warmer is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = DefaultJitterFraction
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	for _, res := range cfg.Resources {
		if res.Name == "" {
			return nil, fmt.Errorf("resource name must not be empty")
		}
		if err := res.Window.Validate(); err != nil {
			return nil, fmt.Errorf("resource %q: %w", res.Name, err)
		}
	}
	return &Runner{
		cfg:       cfg,
		refresher: refresher,
		warmer:    warmer,
		log:       log.WithSubsystem("scheduler"),
		metrics:   &Metrics{},
		stopCh:    make(chan struct{}),
	}, nil
}

// Metrics returns the runner's counters.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Start launches the maintenance loop and returns immediately. The
// loop stops on Stop or when ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.loop(ctx)
	})
}

// Stop halts the loop and waits for an in-progress pass to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		interval := helper.Jitter(r.cfg.Interval, r.cfg.JitterFraction)
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info("maintenance loop stopped", logger.NamedErr("reason", ctx.Err()))
			return
		case <-r.stopCh:
			timer.Stop()
			r.log.Info("maintenance loop stopped")
			return
		case <-timer.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error("maintenance pass finished with errors", logger.Err(err))
			}
		}
	}
}

// RunOnce executes one maintenance pass: refresh the credential if it
// is close to expiry, then re-warm every configured window. Errors are
// collected rather than short-circuiting; one cold window must not
// keep the others cold.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()
	r.metrics.IncrementPasses()

	var errs *multierror.Error
	if err := r.refreshCredential(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("credential refresh: %w", err))
	}

	warmed := 0
	for _, res := range r.cfg.Resources {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		if err := r.warmResource(ctx, res); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("warm %s/%dd: %w", res.Name, res.Window.Days(), err))
			continue
		}
		warmed++
	}

	err := errs.ErrorOrNil()
	if err != nil {
		r.metrics.IncrementFailedPasses()
	}
	r.log.Debug("maintenance pass finished",
		logger.Int("warmed", warmed),
		logger.Int("resources", len(r.cfg.Resources)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return err
}

// refreshCredential drives RefreshIfExpiringSoon with exponential
// backoff. Only transient faults are retried; a credential needing the
// user cannot be fixed by waiting.
func (r *Runner) refreshCredential(ctx context.Context) error {
	var refreshed bool
	op := func() error {
		did, err := r.refresher.RefreshIfExpiringSoon(ctx)
		if err == nil {
			refreshed = did
			return nil
		}
		if !credential.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.IncrementRefreshRetries()
		r.log.Warn("credential refresh failed, retrying",
			logger.Duration("backoff", wait),
			logger.Err(err),
		)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialBackoff
	bo.MaxInterval = r.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // bounded by the retry count and ctx
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxRetries)), ctx), notify)
	if err == nil && refreshed {
		r.metrics.IncrementProactiveRefreshes()
		r.log.Info("credential refreshed ahead of expiry")
	}
	return err
}

func (r *Runner) warmResource(ctx context.Context, res Resource) error {
	items, err := r.warmer.Fetch(ctx, res.Name, res.Window, false)
	if err != nil {
		return err
	}
	r.metrics.IncrementWarmedWindows()
	r.log.Debug("window warmed",
		logger.String("resource", res.Name),
		logger.Int("days", res.Window.Days()),
		logger.Int("items", len(items)),
	)
	return nil
}
