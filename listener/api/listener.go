package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stephnangue/chronicle/listener"
	"github.com/stephnangue/chronicle/logger"
)

var _ listener.Listener = (*ApiListener)(nil)

type ApiListener struct {
	logger  logger.Logger
	server  *http.Server
	stopped atomic.Bool

	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string

	// addr holds the resolved bind address once Start has opened the
	// socket; before that, Addr reports the configured one.
	addr atomic.Value
}

type ApiListenerConfig struct {
	Logger      logger.Logger
	Address     string
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
}

func NewApiListener(cfg ApiListenerConfig, httpHandler http.Handler) (*ApiListener, error) {
	if cfg.Address == "" {
		return nil, errors.New("listener address is required")
	}
	if cfg.TLSEnabled && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		return nil, errors.New("tls requires both a certificate and a key file")
	}

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      httpHandler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &ApiListener{
		logger:      cfg.Logger,
		server:      server,
		tlsEnabled:  cfg.TLSEnabled,
		tlsCertFile: cfg.TLSCertFile,
		tlsKeyFile:  cfg.TLSKeyFile,
	}, nil
}

func (l *ApiListener) Addr() string {
	if v := l.addr.Load(); v != nil {
		return v.(string)
	}
	return l.server.Addr
}

func (l *ApiListener) Type() string {
	return "api"
}

// Start opens the socket and serves until the context is canceled or
// the server fails. The socket is bound before the serving goroutine
// runs so bind errors surface synchronously.
func (l *ApiListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		return err
	}
	l.addr.Store(ln.Addr().String())

	l.logger.Info("starting HTTP server",
		logger.String("address", ln.Addr().String()),
		logger.Bool("tls", l.tlsEnabled),
	)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if l.tlsEnabled {
			err = l.server.ServeTLS(ln, l.tlsCertFile, l.tlsKeyFile)
		} else {
			err = l.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		l.logger.Info("shutdown signal received")
		return l.Stop()
	case err := <-errChan:
		l.logger.Error("HTTP server error", logger.Err(err))
		return err
	}
}

func (l *ApiListener) Stop() error {
	// Check if already stopped, return early if so
	if !l.stopped.CompareAndSwap(false, true) {
		l.logger.Info("HTTP server already stopped, skipping")
		return nil
	}

	l.logger.Info("shutting down HTTP server")

	// Create a context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Error("error when shutting down the http server", logger.Err(err))
		return err
	}

	l.logger.Info("HTTP server stopped gracefully")
	return nil
}
