package remote

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/stephnangue/chronicle/logger"
)

// DefaultProbeTimeout bounds one connectivity probe.
const DefaultProbeTimeout = 2 * time.Second

// OnlineChecker reports whether the upstream looks reachable. The
// accessor consults it before deciding between a real fetch and a
// degraded answer.
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// ProbeChecker checks reachability by opening a TCP connection to the
// upstream host.
type ProbeChecker struct {
	addr    string
	timeout time.Duration
	log     logger.Logger
}

var _ OnlineChecker = (*ProbeChecker)(nil)

// NewProbeChecker builds a checker that dials the host of baseURL.
// The port defaults from the scheme when the URL does not carry one.
func NewProbeChecker(baseURL string, timeout time.Duration, log logger.Logger) (*ProbeChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &ProbeChecker{
		addr:    net.JoinHostPort(host, port),
		timeout: timeout,
		log:     log.WithSubsystem("online"),
	}, nil
}

func (p *ProbeChecker) Online(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		p.log.Debug("connectivity probe failed",
			logger.String("addr", p.addr),
			logger.Err(err),
		)
		return false
	}
	conn.Close()
	return true
}

// StaticChecker always answers the same; used when probing is
// disabled.
type StaticChecker bool

var _ OnlineChecker = StaticChecker(true)

func (s StaticChecker) Online(context.Context) bool {
	return bool(s)
}
