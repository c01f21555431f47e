package credential

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"

	"github.com/stephnangue/chronicle/logger"
)

// Refresher exchanges an expired record for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, rec *Record) (*Record, error)
}

// Validator checks a record against the remote service. Implementations
// classify failures into this package's error taxonomy.
type Validator interface {
	Validate(ctx context.Context, rec *Record) error
}

// OAuth2Config carries the client registration used for refreshes.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	AuthURL      string
	Scopes       []string
}

// OAuth2Refresher refreshes records against an OAuth2 token endpoint.
type OAuth2Refresher struct {
	cfg    *oauth2.Config
	client *http.Client
	log    logger.Logger
}

var _ Refresher = (*OAuth2Refresher)(nil)

func NewOAuth2Refresher(cfg OAuth2Config, log logger.Logger) *OAuth2Refresher {
	return &OAuth2Refresher{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		client: cleanhttp.DefaultPooledClient(),
		log:    log.WithSubsystem("refresher"),
	}
}

// Refresh exchanges the record's refresh token for new token material.
// The returned record keeps the old refresh token when the server does
// not rotate it.
func (r *OAuth2Refresher) Refresh(ctx context.Context, rec *Record) (*Record, error) {
	if !rec.HasRefreshToken() {
		return nil, ErrAuthorizationExpired
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	src := r.cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: rec.RefreshToken,
		// Leave AccessToken empty so the source always performs the
		// refresh instead of returning the token we already have.
	})

	tok, err := src.Token()
	if err != nil {
		classified := ClassifyRefreshError(err)
		r.log.Warn("token refresh failed",
			logger.Err(err),
			logger.Bool("retryable", Retryable(classified)),
		)
		return nil, classified
	}

	next := &Record{
		ID:           uuid.NewString(),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       append([]string(nil), rec.Scopes...),
		ObtainedAt:   time.Now().UTC(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = rec.RefreshToken
	}

	r.log.Info("token refreshed",
		logger.String("credential_id", next.ID),
		logger.String("token_hash", next.TokenHash()),
		logger.Time("expiry", next.Expiry),
	)
	return next, nil
}

// authorizationErrorCodes are the RFC 6749 error codes that mean the
// grant itself is dead and re-authorization is required.
var authorizationErrorCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_token":       true,
	"unauthorized_client": true,
	"access_denied":       true,
	"expired_token":       true,
}

// transientErrorCodes are codes the server uses for trouble on its own
// side; the grant is fine and the exchange is worth retrying.
var transientErrorCodes = map[string]bool{
	"server_error":            true,
	"temporarily_unavailable": true,
}

// ClassifyRefreshError maps a raw refresh failure onto the package's
// error taxonomy. Classification relies on structured data only: the
// OAuth2 error code, the HTTP status, and the error's type.
func ClassifyRefreshError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if authorizationErrorCodes[retrieveErr.ErrorCode] {
			return fmt.Errorf("%w: %s", ErrAuthorizationExpired, retrieveErr.ErrorCode)
		}
		if transientErrorCodes[retrieveErr.ErrorCode] {
			return fmt.Errorf("%w: %s", ErrUnknown, retrieveErr.ErrorCode)
		}
		if retrieveErr.ErrorCode != "" {
			return fmt.Errorf("%w: %s", ErrRefreshFailed, retrieveErr.ErrorCode)
		}
		if retrieveErr.Response != nil {
			code := retrieveErr.Response.StatusCode
			if code >= 500 {
				return fmt.Errorf("%w: authorization server returned %d", ErrUnknown, code)
			}
			return fmt.Errorf("%w: authorization server returned %d", ErrRefreshFailed, code)
		}
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if isTransportError(err) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrUnknown, err)
}

// isTransportError recognizes failures that never reached the remote:
// DNS, dial, TLS, timeouts.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ProbeValidator validates a record by issuing a cheap authenticated
// request, typically against a userinfo or self endpoint.
type ProbeValidator struct {
	url    string
	client *http.Client
}

var _ Validator = (*ProbeValidator)(nil)

func NewProbeValidator(probeURL string) *ProbeValidator {
	return &ProbeValidator{
		url:    probeURL,
		client: cleanhttp.DefaultPooledClient(),
	}
}

func (v *ProbeValidator) Validate(ctx context.Context, rec *Record) error {
	if !rec.HasAccessToken() {
		return ErrNoTokenAvailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	tokenType := rec.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+rec.AccessToken)

	resp, err := v.client.Do(req)
	if err != nil {
		if isTransportError(err) {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: validation returned %d", ErrAuthorizationExpired, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: validation returned %d", ErrUnknown, resp.StatusCode)
	default:
		return fmt.Errorf("%w: validation returned %d", ErrRefreshFailed, resp.StatusCode)
	}
}
