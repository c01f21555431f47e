package remote

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/helper"
	"github.com/stephnangue/chronicle/logger"
)

const (
	// DefaultRetryMax is how many times a retryable request is retried.
	DefaultRetryMax = 3

	// DefaultRetryWaitMin and DefaultRetryWaitMax bound the backoff
	// between retries.
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second

	// DefaultPageSize is the max_results sent when the caller does not
	// choose one.
	DefaultPageSize = 250

	// maxErrorBodyBytes caps how much of an error response body is
	// kept for the error message.
	maxErrorBodyBytes = 512
)

// FetchRequest describes one window (or one page of a window) to
// fetch.
type FetchRequest struct {
	// Resource is the upstream collection, e.g. "events".
	Resource string

	// Start and End bound the window.
	Start time.Time
	End   time.Time

	// PageToken continues a paginated listing.
	PageToken string

	// PageSize caps items per page; zero means DefaultPageSize.
	PageSize int

	// ETag, when set, makes the fetch conditional: an unchanged
	// window comes back as NotModified with no items.
	ETag string

	// RequestID correlates the request in logs on both sides. One is
	// generated when empty.
	RequestID string
}

// FetchResult is one page of items from the upstream.
type FetchResult struct {
	Items         []event.Event
	ETag          string
	NextPageToken string

	// NotModified reports that the upstream confirmed the caller's
	// ETag is still current; Items is empty in that case.
	NotModified bool
}

// HasMore reports whether another page exists.
func (r *FetchResult) HasMore() bool {
	return r.NextPageToken != ""
}

// Fetcher retrieves resource items from the upstream service.
type Fetcher interface {
	Fetch(ctx context.Context, token string, req FetchRequest) (*FetchResult, error)
}

// HTTPConfig holds fetcher construction parameters.
type HTTPConfig struct {
	// BaseURL is the upstream API root; the resource name is appended
	// as a path segment.
	BaseURL string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTPFetcher implements Fetcher over HTTP with retries. Transient
// upstream failures (429, 5xx, transport errors) are retried with
// backoff; the Retry-After header is honored.
type HTTPFetcher struct {
	base   *url.URL
	client *retryablehttp.Client
	log    logger.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for the given upstream.
func NewHTTPFetcher(cfg HTTPConfig, log logger.Logger) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = DefaultRetryWaitMax
	}

	log = log.WithSubsystem("fetcher")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = fetchRetryPolicy
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logger.NewHCLogAdapter(log, "retry")

	return &HTTPFetcher{
		base:   base,
		client: rc,
		log:    log,
	}, nil
}

// fetchRetryPolicy retries transport failures, 429, and 5xx (except
// 501). Certificate failures are terminal: retrying will not make the
// upstream trusted.
func fetchRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var unknownAuthority x509.UnknownAuthorityError
		if errors.As(err, &unknownAuthority) {
			return false, err
		}
		var certInvalid x509.CertificateInvalidError
		if errors.As(err, &certInvalid) {
			return false, err
		}
		var hostname x509.HostnameError
		if errors.As(err, &hostname) {
			return false, err
		}
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}
	return false, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, token string, req FetchRequest) (*FetchResult, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = helper.GenerateRequestID()
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	u := f.base.JoinPath(req.Resource)
	q := u.Query()
	q.Set("start", req.Start.UTC().Format(time.RFC3339))
	q.Set("end", req.End.UTC().Format(time.RFC3339))
	q.Set("max_results", strconv.Itoa(pageSize))
	if req.PageToken != "" {
		q.Set("page_token", req.PageToken)
	}
	u.RawQuery = q.Encode()

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	hreq.Header.Set("Authorization", "Bearer "+token)
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Request-ID", requestID)
	if req.ETag != "" {
		hreq.Header.Set("If-None-Match", req.ETag)
	}

	start := time.Now()
	resp, err := f.client.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Warn("fetch failed at transport",
			logger.String("request_id", requestID),
			logger.String("resource", req.Resource),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	f.log.Debug("fetch completed",
		logger.String("request_id", requestID),
		logger.String("resource", req.Resource),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &FetchResult{ETag: req.ETag, NotModified: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body struct {
			Items         []event.Event `json:"items"`
			NextPageToken string        `json:"next_page_token"`
			ETag          string        `json:"etag"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: decoding response: %v", ErrUnknown, err)
		}
		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = body.ETag
		}
		return &FetchResult{
			Items:         body.Items,
			ETag:          etag,
			NextPageToken: body.NextPageToken,
		}, nil

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
			Body:       string(snippet),
		}
		f.log.Warn("fetch rejected by remote",
			logger.String("request_id", requestID),
			logger.String("resource", req.Resource),
			logger.Int("status", resp.StatusCode),
		)
		return nil, statusErr
	}
}
