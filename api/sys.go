package api

import (
	"context"
	"net/http"
	"time"
)

// Sys is used to perform system-related operations on Chronicle.
type Sys struct {
	c *Client
}

// Sys is used to return the client for sys-related API calls.
func (c *Client) Sys() *Sys {
	return &Sys{c: c}
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	TokenState   string `json:"token_state"`
	TokenUsable  bool   `json:"token_usable"`
	CacheEntries int    `json:"cache_entries"`
}

// Health reports whether the server can currently serve reads.
func (c *Sys) Health() (*HealthResponse, error) {
	return c.HealthWithContext(context.Background())
}

func (c *Sys) HealthWithContext(ctx context.Context) (*HealthResponse, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodGet, "/v1/sys/health")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result HealthResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheStats mirrors the server's window cache counters.
type CacheStats struct {
	Total       int            `json:"total"`
	Fresh       int            `json:"fresh"`
	Stale       int            `json:"stale"`
	Capacity    int            `json:"capacity"`
	ByPriority  map[string]int `json:"by_priority"`
	Hits        int64          `json:"hits"`
	StaleHits   int64          `json:"stale_hits"`
	Misses      int64          `json:"misses"`
	Puts        int64          `json:"puts"`
	Evictions   int64          `json:"evictions"`
	Expirations int64          `json:"expirations"`
}

// CacheStatsResponse is the response from the cache stats endpoint.
type CacheStatsResponse struct {
	Stats   CacheStats `json:"stats"`
	Summary string     `json:"summary"`
}

// CacheStats reports entry counts and hit counters for the window cache.
func (c *Sys) CacheStats() (*CacheStatsResponse, error) {
	return c.CacheStatsWithContext(context.Background())
}

func (c *Sys) CacheStatsWithContext(ctx context.Context) (*CacheStatsResponse, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodGet, "/v1/sys/cache/stats")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result CacheStatsResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheEntry describes one cached window.
type CacheEntry struct {
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	ETag      string    `json:"etag,omitempty"`
	Priority  string    `json:"priority"`
	Freshness string    `json:"freshness"`
	FetchedAt time.Time `json:"fetched_at"`
	StaleAt   time.Time `json:"stale_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheEntriesResponse is the response from the cache entries endpoint.
type CacheEntriesResponse struct {
	Entries []CacheEntry `json:"entries"`
}

// CacheEntries lists every cached window with its freshness.
func (c *Sys) CacheEntries() (*CacheEntriesResponse, error) {
	return c.CacheEntriesWithContext(context.Background())
}

func (c *Sys) CacheEntriesWithContext(ctx context.Context) (*CacheEntriesResponse, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodGet, "/v1/sys/cache/entries")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result CacheEntriesResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheClear drops every cached window and returns how many were dropped.
func (c *Sys) CacheClear() (int, error) {
	return c.CacheClearWithContext(context.Background())
}

func (c *Sys) CacheClearWithContext(ctx context.Context) (int, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodPost, "/v1/sys/cache/clear")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result struct {
		Cleared int `json:"cleared"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return 0, err
	}
	return result.Cleared, nil
}

// CacheInvalidate drops every cached window of one resource and returns
// how many entries were dropped.
func (c *Sys) CacheInvalidate(resource string) (int, error) {
	return c.CacheInvalidateWithContext(context.Background(), resource)
}

func (c *Sys) CacheInvalidateWithContext(ctx context.Context, resource string) (int, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodPost, "/v1/sys/cache/invalidate")
	if err := r.SetJSONBody(map[string]any{"resource": resource}); err != nil {
		return 0, err
	}

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result struct {
		Invalidated int `json:"invalidated"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return 0, err
	}
	return result.Invalidated, nil
}

// TokenStatus mirrors the server's credential lifecycle status. The token
// material itself never crosses the API.
type TokenStatus struct {
	State           string    `json:"state"`
	TokenHash       string    `json:"token_hash,omitempty"`
	Expiry          time.Time `json:"expiry,omitempty"`
	ExpiresIn       string    `json:"expires_in,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	Scopes          []string  `json:"scopes,omitempty"`
	ObtainedAt      time.Time `json:"obtained_at,omitempty"`
	LastRefresh     time.Time `json:"last_refresh,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Refreshes       int64     `json:"refreshes"`
	RefreshFailures int64     `json:"refresh_failures"`
}

// tokenStatusEnvelope is the body shape of the install and refresh
// endpoints, which wrap the status.
type tokenStatusEnvelope struct {
	Status TokenStatus `json:"status"`
}

// TokenStatus reports the credential lifecycle state without touching
// the network.
func (c *Sys) TokenStatus() (*TokenStatus, error) {
	return c.TokenStatusWithContext(context.Background())
}

func (c *Sys) TokenStatusWithContext(ctx context.Context) (*TokenStatus, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodGet, "/v1/sys/token/status")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result TokenStatus
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TokenInstallRequest carries a credential obtained out of band, usually
// from a login flow, to the server.
type TokenInstallRequest struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// InstallToken stores a credential on the server and returns the
// resulting lifecycle status.
func (c *Sys) InstallToken(req *TokenInstallRequest) (*TokenStatus, error) {
	return c.InstallTokenWithContext(context.Background(), req)
}

func (c *Sys) InstallTokenWithContext(ctx context.Context, req *TokenInstallRequest) (*TokenStatus, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodPost, "/v1/sys/token")
	if err := r.SetJSONBody(req); err != nil {
		return nil, err
	}

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result tokenStatusEnvelope
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result.Status, nil
}

// RefreshToken forces a refresh even if the current token still looks
// valid and returns the resulting lifecycle status.
func (c *Sys) RefreshToken() (*TokenStatus, error) {
	return c.RefreshTokenWithContext(context.Background())
}

func (c *Sys) RefreshTokenWithContext(ctx context.Context) (*TokenStatus, error) {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodPost, "/v1/sys/token/refresh")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result tokenStatusEnvelope
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result.Status, nil
}

// ClearToken removes the stored credential from the server.
func (c *Sys) ClearToken() error {
	return c.ClearTokenWithContext(context.Background())
}

func (c *Sys) ClearTokenWithContext(ctx context.Context) error {
	ctx, cancelFunc := c.c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.c.NewRequest(http.MethodDelete, "/v1/sys/token")

	resp, err := c.c.rawRequestWithContext(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}
