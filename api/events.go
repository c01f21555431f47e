package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Event is one calendar event as the server reports it.
type Event struct {
	ID          string    `json:"id"`
	Status      string    `json:"status,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
}

// EventsResponse is the response from a window read.
type EventsResponse struct {
	Resource   string  `json:"resource"`
	WindowDays int     `json:"window_days"`
	Items      []Event `json:"items"`
	Count      int     `json:"count"`
	Source     string  `json:"source"`
	Degraded   bool    `json:"degraded"`
	Key        string  `json:"key"`
}

// EventsPageResponse is the response from a page read.
type EventsPageResponse struct {
	Resource      string  `json:"resource"`
	WindowDays    int     `json:"window_days"`
	Items         []Event `json:"items"`
	Count         int     `json:"count"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	HasMore       bool    `json:"has_more"`
}

// EventsOptions adjust a window read. The zero value asks for the
// server's defaults.
type EventsOptions struct {
	// WindowDays overrides the server's default window length.
	WindowDays int

	// Force bypasses the caches and reads the upstream directly.
	Force bool
}

// Events reads the upcoming window of one resource through the server's
// cache and degrade policy.
func (c *Client) Events(resource string, opts *EventsOptions) (*EventsResponse, error) {
	return c.EventsWithContext(context.Background(), resource, opts)
}

func (c *Client) EventsWithContext(ctx context.Context, resource string, opts *EventsOptions) (*EventsResponse, error) {
	ctx, cancelFunc := c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.NewRequest(http.MethodGet, fmt.Sprintf("/v1/%s/events", resource))
	if opts != nil {
		if opts.WindowDays > 0 {
			r.Params.Set("window", strconv.Itoa(opts.WindowDays))
		}
		if opts.Force {
			r.Params.Set("force", "true")
		}
	}

	resp, err := c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result EventsResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EventsPageOptions adjust a page read. The zero value asks for the
// first page with the server's defaults.
type EventsPageOptions struct {
	// WindowDays overrides the server's default window length.
	WindowDays int

	// MaxResults caps the page size. Zero leaves the upstream default.
	MaxResults int

	// PageToken resumes a paging run where the previous page stopped.
	PageToken string
}

// EventsPage reads one page of events directly from the upstream,
// bypassing the cache.
func (c *Client) EventsPage(resource string, opts *EventsPageOptions) (*EventsPageResponse, error) {
	return c.EventsPageWithContext(context.Background(), resource, opts)
}

func (c *Client) EventsPageWithContext(ctx context.Context, resource string, opts *EventsPageOptions) (*EventsPageResponse, error) {
	ctx, cancelFunc := c.withConfiguredTimeout(ctx)
	defer cancelFunc()

	r := c.NewRequest(http.MethodGet, fmt.Sprintf("/v1/%s/events/page", resource))
	if opts != nil {
		if opts.WindowDays > 0 {
			r.Params.Set("window", strconv.Itoa(opts.WindowDays))
		}
		if opts.MaxResults > 0 {
			r.Params.Set("max_results", strconv.Itoa(opts.MaxResults))
		}
		if opts.PageToken != "" {
			r.Params.Set("page_token", opts.PageToken)
		}
	}

	resp, err := c.rawRequestWithContext(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result EventsPageResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
