// Package config loads and validates the HCL configuration for the
// chronicle server. Blocks map one-to-one onto the components they
// configure; the typed accessors hand each component its own Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/logger"
	"github.com/stephnangue/chronicle/remote"
	"github.com/stephnangue/chronicle/scheduler"
)

// DefaultListenAddress is where the API listener binds when the config
// does not say otherwise.
const DefaultListenAddress = "127.0.0.1:8300"

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validStoreTypes = []string{"file", "inmem"}
)

// Config is the configuration for the chronicle server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`
	LogRotateMaxDays   int    `hcl:"log_rotate_max_days,optional"`

	Listeners  []ListenerBlock  `hcl:"listener,block"`
	Store      *StoreBlock      `hcl:"store,block"`
	Credential *CredentialBlock `hcl:"credential,block"`
	Cache      *CacheBlock      `hcl:"cache,block"`
	Fetcher    *FetcherBlock    `hcl:"fetcher,block"`
	Scheduler  *SchedulerBlock  `hcl:"scheduler,block"`
}

// ListenerBlock configures one API listener.
type ListenerBlock struct {
	Name        string `hcl:"name,label"`
	Address     string `hcl:"address"`
	TLSDisable  bool   `hcl:"tls_disable,optional"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`

	// RateLimit caps requests per second per client address; zero
	// disables limiting. RateBurst is the bucket size.
	RateLimit float64 `hcl:"rate_limit,optional"`
	RateBurst int     `hcl:"rate_burst,optional"`
}

// StoreBlock configures where the credential record is persisted.
type StoreBlock struct {
	Type string `hcl:"type,label"`
	Path string `hcl:"path,optional"`
}

// CredentialBlock configures the OAuth2 client and the lifecycle
// manager around it.
type CredentialBlock struct {
	ClientID     string   `hcl:"client_id"`
	ClientSecret string   `hcl:"client_secret,optional"`
	TokenURL     string   `hcl:"token_url"`
	AuthURL      string   `hcl:"auth_url,optional"`
	Scopes       []string `hcl:"scopes,optional"`

	RefreshBuffer  string `hcl:"refresh_buffer,optional"`
	ValidationTTL  string `hcl:"validation_ttl,optional"`
	RefreshTimeout string `hcl:"refresh_timeout,optional"`

	// ProbeURL, when set, enables remote token validation against
	// this endpoint.
	ProbeURL string `hcl:"probe_url,optional"`
}

// CacheBlock configures the window cache.
type CacheBlock struct {
	Capacity   int    `hcl:"capacity,optional"`
	TTL        string `hcl:"ttl,optional"`
	StaleAfter string `hcl:"stale_after,optional"`
}

// FetcherBlock configures the upstream HTTP fetcher and the accessor
// knobs that shape how it is driven.
type FetcherBlock struct {
	BaseURL      string `hcl:"base_url"`
	RetryMax     int    `hcl:"retry_max,optional"`
	RetryWaitMin string `hcl:"retry_wait_min,optional"`
	RetryWaitMax string `hcl:"retry_wait_max,optional"`

	ProbeTimeout string `hcl:"probe_timeout,optional"`

	PageSize                 int    `hcl:"page_size,optional"`
	MaxPages                 int    `hcl:"max_pages,optional"`
	RefreshLead              string `hcl:"refresh_lead,optional"`
	DisableBackgroundRefresh bool   `hcl:"disable_background_refresh,optional"`
}

// SchedulerBlock configures the maintenance loop.
type SchedulerBlock struct {
	Disabled   bool   `hcl:"disabled,optional"`
	Interval   string `hcl:"interval,optional"`
	MaxRetries int    `hcl:"max_retries,optional"`

	Resources []ResourceBlock `hcl:"resource,block"`
}

// ResourceBlock names one window the scheduler keeps warm.
type ResourceBlock struct {
	Name       string `hcl:"name,label"`
	WindowDays int    `hcl:"window_days,optional"`
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config
	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseConfig decodes configuration from memory. The filename chooses
// the syntax (.hcl or .json) and appears in diagnostics.
func ParseConfig(src []byte, filename string) (*Config, error) {
	var config Config
	if err := hclsimple.Decode(filename, src, nil, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field constraints and that every duration
// string parses. Components re-apply their own defaults; validation
// here only rejects what would fail later at wiring time.
func (c *Config) Validate() error {
	if c.LogLevel != "" && !strutil.StrListContains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log_level %q, must be one of %s", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.LogFormat != "" && !strutil.StrListContains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log_format %q, must be one of %s", c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	for i := range c.Listeners {
		l := &c.Listeners[i]
		if l.Address == "" {
			return fmt.Errorf("listener %q: address is required", l.Name)
		}
		if !l.TLSDisable && (l.TLSCertFile == "" || l.TLSKeyFile == "") {
			return fmt.Errorf("listener %q: tls_cert_file and tls_key_file are required unless tls_disable is set", l.Name)
		}
		if l.RateLimit < 0 {
			return fmt.Errorf("listener %q: rate_limit must not be negative", l.Name)
		}
	}

	if c.Store != nil {
		if !strutil.StrListContains(validStoreTypes, c.Store.Type) {
			return fmt.Errorf("invalid store type %q, must be one of %s", c.Store.Type, strings.Join(validStoreTypes, ", "))
		}
		if c.Store.Type == "file" && c.Store.Path == "" {
			return fmt.Errorf("store \"file\": path is required")
		}
	}

	if c.Credential != nil {
		if c.Credential.TokenURL == "" {
			return fmt.Errorf("credential: token_url is required")
		}
		if c.Credential.ClientID == "" {
			return fmt.Errorf("credential: client_id is required")
		}
		if _, err := c.Credential.ManagerConfig(); err != nil {
			return err
		}
	}

	if c.Cache != nil {
		if c.Cache.Capacity < 0 {
			return fmt.Errorf("cache: capacity must not be negative")
		}
		if _, err := c.Cache.CacheConfig(); err != nil {
			return err
		}
	}

	if c.Fetcher != nil {
		if c.Fetcher.BaseURL == "" {
			return fmt.Errorf("fetcher: base_url is required")
		}
		if _, err := c.Fetcher.FetcherConfig(); err != nil {
			return err
		}
		if _, err := c.Fetcher.AccessorConfig(); err != nil {
			return err
		}
		if _, err := c.Fetcher.ProbeTimeoutDuration(); err != nil {
			return err
		}
	}

	if c.Scheduler != nil {
		if _, err := c.Scheduler.RunnerConfig(); err != nil {
			return err
		}
	}

	return nil
}

// LoggerConfig maps the log fields onto the logger's configuration.
func (c *Config) LoggerConfig() (logger.Config, error) {
	cfg := logger.DefaultConfig()
	var err error
	if c.LogLevel != "" {
		if cfg.Level, err = logger.ParseLevel(c.LogLevel); err != nil {
			return logger.Config{}, err
		}
	}
	if c.LogFormat != "" {
		if cfg.Format, err = logger.ParseFormat(c.LogFormat); err != nil {
			return logger.Config{}, err
		}
	}
	if c.LogFile != "" {
		cfg.Outputs = append(cfg.Outputs, logger.FileOutput)
		cfg.File = logger.DefaultFileConfig(c.LogFile)
		if c.LogRotateMegabytes > 0 {
			cfg.File.MaxSize = c.LogRotateMegabytes
		}
		if c.LogRotateMaxFiles > 0 {
			cfg.File.MaxBackups = c.LogRotateMaxFiles
		}
		if c.LogRotateMaxDays > 0 {
			cfg.File.MaxAge = c.LogRotateMaxDays
		}
	}
	return cfg, nil
}

// GetListenerByName returns a listener by its name label.
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for i := range c.Listeners {
		if c.Listeners[i].Name == name {
			return &c.Listeners[i], nil
		}
	}
	return nil, fmt.Errorf("listener %q not found", name)
}

// GetAPIListener returns the listener named "api".
func (c *Config) GetAPIListener() (*ListenerBlock, error) {
	return c.GetListenerByName("api")
}

// OAuth2Config maps the block onto the refresher's configuration.
func (b *CredentialBlock) OAuth2Config() credential.OAuth2Config {
	return credential.OAuth2Config{
		ClientID:     b.ClientID,
		ClientSecret: b.ClientSecret,
		TokenURL:     b.TokenURL,
		AuthURL:      b.AuthURL,
		Scopes:       b.Scopes,
	}
}

// ManagerConfig maps the block onto the lifecycle manager's
// configuration, parsing the duration strings.
func (b *CredentialBlock) ManagerConfig() (credential.Config, error) {
	cfg := credential.DefaultConfig()
	var err error
	if cfg.RefreshBuffer, err = parseDuration("credential refresh_buffer", b.RefreshBuffer, cfg.RefreshBuffer); err != nil {
		return credential.Config{}, err
	}
	if cfg.ValidationTTL, err = parseDuration("credential validation_ttl", b.ValidationTTL, cfg.ValidationTTL); err != nil {
		return credential.Config{}, err
	}
	if cfg.RefreshTimeout, err = parseDuration("credential refresh_timeout", b.RefreshTimeout, cfg.RefreshTimeout); err != nil {
		return credential.Config{}, err
	}
	return cfg, nil
}

// CacheConfig maps the block onto the cache's configuration.
func (b *CacheBlock) CacheConfig() (cache.Config, error) {
	cfg := cache.DefaultConfig()
	if b.Capacity > 0 {
		cfg.Capacity = b.Capacity
	}
	var err error
	if cfg.TTL, err = parseDuration("cache ttl", b.TTL, cfg.TTL); err != nil {
		return cache.Config{}, err
	}
	if cfg.StaleAfter, err = parseDuration("cache stale_after", b.StaleAfter, cfg.StaleAfter); err != nil {
		return cache.Config{}, err
	}
	return cfg, nil
}

// FetcherConfig maps the block onto the HTTP fetcher's configuration.
func (b *FetcherBlock) FetcherConfig() (remote.HTTPConfig, error) {
	cfg := remote.HTTPConfig{
		BaseURL:  b.BaseURL,
		RetryMax: b.RetryMax,
	}
	var err error
	if cfg.RetryWaitMin, err = parseDuration("fetcher retry_wait_min", b.RetryWaitMin, remote.DefaultRetryWaitMin); err != nil {
		return remote.HTTPConfig{}, err
	}
	if cfg.RetryWaitMax, err = parseDuration("fetcher retry_wait_max", b.RetryWaitMax, remote.DefaultRetryWaitMax); err != nil {
		return remote.HTTPConfig{}, err
	}
	return cfg, nil
}

// AccessorConfig maps the block's accessor knobs onto the core
// configuration.
func (b *FetcherBlock) AccessorConfig() (core.Config, error) {
	cfg := core.DefaultConfig()
	cfg.PageSize = b.PageSize
	if b.MaxPages > 0 {
		cfg.MaxPages = b.MaxPages
	}
	cfg.DisableBackgroundRefresh = b.DisableBackgroundRefresh
	var err error
	if cfg.RefreshLead, err = parseDuration("fetcher refresh_lead", b.RefreshLead, cfg.RefreshLead); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

// ProbeTimeoutDuration parses the connectivity probe timeout.
func (b *FetcherBlock) ProbeTimeoutDuration() (time.Duration, error) {
	return parseDuration("fetcher probe_timeout", b.ProbeTimeout, remote.DefaultProbeTimeout)
}

// RunnerConfig maps the block onto the scheduler's configuration.
func (b *SchedulerBlock) RunnerConfig() (scheduler.Config, error) {
	cfg := scheduler.DefaultConfig()
	var err error
	if cfg.Interval, err = parseDuration("scheduler interval", b.Interval, cfg.Interval); err != nil {
		return scheduler.Config{}, err
	}
	if b.MaxRetries > 0 {
		cfg.MaxRetries = b.MaxRetries
	}
	for _, res := range b.Resources {
		window := event.Window(res.WindowDays)
		if res.WindowDays == 0 {
			window = 7
		}
		cfg.Resources = append(cfg.Resources, scheduler.Resource{
			Name:   res.Name,
			Window: window,
		})
	}
	return cfg, nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := parseutil.ParseDurationSecond(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, raw)
	}
	return d, nil
}
