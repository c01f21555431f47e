package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/config"
	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	chroniclehttp "github.com/stephnangue/chronicle/http"
	"github.com/stephnangue/chronicle/listener"
	"github.com/stephnangue/chronicle/listener/api"
	log "github.com/stephnangue/chronicle/logger"
	"github.com/stephnangue/chronicle/remote"
	"github.com/stephnangue/chronicle/scheduler"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// Subsystem name for listener logging
	subsystemListener = "listener"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Chronicle server that responds to API requests",
		Long: `
Usage: chronicle server [options]

  This command starts a Chronicle server that responds to API requests.
  Start a server with a configuration file:

      $ chronicle server --config=/etc/chronicle/config.hcl

  For a full list of examples, please see the documentation.
  `,
		RunE: run,
	}

	wg sync.WaitGroup

	cleanupGuard sync.Once
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/chronicle.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	// Validate config path is provided
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	// Load configuration
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig, err := conf.LoggerConfig()
	if err != nil {
		return fmt.Errorf("failed to build logger configuration: %w", err)
	}

	// construct the logger with gate closed during initialization
	logger := log.NewGatedLogger(logConfig)
	defer logger.Close()

	// craft the credential store
	store, storeType, err := buildStore(conf)
	if err != nil {
		return fmt.Errorf("failed to construct the credential store: %w", err)
	}

	// craft the credential manager around the store
	manager, err := buildManager(conf, store, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the credential manager: %w", err)
	}

	infoKeys := make([]string, 0, 10)
	info := make(map[string]string)
	info["log level"] = conf.LogLevel
	infoKeys = append(infoKeys, "log level")
	info["log file"] = conf.LogFile
	infoKeys = append(infoKeys, "log file")
	info["log format"] = conf.LogFormat
	infoKeys = append(infoKeys, "log format")
	info["store"] = storeType
	infoKeys = append(infoKeys, "store")

	// returns a slice of env vars formatted as "key=value"
	envVars := os.Environ()
	var envVarKeys []string
	for _, v := range envVars {
		splitEnvVars := strings.Split(v, "=")
		envVarKeys = append(envVarKeys, splitEnvVars[0])
	}

	sort.Strings(envVarKeys)

	key := "environment variables"
	info[key] = strings.Join(envVarKeys, ", ")
	infoKeys = append(infoKeys, key)

	// craft the accessor and its collaborators
	accessor, err := buildAccessor(conf, manager, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the accessor: %w", err)
	}

	info["upstream"] = conf.Fetcher.BaseURL
	infoKeys = append(infoKeys, "upstream")

	// craft the maintenance runner, unless disabled
	runner, err := buildRunner(conf, manager, accessor, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the scheduler: %w", err)
	}
	if runner == nil {
		info["scheduler"] = "disabled"
	} else {
		info["scheduler"] = "enabled"
	}
	infoKeys = append(infoKeys, "scheduler")

	// Create the shared HTTP handler
	httpHandler := buildHandler(conf, accessor, manager, logger)

	// init the listeners
	lns, err := initListeners(httpHandler, conf, logger, &infoKeys, info)
	if err != nil {
		return err
	}

	// Shutdown error tracking
	var shutdownErrs []error
	var shutdownErrsMu sync.Mutex

	// Make sure we close all listeners from this point on
	listenerCloseFunc := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping all listeners\n")
		for _, ln := range lns {
			if err := ln.Stop(); err != nil {
				shutdownErrsMu.Lock()
				shutdownErrs = append(shutdownErrs, fmt.Errorf("failed to stop %s listener at %s: %w", ln.Type(), ln.Addr(), err))
				shutdownErrsMu.Unlock()
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Listener stopped successfully: type=%s, address=%s\n", ln.Type(), ln.Addr())
			}
		}
	}

	// Use sync.Once to ensure listeners are stopped exactly once, even if called
	// both via defer (on panic/error) and explicitly before shutdown
	defer cleanupGuard.Do(listenerCloseFunc)

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Chronicle server configuration:\n\n")

	titleCaser := cases.Title(language.English, cases.NoLower)

	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", titleCaser.String(k), info[k])
	}

	// start the servers
	// Use context from cobra command which respects signal interrupts
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if runner != nil {
		runner.Start(ctx)
	}

	// Channel to collect all listener errors
	errChan := make(chan error, len(lns))
	var listenerErrs []error
	var listenerErrsMu sync.Mutex
	totalListeners := len(lns)

	for _, ln := range lns {
		wg.Go(func() {
			if err := ln.Start(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failed to start listener: %v\n", err)
				errChan <- err
			}
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Chronicle server started! Log data will stream in below:\n")
	logger.OpenGate(logConfig)

	// Wait for shutdown
	shutdownTriggered := false

	for !shutdownTriggered {
		select {
		case err := <-errChan:
			// Aggregate listener errors
			listenerErrsMu.Lock()
			listenerErrs = append(listenerErrs, err)
			failedCount := len(listenerErrs)
			listenerErrsMu.Unlock()

			fmt.Fprintf(cmd.OutOrStdout(), "Listener error occurred: failed_count=%d, total_listeners=%d\n", failedCount, totalListeners)

			// Only trigger shutdown if ALL listeners have failed
			if failedCount >= totalListeners {
				fmt.Fprintf(cmd.OutOrStdout(), "All listeners have failed, triggering shutdown: failed_count=%d\n", failedCount)
				shutdownTriggered = true
				cancel()
			}
		case <-ctx.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "Chronicle shutdown triggered\n")
			shutdownTriggered = true
			cancel()
		}
	}

	// Stop the listeners so that we don't process further client requests
	cleanupGuard.Do(listenerCloseFunc)

	// Wait for all listener goroutines to finish and collect any remaining errors
	wg.Wait()

	// Collect any remaining errors from errChan (non-blocking)
	close(errChan)
	for err := range errChan {
		listenerErrsMu.Lock()
		listenerErrs = append(listenerErrs, err)
		listenerErrsMu.Unlock()
	}

	// Log aggregated listener errors if any
	if len(listenerErrs) > 0 {
		aggregatedErr := errors.Join(listenerErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Listener errors occurred during runtime: %v, error_count=%d\n", aggregatedErr, len(listenerErrs))
	}

	// Stop the maintenance loop before the accessor so no new fetches start
	if runner != nil {
		runner.Stop()
	}

	// Drain in-flight background refreshes
	accessor.Stop()

	// Report aggregated shutdown errors
	if len(shutdownErrs) > 0 {
		aggregatedShutdownErr := errors.Join(shutdownErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Shutdown completed with errors: %v, error_count=%d\n", aggregatedShutdownErr, len(shutdownErrs))
		return aggregatedShutdownErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

// buildStore selects the credential store from the store block. A
// missing block falls back to the in-memory store.
func buildStore(conf *config.Config) (credential.Store, string, error) {
	if conf.Store == nil {
		return credential.NewInmemStore(), "inmem", nil
	}

	switch conf.Store.Type {
	case "file":
		return credential.NewFileStore(conf.Store.Path), "file", nil
	case "inmem":
		return credential.NewInmemStore(), "inmem", nil
	default:
		return nil, "", fmt.Errorf("unknown store type %s", conf.Store.Type)
	}
}

func buildManager(conf *config.Config, store credential.Store, logger *log.GatedLogger) (*credential.Manager, error) {
	if conf.Credential == nil {
		return nil, errors.New("a credential block must be specified")
	}

	managerConfig, err := conf.Credential.ManagerConfig()
	if err != nil {
		return nil, err
	}

	refresher := credential.NewOAuth2Refresher(conf.Credential.OAuth2Config(), logger)

	var validator credential.Validator
	if conf.Credential.ProbeURL != "" {
		validator = credential.NewProbeValidator(conf.Credential.ProbeURL)
	}

	return credential.NewManager(managerConfig, store, refresher, validator, logger)
}

// buildAccessor wires the cache, the upstream fetcher and the
// connectivity probe into the accessor.
func buildAccessor(conf *config.Config, manager *credential.Manager, logger *log.GatedLogger) (*core.Core, error) {
	if conf.Fetcher == nil {
		return nil, errors.New("a fetcher block must be specified")
	}

	cacheConfig := cache.DefaultConfig()
	if conf.Cache != nil {
		var err error
		if cacheConfig, err = conf.Cache.CacheConfig(); err != nil {
			return nil, err
		}
	}
	windowCache := cache.New(cacheConfig, logger)

	fetcherConfig, err := conf.Fetcher.FetcherConfig()
	if err != nil {
		return nil, err
	}
	fetcher, err := remote.NewHTTPFetcher(fetcherConfig, logger)
	if err != nil {
		return nil, err
	}

	probeTimeout, err := conf.Fetcher.ProbeTimeoutDuration()
	if err != nil {
		return nil, err
	}
	checker, err := remote.NewProbeChecker(fetcherConfig.BaseURL, probeTimeout, logger)
	if err != nil {
		return nil, err
	}

	accessorConfig, err := conf.Fetcher.AccessorConfig()
	if err != nil {
		return nil, err
	}

	return core.New(accessorConfig, core.Deps{
		Cache:   windowCache,
		Tokens:  manager,
		Fetcher: fetcher,
		Online:  checker,
		Logger:  logger,
	})
}

// buildRunner constructs the maintenance runner. A missing or disabled
// scheduler block returns nil without error.
func buildRunner(conf *config.Config, manager *credential.Manager, accessor *core.Core, logger *log.GatedLogger) (*scheduler.Runner, error) {
	if conf.Scheduler == nil || conf.Scheduler.Disabled {
		return nil, nil
	}

	runnerConfig, err := conf.Scheduler.RunnerConfig()
	if err != nil {
		return nil, err
	}

	return scheduler.NewRunner(runnerConfig, manager, accessor, logger)
}

// buildHandler creates the shared HTTP handler. Rate limiting follows
// the api listener block when one is configured.
func buildHandler(conf *config.Config, accessor *core.Core, manager *credential.Manager, logger *log.GatedLogger) http.Handler {
	props := &chroniclehttp.HandlerProperties{
		Core:   accessor,
		Tokens: manager,
		Logger: logger,
	}

	if ln, err := conf.GetAPIListener(); err == nil {
		props.RateLimit = ln.RateLimit
		props.RateBurst = ln.RateBurst
	} else if len(conf.Listeners) > 0 {
		props.RateLimit = conf.Listeners[0].RateLimit
		props.RateBurst = conf.Listeners[0].RateBurst
	}

	return chroniclehttp.Handler(props)
}

func initListeners(httpHandler http.Handler, conf *config.Config, logger *log.GatedLogger, infoKeys *[]string, info map[string]string) ([]listener.Listener, error) {
	listenerBlocks := conf.Listeners
	if len(listenerBlocks) == 0 {
		listenerBlocks = []config.ListenerBlock{{
			Name:       "api",
			Address:    config.DefaultListenAddress,
			TLSDisable: true,
		}}
	}

	lns := make([]listener.Listener, 0, len(listenerBlocks))

	for _, lnConfig := range listenerBlocks {
		// construct api listener using the shared HTTP handler
		ln, err := api.NewApiListener(api.ApiListenerConfig{
			Logger:      logger.WithSubsystem(subsystemListener),
			Address:     lnConfig.Address,
			TLSEnabled:  !lnConfig.TLSDisable,
			TLSCertFile: lnConfig.TLSCertFile,
			TLSKeyFile:  lnConfig.TLSKeyFile,
		}, httpHandler)
		if err != nil {
			return nil, fmt.Errorf("error initializing listener %q: %w", lnConfig.Name, err)
		}
		lns = append(lns, ln)

		key := fmt.Sprintf("listener %s", lnConfig.Name)
		tlsState := "enabled"
		if lnConfig.TLSDisable {
			tlsState = "disabled"
		}
		info[key] = fmt.Sprintf("%s (tls: %s)", lnConfig.Address, tlsState)
		*infoKeys = append(*infoKeys, key)
	}

	return lns, nil
}
