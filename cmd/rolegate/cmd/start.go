package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/inbound/admin"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/inbound/http"
	auditstore "github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/audit"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/avatar"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/config"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the admin API and metrics server",
	Long: `Start the rolegate server.

Roles and memberships are restored from state.json and any roles or members
in the config file that are not in state yet are seeded from it. Approved
transactions are forwarded over JSON-RPC when rpc.url is set; otherwise
they are only logged.

Examples:
  # Start with config file settings
  rolegate start

  # Start with a specific config file and state file
  rolegate --config /path/to/rolegate.yaml --state /var/lib/rolegate/state.json start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, admin API open to every caller)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("dev mode enabled: the admin API accepts every caller without a key")
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, resolveStatePath(), logger); err != nil {
		return err
	}
	logger.Info("rolegate stopped")
	return nil
}

// run wires the stores, services and HTTP server and blocks until ctx is
// cancelled.
func run(ctx context.Context, cfg *config.Config, statePath string, logger *slog.Logger) error {
	stateStore := state.NewFileStateStore(statePath, logger)
	appState, err := stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	// Save immediately to create the file if it didn't exist.
	if err := stateStore.Save(appState); err != nil {
		return fmt.Errorf("failed to save initial state: %w", err)
	}
	logger.Info("state loaded", "path", statePath, "roles", len(appState.Roles), "members", len(appState.Members))

	registry, metrics := http.NewRegistry()

	var (
		adminOpts  []service.AdminOption
		authOpts   = []service.AuthorizationOption{service.WithRecorder(metrics)}
		apiOpts    []admin.AdminAPIOption
		eventStats http.EventStats
	)
	if cfg.Events.Enabled {
		eventStore, err := openEventStore(cfg, statePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer func() {
			if err := eventStore.Close(); err != nil {
				logger.Error("failed to close event log", "error", err)
			}
		}()

		eventLog := service.NewEventLog(eventStore, logger)
		eventLog.Start(ctx)
		defer eventLog.Stop()

		adminOpts = append(adminOpts, service.WithAdminEvents(eventLog))
		authOpts = append(authOpts, service.WithEvents(eventLog))
		apiOpts = append(apiOpts, admin.WithEventStore(eventStore))
		eventStats = eventLog
	}

	rules, err := loadRuleSet(ctx, cfg, appState, service.NewStatePersister(stateStore), metrics, logger, adminOpts...)
	if err != nil {
		return err
	}

	cleanup := parseDurationOr(cfg.RateLimit.CleanupInterval, 5*time.Minute, "rate_limit.cleanup_interval", logger)
	maxTTL := parseDurationOr(cfg.RateLimit.MaxTTL, time.Hour, "rate_limit.max_ttl", logger)
	rateLimiter := memory.NewRateLimiterWithConfig(cleanup, maxTTL, logger)
	rateLimiter.StartCleanup(ctx)
	defer rateLimiter.Stop()

	forwarder, closeForwarder, err := newForwarder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeForwarder()

	var adminIPLimit ratelimit.Config
	if cfg.RateLimit.Enabled {
		authOpts = append(authOpts, service.WithExecRateLimit(rateLimiter, ratelimit.Config{
			Rate:   cfg.RateLimit.ExecRate,
			Burst:  cfg.RateLimit.ExecBurst,
			Period: time.Minute,
		}))
		adminIPLimit = ratelimit.Config{
			Rate:   cfg.RateLimit.AdminIPRate,
			Burst:  cfg.RateLimit.AdminIPRate,
			Period: time.Minute,
		}
	}

	authorizer := roles.NewAuthorizer(cfg.Modifier.MultisendAddress(), cfg.Modifier.MaxMultisendDepth)
	authService := service.NewAuthorizationService(rules.roleStore, rules.memberStore, authorizer, forwarder, logger, authOpts...)

	if cfg.Admin.KeyHash == "" && !cfg.DevMode {
		logger.Info("no admin key configured, admin API is restricted to localhost")
	}
	adminHandler := admin.NewAdminAPIHandler(append([]admin.AdminAPIOption{
		admin.WithRoleAdminService(rules.roleAdmin),
		admin.WithMembershipService(rules.members),
		admin.WithAuthorizationService(authService),
		admin.WithKeyHash(cfg.Admin.KeyHash),
		admin.WithDevMode(cfg.DevMode),
		admin.WithIPRateLimit(rateLimiter, adminIPLimit),
		admin.WithAPILogger(logger),
	}, apiOpts...)...)

	health := http.NewHealthChecker(stateStore, rateLimiter, Version)
	if eventStats != nil {
		health.WithEvents(eventStats)
	}

	serverOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithAdminHandler(adminHandler.Routes()),
		http.WithHealthChecker(health),
		http.WithRateLimiter(rateLimiter),
		http.WithMetrics(registry, metrics),
	}
	if cfg.Server.TLSCertFile != "" {
		serverOpts = append(serverOpts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	server := http.NewServer(serverOpts...)

	logger.Info("rolegate started",
		"addr", cfg.Server.HTTPAddr,
		"avatar", cfg.Modifier.Avatar,
		"multisend", cfg.Modifier.Multisend,
		"version", Version,
	)
	return server.Start(ctx)
}

// eventStore is what the event log writes to and the admin API reads.
type eventStore interface {
	audit.Store
	audit.QueryStore
}

func openEventStore(cfg *config.Config, statePath string, logger *slog.Logger) (eventStore, error) {
	if cfg.Events.Output == "stdout" {
		logger.Info("event log enabled", "output", "stdout")
		return memory.NewEventStore(os.Stdout, cfg.Events.CacheSize), nil
	}
	dir := eventsDir(cfg, statePath)
	store, err := auditstore.NewFileStore(auditstore.FileConfig{
		Dir:           dir,
		RetentionDays: cfg.Events.RetentionDays,
		MaxFileSizeMB: cfg.Events.MaxFileSizeMB,
		CacheSize:     cfg.Events.CacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("event log enabled", "dir", dir, "retention_days", cfg.Events.RetentionDays)
	return store, nil
}

// eventsDir returns events.dir, or an "events" directory next to the state
// file when it is unset.
func eventsDir(cfg *config.Config, statePath string) string {
	if cfg.Events.Dir != "" {
		return cfg.Events.Dir
	}
	return filepath.Join(filepath.Dir(statePath), "events")
}

// newForwarder dials the configured RPC endpoint, or returns a dry-run
// forwarder when none is set. The returned func releases the connection.
func newForwarder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (roles.Forwarder, func(), error) {
	if cfg.RPC.URL == "" {
		logger.Warn("rpc.url not set, approved transactions are logged and not executed")
		return avatar.NewDryRunForwarder(logger), func() {}, nil
	}

	fwd, client, err := avatar.Dial(ctx, cfg.RPC.URL,
		common.HexToAddress(cfg.Modifier.Target),
		common.HexToAddress(cfg.RPC.ModuleAddress),
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	timeout := parseDurationOr(cfg.RPC.Timeout, 15*time.Second, "rpc.timeout", logger)
	logger.Info("forwarding approved transactions", "rpc", cfg.RPC.URL, "module", cfg.RPC.ModuleAddress, "timeout", timeout)
	return fwd.WithTimeout(timeout), client.Close, nil
}

func parseDurationOr(value string, fallback time.Duration, key string, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}
