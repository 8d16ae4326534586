package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/infra/buildinfo"
	"github.com/yndnr/rsvpguard/internal/infra/confloader"
	"github.com/yndnr/rsvpguard/internal/infra/maintenance"
	"github.com/yndnr/rsvpguard/internal/infra/shutdown"
	"github.com/yndnr/rsvpguard/internal/infra/tlsroots"
	"github.com/yndnr/rsvpguard/internal/ratelimit"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/server/config"
	"github.com/yndnr/rsvpguard/internal/server/httpserver"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
	"github.com/yndnr/rsvpguard/internal/storage"
	"github.com/yndnr/rsvpguard/internal/storage/memory"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
	"github.com/yndnr/rsvpguard/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("rsvpguard-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg := logger.NewSlog(cfg.LoggerConfig())
	slog.SetDefault(lg)
	lg.Info("starting rsvpguard-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	metrics := metric.NewRegistry()
	shutdownHandler := shutdown.NewHandler(shutdown.DefaultTimeout, lg)

	app, err := build(cfg, lg, metrics, shutdownHandler)
	if err != nil {
		// Hooks registered so far release what was opened.
		_ = shutdownHandler.Shutdown()
		return err
	}

	if *configFile != "" || cfg.Server.HTTP.TLSCertFile != "" {
		if err := watch(*configFile, cfg, app, lg, shutdownHandler); err != nil {
			lg.Warn("file watching disabled", "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.http.ListenAndServe()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failed := make(chan error, 1)
	go func() {
		if err := <-serveErr; err != nil {
			lg.Error("http server failed", "error", err)
			failed <- err
			cancel()
		}
	}()

	lg.Info("server started", "addr", cfg.Server.HTTP.Addr, "tls", app.http.TLS())
	err = shutdownHandler.Wait(ctx)
	select {
	case serveFailure := <-failed:
		return errors.Join(fmt.Errorf("http server: %w", serveFailure), err)
	default:
	}
	if err != nil {
		lg.Error("shutdown error", "error", err)
		return err
	}
	lg.Info("server stopped gracefully")
	return nil
}

// loadConfig loads defaults, the optional file and the environment, then
// verifies the result.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()
	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// components holds what run and the reload hooks need after build.
type components struct {
	http     *httpserver.Server
	keyPair  *tlsroots.KeyPair
	policy   *security.PolicyHolder
	redis    *redis.Client
	store    backup.Store
	badger   *storage.BadgerStore
	events   *security.EventLog
	failures *security.FailureTracker
}

// build wires every component. Each opened resource registers its own
// shutdown hook, so hooks run in reverse order of startup.
func build(cfg *config.ServerConfig, lg *slog.Logger, metrics *metric.Registry, sh *shutdown.Handler) (*components, error) {
	app := &components{}
	ctx := context.Background()

	// Storage
	switch cfg.Storage.Engine {
	case config.EngineBadger:
		db, err := storage.OpenBadger(cfg.BadgerConfig(), lg)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		sh.OnShutdown("storage", func(context.Context) error { return db.Close() })
		if err := db.RegisterMetrics(metrics.Prometheus()); err != nil {
			lg.Warn("storage metrics not registered", "error", err)
		}
		app.badger = db
		app.store = db
	default:
		lg.Warn("using in-memory storage; guest records are lost on restart")
		app.store = memory.New()
	}

	// Shared Redis, only when a component asks for it.
	if cfg.RateLimit.Store == config.StoreRedis || cfg.Security.BlockListStore == config.StoreRedis {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		app.redis = redis.NewClient(opts)
		sh.OnShutdown("redis", func(context.Context) error { return app.redis.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = app.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The limiter degrades to memory and the block list fails
			// closed until Redis answers.
			lg.Warn("redis unreachable at startup", "error", err)
		}
	}

	// Security event log, seeded from the persisted sink.
	eventOpts := []security.EventLogOption{
		security.WithEventLogger(lg),
		security.WithEventMetrics(metrics),
	}
	if app.badger != nil {
		eventOpts = append(eventOpts, security.WithSink(app.badger))
	}
	app.events = security.NewEventLog(cfg.Security.EventCapacity, eventOpts...)
	sh.OnShutdown("event log", func(context.Context) error {
		app.events.Close()
		return nil
	})
	if app.badger != nil {
		since := time.Now().Add(-cfg.Storage.EventRetention)
		seed, err := app.badger.LoadEvents(ctx, since, cfg.Security.EventCapacity)
		if err != nil {
			lg.Warn("persisted security events not loaded", "error", err)
		} else {
			app.events.Seed(seed)
			lg.Info("security events restored", "count", len(seed))
		}
	}

	// Block list
	var blocks security.BlockList = security.NewMemoryBlockList()
	if cfg.Security.BlockListStore == config.StoreRedis {
		blocks = security.NewRedisBlockList(app.redis, cfg.Redis.KeyPrefix+"blocklist")
	}

	// Rate limiter
	var windows ratelimit.WindowStore
	if cfg.RateLimit.Store == config.StoreRedis {
		windows = ratelimit.NewRedisStore(app.redis, ratelimit.WithRedisKeyPrefix(cfg.Redis.KeyPrefix+"rl:"))
	}
	limiter, err := ratelimit.New(cfg.RateLimitConfig(), windows,
		ratelimit.WithLogger(lg),
		ratelimit.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	// Detection
	app.policy = security.NewPolicyHolder(cfg.Policy())
	app.failures = security.NewFailureTracker(0, nil)
	analyzer := security.NewAnalyzer(app.policy, app.failures, nil)

	codec, err := token.New(cfg.TokenOptions())
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	validator, err := service.NewValidator(service.ValidatorDeps{
		Codec:     codec,
		Store:     app.store,
		BlockList: blocks,
		Limiter:   limiter,
		Events:    app.events,
		Analyzer:  analyzer,
		Policy:    app.policy,
		Failures:  app.failures,
	}, service.WithValidatorLogger(lg), service.WithValidatorMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}
	blocker, err := service.NewBlocker(blocks, app.events,
		service.WithBlockerLogger(lg),
		service.WithBlockerMetrics(metrics),
		service.WithUnblockReset(app.failures, limiter),
	)
	if err != nil {
		return nil, fmt.Errorf("init blocker: %w", err)
	}
	issuer := service.NewIssuer(codec, app.store, app.store, lg, metrics)

	backups, err := backup.NewService(cfg.BackupConfig(), app.store, blocks,
		backup.WithLogger(lg),
		backup.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("init backups: %w", err)
	}

	// HTTP
	proxies, err := handler.ParseTrustedProxies(cfg.Server.HTTP.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("init http: %w", err)
	}
	h := handler.New(handler.Deps{
		Validator:      validator,
		Issuer:         issuer,
		Blocker:        blocker,
		Store:          app.store,
		Events:         app.events,
		Backups:        backups,
		Ready:          readiness(app),
		TrustedProxies: proxies,
		Logger:         lg,
	})
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:            h,
		Metrics:            metrics,
		Logger:             lg,
		AdminKey:           cfg.Security.AdminKey,
		AdminAllowList:     cfg.Server.HTTP.AdminAllowList,
		MetricsRequireAuth: cfg.Server.HTTP.MetricsRequireAuth,
		CORSAllowedOrigins: cfg.Security.AllowedOrigins,
		GlobalRPS:          cfg.Server.HTTP.GlobalRPS,
		GlobalBurst:        cfg.Server.HTTP.GlobalBurst,
		MaxBodyBytes:       cfg.Server.HTTP.MaxBodyBytes,
	})
	if cfg.Security.AdminKey == "" {
		lg.Warn("security.admin_key is empty; admin API disabled")
	}

	if cfg.Server.HTTP.TLSCertFile != "" {
		app.keyPair, err = tlsroots.LoadKeyPair(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile, lg)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
	}
	app.http = httpserver.New(httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		KeyPair:      app.keyPair,
	}, router, lg)

	// Maintenance
	sched := maintenance.NewScheduler(maintenance.WithLogger(lg), maintenance.WithMetrics(metrics))
	tasks := maintenanceTasks(cfg, limiter, blocker, app.failures, backups)
	for _, t := range tasks {
		if err := sched.Add(t); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", t.Name, err)
		}
	}
	sched.Start()
	sh.OnShutdown("maintenance", sched.Stop)

	// Registered last so it runs first: stop taking requests before the
	// stores behind them close.
	sh.OnShutdown("http server", app.http.Shutdown)

	lg.Info("components initialized",
		"storage", cfg.Storage.Engine,
		"ratelimit_store", cfg.RateLimit.Store,
		"blocklist_store", cfg.Security.BlockListStore,
		"maintenance_tasks", len(tasks))
	return app, nil
}

// readiness reports storage and, when configured, Redis reachability.
func readiness(app *components) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := app.store.Count(ctx); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if app.redis != nil {
			if err := app.redis.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

// maintenanceTasks returns the periodic jobs for cfg.
func maintenanceTasks(
	cfg *config.ServerConfig,
	limiter *ratelimit.Limiter,
	blocker *service.Blocker,
	failures *security.FailureTracker,
	backups *backup.Service,
) []maintenance.Task {
	interval := cfg.RateLimit.CleanupInterval
	failureWindow := max(cfg.Security.EnumerationWindow, cfg.Security.RapidRequestWindow)

	tasks := []maintenance.Task{
		{
			Name:     "ratelimit-cleanup",
			Interval: interval,
			Run: func(ctx context.Context) error {
				limiter.Cleanup(ctx)
				return nil
			},
		},
		{
			Name:     "failure-cleanup",
			Interval: interval,
			Run: func(context.Context) error {
				failures.Cleanup(failureWindow)
				return nil
			},
		},
		{
			// Drops expired in-process blocks and refreshes the blocked gauge.
			Name:     "blocklist-cleanup",
			Interval: interval,
			Run: func(ctx context.Context) error {
				_, err := blocker.Cleanup(ctx)
				return err
			},
		},
	}
	if cfg.Backup.Interval > 0 {
		tasks = append(tasks, maintenance.Task{
			Name:     "scheduled-backup",
			Interval: cfg.Backup.Interval,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := backups.CreateBackup(ctx, backup.Options{})
				return err
			},
		})
	}
	if cfg.Backup.RetentionDays > 0 {
		tasks = append(tasks, maintenance.Task{
			Name:      "backup-retention",
			Interval:  24 * time.Hour,
			Immediate: true,
			Run: func(context.Context) error {
				_, err := backups.Cleanup(cfg.Backup.RetentionDays)
				return err
			},
		})
	}
	return tasks
}

// watch reloads the detection policy and log level when the config file
// changes, and the TLS key pair when its files change.
func watch(configFile string, current *config.ServerConfig, app *components, lg *slog.Logger, sh *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(lg))
	if err != nil {
		return err
	}
	var errs []error
	if configFile != "" {
		errs = append(errs, w.WatchFile(configFile, func() {
			cfg, err := loadConfig(configFile)
			if err != nil {
				lg.Error("config reload rejected", "file", configFile, "error", err)
				return
			}
			app.policy.Store(cfg.Policy())
			logger.SetLevel(cfg.Log.Level)
			if restartNeeded(current, cfg) {
				lg.Warn("config changes outside security detection and log level need a restart")
			}
			lg.Info("config reloaded", "file", configFile, "log_level", cfg.Log.Level)
		}))
	}
	if app.keyPair != nil {
		errs = append(errs, app.keyPair.Watch(w))
	}
	if err := errors.Join(errs...); err != nil {
		_ = w.Stop()
		return err
	}
	w.StartAsync()
	sh.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
	return nil
}

// restartNeeded reports changes the running server does not pick up.
func restartNeeded(old, updated *config.ServerConfig) bool {
	return old.Server.HTTP.Addr != updated.Server.HTTP.Addr ||
		old.Storage != updated.Storage ||
		old.Token != updated.Token ||
		old.RateLimit != updated.RateLimit ||
		old.Redis != updated.Redis ||
		old.Security.AdminKey != updated.Security.AdminKey ||
		old.Security.BlockListStore != updated.Security.BlockListStore
}
