package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/circuitbreaker"
	"github.com/jemiko1/crm-triggers/internal/config"
	"github.com/jemiko1/crm-triggers/internal/engine"
	"github.com/jemiko1/crm-triggers/internal/leaderelection"
	"github.com/jemiko1/crm-triggers/internal/logging"
	"github.com/jemiko1/crm-triggers/internal/metrics"
	"github.com/jemiko1/crm-triggers/internal/notify"
	"github.com/jemiko1/crm-triggers/internal/scanner"
	"github.com/jemiko1/crm-triggers/internal/stats"
	"github.com/jemiko1/crm-triggers/internal/store/postgres"
	"github.com/jemiko1/crm-triggers/internal/template"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`triggerd - workflow trigger engine for work orders

Usage:
  triggerd <command>

Commands:
  serve      Start the scanner and notification workers
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL                PostgreSQL connection string (required)
  REDIS_ADDR                  Redis address for firing stats (optional)
  HTTP_ADDR                   HTTP server address (default: ":8080")
  LOG_LEVEL                   Log level (default: "info")
  LOG_FORMAT                  "json" or "console" (default: "json")

  SCAN_INTERVAL               Scanner tick interval (default: "300s")
  SCAN_CRON                   Cron expression overriding SCAN_INTERVAL (optional)
  SCAN_PAGE_SIZE              Max work orders per scan query (default: "200")
  INACTIVITY_DEFAULT_MINUTES  Default inactivity threshold (default: "120")
  DEADLINE_DEFAULT_MINUTES    Default deadline window (default: "180")

  NOTIFY_QUEUE_SIZE           Outbound message buffer (default: "256")
  NOTIFY_WORKERS              Delivery workers (default: "2")
  BREAKER_THRESHOLD           Failures before a channel breaker opens, 0 disables (default: "5")
  BREAKER_COOLDOWN            Breaker open duration (default: "2m")

  DB_MAX_OPEN_CONNS           Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS           Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME        Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME       Max connection idle time (default: "5m")

  METRICS_ENABLED             Enable Prometheus metrics (default: "false")
  METRICS_PATH                Metrics endpoint path (default: "/metrics")
  HTTP_SHUTDOWN_TIMEOUT       Graceful HTTP shutdown timeout (default: "10s")

  LEADER_ELECTION_ENABLED     Only scan while holding an advisory lock (default: "false")
  LEADER_LOCK_KEY             Advisory lock key shared by all instances
  LEADER_RETRY_INTERVAL       Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL   Leader connection ping interval (default: "2s")
  STATS_RETENTION             Firing counter retention (default: "720h")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return exitRuntimeError
	}
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("triggerd: failed to open database", zap.Error(err))
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		logger.Error("triggerd: failed to connect to database", zap.Error(err))
		return exitRuntimeError
	}
	logger.Info("triggerd: database connected",
		zap.Int("max_open", cfg.DBMaxOpenConns),
		zap.Int("max_idle", cfg.DBMaxIdleConns))

	store := postgres.New(db, logger)

	// Metrics sink and endpoint (optional).
	var metricsSink metrics.Sink
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)

		mux := http.NewServeMux()
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
		go func() {
			logger.Info("triggerd: metrics server listening",
				zap.String("addr", cfg.HTTPAddr), zap.String("path", cfg.MetricsPath))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("triggerd: metrics server error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("triggerd: METRICS_ENABLED not set; metrics disabled")
	}

	// Outbound notification pipeline.
	queue := notify.NewQueue(cfg.NotifyQueueSize)
	if metricsSink != nil {
		metricsSink.QueueCapacity(queue.Capacity())
	}

	pool := notify.NewWorkerPool(queue, notify.LogNotifier{Logger: logger}, cfg.NotifyWorkers, logger)
	if cfg.BreakerThreshold > 0 {
		pool = pool.WithBreaker(circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown))
	}
	if metricsSink != nil {
		pool = pool.WithMetrics(metricsSink)
	}

	dispatcher := engine.NewDispatcher(store, template.StaticSource{}, store, queue, logger)
	if metricsSink != nil {
		dispatcher = dispatcher.WithMetrics(metricsSink)
	}

	// Firing stats if Redis is configured.
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		dispatcher = dispatcher.WithStats(stats.NewRedisSink(client, cfg.StatsRetention, logger))
		logger.Info("triggerd: firing stats enabled", zap.String("redis", cfg.RedisAddr))
	} else {
		logger.Info("triggerd: REDIS_ADDR not set; firing stats disabled")
	}

	scan := scanner.New(
		scanner.Config{
			Interval:                 cfg.ScanInterval,
			CronSpec:                 cfg.ScanCron,
			PageSize:                 cfg.ScanPageSize,
			DefaultInactivityMinutes: cfg.InactivityDefaultMinutes,
			DefaultDeadlineMinutes:   cfg.DeadlineDefaultMinutes,
		},
		store, store, store, dispatcher, logger,
	)
	if metricsSink != nil {
		scan = scan.WithMetrics(metricsSink)
	}

	poolCtx, cancelPool := context.WithCancel(context.Background())
	scanCtx, cancelScan := context.WithCancel(context.Background())

	var poolWg, scanWg sync.WaitGroup

	poolWg.Add(1)
	go func() {
		defer poolWg.Done()
		pool.Run(poolCtx)
	}()

	if cfg.LeaderElectionEnabled {
		// Only the elected instance scans. The firing ledger keeps firings
		// single-shot regardless; election avoids redundant scan work.
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) {
				if err := scan.Run(leaderCtx); err != nil {
					logger.Error("triggerd: scanner stopped with error", zap.Error(err))
				}
			},
			func() {},
			logger,
		)
		scanWg.Add(1)
		go func() {
			defer scanWg.Done()
			elector.Run(scanCtx)
		}()
	} else {
		scanWg.Add(1)
		go func() {
			defer scanWg.Done()
			if err := scan.Run(scanCtx); err != nil {
				logger.Error("triggerd: scanner stopped with error", zap.Error(err))
			}
		}()
	}

	logger.Info("triggerd: started",
		zap.String("scan_interval", cfg.ScanIntervalStr),
		zap.String("scan_cron", cfg.ScanCron),
		zap.Int("page_size", cfg.ScanPageSize))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("triggerd: shutting down", zap.String("signal", received.String()))

	// Stop the scanner first so no new messages are produced, then the
	// worker pool, which drains buffered messages before returning.
	cancelScan()
	scanWg.Wait()
	logger.Info("triggerd: scanner stopped")

	cancelPool()
	poolWg.Wait()
	logger.Info("triggerd: notification workers stopped")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("triggerd: metrics server shutdown error", zap.Error(err))
		}
	}

	logger.Info("triggerd: stopped")
	return exitSuccess
}

func runValidate() int {
	if err := config.Validate(config.Load()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}
	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	data, err := config.Load().MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}
	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("triggerd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
