package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labops/rigctl/internal/activity"
	"github.com/labops/rigctl/internal/auth"
	"github.com/labops/rigctl/internal/config"
	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/history"
	histfactory "github.com/labops/rigctl/internal/history/factory"
	"github.com/labops/rigctl/internal/logger"
	"github.com/labops/rigctl/internal/metrics"
	"github.com/labops/rigctl/internal/reboot"
	"github.com/labops/rigctl/internal/sched"
	"github.com/labops/rigctl/internal/server"
	storefactory "github.com/labops/rigctl/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// createServeCommand creates the serve subcommand.
func createServeCommand() *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the rigctl coordination server",
		Long: `Start the rigctl server: the control store, transition guard,
behavioral event aggregator, HTTP API and the start/stop scheduler.

Examples:
  rigctl serve config.toml          # Start with a config file
  rigctl serve --config config.toml
  rigctl serve config.toml --daemonize`,
		RunE: func(_ *cobra.Command, args []string) error {
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	var log *slog.Logger
	if cfg.Log != nil {
		log = logger.New(*cfg.Log)
	} else {
		log = logger.New(logger.Config{})
	}
	slog.SetDefault(log)

	// Control store
	st, err := storefactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open control store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to prepare control store schema: %w", err)
	}

	// Metrics
	if cfg.Server.EnableMetrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	guard := control.NewGuard(st)
	guard.SetLogger(log)

	// Transition history sinks
	var sinks []history.Sink
	for _, dsn := range cfg.History.Sinks {
		sink, err := histfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("failed to open history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		guard.SetHistorySinks(sinks...)
		defer closeSinks(sinks, log)
	}

	// Behavioral event aggregator
	var agg *activity.Aggregator
	if cfg.Behavior.DSN != "" {
		db, dialect, err := openBehaviorDB(cfg.Behavior.DSN)
		if err != nil {
			return fmt.Errorf("failed to open behavior database: %w", err)
		}
		defer func() { _ = db.Close() }()
		registry := activity.BuildRegistry(db, dialect, cfg.Behavior.Types)
		agg = activity.NewAggregator(
			guard,
			registry,
			activity.NewSQLTypeConfigSource(db, dialect),
			activity.NewSQLSessionSource(db, dialect),
			activity.NewSQLTrialSource(db, dialect),
		)
		agg.SetLogger(log)
	}

	// Authentication
	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(st, cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	}

	// Remote reboot
	var rebooter reboot.Rebooter = reboot.Nop{}
	if cfg.Reboot.PrivateKeyPath != "" {
		rebooter, err = reboot.NewSSHRebooter(cfg.Reboot.User, cfg.Reboot.PrivateKeyPath, cfg.Reboot.Timeout)
		if err != nil {
			return fmt.Errorf("failed to configure SSH rebooter: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start/stop-hint scheduler
	if cfg.Sched.Enabled {
		s := sched.New(guard, cfg.Sched.Interval)
		s.SetLogger(log)
		go s.Run(ctx)
		log.Info("started scheduler", "interval", cfg.Sched.Interval)
	}

	metricsPath := ""
	if cfg.Server.EnableMetrics {
		metricsPath = cfg.Server.MetricsPath
	}
	router := server.NewRouter(guard, agg, server.Options{
		BasePath:    cfg.Server.BasePath,
		Tasks:       st,
		Auth:        authSvc,
		AuthEnabled: cfg.Auth.Enabled,
		Rebooter:    rebooter,
		Logger:      log,
		MetricsPath: metricsPath,
	})
	srv := server.NewServer(cfg.Server.Listen, router)

	log.Info("started rigctl server", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	fmt.Printf("Starting rigctl server on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return srv.Close()
}

// openBehaviorDB opens the database holding behavior event tables. The
// DSN forms match the control store: postgres://..., sqlite://path or
// a bare sqlite path.
func openBehaviorDB(dsn string) (*sql.DB, activity.Dialect, error) {
	ld := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://"):
		db, err := sql.Open("pgx", dsn)
		return db, activity.DialectPostgres, err
	case strings.HasPrefix(ld, "sqlite://"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
		return db, activity.DialectSQLite, err
	default:
		db, err := sql.Open("sqlite", dsn)
		return db, activity.DialectSQLite, err
	}
}

func closeSinks(sinks []history.Sink, log *slog.Logger) {
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				log.Warn("failed to close history sink", "error", err)
			}
		}
	}
}
