package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frontdesk/internal/config"
	"frontdesk/internal/httpapi"
	"frontdesk/internal/hub"
	"frontdesk/internal/logger"
	"frontdesk/internal/relay"
	"frontdesk/internal/store/postgres"
	"frontdesk/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "frontdesk"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Portal session, role and access gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnvFiles(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.Load())
		},
	})

	var migrationsDir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if migrationsDir != "" {
				cfg.MigrationsDir = migrationsDir
			}
			return migrate(cmd.Context(), cfg)
		},
	}
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "", "migrations directory (env FRONTDESK_MIGRATIONS_DIR)")
	root.AddCommand(migrateCmd)

	return root
}

func initLogger(cfg config.Config) *zap.Logger {
	logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, ServiceName: serviceName})
	return logger.L()
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DB_DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return pool, nil
}

func migrate(ctx context.Context, cfg config.Config) error {
	log := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool, os.DirFS(cfg.MigrationsDir), log.Named("migrate"))
	if err != nil {
		return err
	}
	log.Info("migrations done", zap.Int("applied", applied), zap.String("dir", cfg.MigrationsDir))
	return nil
}

func serve(parent context.Context, cfg config.Config) error {
	log := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(serviceName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	routes, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := postgres.NewStore(pool)
	h := hub.New()
	handler := httpapi.NewHandler(httpapi.Deps{
		Store:   store,
		Hub:     h,
		Routes:  routes,
		Metrics: httpapi.NewMetrics(registry),
		Config: httpapi.Config{
			SessionTTL:         cfg.SessionTTL,
			StrictMode:         cfg.StrictMode,
			LoginPath:          cfg.LoginPath,
			CookieName:         cfg.CookieName,
			CookieSecure:       cfg.CookieSecure,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			RateLimitBurst:     cfg.RateLimitBurst,
		},
	})
	outboxRelay := relay.New(store, h, relay.Config{
		PollInterval: cfg.RelayPollInterval,
		BatchSize:    cfg.RelayBatchSize,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", server.Addr), zap.Bool("strict_mode", cfg.StrictMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return outboxRelay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}
