package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"visiond/internal/config"
	"visiond/internal/db"
	"visiond/internal/events"
	"visiond/internal/httpapi"
	"visiond/internal/inference"
	"visiond/internal/security"
	"visiond/internal/syncjob"
	"visiond/internal/telemetry"
	gos3 "visiond/pkg/s3"
)

const serviceName = "visiond"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "REST backend for the image-inference platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSyncCommand())
	return cmd
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func loadConfig(ctx context.Context) (config.Config, error) {
	_ = godotenv.Load()
	return config.Load(ctx)
}

func connectDB(ctx context.Context, cfg config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(database); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
	return database, closeFn, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations, seed baseline data, sync external state, and serve the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			shutdownTracing, traceMiddleware, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("shutdown tracing")
				}
			}()

			database, closeDB, err := connectDB(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(ctx, database); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			if err := db.Seed(ctx, database, db.SeedOptions{
				SystemUserEmail:  cfg.SystemUserEmail,
				SuperAdminEmail:  cfg.SuperAdminEmail,
				SuperAdminPasswd: cfg.SuperAdminPasswd,
			}); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}

			store, err := gos3.NewClient(ctx, gos3.Options{
				Endpoint:   cfg.S3Endpoint,
				AccessKey:  cfg.S3AccessKey,
				SecretKey:  cfg.S3SecretKey,
				Region:     cfg.S3Region,
				DisableTLS: cfg.S3DisableTLS,
			})
			if err != nil {
				return fmt.Errorf("init object store: %w", err)
			}

			infClient := inference.NewClient(cfg.InferenceAPIURL, cfg.InferenceSecret)

			bus, err := events.Connect(cfg.NATSURL)
			if err != nil {
				// Event publishing is advisory; the API works without it.
				log.Warn().Err(err).Msg("event bus unavailable, continuing without it")
			}
			defer bus.Close()

			runSyncJobs(ctx, cfg, database, store, infClient, bus, log)

			api := &httpapi.API{
				DB:        database,
				Cfg:       cfg,
				Log:       log,
				Tokens:    security.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL),
				CSRF:      security.NewCSRFGuard(cfg.CSRFSecret, cfg.CSRFTimeout),
				Limiter:   security.NewRateLimiter(),
				Store:     store,
				Inference: infClient,
				Events:    bus,
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           api.Routes(traceMiddleware),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("env", cfg.EnvMode).Msg("starting visiond")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown server")
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations and seed baseline data, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			database, closeDB, err := connectDB(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(ctx, database); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			if err := db.Seed(ctx, database, db.SeedOptions{
				SystemUserEmail:  cfg.SystemUserEmail,
				SuperAdminEmail:  cfg.SuperAdminEmail,
				SuperAdminPasswd: cfg.SuperAdminPasswd,
			}); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}

			log.Info().Msg("migrations and seed complete")
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile dataset and model records against external state, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			database, closeDB, err := connectDB(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			store, err := gos3.NewClient(ctx, gos3.Options{
				Endpoint:   cfg.S3Endpoint,
				AccessKey:  cfg.S3AccessKey,
				SecretKey:  cfg.S3SecretKey,
				Region:     cfg.S3Region,
				DisableTLS: cfg.S3DisableTLS,
			})
			if err != nil {
				return fmt.Errorf("init object store: %w", err)
			}

			infClient := inference.NewClient(cfg.InferenceAPIURL, cfg.InferenceSecret)

			bus, err := events.Connect(cfg.NATSURL)
			if err != nil {
				log.Warn().Err(err).Msg("event bus unavailable, continuing without it")
			}
			defer bus.Close()

			runSyncJobs(ctx, cfg, database, store, infClient, bus, log)
			return nil
		},
	}
}

// runSyncJobs executes the startup reconciliation jobs sequentially. Both
// are best-effort: a failed job is logged and does not block startup.
func runSyncJobs(ctx context.Context, cfg config.Config, database *gorm.DB, store *gos3.Client, infClient *inference.Client, bus *events.Publisher, log zerolog.Logger) {
	datasets := &syncjob.DatasetSyncer{
		DB:              database,
		Store:           store,
		Bucket:          cfg.DatasetBucket,
		SystemUserEmail: cfg.SystemUserEmail,
		Log:             log,
		Events:          bus,
	}
	if err := datasets.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("dataset sync did not complete")
	}

	modelSync := &syncjob.ModelSyncer{
		DB:     database,
		Remote: infClient,
		Log:    log,
		Events: bus,
	}
	if err := modelSync.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("model sync did not complete")
	}
}
