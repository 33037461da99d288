package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"outreach-auth/internal/audit"
	"outreach-auth/internal/auth"
	"outreach-auth/internal/config"
	"outreach-auth/internal/db"
	"outreach-auth/internal/maintenance"
	"outreach-auth/internal/observability"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		applied, err := db.RunMigrations(ctx, database)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations_applied", map[string]any{"versions": applied})
		}
	}

	recorder, closeAudit, err := buildAuditRecorder(cfg, database)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	closeAll := func() error {
		observability.FlushSentry()
		return errors.Join(closeAudit(), database.Close())
	}

	repo := auth.NewRepository(database)
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	sessions := auth.NewSessionManager(repo, tokens, logger)
	service, err := auth.NewService(repo, sessions, auth.NewBcryptHasher(auth.BcryptCost), recorder, logger)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	created, err := service.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("admin_bootstrapped", map[string]any{"email": cfg.AdminEmail})
	}

	router := NewRouter(RouterDeps{
		Logger:  logger,
		Auth:    auth.NewHandler(service, logger, cfg.IsProduction()),
		Cleanup: maintenance.NewCleanupHandler(repo, logger, cfg.CronSecret, cfg.SessionCleanupBatchSize),
		Health:  database,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: router,
		Close:   closeAll,
	}, nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return database, nil
}

// buildAuditRecorder always persists to audit_logs and fans out to Kafka
// when brokers are configured.
func buildAuditRecorder(cfg config.Config, database *sql.DB) (audit.Recorder, func() error, error) {
	postgres := audit.NewPostgresRecorder(database)
	if len(cfg.AuditKafkaBrokers) == 0 {
		return postgres, func() error { return nil }, nil
	}

	kafka, err := audit.NewKafkaRecorder(cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka audit: %w", err)
	}
	return audit.Multi{postgres, kafka}, kafka.Close, nil
}
