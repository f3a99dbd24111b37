// Command agentauth-server serves the agent authentication and password recovery API.
//
// Configuration is read from an optional TOML file (-config) and the environment; see
// internal/config. A postgres:// DATABASE_URL selects PostgreSQL and runs the embedded
// migrations; any other value is opened as a SQLite file.
//
// Run:
//
//	JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/agentauth-server -config agentauth.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fieldops/agentauth"
	"github.com/fieldops/agentauth/internal/config"
	"github.com/fieldops/agentauth/internal/httpapi"
	"github.com/fieldops/agentauth/internal/logging"
	"github.com/fieldops/agentauth/mail"
	promexport "github.com/fieldops/agentauth/metrics/export/prometheus"
	"github.com/fieldops/agentauth/store/postgres"
	"github.com/fieldops/agentauth/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "agentauth-server: %v\n", err)
		os.Exit(1)
	}
}

// credentialStore is a CredentialStore the server can health-check and close.
type credentialStore interface {
	agentauth.CredentialStore
	PingContext(ctx context.Context) error
	io.Closer
}

type postgresStore struct {
	*postgres.Store
	closer io.Closer
	ping   func(ctx context.Context) error
}

func (s postgresStore) PingContext(ctx context.Context) error { return s.ping(ctx) }
func (s postgresStore) Close() error { return s.closer.Close() }

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupDefault(os.Stdout, cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------- REDIS --------
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// -------- CREDENTIAL STORE --------
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// -------- MAILER --------
	var mailer agentauth.Mailer
	if cfg.Mail.Host == "" {
		logger.Warn("mail.host not set; passcodes are written to the log")
		mailer = mail.NewLogMailer(logger)
	} else {
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.Sender,
			Timeout:  cfg.Mail.Timeout.Duration,
			StartTLS: cfg.Mail.StartTLS,
		})
		if err != nil {
			return fmt.Errorf("smtp mailer: %w", err)
		}
	}

	// -------- ENGINE --------
	engineCfg := cfg.EngineConfig()
	for _, w := range engineCfg.Lint() {
		logger.Warn("config lint", slog.String("code", w.Code), slog.String("message", w.Message))
	}

	builder := agentauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(agentauth.NewSlogSink(logger.With(slog.String("component", "audit"))))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// -------- HTTP --------
	deps := &httpapi.RouterDeps{
		Auth:   engine,
		Logger: logger,
		Ready: func(ctx context.Context) error {
			if err := store.PingContext(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	}
	if engineCfg.Metrics.Enabled {
		deps.Metrics = promexport.Handler(engine)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agentauth-server started", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("agentauth-server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (credentialStore, error) {
	if !cfg.UsesPostgres() {
		s, err := sqlite.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("credential store ready", slog.String("driver", "sqlite"))
		return s, nil
	}

	if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info("credential store ready", slog.String("driver", "postgres"))
	return postgresStore{Store: postgres.New(db), closer: db, ping: db.PingContext}, nil
}
