package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-passwordless/internal/application/auth"
	"github.com/go-passwordless/internal/application/credential"
	"github.com/go-passwordless/internal/application/notification"
	"github.com/go-passwordless/internal/application/ratelimit"
	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-passwordless/internal/infrastructure/jwt"
	"github.com/go-passwordless/internal/infrastructure/logsender"
	"github.com/go-passwordless/internal/infrastructure/memory"
	"github.com/go-passwordless/internal/infrastructure/postgres"
	redisinfra "github.com/go-passwordless/internal/infrastructure/redis"
	"github.com/go-passwordless/internal/infrastructure/smtp"
	"github.com/go-passwordless/internal/infrastructure/sns"
	transporthttp "github.com/go-passwordless/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open credential store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer st.close()
	users, creds := st.users, st.creds

	counter, closeCounter, err := newCounter(ctx, cfg)
	if err != nil {
		slog.Error("failed to open rate limit backend", "backend", cfg.RateLimitBackend, "err", err)
		os.Exit(1)
	}
	defer closeCounter()

	credCfg := credential.Config{
		MagicLinkExpiry: cfg.MagicLinkExpiry,
		OTPExpiry:       cfg.OTPExpiry,
		StoreTimeout:    cfg.StoreTimeout,
	}
	issuer := credential.NewIssuer(users, creds, credCfg)
	verifier := credential.NewVerifier(users, creds, credCfg)

	dispatcher := notification.NewDispatcher(notification.Config{
		Workers:     cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueueSize,
		MaxAttempts: cfg.DispatchMaxAttempts,
		Backoff:     cfg.DispatchBackoff,
	}, newChannels(ctx, cfg), issuer)

	// A verification spends the credential before the session is signed, so keys are mandatory.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		slog.Error("JWT provider not available", "err", err)
		os.Exit(1)
	}
	sessions := session.NewService(jwtProvider, users, st.sessions)
	deps := &transporthttp.Deps{Sessions: sessions, TokenVerifier: jwtProvider}
	deps.Auth = auth.NewService(auth.ServiceDeps{
		Issuer:      issuer,
		Verifier:    verifier,
		Limiter:     ratelimit.NewLimiter(counter),
		Dispatcher:  dispatcher,
		Sessions:    sessions,
		Limits:      cfg.Limits,
		ResendAfter: cfg.ResendAfter,
	})

	go credential.NewSweeper(creds, cfg.PurgeInterval, cfg.StoreTimeout).Run(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	// Requests are done; let queued deliveries finish within what is left of the deadline.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("dispatcher did not drain", "err", err)
	}
	slog.Info("server stopped")
}

// stores groups the persistence backends selected by STORE_BACKEND.
type stores struct {
	users    credential.UserStore
	creds    credential.Store
	sessions session.Store
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case "dynamo":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return &stores{
			users:    dynamo.NewUserRepo(client, cfg.DynamoTables.Users),
			creds:    dynamo.NewCredentialRepo(client, cfg.DynamoTables.Credentials),
			sessions: dynamo.NewSessionRepo(client, cfg.DynamoTables.Sessions),
			close:    func() {},
		}, nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			users:    postgres.NewUserRepo(db),
			creds:    postgres.NewCredentialRepo(db),
			sessions: postgres.NewSessionRepo(db),
			close:    func() { db.Close() },
		}, nil
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return &stores{
			users:    memory.NewUserStore(),
			creds:    memory.NewCredentialStore(),
			sessions: memory.NewSessionStore(),
			close:    func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newCounter(ctx context.Context, cfg *config.Config) (ratelimit.Counter, func(), error) {
	switch cfg.RateLimitBackend {
	case "redis":
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("redis close", "err", err)
			}
		}
		return redisinfra.NewCounter(rdb, "rl"), closeClient, nil
	case "memory":
		c := memory.NewCounter()
		go c.Cleanup(ctx, time.Minute)
		return c, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}
}

func newChannels(ctx context.Context, cfg *config.Config) map[domain.Channel]notification.Channel {
	channels := map[domain.Channel]notification.Channel{}

	if cfg.SMTPHost != "" {
		channels[domain.ChannelEmail] = smtp.NewMagicLinkChannel(smtp.NewMailer(cfg), cfg.AppURL, cfg.AppName)
	} else {
		channels[domain.ChannelEmail] = logsender.New("email")
	}

	// SNS SMS sender falls back to logging when unavailable.
	if cfg.SMSMethod == "log" {
		channels[domain.ChannelPhone] = logsender.New("sms")
	} else if sender, err := sns.NewSender(ctx, cfg); err == nil {
		channels[domain.ChannelPhone] = sns.NewOTPChannel(sender)
	} else {
		slog.Warn("SNS sender not available, logging SMS instead", "err", err)
		channels[domain.ChannelPhone] = logsender.New("sms")
	}
	return channels
}
