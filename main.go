// @title Alpha Starter Auth API
// @version 1.0
// @description Account registration, sessions and credential recovery.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpha-starter/backend/internal/client"
	"github.com/alpha-starter/backend/internal/config"
	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/handler"
	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/security"
	"github.com/alpha-starter/backend/internal/service"
	"github.com/alpha-starter/backend/internal/throttle"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "error", "text").Error(context.Background(), "load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	gin.SetMode(cfg.Server.GinMode)

	// 저장소 선택 (postgres / sqlite / memory)
	store, err := db.Open(ctx, db.Options{
		Adapter: cfg.Storage.Adapter,
		Postgres: db.PostgresConfig{
			URL:      cfg.Postgres.DatabaseURL,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		},
		SQLiteFile: cfg.Storage.SQLiteFile,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn(ctx, "close store", "error", err)
		}
	}()
	logger.Info(ctx, "store ready", "adapter", cfg.Storage.Adapter)

	codec, err := security.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTAlg)
	if err != nil {
		return err
	}
	logger.Info(ctx, "token codec ready", "alg", codec.Algorithm(), "access_ttl", cfg.Auth.AccessTTL().String())
	limiter := throttle.NewSlidingWindow(cfg.Auth.LoginWindow, cfg.Auth.LoginLimit)

	auth, err := service.NewAuthService(store, codec, security.NewBcryptHasher(cfg.Auth.BcryptCost), limiter, cfg.Auth,
		service.WithLogger(logger))
	if err != nil {
		return err
	}

	recovery, err := service.NewRecoveryService(store, auth, newNotifier(cfg.Mail, logger), cfg.Auth, cfg.Mail.AppBaseURL,
		service.WithLogger(logger))
	if err != nil {
		return err
	}
	if cfg.Auth.SendVerificationOnRegister {
		auth.OnRegister(recovery.SendVerification)
	}

	origins, err := config.ParseOrigins(cfg.Server.CORSOrigins)
	if err != nil {
		return err
	}
	router, err := handler.NewRouter(handler.RouterConfig{
		Auth:           auth,
		Recovery:       recovery,
		Guard:          service.NewGuard(store, codec, service.WithLogger(logger)),
		Store:          store,
		Logger:         logger,
		CORSOrigins:    origins,
		TrustedProxies: config.ParseList(cfg.Server.TrustedProxies),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 진행 중인 요청이 끝날 때까지 대기
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info(shutdownCtx, "shutting down")
	err = srv.Shutdown(shutdownCtx)
	recovery.Wait()
	return err
}

// newNotifier falls back to logging when no SMTP relay is configured.
func newNotifier(cfg config.MailConfig, logger logging.Logger) service.Notifier {
	var sender client.Sender
	if cfg.Enabled() {
		sender = client.NewSMTPNotifier(client.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
		})
	} else {
		logger.Warn(context.Background(), "SMTP_HOST not set, recovery mail is logged only")
		sender = client.NewLogNotifier(logger)
	}
	return client.NewRateLimitedNotifier(sender, cfg.RatePerSecond, cfg.Burst)
}
