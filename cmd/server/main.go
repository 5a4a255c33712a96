package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/config"
	"github.com/iliyamo/account-authority/internal/database"
	"github.com/iliyamo/account-authority/internal/logging"
	"github.com/iliyamo/account-authority/internal/middleware"
	"github.com/iliyamo/account-authority/internal/queue"
	"github.com/iliyamo/account-authority/internal/repository"
	"github.com/iliyamo/account-authority/internal/router"
	"github.com/iliyamo/account-authority/internal/service"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	logger := logging.Setup("account-authority", version, cfg.LogFormat, os.Stdout)
	if err != nil {
		logging.LogError(logger, "load configuration", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logging.LogError(logger, "open database", err)
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logging.LogError(logger, "migrate database", err)
		return err
	}

	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		logging.LogError(logger, "configure hasher", err)
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logging.LogError(logger, "configure tokens", err)
		return err
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.Audit.Enabled {
		events = queue.NewAMQPPublisher(cfg.Audit.URL)
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled", "addr", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
	}

	accounts := repository.NewAccountRepo(db)
	svc, err := service.NewAuthService(accounts, hasher, tokens, events, logger, service.Options{
		TokenTTL:          cfg.TokenTTL,
		MinPasswordLength: cfg.PasswordMinLength,
	})
	if err != nil {
		logging.LogError(logger, "configure auth service", err)
		return err
	}

	e := router.New(router.Deps{
		Config: cfg,
		Logger: logger,
		Auth:   svc,
		Gate:   middleware.NewGate(tokens, accounts, events, logger),
		Redis:  rdb,
		Now:    time.Now,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr(), "env", cfg.Env)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.LogError(logger, "server stopped", err)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "shutdown", err)
		return err
	}
	return nil
}
