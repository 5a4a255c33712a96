// Command seedadmin creates the initial Admin account from ADMIN_USERNAME,
// ADMIN_EMAIL and ADMIN_PASSWORD. Running it again is a no-op once the
// username exists.
package main

import (
	"context"
	"os"
	"time"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/config"
	"github.com/iliyamo/account-authority/internal/database"
	"github.com/iliyamo/account-authority/internal/logging"
	"github.com/iliyamo/account-authority/internal/queue"
	"github.com/iliyamo/account-authority/internal/repository"
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
	logger := logging.Setup("account-authority-seed", version, cfg.LogFormat, os.Stdout)
	if err != nil {
		logging.LogError(logger, "load configuration", err)
		return err
	}

	in, err := adminInput(os.Getenv)
	if err != nil {
		logging.LogError(logger, "seed admin", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

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
	svc, err := service.NewAuthService(repository.NewAccountRepo(db), hasher, tokens, queue.NopPublisher{}, logger,
		service.Options{TokenTTL: cfg.TokenTTL, MinPasswordLength: cfg.PasswordMinLength})
	if err != nil {
		logging.LogError(logger, "configure auth service", err)
		return err
	}

	acc, created, err := svc.SeedAdmin(ctx, in)
	if err != nil {
		logging.LogError(logger, "seed admin", err, "username", in.Username)
		return err
	}
	if created {
		logger.Info("admin created", "account_id", acc.ID, "username", acc.Username)
	} else {
		logger.Info("admin already exists", "account_id", acc.ID, "username", acc.Username)
	}
	return nil
}

// adminInput reads the admin credentials through getenv.
func adminInput(getenv func(string) string) (service.SignupInput, error) {
	in := service.SignupInput{
		Username: getenv("ADMIN_USERNAME"),
		Email:    getenv("ADMIN_EMAIL"),
		Password: getenv("ADMIN_PASSWORD"),
	}
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return service.SignupInput{}, apperr.New(apperr.Configuration, "ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required")
	}
	return in, nil
}
