// Command auditlog consumes audit events from RabbitMQ and appends them to
// a local log file until interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/account-authority/internal/config"
	"github.com/iliyamo/account-authority/internal/logging"
	"github.com/iliyamo/account-authority/internal/queue"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	logger := logging.Setup("account-authority-audit", version, cfg.LogFormat, os.Stdout)
	if err != nil {
		logging.LogError(logger, "load configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("consuming audit events", "queues", queue.AuditQueues, "dir", cfg.Audit.LogDir)
	err = queue.StartAuditConsumer(ctx, cfg.Audit.URL, &queue.AuditLog{Dir: cfg.Audit.LogDir}, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.LogError(logger, "audit consumer stopped", err)
		os.Exit(1)
	}
}
