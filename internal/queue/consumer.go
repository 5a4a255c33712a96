package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditQueues are consumed by StartAuditConsumer.
var AuditQueues = []string{AccountRegisteredQueue, AccessDeniedQueue}

// AuditLog appends one line per event to <Dir>/audit.log.
type AuditLog struct {
	Dir string
}

// StartAuditConsumer connects to RabbitMQ, declares the audit queues and
// appends every delivery to the audit log. It reconnects with exponential
// backoff and returns only when ctx is cancelled.
func StartAuditConsumer(ctx context.Context, url string, sink *AuditLog, logger *slog.Logger) error {
	if url == "" {
		url = DefaultURL
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("audit consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, sink, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("audit consumer: consume loop ended, reconnecting", "error", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

type delivery struct {
	queue string
	amqp.Delivery
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink *AuditLog, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("audit consumer: set QoS failed", "error", err)
	}

	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	open := len(AuditQueues)
	closed := make(chan struct{}, open)

	for _, name := range AuditQueues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(name string, msgs <-chan amqp.Delivery) {
			defer func() { closed <- struct{}{} }()
			for d := range msgs {
				select {
				case merged <- delivery{queue: name, Delivery: d}:
				case <-done:
					return
				}
			}
		}(name, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errors.New("deliveries channel closed")
		case d := <-merged:
			if err := sink.Handle(d.queue, d.Body); err != nil {
				logger.Error("audit consumer: handle message failed", "queue", d.queue, "error", err)
				_ = d.Nack(false, false) // do not requeue, avoids a poison loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes an event from queue and appends it to the log file.
func (l *AuditLog) Handle(queue string, body []byte) error {
	line, err := FormatAuditLine(queue, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(l.Dir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// FormatAuditLine renders one event as a single newline-terminated line.
func FormatAuditLine(queue string, body []byte) (string, error) {
	switch queue {
	case AccountRegisteredQueue:
		var ev AccountRegisteredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queue, err)
		}
		return fmt.Sprintf("[%s] Account registered | account_id=%s | username=%q | email=%q | role=%s\n",
			ev.RegisteredAt, ev.AccountID, ev.Username, ev.Email, ev.Role), nil
	case AccessDeniedQueue:
		var ev AccessDeniedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queue, err)
		}
		return fmt.Sprintf("[%s] Access denied | account_id=%s | username=%q | role=%s | allowed=[%s] | resource=%s %s\n",
			ev.DeniedAt, ev.AccountID, ev.Username, ev.Role, strings.Join(ev.AllowedRoles, ","), ev.Method, ev.Path), nil
	default:
		return "", fmt.Errorf("unknown queue %q", queue)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
