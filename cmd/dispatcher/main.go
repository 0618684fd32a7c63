package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/saplingsites/orders-email/internal/aws"
	"github.com/saplingsites/orders-email/internal/config"
	"github.com/saplingsites/orders-email/internal/dispatch"
	"github.com/saplingsites/orders-email/internal/email"
	"github.com/saplingsites/orders-email/internal/orders"
)

const sampleEvent = `{
  "Records": [{
    "eventID": "local-1",
    "eventName": "INSERT",
    "dynamodb": {
      "Keys": {
        "businessId": {"S": "local-business"},
        "createdAtOrderId": {"S": "2026-01-01T00:00:00.000Z#local-order-1"}
      },
      "NewImage": {
        "businessId": {"S": "local-business"},
        "createdAtOrderId": {"S": "2026-01-01T00:00:00.000Z#local-order-1"},
        "orderId": {"S": "local-order-1"},
        "createdAt": {"S": "2026-01-01T00:00:00.000Z"},
        "customerEmail": {"S": "customer@example.com"},
        "customerName": {"S": "Local Customer"},
        "businessNotificationEmail": {"S": "owner@example.com"},
        "total": {"N": "0.01"},
        "currency": {"S": "USD"},
        "items": {"L": [{"M": {"name": {"S": "Test item"}, "quantity": {"N": "1"}, "price": {"N": "0.01"}}}]}
      }
    }
  }]
}`

func newLogger(local bool) *slog.Logger {
	if local {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newSender(cfg config.Config, logger *slog.Logger) email.Sender {
	sender, err := email.NewResendSender(cfg.ResendAPIKey, cfg.ResendTimeout)
	if err != nil {
		logger.Error("resend sender disabled", "error", err)
		return nil
	}
	if cfg.ResendBaseURL != "" {
		if sender, err = sender.WithBaseURL(cfg.ResendBaseURL); err != nil {
			logger.Error("resend sender disabled", "error", err)
			return nil
		}
	}
	return sender
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.RunLocal)
	slog.SetDefault(logger)

	clients, err := aws.NewClients(ctx, cfg.AWS())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	store := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, orders.WithLockTimeout(cfg.LockTimeout))
	opts := dispatch.Options{
		EmailFrom:      cfg.EmailFrom,
		Kinds:          cfg.EventKinds,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	}
	if cfg.FailureQueueURL != "" {
		opts.Failures = aws.NewFailureQueue(clients.SQS, cfg.FailureQueueURL)
	}
	if cfg.MetricsNamespace != "" {
		opts.Metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, map[string]string{
			"Env":   cfg.Env,
			"Table": cfg.OrdersTable,
		})
	}

	// nil when RESEND_API_KEY is missing; every batch is then a logged no-op.
	d := dispatch.New(store, newSender(cfg, logger), opts)

	logger.Info("orders email dispatcher starting",
		"table", cfg.OrdersTable,
		"event_kinds", cfg.EventKinds.String(),
		"lock_timeout", cfg.LockTimeout.String(),
		"max_concurrency", cfg.MaxConcurrency,
	)

	handler := func(ctx context.Context, ev events.DynamoDBEvent) error {
		d.Handle(ctx, ev)
		return nil
	}

	if cfg.RunLocal {
		body := os.Getenv("LOCAL_STREAM_EVENT")
		if body == "" {
			body = sampleEvent
		}
		var ev events.DynamoDBEvent
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			logger.Error("invalid LOCAL_STREAM_EVENT", "error", err)
			os.Exit(1)
		}
		summary := d.Handle(ctx, ev)
		logger.Info("local run finished", "sent", summary.Sent, "failed", summary.Failed)
		return
	}

	lambda.Start(handler)
}
