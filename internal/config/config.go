// Package config reads process configuration from the environment once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/saplingsites/orders-email/internal/aws"
	"github.com/saplingsites/orders-email/internal/stream"
)

const (
	DefaultOrdersTable    = "SC-Orders"
	DefaultEmailFrom      = "orders@saplingsites.com"
	DefaultResendTimeout  = 10 * time.Second
	DefaultIdempotencyTTL = 48 * time.Hour
)

// Config is the full runtime configuration for both entrypoints.
type Config struct {
	Region   string
	Endpoint string

	OrdersTable string
	EmailFrom   string

	// ResendAPIKey may be empty; the dispatcher then skips every batch.
	ResendAPIKey  string
	ResendBaseURL string
	ResendTimeout time.Duration

	EventKinds     stream.KindSet
	LockTimeout    time.Duration
	MaxConcurrency int

	FailureQueueURL  string
	MetricsNamespace string

	IdempotencyTable string
	IdempotencyTTL   time.Duration

	// AdminToken guards the operator API; empty rejects every operator request.
	AdminToken string

	SiteID   string
	Env      string
	RunLocal bool
}

// AWS returns the SDK loading options.
func (c Config) AWS() aws.ConfigOptions {
	return aws.ConfigOptions{Region: c.Region, Endpoint: c.Endpoint}
}

// Load reads Config from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Region:           getenv("AWS_REGION", aws.DefaultRegion),
		Endpoint:         getenv("AWS_ENDPOINT_OVERRIDE", ""),
		OrdersTable:      getenv("DDB_ORDERS_TABLE", DefaultOrdersTable),
		EmailFrom:        getenv("EMAIL_FROM", DefaultEmailFrom),
		ResendAPIKey:     getenv("RESEND_API_KEY", ""),
		ResendBaseURL:    getenv("RESEND_BASE_URL", ""),
		FailureQueueURL:  getenv("ORDERS_EMAIL_FAILURE_QUEUE_URL", ""),
		MetricsNamespace: getenv("ORDERS_EMAIL_METRICS_NAMESPACE", ""),
		IdempotencyTable: getenv("IDEMPOTENCY_TABLE", ""),
		AdminToken:       getenv("ADMIN_TOKEN", ""),
		SiteID:           getenv("SITE_ID", ""),
		Env:              getenv("ENV", "dev"),
		RunLocal:         getenv("RUN_LOCAL", "") == "true",
	}

	kinds, err := stream.ParseKinds(os.Getenv("ORDERS_EMAIL_EVENT_KINDS"))
	if err != nil {
		return Config{}, fmt.Errorf("ORDERS_EMAIL_EVENT_KINDS: %w", err)
	}
	cfg.EventKinds = kinds

	if cfg.LockTimeout, err = duration("ORDERS_EMAIL_LOCK_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.ResendTimeout, err = duration("RESEND_TIMEOUT", DefaultResendTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", DefaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv("ORDERS_EMAIL_MAX_CONCURRENCY")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("ORDERS_EMAIL_MAX_CONCURRENCY: invalid value %q", raw)
		}
		cfg.MaxConcurrency = n
	}

	return cfg, nil
}

func getenv(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func duration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}
