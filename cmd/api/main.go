package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/saplingsites/orders-email/internal/aws"
	"github.com/saplingsites/orders-email/internal/config"
	"github.com/saplingsites/orders-email/internal/handlers"
	"github.com/saplingsites/orders-email/internal/idempotency"
	"github.com/saplingsites/orders-email/internal/orders"
)

func setupRouter(cfg handlers.HandlerConfig, adminToken string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := r.Group("/", handlers.RequireAdmin(adminToken))
	handlers.RegisterOrdersRoutes(admin, cfg)

	return r
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var logger *slog.Logger
	if cfg.RunLocal {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	slog.SetDefault(logger)

	clients, err := aws.NewClients(ctx, cfg.AWS())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	hcfg := handlers.HandlerConfig{
		Orders:      orders.NewStore(clients.DynamoDB, cfg.OrdersTable, orders.WithLockTimeout(cfg.LockTimeout)),
		SiteID:      cfg.SiteID,
		LockTimeout: cfg.LockTimeout,
		Logger:      logger,
	}
	if cfg.IdempotencyTable != "" {
		hcfg.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, operator routes will reject every request")
	}

	r := setupRouter(hcfg, cfg.AdminToken)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":8080"
		logger.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			logger.Error("failed to run local server", "error", err)
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
