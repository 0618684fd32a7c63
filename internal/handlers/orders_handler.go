package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saplingsites/orders-email/internal/idempotency"
	"github.com/saplingsites/orders-email/internal/orders"
	"github.com/saplingsites/orders-email/internal/validation"
)

// OrderStore is the part of orders.Store the operator API uses.
type OrderStore interface {
	Create(ctx context.Context, in orders.NewOrder) (*orders.Order, error)
	Get(ctx context.Context, key orders.Key) (*orders.Order, error)
}

// IdempotencyStore is the part of idempotency.Store the operator API uses.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key string, order orders.Key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Orders OrderStore
	// Idempotency is optional; without it the Idempotency-Key header is ignored.
	Idempotency IdempotencyStore
	// SiteID is the business used when a request names none.
	SiteID      string
	LockTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

type ordersHandler struct {
	cfg HandlerConfig
}

// RegisterOrdersRoutes registers the operator routes on r.
func RegisterOrdersRoutes(r gin.IRoutes, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &ordersHandler{cfg: cfg}
	v := validation.New()

	r.POST("/orders/email-test", func(c *gin.Context) {
		var req validation.EmailTestRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}
		h.emailTest(c, req)
	})

	r.GET("/orders/email-status", func(c *gin.Context) {
		var q validation.EmailStatusQuery
		if err := validation.BindQueryAndValidate(c, &q, v); err != nil {
			return
		}
		h.emailStatus(c, q)
	})
}

// emailTest writes a one cent order. Its INSERT event drives the dispatcher,
// so both confirmation emails go to the business address.
func (h *ordersHandler) emailTest(c *gin.Context, req validation.EmailTestRequest) {
	ctx := c.Request.Context()

	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		businessID = h.cfg.SiteID
	}
	if businessID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_site_id"})
		return
	}
	displayName := strings.TrimSpace(req.BusinessDisplayName)
	if displayName == "" {
		displayName = businessID
	}
	notify := strings.TrimSpace(req.BusinessNotificationEmail)

	idempKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempKey != "" && h.cfg.Idempotency != nil {
		created, err := h.cfg.Idempotency.Begin(ctx, idempKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
			return
		}
		if !created {
			h.replay(c, idempKey)
			return
		}
	} else {
		idempKey = ""
	}

	item := orders.Item{
		Name:     "Email Test Order",
		Quantity: orders.Amount(1),
		Price:    orders.Amount(0.01),
		Total:    orders.Amount(0.01),
	}
	order, err := h.cfg.Orders.Create(ctx, orders.NewOrder{
		BusinessID:                businessID,
		CustomerEmail:             notify,
		CustomerName:              "Test Customer",
		BusinessDisplayName:       displayName,
		BusinessNotificationEmail: notify,
		Items:                     []orders.Item{item},
		Total:                     orders.Amount(0.01),
		Currency:                  "USD",
		Status:                    orders.StatusPlaced,
		Notes:                     "Admin email test order (1 cent)",
		TestEmail:                 true,
	})
	if err != nil {
		h.cfg.Logger.Error("create test order failed", "business_id", businessID, "error", err)
		if idempKey != "" {
			_ = h.cfg.Idempotency.MarkFailed(ctx, idempKey, fmt.Sprintf("create_failed: %v", err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	body, _ := json.Marshal(gin.H{
		"ok": true,
		"order": gin.H{
			"businessId":       order.BusinessID,
			"orderId":          order.OrderID,
			"createdAt":        order.CreatedAt,
			"createdAtOrderId": order.CreatedAtOrderID,
			"expiresAt":        order.ExpiresAt,
			"status":           order.Status,
			"customerEmail":    order.CustomerEmail,
			"total":            order.Total,
			"currency":         order.Currency,
		},
	})
	if idempKey != "" {
		if err := h.cfg.Idempotency.MarkDone(ctx, idempKey, order.Key(), string(body), http.StatusCreated); err != nil {
			h.cfg.Logger.Warn("mark idempotency done failed", "key", idempKey, "error", err)
		}
	}

	h.cfg.Logger.Info("test order created",
		"business_id", order.BusinessID,
		"created_at_order_id", order.CreatedAtOrderID,
		"order_id", order.OrderID,
	)
	c.Header("Location", statusLocation(order.Key()))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *ordersHandler) replay(c *gin.Context, key string) {
	rec, err := h.cfg.Idempotency.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return
	}
	if rec == nil {
		// expired between Begin and Get
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_expired"})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"businessId": rec.BusinessID, "createdAtOrderId": rec.CreatedAtOrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

// emailStatus reports where an order is in the email lifecycle, which is how
// an operator spots a lock left behind by a failed send.
func (h *ordersHandler) emailStatus(c *gin.Context, q validation.EmailStatusQuery) {
	key := orders.Key{BusinessID: q.BusinessID, CreatedAtOrderID: q.CreatedAtOrderID}
	order, err := h.cfg.Orders.Get(c.Request.Context(), key)
	if errors.Is(err, orders.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "detail": err.Error()})
		return
	}

	resp := gin.H{
		"businessId":       order.BusinessID,
		"createdAtOrderId": order.CreatedAtOrderID,
		"orderId":          order.OrderID,
		"state":            order.State(h.cfg.Now(), h.cfg.LockTimeout),
		"testEmail":        order.TestEmail,
	}
	if order.EmailSendLockAt != "" {
		resp["emailSendLockAt"] = order.EmailSendLockAt
	}
	if order.EmailSentAt != "" {
		resp["emailSentAt"] = order.EmailSentAt
	}
	c.JSON(http.StatusOK, resp)
}

func statusLocation(key orders.Key) string {
	q := url.Values{}
	q.Set("businessId", key.BusinessID)
	q.Set("createdAtOrderId", key.CreatedAtOrderID)
	return "/orders/email-status?" + q.Encode()
}
