package orders

import (
	"strings"
	"time"
)

// timestampLayout is ISO-8601 in UTC with milliseconds, the format every writer
// of this table uses, so lock and sent timestamps compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Key identifies one order: tenant partition key plus chronological sort key.
type Key struct {
	BusinessID       string `dynamodbav:"businessId" json:"businessId"`
	CreatedAtOrderID string `dynamodbav:"createdAtOrderId" json:"createdAtOrderId"`
}

// Valid reports whether both key parts are non-empty.
func (k Key) Valid() bool {
	return strings.TrimSpace(k.BusinessID) != "" && strings.TrimSpace(k.CreatedAtOrderID) != ""
}

func (k Key) String() string {
	return k.BusinessID + "/" + k.CreatedAtOrderID
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// NewCreatedAtOrderID builds the sort key for an order created at createdAt.
func NewCreatedAtOrderID(createdAt time.Time, orderID string) string {
	return FormatTimestamp(createdAt) + "#" + orderID
}
