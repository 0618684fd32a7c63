package idempotency

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// AttrKey is the partition key of the idempotency table.
const AttrKey = "idempotency_key"

// Record is the shape persisted in the idempotency DynamoDB table. It remembers
// the outcome of an operator request so a retried request with the same key
// replays the first response instead of creating a second test order.
type Record struct {
	Key              string `dynamodbav:"idempotency_key"` // PK
	Status           string `dynamodbav:"status"`
	BusinessID       string `dynamodbav:"business_id,omitempty"`
	CreatedAtOrderID string `dynamodbav:"created_at_order_id,omitempty"`
	ResponseBody     string `dynamodbav:"response_body,omitempty"` // small JSON responses only
	ResponseStatus   int    `dynamodbav:"response_status,omitempty"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
	ExpiresAt        int64  `dynamodbav:"expires_at"` // TTL epoch seconds
	Note             string `dynamodbav:"note,omitempty"`
}
