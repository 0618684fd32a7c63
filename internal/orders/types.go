package orders

import (
	"math"
	"time"
)

// Order statuses written by Create.
const (
	StatusPlaced = "PLACED"
)

// Attribute names on the orders table.
const (
	AttrBusinessID       = "businessId"
	AttrCreatedAtOrderID = "createdAtOrderId"
	AttrEmailSendLockID  = "emailSendLockId"
	AttrEmailSendLockAt  = "emailSendLockAt"
	AttrEmailSentAt      = "emailSentAt"
)

// Item is a line item as written by Create. Unset numbers are left out of the
// stored item so readers fall back to price × quantity.
type Item struct {
	Name     string   `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity *float64 `dynamodbav:"quantity,omitempty" json:"quantity,omitempty"`
	Price    *float64 `dynamodbav:"price,omitempty" json:"price,omitempty"`
	Total    *float64 `dynamodbav:"total,omitempty" json:"total,omitempty"`
}

// Amount returns a pointer to v for the optional numeric fields.
func Amount(v float64) *float64 { return &v }

// Order represents the item stored in the orders DynamoDB table.
// The email claim fields are only ever written by Store.Claim and Store.Finalize.
type Order struct {
	BusinessID                string   `dynamodbav:"businessId" json:"businessId"`             // PK
	CreatedAtOrderID          string   `dynamodbav:"createdAtOrderId" json:"createdAtOrderId"` // SK: <iso>#<uuid>
	OrderID                   string   `dynamodbav:"orderId" json:"orderId"`
	CreatedAt                 string   `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt                 int64    `dynamodbav:"expiresAt" json:"expiresAt"` // TTL epoch seconds
	Status                    string   `dynamodbav:"status" json:"status"`
	CustomerEmail             string   `dynamodbav:"customerEmail" json:"customerEmail"`
	CustomerName              string   `dynamodbav:"customerName,omitempty" json:"customerName,omitempty"`
	BusinessDisplayName       string   `dynamodbav:"businessDisplayName,omitempty" json:"businessDisplayName,omitempty"`
	BusinessNotificationEmail string   `dynamodbav:"businessNotificationEmail,omitempty" json:"businessNotificationEmail,omitempty"`
	Items                     []Item   `dynamodbav:"items,omitempty" json:"items,omitempty"`
	Total                     *float64 `dynamodbav:"total,omitempty" json:"total,omitempty"`
	Currency                  string   `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	Notes                     string   `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	TestEmail                 bool     `dynamodbav:"testEmail,omitempty" json:"testEmail,omitempty"`

	EmailSendLockID string `dynamodbav:"emailSendLockId,omitempty" json:"emailSendLockId,omitempty"`
	EmailSendLockAt string `dynamodbav:"emailSendLockAt,omitempty" json:"emailSendLockAt,omitempty"`
	EmailSentAt     string `dynamodbav:"emailSentAt,omitempty" json:"emailSentAt,omitempty"`
}

// Key returns the table key of o.
func (o Order) Key() Key {
	return Key{BusinessID: o.BusinessID, CreatedAtOrderID: o.CreatedAtOrderID}
}

// ClaimState describes where an order is in the email lifecycle.
type ClaimState string

const (
	ClaimPending ClaimState = "pending"
	ClaimSending ClaimState = "sending"
	ClaimSent    ClaimState = "sent"
	// ClaimStale is a sending order whose lock is older than the configured lock timeout.
	ClaimStale ClaimState = "stale"
)

// State reports the claim state of o. lockTimeout of zero never reports ClaimStale.
func (o Order) State(now time.Time, lockTimeout time.Duration) ClaimState {
	switch {
	case o.EmailSentAt != "":
		return ClaimSent
	case o.EmailSendLockID == "":
		return ClaimPending
	case lockTimeout > 0 && o.EmailSendLockAt < FormatTimestamp(now.Add(-lockTimeout)):
		return ClaimStale
	default:
		return ClaimSending
	}
}

// ItemView is a line item as read from an untrusted stream image.
// Numeric fields are NaN when absent or not numbers.
type ItemView struct {
	Name     string
	Quantity float64
	Price    float64
	Total    float64
}

// View is the typed, defensively decoded shape of an order used for rendering.
// Strings are empty and numbers NaN when the source field is missing or mistyped.
type View struct {
	BusinessID                string
	CreatedAtOrderID          string
	OrderID                   string
	CreatedAt                 string
	CustomerEmail             string
	CustomerName              string
	BusinessDisplayName       string
	BusinessNotificationEmail string
	Items                     []ItemView
	Total                     float64
	Currency                  string
}

// EmptyView returns a View with every numeric field unset.
func EmptyView() View {
	return View{Total: math.NaN()}
}
