package validation

// EmailTestRequest is the payload for POST /orders/email-test.
type EmailTestRequest struct {
	BusinessID                string `json:"businessId,omitempty" validate:"omitempty,max=128,excludesall=#"` // defaults to SITE_ID
	BusinessDisplayName       string `json:"businessDisplayName,omitempty" validate:"omitempty,max=200"`
	BusinessNotificationEmail string `json:"businessNotificationEmail" validate:"required,email"`
}

// EmailStatusQuery is the query string of GET /orders/email-status.
type EmailStatusQuery struct {
	BusinessID       string `form:"businessId" validate:"required"`
	CreatedAtOrderID string `form:"createdAtOrderId" validate:"required"`
}
