package dispatch

import (
	"context"

	"github.com/saplingsites/orders-email/internal/orders"
)

// ClaimStore is the part of orders.Store the pipeline needs.
type ClaimStore interface {
	Claim(ctx context.Context, key orders.Key) (orders.Claim, error)
	Finalize(ctx context.Context, key orders.Key) error
}

// MetricsRecorder receives per-batch counters.
type MetricsRecorder interface {
	Put(ctx context.Context, values map[string]float64) error
}

// FailureSink receives one message per failed record.
type FailureSink interface {
	Publish(ctx context.Context, messageBody string, attributes map[string]string) error
}

// Outcome is how a single stream record settled.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"           // wrong event kind or no new image
	OutcomeSkipped          Outcome = "skipped"           // no resolvable order identity
	OutcomeNotClaimed       Outcome = "not_claimed"       // already sent or claimed elsewhere
	OutcomeRenderIncomplete Outcome = "render_incomplete" // claimed, but an email could not be built
	OutcomeSent             Outcome = "sent"
	OutcomeFailed           Outcome = "failed"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageClaim        Stage = "claim"
	StageRender       Stage = "render"
	StageSendCustomer Stage = "send_customer"
	StageSendBusiness Stage = "send_business"
	StageFinalize     Stage = "finalize"
)

// Summary counts outcomes for one batch.
type Summary struct {
	Records          int
	Ignored          int
	Skipped          int
	NotClaimed       int
	RenderIncomplete int
	Sent             int
	Failed           int
	// Aborted is set when the batch was not attempted at all.
	Aborted bool
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeIgnored:
		s.Ignored++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNotClaimed:
		s.NotClaimed++
	case OutcomeRenderIncomplete:
		s.RenderIncomplete++
	case OutcomeSent:
		s.Sent++
	case OutcomeFailed:
		s.Failed++
	}
}

// Metrics returns the summary as metric name/value pairs.
func (s Summary) Metrics() map[string]float64 {
	return map[string]float64{
		"Records":          float64(s.Records),
		"Ignored":          float64(s.Ignored),
		"Skipped":          float64(s.Skipped),
		"NotClaimed":       float64(s.NotClaimed),
		"RenderIncomplete": float64(s.RenderIncomplete),
		"Sent":             float64(s.Sent),
		"Failed":           float64(s.Failed),
	}
}

// FailureMessage is the JSON body published to the FailureSink.
type FailureMessage struct {
	EventID          string `json:"eventId,omitempty"`
	EventName        string `json:"eventName"`
	BusinessID       string `json:"businessId"`
	CreatedAtOrderID string `json:"createdAtOrderId"`
	OrderID          string `json:"orderId,omitempty"`
	Stage            Stage  `json:"stage"`
	Error            string `json:"error"`
	// LockID is set when the record failed while holding the claim.
	LockID string `json:"lockId,omitempty"`
}
