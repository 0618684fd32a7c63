// Package dispatch turns order stream records into confirmation emails.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/saplingsites/orders-email/internal/email"
	"github.com/saplingsites/orders-email/internal/orders"
	"github.com/saplingsites/orders-email/internal/stream"
)

// Options configures a Dispatcher. Zero values are usable.
type Options struct {
	// EmailFrom is the bare sending address.
	EmailFrom string
	// Kinds selects the stream events that trigger email. Defaults to INSERT only.
	Kinds stream.KindSet
	// MaxConcurrency bounds in-flight records per batch; zero means unbounded.
	MaxConcurrency int
	Logger         *slog.Logger
	Metrics        MetricsRecorder
	Failures       FailureSink
}

// Dispatcher processes stream batches.
type Dispatcher struct {
	store    ClaimStore
	sender   email.Sender
	from     string
	kinds    stream.KindSet
	limit    int
	log      *slog.Logger
	metrics  MetricsRecorder
	failures FailureSink
	nowFunc  func() time.Time
}

// New wires a Dispatcher. A nil sender means no provider credential is
// configured; every batch is then skipped with a single error log.
func New(store ClaimStore, sender email.Sender, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		sender:   sender,
		from:     opts.EmailFrom,
		kinds:    opts.Kinds,
		limit:    opts.MaxConcurrency,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		failures: opts.Failures,
		nowFunc:  time.Now,
	}
	if len(d.kinds) == 0 {
		d.kinds = stream.DefaultKinds()
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Handle processes every record of ev independently and waits for all of
// them. Per-record failures are counted and logged, never returned.
func (d *Dispatcher) Handle(ctx context.Context, ev events.DynamoDBEvent) Summary {
	summary := Summary{Records: len(ev.Records)}
	if len(ev.Records) == 0 {
		return summary
	}
	if d.sender == nil {
		d.log.Error("email provider not configured, skipping batch", "records", len(ev.Records))
		summary.Aborted = true
		return summary
	}

	outcomes := make([]Outcome, len(ev.Records))
	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for i, rec := range ev.Records {
		g.Go(func() error {
			outcomes[i] = d.processRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		summary.add(o)
	}
	if summary.Failed > 0 {
		d.log.Error("some order email records failed", "failed", summary.Failed, "records", summary.Records)
	}
	d.log.Info("order email batch done",
		"records", summary.Records,
		"sent", summary.Sent,
		"not_claimed", summary.NotClaimed,
		"skipped", summary.Skipped,
		"ignored", summary.Ignored,
		"render_incomplete", summary.RenderIncomplete,
		"failed", summary.Failed,
	)
	d.recordMetrics(ctx, summary)
	return summary
}

func (d *Dispatcher) processRecord(ctx context.Context, rec events.DynamoDBEventRecord) Outcome {
	if !stream.Eligible(rec, d.kinds) {
		return OutcomeIgnored
	}

	body := stream.DecodeImage(rec.Change.NewImage)
	key, ok := stream.ExtractKey(rec, body)
	if !ok {
		d.log.Warn("order record missing businessId or createdAtOrderId, skipping",
			"event_id", rec.EventID, "event_name", rec.EventName)
		return OutcomeSkipped
	}

	view := stream.OrderView(body)
	res := d.run(ctx, key, view)
	if res.err != nil {
		d.log.Error("order email failed",
			"business_id", key.BusinessID,
			"created_at_order_id", key.CreatedAtOrderID,
			"order_id", view.OrderID,
			"stage", res.stage,
			"error", res.err,
		)
		d.reportFailure(ctx, rec, key, view, res)
		return OutcomeFailed
	}
	return res.outcome
}

func (d *Dispatcher) recordMetrics(ctx context.Context, s Summary) {
	if d.metrics == nil {
		return
	}
	if err := d.metrics.Put(ctx, s.Metrics()); err != nil {
		d.log.Warn("put batch metrics failed", "error", err)
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, rec events.DynamoDBEventRecord, key orders.Key, view orders.View, res result) {
	if d.failures == nil {
		return
	}
	msg := FailureMessage{
		EventID:          rec.EventID,
		EventName:        rec.EventName,
		BusinessID:       key.BusinessID,
		CreatedAtOrderID: key.CreatedAtOrderID,
		OrderID:          view.OrderID,
		Stage:            res.stage,
		Error:            res.err.Error(),
		LockID:           res.lockID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		d.log.Warn("marshal failure message failed", "error", err)
		return
	}
	attrs := map[string]string{
		"stage":      string(res.stage),
		"businessId": key.BusinessID,
	}
	if err := d.failures.Publish(ctx, string(body), attrs); err != nil {
		d.log.Warn("publish failure message failed", "business_id", key.BusinessID, "error", err)
	}
}
