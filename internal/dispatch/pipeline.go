package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saplingsites/orders-email/internal/email"
	"github.com/saplingsites/orders-email/internal/orders"
)

type result struct {
	outcome Outcome
	stage   Stage
	lockID  string
	err     error
}

func failed(stage Stage, lockID string, err error) result {
	return result{outcome: OutcomeFailed, stage: stage, lockID: lockID, err: err}
}

// run drives one order through claim, render, send and finalize.
// A claimed order whose render or send fails keeps its lock; only Finalize clears it.
func (d *Dispatcher) run(ctx context.Context, key orders.Key, view orders.View) result {
	log := d.log.With(
		"business_id", key.BusinessID,
		"created_at_order_id", key.CreatedAtOrderID,
		"order_id", view.OrderID,
	)

	claim, err := d.store.Claim(ctx, key)
	if err != nil {
		return failed(StageClaim, "", err)
	}
	if !claim.Claimed {
		log.Info("order email already claimed or sent")
		return result{outcome: OutcomeNotClaimed}
	}
	log = log.With("lock_id", claim.LockID)

	rendered := email.Render(view, d.from)
	if !rendered.Complete() {
		log.Error("order email render incomplete, lock left in place",
			"customer_email_ok", rendered.Customer != nil,
			"business_email_ok", rendered.Business != nil,
		)
		return result{outcome: OutcomeRenderIncomplete, stage: StageRender, lockID: claim.LockID}
	}

	if err := d.send(ctx, log, "customer", rendered.Customer, claim.LockID); err != nil {
		return failed(StageSendCustomer, claim.LockID, err)
	}
	if err := d.send(ctx, log, "business", rendered.Business, claim.LockID); err != nil {
		return failed(StageSendBusiness, claim.LockID, err)
	}

	if err := d.store.Finalize(ctx, key); err != nil {
		return failed(StageFinalize, claim.LockID, err)
	}
	log.Info("order emails sent")
	return result{outcome: OutcomeSent}
}

func (d *Dispatcher) send(ctx context.Context, log *slog.Logger, kind string, msg *email.Message, lockID string) error {
	start := d.nowFunc()
	id, err := d.sender.Send(ctx, *msg, email.SendOptions{IdempotencyKey: lockID + "/" + kind})
	elapsed := d.nowFunc().Sub(start).Milliseconds()

	if err != nil {
		attrs := []any{"kind", kind, "to", msg.To, "elapsed_ms", elapsed, "error", err}
		var sendErr *email.SendError
		if errors.As(err, &sendErr) {
			attrs = append(attrs, "status_code", sendErr.StatusCode, "provider_message", sendErr.Message)
		}
		log.Error("resend send failed", attrs...)
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	log.Info("resend send ok", "kind", kind, "to", msg.To, "elapsed_ms", elapsed, "id", id)
	return nil
}
