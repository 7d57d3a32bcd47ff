package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flightclaims/claims-engine/internal/claims"
)

const defaultRetryDelay = 5 * time.Minute

// Mailer is the minimal notification sink a task handler needs; notify.Mailer
// satisfies it without this package importing notify's SMTP plumbing.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// CustomerEmails resolves a customer ID to a deliverable address. Kept as
// an interface so the handler doesn't depend on auth.Store's encrypted
// row shape directly.
type CustomerEmails interface {
	EmailForCustomer(ctx context.Context, customerID uuid.UUID) (string, error)
}

type draftReminderPayload struct {
	ClaimID string `json:"claim_id"`
	Stage   int    `json:"stage"`
}

// NewDraftReminderHandler emails a claimant who has left a claim in draft
// past one of the reminder thresholds the scheduler enforces.
func NewDraftReminderHandler(claimStore *claims.Store, emails CustomerEmails, mailer Mailer) Handler {
	return func(ctx context.Context, msg Message) RetryDecision {
		var payload draftReminderPayload
		if err := json.Unmarshal(msg.Args, &payload); err != nil {
			return Fail(FailPermanent)
		}
		claimID, err := uuid.Parse(payload.ClaimID)
		if err != nil {
			return Fail(FailPermanent)
		}
		claim, err := claimStore.FindByID(ctx, claimID)
		if err != nil {
			if err == claims.ErrNotFound {
				return Done()
			}
			return Retry(defaultRetryDelay)
		}
		to, err := emails.EmailForCustomer(ctx, claim.CustomerID)
		if err != nil {
			return Retry(defaultRetryDelay)
		}
		subject := "Your EU261 claim is still in draft"
		body := fmt.Sprintf("Your claim for flight %s is waiting for your review. Submit it to start processing your compensation request.", claim.FlightNumber)
		if err := mailer.Send(ctx, to, subject, body); err != nil {
			return Retry(defaultRetryDelay)
		}
		return Done()
	}
}

type draftDiscardedPayload struct {
	ClaimID string `json:"claim_id"`
}

// NewDraftDiscardedHandler notifies a claimant that an abandoned draft was
// discarded by the housekeeping sweep.
func NewDraftDiscardedHandler(claimStore *claims.Store, emails CustomerEmails, mailer Mailer) Handler {
	return func(ctx context.Context, msg Message) RetryDecision {
		var payload draftDiscardedPayload
		if err := json.Unmarshal(msg.Args, &payload); err != nil {
			return Fail(FailPermanent)
		}
		claimID, err := uuid.Parse(payload.ClaimID)
		if err != nil {
			return Fail(FailPermanent)
		}
		claim, err := claimStore.FindByID(ctx, claimID)
		if err != nil {
			if err == claims.ErrNotFound {
				return Done()
			}
			return Retry(defaultRetryDelay)
		}
		to, err := emails.EmailForCustomer(ctx, claim.CustomerID)
		if err != nil {
			return Retry(defaultRetryDelay)
		}
		subject := "Your draft EU261 claim was discarded"
		body := fmt.Sprintf("Your draft claim for flight %s was automatically discarded after being left incomplete for too long. Start a new claim whenever you're ready.", claim.FlightNumber)
		if err := mailer.Send(ctx, to, subject, body); err != nil {
			return Retry(defaultRetryDelay)
		}
		return Done()
	}
}
