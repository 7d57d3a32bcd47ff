package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flightclaims/claims-engine/internal/eligibility"
)

// ErrConsentMissing is returned by Submit when a draft belongs to a
// claim group whose consent has not been confirmed.
var ErrConsentMissing = errors.New("claims: group consent not confirmed")

// ErrDuplicateClaim is returned by Submit when a non-draft claim already
// exists for the same (customer, flight_number, flight_date) triple.
var ErrDuplicateClaim = errors.New("claims: duplicate claim for this flight")

// ErrCompensationNotSet is returned by Approve when the claim has no
// positive compensation_amount to approve.
var ErrCompensationNotSet = errors.New("claims: compensation_amount must be set and positive to approve")

// ErrRejectionReasonRequired is returned by Reject/Reverse when no
// non-empty reason was supplied.
var ErrRejectionReasonRequired = errors.New("claims: rejection reason is required")

// Service orchestrates claim lifecycle operations: running the
// eligibility engine at submission time, enforcing the status FSM, and
// queuing outbox side effects inside the same transaction as the
// transition that triggers them.
type Service struct {
	store      *Store
	groupStore *GroupStore
}

func NewService(store *Store, groupStore *GroupStore) *Service {
	return &Service{store: store, groupStore: groupStore}
}

// Submit moves a draft claim to submitted, running the eligibility
// engine to populate distance/compensation/tier fields before the
// transition is persisted, then enqueues a claim.submitted outbox task
// rather than sending any notification inline. If the draft belongs
// to a claim group, the group's consent_confirmed flag must already be
// set; if the (customer, flight_number, flight_date) triple already has
// a non-draft claim, submission is refused as a duplicate.
func (s *Service) Submit(ctx context.Context, claimID uuid.UUID, expectedVersion int, region eligibility.Region, facts eligibility.FlightFacts) (Claim, error) {
	var result Claim
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByID(ctx, claimID)
		if err != nil {
			return err
		}

		if current.ClaimGroupID != nil {
			group, err := s.groupStore.FindByID(ctx, *current.ClaimGroupID)
			if err != nil {
				return err
			}
			if !group.ConsentConfirmed {
				return ErrConsentMissing
			}
		}

		duplicate, err := s.store.ExistsNonDraftDuplicate(ctx, current.CustomerID, current.FlightNumber, current.FlightDate, claimID)
		if err != nil {
			return err
		}
		if duplicate {
			return ErrDuplicateClaim
		}

		evaluated, err := eligibility.Evaluate(facts, region, time.Now())
		if err != nil {
			return fmt.Errorf("claims: evaluate eligibility: %w", err)
		}

		updated, err := s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusSubmitted, transitionParams{}, func(c *Claim) {
			now := time.Now()
			c.SubmittedAt = &now
			c.ScheduledDeparture = &facts.ScheduledDeparture
			c.ActualDeparture = facts.ActualDeparture
			c.ScheduledArrival = &facts.ScheduledArrival
			c.ActualArrival = facts.ActualArrival
			delayMinutes := int(evaluated.DelayHoursAtGate * 60)
			c.DelayMinutes = &delayMinutes
			distDecimal := decimal.NewFromFloat(evaluated.FlightDistanceKM)
			c.DistanceKM = &distDecimal
			c.ExtraordinaryFlagged = evaluated.ExtraordinaryCircumstances != nil
			c.CompensationCurrency = evaluated.Currency
			if evaluated.HasAmount {
				amount := evaluated.Amount
				c.CompensationAmount = &amount
			}
			if len(evaluated.Reasons) > 0 {
				tier := evaluated.Reasons[len(evaluated.Reasons)-1]
				c.EligibilityTier = &tier
			}
		})
		if err != nil {
			return err
		}

		if err := s.store.EnqueueOutboxTask(ctx, "claims", "claim.submitted",
			map[string]interface{}{"claim_id": updated.ID}, "claim.submitted:"+updated.ID.String()); err != nil {
			return err
		}

		result = updated
		return nil
	})
	return result, err
}

func (s *Service) BeginReview(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID) (Claim, error) {
	return s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusUnderReview, transitionParams{ActorID: &actorID}, func(c *Claim) {
		c.ReviewerID = &actorID
	})
}

// Approve moves an under-review claim to approved, guarded on compensation_amount already being set and
// positive — the eligibility engine populates it at Submit time, so
// Approve never recomputes it.
func (s *Service) Approve(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID) (Claim, error) {
	var result Claim
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByID(ctx, claimID)
		if err != nil {
			return err
		}
		if current.CompensationAmount == nil || !current.CompensationAmount.IsPositive() {
			return ErrCompensationNotSet
		}

		updated, err := s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusApproved, transitionParams{ActorID: &actorID}, func(c *Claim) {
			now := time.Now()
			c.DecidedAt = &now
			c.ReviewerID = &actorID
		})
		if err != nil {
			return err
		}
		if err := s.store.EnqueueOutboxTask(ctx, "claims", "claim.approved",
			map[string]interface{}{"claim_id": updated.ID}, "claim.approved:"+updated.ID.String()); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// Reject moves an under-review claim to rejected, guarded on a
// non-empty reason, which is persisted onto the claim row itself (not
// only the outbox notification payload).
func (s *Service) Reject(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID, reason string) (Claim, error) {
	if reason == "" {
		return Claim{}, ErrRejectionReasonRequired
	}
	var result Claim
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		updated, err := s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusRejected, transitionParams{ActorID: &actorID, Reason: reason}, func(c *Claim) {
			now := time.Now()
			c.DecidedAt = &now
			c.ReviewerID = &actorID
			c.RejectionReason = &reason
		})
		if err != nil {
			return err
		}
		if err := s.store.EnqueueOutboxTask(ctx, "claims", "claim.rejected",
			map[string]interface{}{"claim_id": updated.ID, "reason": reason}, "claim.rejected:"+updated.ID.String()); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// Reverse moves an approved claim back to rejected: spec's "reversal
// with reason" edge, for a decision an admin determines was wrong after
// the fact.
func (s *Service) Reverse(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID, reason string) (Claim, error) {
	if reason == "" {
		return Claim{}, ErrRejectionReasonRequired
	}
	var result Claim
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		updated, err := s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusRejected, transitionParams{ActorID: &actorID, Reason: reason}, func(c *Claim) {
			now := time.Now()
			c.DecidedAt = &now
			c.ReviewerID = &actorID
			c.RejectionReason = &reason
		})
		if err != nil {
			return err
		}
		if err := s.store.EnqueueOutboxTask(ctx, "claims", "claim.reversed",
			map[string]interface{}{"claim_id": updated.ID, "reason": reason}, "claim.reversed:"+updated.ID.String()); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// Reopen moves a rejected claim back to under_review: spec's "admin
// re-opens with reason" edge. The reason is recorded on the status
// history row; RejectionReason on the claim itself is left untouched
// until a fresh Approve/Reject decides the reopened claim's outcome.
func (s *Service) Reopen(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID, reason string) (Claim, error) {
	if reason == "" {
		return Claim{}, ErrRejectionReasonRequired
	}
	return s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusUnderReview, transitionParams{ActorID: &actorID, Reason: reason}, func(c *Claim) {
		c.ReviewerID = &actorID
	})
}

func (s *Service) MarkPaid(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID) (Claim, error) {
	return s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusPaid, transitionParams{ActorID: &actorID}, func(c *Claim) {
		now := time.Now()
		c.PaidAt = &now
	})
}

func (s *Service) Close(ctx context.Context, claimID uuid.UUID, expectedVersion int, actorID uuid.UUID) (Claim, error) {
	return s.store.ApplyTransition(ctx, claimID, expectedVersion, StatusClosed, transitionParams{ActorID: &actorID}, func(c *Claim) {
		now := time.Now()
		c.ClosedAt = &now
	})
}

// BulkApproveGroup approves every claim in a claim group atomically:
// either every claim in the group moves to approved, or the whole
// operation is rolled back and none do. Event dispatch stays per-claim,
// enqueued inside the same transaction as the transitions it reports on.
func (s *Service) BulkApproveGroup(ctx context.Context, groupID uuid.UUID, actorID uuid.UUID) ([]Claim, error) {
	var results []Claim
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		members, err := s.store.ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return ErrGroupNotFound
		}

		approved := make([]Claim, 0, len(members))
		for _, claim := range members {
			if claim.CompensationAmount == nil || !claim.CompensationAmount.IsPositive() {
				return fmt.Errorf("claim %s: %w", claim.ID, ErrCompensationNotSet)
			}
			updated, err := s.store.ApplyTransition(ctx, claim.ID, claim.Version, StatusApproved, transitionParams{ActorID: &actorID}, func(c *Claim) {
				now := time.Now()
				c.DecidedAt = &now
				c.ReviewerID = &actorID
			})
			if err != nil {
				return fmt.Errorf("claim %s: %w", claim.ID, err)
			}
			if err := s.store.EnqueueOutboxTask(ctx, "claims", "claim.approved",
				map[string]interface{}{"claim_id": updated.ID}, "claim.approved:"+updated.ID.String()); err != nil {
				return err
			}
			approved = append(approved, updated)
		}
		results = approved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
