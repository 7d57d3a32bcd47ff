// Package claims implements the compensation claim lifecycle: the status
// state machine, optimistic-concurrency persistence, and the outbox
// pattern that defers side effects (emails, webhooks) until after a
// transition has committed.
package claims

import "fmt"

// Status is a claim's position in its lifecycle.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPaid        Status = "paid"
	StatusClosed      Status = "closed"
	// StatusDiscarded is the implicit terminal state a draft falls into
	// after 14 days with no submission (spec: draft lifecycle sweep).
	StatusDiscarded Status = "discarded"
)

// transitions enumerates every status this engine will move a claim
// through in one step. Anything not listed here is rejected.
var transitions = map[Status]map[Status]bool{
	StatusDraft:       {StatusSubmitted: true, StatusDiscarded: true},
	StatusSubmitted:   {StatusUnderReview: true},
	StatusUnderReview: {StatusApproved: true, StatusRejected: true},
	StatusApproved:    {StatusPaid: true, StatusRejected: true},
	StatusRejected:    {StatusUnderReview: true},
	StatusPaid:        {StatusClosed: true},
	StatusClosed:      {},
	StatusDiscarded:   {},
}

// CanTransition reports whether moving from one status to another is a
// legal single step.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidateTransition returns a descriptive error if from->to is not a
// legal step, so callers can surface it directly to the API layer.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("claims: illegal transition %s -> %s", from, to)
}
