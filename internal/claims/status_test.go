package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalPathAllowed(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusSubmitted))
	assert.True(t, CanTransition(StatusSubmitted, StatusUnderReview))
	assert.True(t, CanTransition(StatusUnderReview, StatusApproved))
	assert.True(t, CanTransition(StatusUnderReview, StatusRejected))
	assert.True(t, CanTransition(StatusApproved, StatusPaid))
	assert.True(t, CanTransition(StatusApproved, StatusRejected))
	assert.True(t, CanTransition(StatusRejected, StatusUnderReview))
	assert.True(t, CanTransition(StatusPaid, StatusClosed))
}

func TestCanTransition_IllegalPathRejected(t *testing.T) {
	assert.False(t, CanTransition(StatusDraft, StatusApproved))
	assert.False(t, CanTransition(StatusDraft, StatusPaid))
	assert.False(t, CanTransition(StatusClosed, StatusDraft))
	assert.False(t, CanTransition(StatusRejected, StatusClosed))
}

func TestCanTransition_DraftToDiscardedAllowedOnlyFromDraft(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusDiscarded))
	assert.False(t, CanTransition(StatusSubmitted, StatusDiscarded))
	assert.False(t, CanTransition(StatusDiscarded, StatusSubmitted))
}

func TestValidateTransition_ReturnsDescriptiveError(t *testing.T) {
	err := ValidateTransition(StatusClosed, StatusSubmitted)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.Contains(t, err.Error(), "submitted")
}
