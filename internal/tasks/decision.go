package tasks

import "time"

// FailKind classifies why a task body gave up. The worker dead-letters a
// failed task whatever its kind; the kind only sets a failure apart from
// Done.
type FailKind string

const (
	// FailPermanent marks a task that retrying will never fix (bad
	// payload, resource no longer exists) — dead-letter on first sight.
	FailPermanent FailKind = "permanent"
	// FailTransient marks a task that exhausted its retry budget against
	// a dependency that was never going to recover on its own in time.
	FailTransient FailKind = "transient"
)

// RetryDecision is the explicit result a task body returns instead of
// raising an exception: either retry after a delay, or fail with a kind.
// The worker loop dead-letters every failure, whatever its kind.
type RetryDecision struct {
	shouldRetry bool
	after       time.Duration
	failKind    FailKind
}

// Retry asks the worker to requeue the task after the given delay.
func Retry(after time.Duration) RetryDecision {
	return RetryDecision{shouldRetry: true, after: after}
}

// Fail asks the worker to stop retrying and treat the task as failed.
func Fail(kind FailKind) RetryDecision {
	return RetryDecision{shouldRetry: false, failKind: kind}
}

// Done reports success: no retry, no failure.
func Done() RetryDecision {
	return RetryDecision{}
}

func (d RetryDecision) isDone() bool {
	return !d.shouldRetry && d.failKind == ""
}
