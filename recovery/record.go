package recovery

import (
	"fmt"
	"time"
)

// Request carries caller context for a failure being handled: which logical
// operation failed, which model/service produced it, and an optional request
// identifier that ties successive failures of one operation into a single
// retry session.
type Request struct {
	Operation string
	Model     string
	RequestID string
}

// ErrorRecord is the normalized representation of an upstream failure.
// It implements error so it can travel as the cause of a terminal error.
type ErrorRecord struct {
	Kind           Kind
	Message        string
	OccurredAt     time.Time
	Retryable      bool
	RetryAfterHint time.Duration // zero when the origin gave no hint
	OriginModel    string
	CorrelationID  string
}

// Error returns the raw upstream message prefixed by the kind. This is the
// diagnostic form; user-facing text comes from Kind.UserMessage.
func (r *ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// classified reports whether the record is well-formed: a valid kind and a
// timestamp. The classifier passes such records through unchanged.
func (r *ErrorRecord) classified() bool {
	return r != nil && r.Kind.IsValid() && !r.OccurredAt.IsZero()
}
