package recovery

import (
	"errors"
	"fmt"
	"time"
)

// The engine settles every Handle call with exactly one of: nil (recovered
// via fallback procedure), a *RetrySignal, a *FallbackSignal, a
// *TerminalError, or the context's error if the delay was cancelled.
// Callers branch with errors.As or the Is* helpers rather than sniffing
// message strings.

// RetrySignal tells the caller to re-invoke the original operation. The
// engine has already waited out the backoff delay before returning it.
type RetrySignal struct {
	Record      *ErrorRecord
	Attempt     int
	MaxAttempts int
	Delay       time.Duration // the delay that was served before this signal
}

func (s *RetrySignal) Error() string {
	return fmt.Sprintf("retry attempt %d/%d for %s", s.Attempt, s.MaxAttempts, s.Record.Kind)
}

func (s *RetrySignal) Unwrap() error { return s.Record }

// FallbackSignal tells the caller to re-invoke the operation against the
// named target. The engine never switches targets itself.
type FallbackSignal struct {
	Record *ErrorRecord
	Target string
}

func (s *FallbackSignal) Error() string {
	return fmt.Sprintf("switch to fallback target %s for %s", s.Target, s.Record.Kind)
}

func (s *FallbackSignal) Unwrap() error { return s.Record }

// TerminalError is the user-facing end of the line: recovery is exhausted
// or was never possible. Error() returns plain language safe to display;
// the normalized record stays attached for diagnostics.
type TerminalError struct {
	Record  *ErrorRecord
	message string
}

func (e *TerminalError) Error() string { return e.message }

func (e *TerminalError) Unwrap() error { return e.Record }

// IsRetrySignal reports whether err asks the caller to retry the original
// operation.
func IsRetrySignal(err error) bool {
	var s *RetrySignal
	return errors.As(err, &s)
}

// IsFallbackSignal reports whether err asks the caller to switch targets.
func IsFallbackSignal(err error) bool {
	var s *FallbackSignal
	return errors.As(err, &s)
}

// IsTerminal reports whether err carries a user-facing terminal message.
func IsTerminal(err error) bool {
	var e *TerminalError
	return errors.As(err, &e)
}
