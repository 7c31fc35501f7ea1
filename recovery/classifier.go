package recovery

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// classifierRule pairs a kind with a predicate over the lower-cased message.
// Rules are evaluated in order; the first match wins, so a message is only
// ever assigned one kind.
type classifierRule struct {
	kind  Kind
	match func(msg string) bool
}

func containsAny(msg string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifierRules is the fixed priority-ordered classification table.
// Order matters: "invalid api key" must classify as authentication-failed,
// not invalid-request, so the auth rule precedes the invalid rule.
var classifierRules = []classifierRule{
	{KindRateLimited, func(m string) bool {
		return containsAny(m, "rate limit", "429", "too many requests")
	}},
	{KindTokenLimitExceeded, func(m string) bool {
		return containsAny(m, "token limit", "context length", "context_length", "maximum context")
	}},
	{KindModelUnavailable, func(m string) bool {
		return strings.Contains(m, "model") &&
			containsAny(m, "unavailable", "not available", "overloaded")
	}},
	{KindAuthFailed, func(m string) bool {
		return containsAny(m, "authentication", "unauthorized", "401", "api key", "forbidden", "403")
	}},
	{KindNetworkError, func(m string) bool {
		return containsAny(m, "network", "connection", "econnrefused", "dns", "socket")
	}},
	{KindTimeout, func(m string) bool {
		return containsAny(m, "timeout", "timed out", "deadline exceeded")
	}},
	{KindQuotaExceeded, func(m string) bool {
		return containsAny(m, "quota", "billing", "insufficient credits")
	}},
	{KindContentFiltered, func(m string) bool {
		return containsAny(m, "content filter", "content policy", "safety", "flagged")
	}},
	{KindInvalidRequest, func(m string) bool {
		return containsAny(m, "invalid", "400", "bad request", "malformed")
	}},
	{KindUpstreamAPIError, func(m string) bool {
		return containsAny(m, "500", "502", "503", "504", "internal server", "server error", "api error")
	}},
}

// retryAfterPattern extracts the origin's "retry after N" hint (N seconds).
var retryAfterPattern = regexp.MustCompile(`(?i)retry after (\d+)`)

// Classify converts an arbitrary failure into an ErrorRecord.
//
// Already-classified records (a valid Kind and a timestamp) are returned
// unchanged, so Classify is idempotent and safe to call on errors that have
// been through the engine before. Otherwise the message is lower-cased and
// scanned through the fixed rule table; unmatched messages become
// KindUnclassified. Pure function of its inputs apart from correlation-ID
// generation when the request carries none.
func Classify(err error, req Request) *ErrorRecord {
	var existing *ErrorRecord
	if errors.As(err, &existing) && existing.classified() {
		return existing
	}

	message := ""
	if err != nil {
		message = err.Error()
	}
	lower := strings.ToLower(message)

	kind := KindUnclassified
	for _, rule := range classifierRules {
		if rule.match(lower) {
			kind = rule.kind
			break
		}
	}

	correlationID := req.RequestID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	record := &ErrorRecord{
		Kind:          kind,
		Message:       message,
		OccurredAt:    time.Now(),
		Retryable:     kind.Retryable(),
		OriginModel:   req.Model,
		CorrelationID: correlationID,
	}

	if m := retryAfterPattern.FindStringSubmatch(message); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			record.RetryAfterHint = time.Duration(secs) * time.Second
		}
	}

	return record
}
