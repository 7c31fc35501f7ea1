package recovery

// Kind is the closed-set classification of an upstream failure.
// Unrecognized failures fall into KindUnclassified; new kinds are never
// invented at runtime.
type Kind string

const (
	KindRateLimited        Kind = "rate-limited"
	KindInvalidRequest     Kind = "invalid-request"
	KindModelUnavailable   Kind = "model-unavailable"
	KindTokenLimitExceeded Kind = "token-limit-exceeded"
	KindAuthFailed         Kind = "authentication-failed"
	KindNetworkError       Kind = "network-error"
	KindTimeout            Kind = "timeout"
	KindQuotaExceeded      Kind = "quota-exceeded"
	KindContentFiltered    Kind = "content-filtered"
	KindUpstreamAPIError   Kind = "upstream-api-error"
	KindUnclassified       Kind = "unclassified"
)

// allKinds lists every valid Kind, used for validation and for seeding
// the default policy table.
var allKinds = []Kind{
	KindRateLimited,
	KindInvalidRequest,
	KindModelUnavailable,
	KindTokenLimitExceeded,
	KindAuthFailed,
	KindNetworkError,
	KindTimeout,
	KindQuotaExceeded,
	KindContentFiltered,
	KindUpstreamAPIError,
	KindUnclassified,
}

// IsValid reports whether k is one of the fixed enumeration values.
func (k Kind) IsValid() bool {
	for _, v := range allKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Retryable reports whether automatic recovery may be attempted for this
// kind. Token-limit, content-filter, and invalid-request failures will fail
// identically on every attempt, so they are never retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindTokenLimitExceeded, KindContentFiltered, KindInvalidRequest:
		return false
	default:
		return true
	}
}

// userMessages maps each kind to the plain-language message surfaced to end
// users when recovery is exhausted. Raw upstream text never reaches the
// user; the original record stays attached as the error cause for logging.
var userMessages = map[Kind]string{
	KindRateLimited:        "Too many requests. Please wait a moment and try again.",
	KindInvalidRequest:     "The request could not be processed. Please try rephrasing.",
	KindModelUnavailable:   "The selected model is currently unavailable. Please try another model.",
	KindTokenLimitExceeded: "The conversation is too long for this model. Please shorten it and try again.",
	KindAuthFailed:         "Authentication failed. Please check your credentials.",
	KindNetworkError:       "A network error occurred. Please check your connection and try again.",
	KindTimeout:            "The request timed out. Please try again.",
	KindQuotaExceeded:      "Usage quota exceeded. Please check your plan or try again later.",
	KindContentFiltered:    "The response was blocked by the content filter. Please adjust your request.",
	KindUpstreamAPIError:   "The service encountered an error. Please try again shortly.",
	KindUnclassified:       "Something went wrong. Please try again.",
}

// UserMessage returns the terminal user-facing message for the kind.
func (k Kind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnclassified]
}
