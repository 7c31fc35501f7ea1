package recovery

import (
	"sync"
	"time"
)

// breakerState represents the state of a model breaker
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ModelBreakerConfig tunes the optional per-model availability breaker.
type ModelBreakerConfig struct {
	// FailureThreshold is the number of consecutive handled errors for one
	// model before its breaker opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker waits before allowing a
	// half-open probe.
	RecoveryTimeout time.Duration
}

// DefaultModelBreakerConfig returns the default breaker tuning.
func DefaultModelBreakerConfig() ModelBreakerConfig {
	return ModelBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// modelBreaker tracks availability of one origin model. While open, the
// engine skips the retry branch for that model and routes straight to
// fallback-target handling: retrying a model that is failing everyone's
// requests just burns the caller's attempt budget.
type modelBreaker struct {
	mu       sync.Mutex
	config   ModelBreakerConfig
	state    breakerState
	failures int
	openedAt time.Time
	onChange func(model, from, to string)
	model    string
}

func newModelBreaker(model string, config ModelBreakerConfig, onChange func(model, from, to string)) *modelBreaker {
	return &modelBreaker{
		config:   config,
		model:    model,
		onChange: onChange,
	}
}

func (b *modelBreaker) transition(to breakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == breakerOpen {
		b.openedAt = time.Now()
	}
	if b.onChange != nil {
		b.onChange(b.model, from.String(), to.String())
	}
}

// allowRetry reports whether the engine may spend retry attempts on this
// model. An open breaker transitions to half-open once the recovery timeout
// has elapsed, permitting a single probe.
func (b *modelBreaker) allowRetry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed, breakerHalfOpen:
		return true
	default: // open
		if time.Since(b.openedAt) > b.config.RecoveryTimeout {
			b.transition(breakerHalfOpen)
			return true
		}
		return false
	}
}

// recordFailure counts a handled error against the model.
func (b *modelBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		// Probe failed; back to open with a fresh timeout
		b.transition(breakerOpen)
		b.failures = b.config.FailureThreshold
		return
	}

	b.failures++
	if b.state == breakerClosed && b.failures >= b.config.FailureThreshold {
		b.transition(breakerOpen)
	}
}

// recordSuccess resets the breaker after a recovery on this model.
func (b *modelBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.transition(breakerClosed)
}

func (b *modelBreaker) currentState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// breakerFor returns the breaker for a model, creating it on first use.
// Returns nil when the breaker feature is disabled or the model is unknown.
func (e *Engine) breakerFor(model string) *modelBreaker {
	if !e.breakerEnabled || model == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[model]
	if !ok {
		b = newModelBreaker(model, e.breakerConfig, func(model, from, to string) {
			e.collector.RecordBreakerTransition(model, from, to)
			e.logger.Info("Model breaker state changed", map[string]interface{}{
				"operation": "model_breaker_transition",
				"model":     model,
				"from":      from,
				"to":        to,
			})
		})
		e.breakers[model] = b
	}
	return b
}

// ModelBreakerState reports the breaker state for a model: "closed",
// "open", or "half-open". Models with no recorded failures report "closed".
func (e *Engine) ModelBreakerState(model string) string {
	if !e.breakerEnabled {
		return breakerClosed.String()
	}
	e.mu.Lock()
	b, ok := e.breakers[model]
	e.mu.Unlock()
	if !ok {
		return breakerClosed.String()
	}
	return b.currentState()
}
