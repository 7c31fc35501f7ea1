// Package recovery classifies failures from AI/LLM provider calls into a
// fixed taxonomy and executes a per-kind retry/fallback policy: exponential
// backoff with bounded jitter, optional fallback procedures, fallback-model
// switching, and lifecycle events for UI layers.
//
// The engine never re-invokes the caller's operation itself. Every Handle
// call settles with a typed outcome the caller branches on: nil (recovered),
// *RetrySignal (try again), *FallbackSignal (switch targets), or
// *TerminalError (show the user-facing message).
package recovery

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/corvid-labs/remedy/core"
)

const (
	// DefaultFallbackModel is offered as the alternate target for the
	// policy-table rows whose risk profile warrants switching models.
	DefaultFallbackModel = "gpt-4o-mini"

	// DefaultFallbackTimeout bounds a fallback procedure's execution.
	DefaultFallbackTimeout = 10 * time.Second

	// DefaultSessionTTL is how long an idle retry session survives in the
	// store before it expires.
	DefaultSessionTTL = 15 * time.Minute

	// maxBackoffDelay caps every computed retry delay.
	maxBackoffDelay = 60 * time.Second
)

// Engine is the error classification and recovery policy engine. Construct
// instances with NewEngine; independent instances share no state, so tests
// and multi-tenant hosts can each run their own.
type Engine struct {
	mu        sync.Mutex
	policies  map[Kind]Policy
	listeners []func(Event)
	breakers  map[string]*modelBreaker

	sessions  core.Memory
	metrics   *Metrics
	logger    core.Logger
	collector MetricsCollector

	fallbackModel   string
	fallbackTimeout time.Duration
	sessionTTL      time.Duration
	breakerEnabled  bool
	breakerConfig   ModelBreakerConfig
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSessionStore sets the store holding retry-session state. Defaults to
// an in-process store; pass a core.RedisStore to share sessions between
// replicas.
func WithSessionStore(store core.Memory) Option {
	return func(e *Engine) {
		if store != nil {
			e.sessions = store
		}
	}
}

// WithFallbackModel sets the alternate model identifier used by the default
// policies for rate-limited, model-unavailable, and quota-exceeded errors.
func WithFallbackModel(model string) Option {
	return func(e *Engine) {
		e.fallbackModel = model
	}
}

// WithMetricsCollector mirrors engine outcomes to an external metrics
// system (see NewOTelCollector). Defaults to a no-op.
func WithMetricsCollector(c MetricsCollector) Option {
	return func(e *Engine) {
		if c != nil {
			e.collector = c
		}
	}
}

// WithFallbackTimeout bounds fallback procedure execution. A hanging
// procedure would otherwise hang the whole session.
func WithFallbackTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fallbackTimeout = d
		}
	}
}

// WithSessionTTL sets how long idle sessions survive in the store.
func WithSessionTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sessionTTL = d
		}
	}
}

// WithModelBreaker enables the per-model availability breaker. While a
// model's breaker is open the engine skips its retry budget and goes
// straight to fallback handling.
func WithModelBreaker(config ModelBreakerConfig) Option {
	return func(e *Engine) {
		e.breakerEnabled = true
		e.breakerConfig = config
	}
}

// NewEngine creates an engine with the built-in policy table.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		listeners:       make([]func(Event), 0),
		breakers:        make(map[string]*modelBreaker),
		metrics:         newMetrics(),
		logger:          &core.NoOpLogger{},
		collector:       noopCollector{},
		fallbackModel:   DefaultFallbackModel,
		fallbackTimeout: DefaultFallbackTimeout,
		sessionTTL:      DefaultSessionTTL,
		breakerConfig:   DefaultModelBreakerConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sessions == nil {
		e.sessions = core.NewMemoryStore()
	}
	e.policies = defaultPolicies(e.fallbackModel)

	e.logger.Info("Recovery engine initialized", map[string]interface{}{
		"operation":       "engine_init",
		"fallback_model":  e.fallbackModel,
		"session_ttl":     e.sessionTTL.String(),
		"breaker_enabled": e.breakerEnabled,
	})

	return e
}

// SetPolicy merges an override into the policy for a kind. Unset override
// fields keep their prior values.
func (e *Engine) SetPolicy(kind Kind, override PolicyOverride) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown error kind %q: %w", kind, core.ErrInvalidConfiguration)
	}
	if err := override.validate(); err != nil {
		return fmt.Errorf("policy override for %s: %w", kind, core.ErrInvalidConfiguration)
	}

	e.mu.Lock()
	e.policies[kind] = e.policies[kind].merge(override)
	e.mu.Unlock()

	e.logger.Debug("Policy updated", map[string]interface{}{
		"operation": "set_policy",
		"kind":      string(kind),
	})
	return nil
}

// ApplyOverrides merges a batch of overrides, e.g. from LoadPolicyFile.
func (e *Engine) ApplyOverrides(overrides map[Kind]PolicyOverride) error {
	for kind, o := range overrides {
		if err := e.SetPolicy(kind, o); err != nil {
			return err
		}
	}
	return nil
}

// PolicyFor returns a copy of the current policy for a kind.
func (e *Engine) PolicyFor(kind Kind) Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policies[kind]
}

// Metrics returns a deep-copied snapshot of the engine's counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// ResetMetrics zeroes every counter.
func (e *Engine) ResetMetrics() {
	e.metrics.Reset()
}

// Handle runs one step of the recovery protocol for a failure. It settles
// every call:
//
//   - nil: a configured fallback procedure recovered the failure
//   - *RetrySignal: the backoff delay has been served; re-invoke the
//     original operation
//   - *FallbackSignal: switch to the named target and re-invoke
//   - *TerminalError: recovery exhausted; show the message to the user
//   - ctx.Err(): the delay was cancelled (the session is preserved)
//
// Attempts for one session are strictly sequential: the call does not
// return a retry signal until its delay has fully elapsed.
func (e *Engine) Handle(ctx context.Context, cause error, req Request) error {
	record := Classify(cause, req)

	e.metrics.recordError(record)
	e.collector.RecordError(record.Kind, record.OriginModel)

	e.logger.Debug("Handling upstream failure", map[string]interface{}{
		"operation":      "recovery_handle",
		"kind":           string(record.Kind),
		"model":          record.OriginModel,
		"correlation_id": record.CorrelationID,
		"retryable":      record.Retryable,
		"retry_after_ms": record.RetryAfterHint.Milliseconds(),
	})

	e.emit(Event{Type: EventError, Record: record})

	policy := e.PolicyFor(record.Kind)
	key := sessionKey(record)
	sess := e.loadSession(ctx, key)

	breaker := e.breakerFor(record.OriginModel)
	modelHealthy := breaker == nil || breaker.allowRetry()
	if breaker != nil && record.Retryable {
		// User errors (bad requests, oversized prompts) say nothing about
		// the model's availability, so only retryable kinds count
		breaker.recordFailure()
	}

	if record.Retryable && sess.AttemptsMade < policy.MaxAttempts && modelHealthy {
		return e.retry(ctx, record, policy, key, sess, breaker)
	}

	if !modelHealthy {
		e.logger.Warn("Model breaker open, skipping retry budget", map[string]interface{}{
			"operation": "recovery_breaker_short_circuit",
			"model":     record.OriginModel,
			"kind":      string(record.Kind),
		})
	}

	// Exhausted or non-retryable: this session is over
	e.clearSession(ctx, key)

	if policy.FallbackModel != "" && req.Model != policy.FallbackModel {
		e.collector.RecordFallbackSwitch(record.Kind, policy.FallbackModel)
		e.logger.Info("Offering fallback target", map[string]interface{}{
			"operation":      "recovery_fallback_target",
			"kind":           string(record.Kind),
			"from_model":     req.Model,
			"fallback_model": policy.FallbackModel,
		})
		e.emit(Event{Type: EventFallbackModel, Record: record, Target: policy.FallbackModel})
		return &FallbackSignal{Record: record, Target: policy.FallbackModel}
	}

	e.collector.RecordUnrecoverable(record.Kind)
	e.logger.Error("Recovery exhausted", map[string]interface{}{
		"operation":      "recovery_unrecoverable",
		"kind":           string(record.Kind),
		"model":          record.OriginModel,
		"correlation_id": record.CorrelationID,
		"attempts_made":  sess.AttemptsMade,
		"cause":          record.Message,
	})
	e.emit(Event{Type: EventUnrecoverable, Record: record})
	return &TerminalError{Record: record, message: record.Kind.UserMessage()}
}

// retry executes steps 5a-5f of the protocol: count the attempt, serve the
// backoff delay, try the fallback procedure, and either return recovered
// (nil) or hand the caller a retry signal.
func (e *Engine) retry(ctx context.Context, record *ErrorRecord, policy Policy, key string, sess session, breaker *modelBreaker) error {
	sess.AttemptsMade++
	e.saveSession(ctx, key, sess)
	e.metrics.recordAttempt()
	e.collector.RecordRetry(record.Kind, sess.AttemptsMade)

	delay := computeDelay(policy, sess.AttemptsMade)

	e.logger.Info("Scheduling retry attempt", map[string]interface{}{
		"operation":      "recovery_retry_attempt",
		"kind":           string(record.Kind),
		"attempt":        sess.AttemptsMade,
		"max_attempts":   policy.MaxAttempts,
		"delay_ms":       delay.Milliseconds(),
		"correlation_id": record.CorrelationID,
	})

	e.emit(Event{
		Type:        EventRetryAttempt,
		Record:      record,
		Attempt:     sess.AttemptsMade,
		MaxAttempts: policy.MaxAttempts,
		Delay:       delay,
	})

	if err := e.wait(ctx, delay); err != nil {
		// Session is preserved so the caller can resume where it left off
		e.logger.Debug("Retry delay cancelled", map[string]interface{}{
			"operation":      "recovery_delay_cancelled",
			"kind":           string(record.Kind),
			"correlation_id": record.CorrelationID,
		})
		return err
	}

	if policy.FallbackProcedure != nil {
		if err := e.runFallbackProcedure(ctx, policy); err != nil {
			e.logger.Warn("Fallback procedure failed", map[string]interface{}{
				"operation": "recovery_fallback_procedure",
				"kind":      string(record.Kind),
				"error":     err.Error(),
			})
		} else {
			e.clearSession(ctx, key)
			duration := time.Since(sess.FirstFailure)
			e.metrics.recordRecovery(duration)
			e.collector.RecordRecovery(record.Kind, duration)
			if breaker != nil {
				breaker.recordSuccess()
			}
			e.logger.Info("Recovered via fallback procedure", map[string]interface{}{
				"operation":      "recovery_recovered",
				"kind":           string(record.Kind),
				"duration_ms":    duration.Milliseconds(),
				"correlation_id": record.CorrelationID,
			})
			e.emit(Event{Type: EventRecovered, Record: record})
			return nil
		}
	}

	return &RetrySignal{
		Record:      record,
		Attempt:     sess.AttemptsMade,
		MaxAttempts: policy.MaxAttempts,
		Delay:       delay,
	}
}

// computeDelay implements min(base * mult^(attempt-1) + jitter, 60s) where
// jitter is up to 10% of the exponential term, drawn per call to spread
// synchronized retries across clients.
func computeDelay(policy Policy, attempt int) time.Duration {
	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	exponential := float64(policy.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	jitter := rand.Float64() * 0.1 * exponential
	delay := time.Duration(exponential + jitter)

	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// wait suspends for the delay, honoring context cancellation.
func (e *Engine) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runFallbackProcedure invokes the policy's recovery action under the
// engine's timeout guard. The procedure runs in its own goroutine so a
// hanging action cannot wedge the session past the timeout.
func (e *Engine) runFallbackProcedure(ctx context.Context, policy Policy) error {
	ctx, cancel := context.WithTimeout(ctx, e.fallbackTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- policy.FallbackProcedure(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("fallback procedure for %s: %w", policy.Kind, ctx.Err())
	}
}
