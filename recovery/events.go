package recovery

import "time"

// EventType identifies a recovery lifecycle event.
type EventType string

const (
	EventError         EventType = "error"
	EventRetryAttempt  EventType = "retryAttempt"
	EventRecovered     EventType = "recovered"
	EventFallbackModel EventType = "fallbackModel"
	EventUnrecoverable EventType = "unrecoverable"
)

// Event is delivered to listeners as the engine works through a failure.
// Attempt/MaxAttempts/Delay are set for retryAttempt events, Target for
// fallbackModel events.
type Event struct {
	Type        EventType
	Record      *ErrorRecord
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Target      string
	At          time.Time
}

// AddListener registers a listener for engine lifecycle events. Listeners
// are invoked synchronously in registration order; a slow listener delays
// the engine, so UI layers should hand events off to their own queue.
//
// Events are a secondary notification channel for observers; the signal
// returned by Handle remains the authoritative outcome.
func (e *Engine) AddListener(fn func(Event)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// emit delivers an event to all listeners. Called without the engine lock
// held so listeners may call back into the engine.
func (e *Engine) emit(ev Event) {
	ev.At = time.Now()

	e.mu.Lock()
	listeners := make([]func(Event), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
