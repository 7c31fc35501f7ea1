package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// session tracks one logical sequence of retries. It lives in the engine's
// store keyed by kind + correlation ID, serialized as JSON so the Redis
// store can share it across replicas. Sessions expire after the configured
// idle TTL so abandoned sequences do not leak.
type session struct {
	AttemptsMade int       `json:"attempts_made"`
	FirstFailure time.Time `json:"first_failure"`
}

func sessionKey(record *ErrorRecord) string {
	return fmt.Sprintf("%s:%s", record.Kind, record.CorrelationID)
}

// loadSession fetches the session for a record, returning a fresh one when
// absent. A corrupt payload is treated as a fresh session with a warning;
// losing an attempt count is preferable to wedging recovery.
func (e *Engine) loadSession(ctx context.Context, key string) session {
	raw, err := e.sessions.Get(ctx, key)
	if err != nil {
		e.logger.Warn("Session store read failed, starting fresh session", map[string]interface{}{
			"operation":   "session_load",
			"session_key": key,
			"error":       err.Error(),
		})
		return session{FirstFailure: time.Now()}
	}
	if raw == "" {
		return session{FirstFailure: time.Now()}
	}

	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		e.logger.Warn("Corrupt session payload, starting fresh session", map[string]interface{}{
			"operation":   "session_load",
			"session_key": key,
			"error":       err.Error(),
		})
		return session{FirstFailure: time.Now()}
	}
	if s.FirstFailure.IsZero() {
		s.FirstFailure = time.Now()
	}
	return s
}

func (e *Engine) saveSession(ctx context.Context, key string, s session) {
	data, err := json.Marshal(s)
	if err != nil {
		// session is a fixed struct; this cannot realistically fail
		e.logger.Error("Failed to marshal session", map[string]interface{}{
			"operation":   "session_save",
			"session_key": key,
			"error":       err.Error(),
		})
		return
	}
	if err := e.sessions.Set(ctx, key, string(data), e.sessionTTL); err != nil {
		e.logger.Warn("Session store write failed", map[string]interface{}{
			"operation":   "session_save",
			"session_key": key,
			"error":       err.Error(),
		})
	}
}

func (e *Engine) clearSession(ctx context.Context, key string) {
	if err := e.sessions.Delete(ctx, key); err != nil {
		e.logger.Warn("Session store delete failed", map[string]interface{}{
			"operation":   "session_clear",
			"session_key": key,
			"error":       err.Error(),
		})
	}
}
