package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/remedy/core"
)

// failingStore simulates an unreachable session store.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("store unreachable")
}

func (failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store unreachable")
}

func (failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("store unreachable")
}

func (failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("store unreachable")
}

func TestCorruptSessionStartsFresh(t *testing.T) {
	store := core.NewMemoryStore()
	e := NewEngine(WithSessionStore(store))
	fastPolicy(t, e, KindRateLimited, 3)

	req := Request{Operation: "chat", Model: "gpt-5", RequestID: "req-corrupt"}
	key := "rate-limited:req-corrupt"
	require.NoError(t, store.Set(context.Background(), key, "{not json", time.Minute))

	out := e.Handle(context.Background(), errors.New("429"), req)
	var sig *RetrySignal
	require.ErrorAs(t, out, &sig)
	assert.Equal(t, 1, sig.Attempt, "corrupt payload must reset the attempt count")

	// The fresh session replaced the corrupt payload
	raw, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, raw, `"attempts_made":1`)
}

func TestUnreachableStoreDegradesToFreshSessions(t *testing.T) {
	e := NewEngine(WithSessionStore(failingStore{}))
	fastPolicy(t, e, KindRateLimited, 2)

	req := Request{Operation: "chat", Model: "gpt-5", RequestID: "req-down"}

	// Without persisted attempt counts every call looks like attempt 1;
	// degraded but functional beats refusing to recover
	for i := 0; i < 3; i++ {
		out := e.Handle(context.Background(), errors.New("429"), req)
		var sig *RetrySignal
		require.ErrorAs(t, out, &sig)
		assert.Equal(t, 1, sig.Attempt)
	}
}

func TestSessionKeyCombinesKindAndCorrelation(t *testing.T) {
	record := &ErrorRecord{Kind: KindTimeout, CorrelationID: "abc-123"}
	assert.Equal(t, "timeout:abc-123", sessionKey(record))
}

func TestSessionsAreIsolatedByKind(t *testing.T) {
	e := NewEngine()
	fastPolicy(t, e, KindRateLimited, 3)
	fastPolicy(t, e, KindTimeout, 3)

	req := Request{Operation: "chat", Model: "gpt-5", RequestID: "req-iso"}
	ctx := context.Background()

	out := e.Handle(ctx, errors.New("429"), req)
	var sig *RetrySignal
	require.ErrorAs(t, out, &sig)
	require.Equal(t, 1, sig.Attempt)

	// A different kind under the same request tracks its own attempts
	out = e.Handle(ctx, errors.New("request timed out"), req)
	require.ErrorAs(t, out, &sig)
	assert.Equal(t, 1, sig.Attempt)

	out = e.Handle(ctx, errors.New("429"), req)
	require.ErrorAs(t, out, &sig)
	assert.Equal(t, 2, sig.Attempt)
}
