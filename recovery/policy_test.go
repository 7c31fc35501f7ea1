package recovery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyTable(t *testing.T) {
	policies := defaultPolicies("backup-model")

	tests := []struct {
		kind        Kind
		maxAttempts int
		multiplier  float64
		baseDelay   time.Duration
		fallback    string
	}{
		{KindRateLimited, 5, 2, time.Second, "backup-model"},
		{KindNetworkError, 3, 1.5, 500 * time.Millisecond, ""},
		{KindTimeout, 3, 2, 2 * time.Second, ""},
		{KindModelUnavailable, 2, 1, time.Second, "backup-model"},
		{KindTokenLimitExceeded, 0, 0, 0, ""},
		{KindContentFiltered, 0, 0, 0, ""},
		{KindAuthFailed, 1, 1, time.Second, ""},
		{KindUpstreamAPIError, 2, 1.5, time.Second, ""},
		{KindInvalidRequest, 0, 0, 0, ""},
		{KindQuotaExceeded, 2, 3, 60 * time.Second, "backup-model"},
		{KindUnclassified, 1, 2, 2 * time.Second, ""},
	}

	require.Len(t, policies, len(tests), "every kind needs exactly one policy")

	for _, tt := range tests {
		p, ok := policies[tt.kind]
		require.True(t, ok, "missing policy for %s", tt.kind)
		assert.Equal(t, tt.maxAttempts, p.MaxAttempts, "%s max attempts", tt.kind)
		assert.Equal(t, tt.multiplier, p.BackoffMultiplier, "%s multiplier", tt.kind)
		assert.Equal(t, tt.baseDelay, p.BaseDelay, "%s base delay", tt.kind)
		assert.Equal(t, tt.fallback, p.FallbackModel, "%s fallback", tt.kind)
	}
}

func TestPolicyMergeKeepsUnsetFields(t *testing.T) {
	base := Policy{
		Kind:              KindRateLimited,
		MaxAttempts:       5,
		BackoffMultiplier: 2,
		BaseDelay:         time.Second,
		FallbackModel:     "backup",
	}

	attempts := 3
	merged := base.merge(PolicyOverride{MaxAttempts: &attempts})

	assert.Equal(t, 3, merged.MaxAttempts)
	assert.Equal(t, 2.0, merged.BackoffMultiplier)
	assert.Equal(t, time.Second, merged.BaseDelay)
	assert.Equal(t, "backup", merged.FallbackModel)

	// Second override on top of the first keeps the earlier override
	delay := Duration(250 * time.Millisecond)
	merged = merged.merge(PolicyOverride{BaseDelay: &delay})
	assert.Equal(t, 3, merged.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, merged.BaseDelay)
}

func TestPolicyOverrideValidation(t *testing.T) {
	negative := -1
	assert.Error(t, PolicyOverride{MaxAttempts: &negative}.validate())

	small := 0.5
	assert.Error(t, PolicyOverride{BackoffMultiplier: &small}.validate())

	badDelay := Duration(-time.Second)
	assert.Error(t, PolicyOverride{BaseDelay: &badDelay}.validate())

	ok := 2
	assert.NoError(t, PolicyOverride{MaxAttempts: &ok}.validate())
}

func TestLoadPolicyOverrides(t *testing.T) {
	doc := `
rate-limited:
  max_attempts: 3
  base_delay: 2s
quota-exceeded:
  fallback_model: gpt-4o-mini
  backoff_multiplier: 2.5
`
	overrides, err := LoadPolicyOverrides(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, overrides, 2)

	rl := overrides[KindRateLimited]
	require.NotNil(t, rl.MaxAttempts)
	assert.Equal(t, 3, *rl.MaxAttempts)
	require.NotNil(t, rl.BaseDelay)
	assert.Equal(t, 2*time.Second, time.Duration(*rl.BaseDelay))
	assert.Nil(t, rl.BackoffMultiplier)

	q := overrides[KindQuotaExceeded]
	require.NotNil(t, q.FallbackModel)
	assert.Equal(t, "gpt-4o-mini", *q.FallbackModel)
}

func TestLoadPolicyOverridesRejectsUnknownKind(t *testing.T) {
	_, err := LoadPolicyOverrides(strings.NewReader("made-up-kind:\n  max_attempts: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown error kind")
}

func TestLoadPolicyOverridesRejectsBadDuration(t *testing.T) {
	_, err := LoadPolicyOverrides(strings.NewReader("timeout:\n  base_delay: soon\n"))
	require.Error(t, err)
}

func TestLoadPolicyOverridesRejectsInvalidValues(t *testing.T) {
	_, err := LoadPolicyOverrides(strings.NewReader("timeout:\n  max_attempts: -2\n"))
	require.Error(t, err)
}
