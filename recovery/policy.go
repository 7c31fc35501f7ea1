package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FallbackProcedure is a recovery action invoked by the engine during a
// retry attempt (re-authentication, prompt truncation, cache flush, ...).
// A nil return means the failure was fully recovered and the caller's
// Handle call returns normally.
type FallbackProcedure func(ctx context.Context) error

// Policy is the per-kind recovery configuration.
type Policy struct {
	Kind              Kind
	MaxAttempts       int
	BackoffMultiplier float64
	BaseDelay         time.Duration
	FallbackModel     string // alternate target offered once attempts are exhausted
	FallbackProcedure FallbackProcedure
}

// PolicyOverride merges into an existing policy. Nil fields keep their
// prior values, so callers can override a single knob without restating
// the rest of the policy.
type PolicyOverride struct {
	MaxAttempts       *int              `yaml:"max_attempts"`
	BackoffMultiplier *float64          `yaml:"backoff_multiplier"`
	BaseDelay         *Duration         `yaml:"base_delay"`
	FallbackModel     *string           `yaml:"fallback_model"`
	FallbackProcedure FallbackProcedure `yaml:"-"`
}

// Duration wraps time.Duration so YAML policy files can use "1s", "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// defaultPolicies builds the built-in policy table. The three kinds whose
// risk profile warrants switching models (rate limits, model outages,
// quota exhaustion) point at the engine's configured fallback model.
func defaultPolicies(fallbackModel string) map[Kind]Policy {
	return map[Kind]Policy{
		KindRateLimited:        {Kind: KindRateLimited, MaxAttempts: 5, BackoffMultiplier: 2, BaseDelay: 1 * time.Second, FallbackModel: fallbackModel},
		KindNetworkError:       {Kind: KindNetworkError, MaxAttempts: 3, BackoffMultiplier: 1.5, BaseDelay: 500 * time.Millisecond},
		KindTimeout:            {Kind: KindTimeout, MaxAttempts: 3, BackoffMultiplier: 2, BaseDelay: 2 * time.Second},
		KindModelUnavailable:   {Kind: KindModelUnavailable, MaxAttempts: 2, BackoffMultiplier: 1, BaseDelay: 1 * time.Second, FallbackModel: fallbackModel},
		KindTokenLimitExceeded: {Kind: KindTokenLimitExceeded, MaxAttempts: 0},
		KindContentFiltered:    {Kind: KindContentFiltered, MaxAttempts: 0},
		KindAuthFailed:         {Kind: KindAuthFailed, MaxAttempts: 1, BackoffMultiplier: 1, BaseDelay: 1 * time.Second},
		KindUpstreamAPIError:   {Kind: KindUpstreamAPIError, MaxAttempts: 2, BackoffMultiplier: 1.5, BaseDelay: 1 * time.Second},
		KindInvalidRequest:     {Kind: KindInvalidRequest, MaxAttempts: 0},
		KindQuotaExceeded:      {Kind: KindQuotaExceeded, MaxAttempts: 2, BackoffMultiplier: 3, BaseDelay: 60 * time.Second, FallbackModel: fallbackModel},
		KindUnclassified:       {Kind: KindUnclassified, MaxAttempts: 1, BackoffMultiplier: 2, BaseDelay: 2 * time.Second},
	}
}

// merge applies an override to a policy, keeping unset fields.
func (p Policy) merge(o PolicyOverride) Policy {
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}
	if o.BackoffMultiplier != nil {
		p.BackoffMultiplier = *o.BackoffMultiplier
	}
	if o.BaseDelay != nil {
		p.BaseDelay = time.Duration(*o.BaseDelay)
	}
	if o.FallbackModel != nil {
		p.FallbackModel = *o.FallbackModel
	}
	if o.FallbackProcedure != nil {
		p.FallbackProcedure = o.FallbackProcedure
	}
	return p
}

// validate rejects overrides that would break engine invariants.
func (o PolicyOverride) validate() error {
	if o.MaxAttempts != nil && *o.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0, got %d", *o.MaxAttempts)
	}
	if o.BackoffMultiplier != nil && *o.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %f", *o.BackoffMultiplier)
	}
	if o.BaseDelay != nil && *o.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0, got %v", time.Duration(*o.BaseDelay))
	}
	return nil
}

// LoadPolicyOverrides reads a YAML document mapping kind names to overrides:
//
//	rate-limited:
//	  max_attempts: 3
//	  base_delay: 2s
//	quota-exceeded:
//	  fallback_model: gpt-4o-mini
func LoadPolicyOverrides(r io.Reader) (map[Kind]PolicyOverride, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading policy overrides: %w", err)
	}

	raw := make(map[string]PolicyOverride)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing policy overrides: %w", err)
	}

	overrides := make(map[Kind]PolicyOverride, len(raw))
	for name, o := range raw {
		kind := Kind(name)
		if !kind.IsValid() {
			return nil, fmt.Errorf("unknown error kind %q in policy overrides", name)
		}
		if err := o.validate(); err != nil {
			return nil, fmt.Errorf("policy override for %s: %w", kind, err)
		}
		overrides[kind] = o
	}
	return overrides, nil
}

// LoadPolicyFile loads overrides from a YAML file on disk.
func LoadPolicyFile(path string) (map[Kind]PolicyOverride, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening policy file: %w", err)
	}
	defer f.Close()
	return LoadPolicyOverrides(f)
}
