package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrorsMatchWrapped(t *testing.T) {
	wrapped := fmt.Errorf("loading engine config: %w", ErrInvalidConfiguration)
	assert.True(t, errors.Is(wrapped, ErrInvalidConfiguration))
	assert.False(t, errors.Is(wrapped, ErrMissingConfiguration))

	deep := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrConnectionFailed))
	assert.True(t, errors.Is(deep, ErrConnectionFailed))
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(ErrInvalidConfiguration))
	assert.True(t, IsConfigurationError(ErrMissingConfiguration))
	assert.True(t, IsConfigurationError(fmt.Errorf("redis URL: %w", ErrInvalidConfiguration)))

	assert.False(t, IsConfigurationError(ErrTimeout))
	assert.False(t, IsConfigurationError(errors.New("unrelated")))
	assert.False(t, IsConfigurationError(nil))
}
