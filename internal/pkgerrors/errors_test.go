package pkgerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsAndAs(t *testing.T) {
	err := Wrap("manifest.add", KindExists, "alpha-1.0", nil)
	require.Error(t, err)
	assert.True(t, Is(err, KindExists))
	assert.False(t, Is(err, KindNotFound))
	assert.True(t, errors.Is(err, ErrExists))
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap("stage.install", KindIO, "beta-2.0", cause)
	assert.True(t, Is(err, KindIO))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCycleUnwrapsToSentinel(t *testing.T) {
	c := &Cycle{Members: []string{"a", "b", "a"}}
	assert.ErrorIs(t, c, ErrCycle)
	assert.Contains(t, c.Error(), "a")
}
