package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesCapacity(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k", 2, 0))
	assert.True(t, l.Allow("k", 2, 0))
	assert.False(t, l.Allow("k", 2, 0))
}

func TestAllowRefills(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k", 1, 1))
	assert.False(t, l.Allow("k", 1, 1))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("k", 1, 1))
}

func TestAllowIndependentKeys(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
}
