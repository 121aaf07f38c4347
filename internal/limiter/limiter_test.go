package limiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"peercourt/internal/limiter"
)

func TestAllowWithinBudget(t *testing.T) {
	b := limiter.NewBucket(40, 2*time.Second)

	for i := 0; i < 40; i++ {
		assert.True(t, b.Allow("client-a"), "consume %d should be allowed", i+1)
	}
	assert.False(t, b.Allow("client-a"), "consume past the budget should be rejected")
}

func TestKeysAreIndependent(t *testing.T) {
	b := limiter.NewBucket(2, time.Second)

	assert.True(t, b.Allow("a"))
	assert.True(t, b.Allow("a"))
	assert.False(t, b.Allow("a"))

	assert.True(t, b.Allow("b"), "a second key has its own budget")
	assert.Equal(t, 2, b.Keys())
}

func TestWindowRollover(t *testing.T) {
	b := limiter.NewBucket(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow("a"))
	}
	assert.False(t, b.Allow("a"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.Allow("a"), "budget refills when the window rolls over")
}

func TestPrune(t *testing.T) {
	b := limiter.NewBucket(10, 10*time.Millisecond)

	b.Allow("stale")
	b.Allow("fresh")
	assert.Equal(t, 2, b.Keys())

	time.Sleep(25 * time.Millisecond)
	b.Allow("fresh")

	removed := b.Prune(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, b.Keys())
}
