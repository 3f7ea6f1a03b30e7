package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyLRU_LookupWithinWindow(t *testing.T) {
	c := newIdempotencyLRU(4, time.Minute)
	now := time.Now()
	c.record("key-1", "journal-1", now)

	id, ok := c.lookup("key-1", now.Add(30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, "journal-1", id)

	_, ok = c.lookup("key-1", now.Add(2*time.Minute))
	assert.False(t, ok, "entry outside the window must expire")
}

func TestIdempotencyLRU_EvictsOldestAtCapacity(t *testing.T) {
	c := newIdempotencyLRU(2, time.Hour)
	now := time.Now()
	c.record("a", "ja", now)
	c.record("b", "jb", now)
	c.record("c", "jc", now) // evicts "a"

	_, ok := c.lookup("a", now)
	assert.False(t, ok)
	_, ok = c.lookup("b", now)
	assert.True(t, ok)
	_, ok = c.lookup("c", now)
	assert.True(t, ok)
}
