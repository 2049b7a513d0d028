package inbound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	s := NewSeen(time.Hour, 2, func() time.Time { return now })

	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Has("a"))

	now = now.Add(time.Minute)
	assert.True(t, s.Add("b"))
	now = now.Add(time.Minute)
	assert.True(t, s.Add("c"))
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Has("a"), "oldest evicted at capacity")

	now = now.Add(2 * time.Hour)
	assert.False(t, s.Has("b"))
	assert.True(t, s.Add("b"), "expired entry can be added again")
	assert.Equal(t, 1, s.Len())

	s.Forget("b")
	assert.Zero(t, s.Len())
}
