package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPut_KeepsNewestPairs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(2, 24*time.Hour, clock)

	for i := 1; i <= 5; i++ {
		s.Put(1, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		clock.Advance(time.Minute)
	}

	got := s.Get(1)
	require.Len(t, got, 2)
	assert.Equal(t, "q4", got[0].Question)
	assert.Equal(t, "a5", got[1].Answer)
}

func TestGet_ExpiresOldPairs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(2, 24*time.Hour, clock)

	s.Put(1, "old", "old")
	clock.Advance(23 * time.Hour)
	s.Put(1, "new", "new")

	got := s.Get(1)
	require.Len(t, got, 2)

	clock.Advance(time.Hour)
	got = s.Get(1)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Question)

	clock.Advance(24 * time.Hour)
	assert.Empty(t, s.Get(1))
	assert.Zero(t, s.Len(), "empty windows are dropped")
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New(2, time.Hour, clockwork.NewFakeClock())
	s.Put(7, "q", "a")

	got := s.Get(7)
	got[0].Answer = "mutated"
	assert.Equal(t, "a", s.Get(7)[0].Answer)
}

func TestConversationsAreIndependent(t *testing.T) {
	s := New(2, time.Hour, clockwork.NewFakeClock())
	s.Put(1, "q1", "a1")
	s.Put(2, "q2", "a2")

	assert.Equal(t, "q1", s.Get(1)[0].Question)
	assert.Equal(t, "q2", s.Get(2)[0].Question)
	assert.Empty(t, s.Get(3))
}

func TestConcurrentAccess(t *testing.T) {
	s := New(2, time.Hour, clockwork.NewFakeClock())
	var wg sync.WaitGroup
	for c := int64(0); c < 8; c++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Put(id, "q", "a")
				assert.LessOrEqual(t, len(s.Get(id)), 2)
			}
		}(c)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}

func TestDefaults(t *testing.T) {
	s := New(0, 0, nil)
	assert.Equal(t, DefaultMaxPairs, s.maxPairs)
	assert.Equal(t, DefaultTTL, s.ttl)
}
