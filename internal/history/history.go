// Package history keeps the last few question/answer pairs per conversation.
package history

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxPairs = 2
	DefaultTTL      = 24 * time.Hour
)

type Pair struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Store is a per-conversation sliding window. Entries older than ttl are
// dropped on every access; at most maxPairs of the newest are kept.
type Store struct {
	mu       sync.Mutex
	windows  map[int64][]Pair
	maxPairs int
	ttl      time.Duration
	clock    clockwork.Clock
}

func New(maxPairs int, ttl time.Duration, clock clockwork.Clock) *Store {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		windows:  make(map[int64][]Pair),
		maxPairs: maxPairs,
		ttl:      ttl,
		clock:    clock,
	}
}

// Get returns the live pairs of a conversation, oldest first.
func (s *Store) Get(conversationID int64) []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.prune(s.windows[conversationID])
	s.store(conversationID, live)
	return append([]Pair(nil), live...)
}

func (s *Store) Put(conversationID int64, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := append(s.windows[conversationID], Pair{
		Question:  question,
		Answer:    answer,
		CreatedAt: s.clock.Now(),
	})
	w = s.prune(w)
	if len(w) > s.maxPairs {
		w = w[len(w)-s.maxPairs:]
	}
	s.store(conversationID, w)
}

// Len is the number of conversations with live pairs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *Store) prune(w []Pair) []Pair {
	now := s.clock.Now()
	out := w[:0:0]
	for _, p := range w {
		if now.Sub(p.CreatedAt) < s.ttl {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) store(id int64, w []Pair) {
	if len(w) == 0 {
		delete(s.windows, id)
		return
	}
	s.windows[id] = w
}
