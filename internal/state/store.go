// Package state holds in-flight conversation state in process memory.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zerorich/rating-bot/internal/domain"
)

// ErrNoConversation is returned by Update when the conversation has no state.
var ErrNoConversation = errors.New("state: no conversation in flight")

type slot struct {
	mu      sync.Mutex
	present bool
	state   domain.ConversationState
}

// Store is a key-addressable map of conversation states. Each key has its own
// lock, so a slow update of one conversation never blocks another.
type Store struct {
	slots sync.Map // domain.ConversationID -> *slot
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires conversations idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces any state held for id with initial.
func (s *Store) Start(id domain.ConversationID, initial domain.ConversationState) {
	for {
		v, _ := s.slots.LoadOrStore(id, &slot{})
		sl := v.(*slot)
		sl.mu.Lock()
		// A concurrent Clear may have detached this slot from the map.
		if cur, ok := s.slots.Load(id); !ok || cur != sl {
			sl.mu.Unlock()
			continue
		}
		sl.state = initial.Clone()
		sl.state.UpdatedAt = s.now()
		sl.present = true
		sl.mu.Unlock()
		return
	}
}

// Get returns a copy of the state held for id.
func (s *Store) Get(id domain.ConversationID) (domain.ConversationState, bool) {
	v, ok := s.slots.Load(id)
	if !ok {
		return domain.ConversationState{}, false
	}
	sl := v.(*slot)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.present || s.expired(sl.state) {
		return domain.ConversationState{}, false
	}
	return sl.state.Clone(), true
}

// Update atomically applies fn to the state held for id. fn works on a copy;
// if it returns an error nothing is kept and the error is returned as is.
// Fields fn does not touch keep their previous values. A state that reaches
// domain.StepComplete is returned but no longer held.
func (s *Store) Update(id domain.ConversationID, fn func(*domain.ConversationState) error) (domain.ConversationState, error) {
	v, ok := s.slots.Load(id)
	if !ok {
		return domain.ConversationState{}, ErrNoConversation
	}
	sl := v.(*slot)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.present || s.expired(sl.state) {
		return domain.ConversationState{}, ErrNoConversation
	}

	next := sl.state.Clone()
	if err := fn(&next); err != nil {
		return domain.ConversationState{}, err
	}
	next.UpdatedAt = s.now()
	if next.Step == domain.StepComplete {
		sl.present = false
		sl.state = domain.ConversationState{}
		s.slots.CompareAndDelete(id, sl)
		return next, nil
	}
	sl.state = next
	return next.Clone(), nil
}

// Clear drops the state held for id. Clearing an unknown id is a no-op.
func (s *Store) Clear(id domain.ConversationID) {
	v, ok := s.slots.Load(id)
	if !ok {
		return
	}
	sl := v.(*slot)
	sl.mu.Lock()
	sl.present = false
	sl.state = domain.ConversationState{}
	s.slots.CompareAndDelete(id, sl)
	sl.mu.Unlock()
}

// Sweep clears every conversation idle past the TTL and reports how many were dropped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	dropped := 0
	s.slots.Range(func(key, v any) bool {
		sl := v.(*slot)
		sl.mu.Lock()
		stale := !sl.present || s.expired(sl.state)
		if stale {
			sl.present = false
			s.slots.CompareAndDelete(key, sl)
			dropped++
		}
		sl.mu.Unlock()
		return true
	})
	return dropped
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(dropped int)) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Len reports the number of conversations currently held.
func (s *Store) Len() int {
	n := 0
	s.slots.Range(func(_, v any) bool {
		sl := v.(*slot)
		sl.mu.Lock()
		if sl.present && !s.expired(sl.state) {
			n++
		}
		sl.mu.Unlock()
		return true
	})
	return n
}

func (s *Store) expired(st domain.ConversationState) bool {
	return s.ttl > 0 && s.now().Sub(st.UpdatedAt) > s.ttl
}
