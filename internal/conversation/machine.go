// Package conversation tracks what, if anything, the bot expects a recipient
// to type next.
package conversation

import (
	"context"
	"sync"
	"time"
)

// PendingInput is the free-text reply the bot is waiting for.
type PendingInput int

const (
	None PendingInput = iota
	AwaitingRecipeTitle
	AwaitingQuestion
)

func (p PendingInput) String() string {
	switch p {
	case AwaitingRecipeTitle:
		return "awaiting_recipe_title"
	case AwaitingQuestion:
		return "awaiting_question"
	default:
		return "none"
	}
}

// Machine holds one session per recipient, created on first use.
// Sessions idle longer than the TTL read as None and are removed by Prune.
type Machine struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]*entry
}

type entry struct {
	sem     chan struct{} // one slot: exclusive access
	refs    int           // holders plus waiters, guarded by Machine.mu
	pending PendingInput
	touched time.Time
}

// Session is the exclusive view of one recipient's state, valid until release.
type Session struct {
	RecipientID int64

	m *Machine
	e *entry
}

func New(ttl time.Duration) *Machine {
	return &Machine{ttl: ttl, now: time.Now, sessions: map[int64]*entry{}}
}

// Acquire waits for exclusive access to the recipient's session. Calls for
// different recipients never wait on each other.
func (m *Machine) Acquire(ctx context.Context, recipientID int64) (*Session, func(), error) {
	m.mu.Lock()
	e, ok := m.sessions[recipientID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1), touched: m.now()}
		m.sessions[recipientID] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.mu.Lock()
		e.refs--
		m.mu.Unlock()
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			e.touched = m.now()
			e.refs--
			m.mu.Unlock()
			<-e.sem
		})
	}
	return &Session{RecipientID: recipientID, m: m, e: e}, release, nil
}

// Pending returns the current expectation.
func (s *Session) Pending() PendingInput {
	if s.m.expired(s.e) {
		s.e.pending = None
	}
	return s.e.pending
}

// Expect replaces any previous expectation with p.
func (s *Session) Expect(p PendingInput) {
	s.e.pending = p
	s.m.touch(s.e)
}

// Consume returns the expectation and resets it to None.
func (s *Session) Consume() PendingInput {
	p := s.Pending()
	s.e.pending = None
	s.m.touch(s.e)
	return p
}

func (m *Machine) expired(e *entry) bool {
	if m.ttl <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(e.touched) > m.ttl
}

func (m *Machine) touch(e *entry) {
	m.mu.Lock()
	e.touched = m.now()
	m.mu.Unlock()
}

// Prune removes sessions nobody holds that have been idle longer than the TTL,
// or that hold no expectation. It returns how many were removed.
func (m *Machine) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, e := range m.sessions {
		if e.refs > 0 {
			continue
		}
		if e.pending == None || (m.ttl > 0 && now.Sub(e.touched) > m.ttl) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len reports how many sessions are tracked.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
