package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slot struct {
	ticket string
	at     time.Time
}

// Memory is a process-local limiter. A single mutex serializes every phone,
// which is plenty for development and tests.
type Memory struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	slots  map[string][]slot
}

// NewMemory builds an in-memory limiter. A nil clock uses time.Now.
func NewMemory(max int, window time.Duration, now func() time.Time) *Memory {
	max, window = normalizeLimits(max, window)
	if now == nil {
		now = time.Now
	}
	return &Memory{max: max, window: window, now: now, slots: make(map[string][]slot)}
}

// Allow records a slot for phone unless the window is already full.
func (m *Memory) Allow(_ context.Context, phone string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := m.prune(phone, now)
	if len(live) >= m.max {
		retry := live[0].at.Add(m.window).Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	ticket := uuid.NewString()
	m.slots[phone] = append(live, slot{ticket: ticket, at: now})
	return Decision{Allowed: true, Ticket: ticket}, nil
}

// Release drops a previously recorded slot. Unknown tickets are ignored.
func (m *Memory) Release(_ context.Context, phone, ticket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.slots[phone]
	for i, s := range live {
		if s.ticket == ticket {
			m.slots[phone] = append(live[:i:i], live[i+1:]...)
			break
		}
	}
	if len(m.slots[phone]) == 0 {
		delete(m.slots, phone)
	}
	return nil
}

func (m *Memory) prune(phone string, now time.Time) []slot {
	cutoff := now.Add(-m.window)
	live := m.slots[phone][:0:0]
	for _, s := range m.slots[phone] {
		if s.at.After(cutoff) {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		delete(m.slots, phone)
	} else {
		m.slots[phone] = live
	}
	return live
}
