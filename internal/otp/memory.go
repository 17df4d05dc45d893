package otp

import (
	"context"
	"sync"
	"time"
)

const memorySweepThreshold = 1024

type memoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]Record
}

// NewMemoryStore builds an in-memory code store for development and tests.
// A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) Store {
	return &memoryStore{now: clockOrDefault(now), records: make(map[string]Record)}
}

func (s *memoryStore) Put(_ context.Context, phone, code string, ttl time.Duration) (Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if len(s.records) >= memorySweepThreshold {
		for p, rec := range s.records {
			if rec.Expired(now) {
				delete(s.records, p)
			}
		}
	}

	rec := Record{Phone: phone, Code: code, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.records[phone] = rec
	return rec, nil
}

// ConsumeLatest runs match outside the lock. The record is only deleted or
// charged an attempt if it is still the one that was matched.
func (s *memoryStore) ConsumeLatest(_ context.Context, phone string, match func(Record) bool) (Record, error) {
	rec, ok := s.load(phone)
	if !ok {
		return Record{}, ErrNotFound
	}

	matched := match == nil || match(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[phone]
	if !ok || cur.Code != rec.Code || !cur.CreatedAt.Equal(rec.CreatedAt) {
		return Record{}, ErrNotFound
	}
	if !matched {
		cur.Attempts++
		if cur.Attempts >= MaxAttempts {
			delete(s.records, phone)
		} else {
			s.records[phone] = cur
		}
		return Record{}, ErrNotFound
	}
	delete(s.records, phone)
	return cur, nil
}

func (s *memoryStore) load(phone string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[phone]
	if !ok {
		return Record{}, false
	}
	if rec.Expired(s.now()) {
		delete(s.records, phone)
		return Record{}, false
	}
	return rec, true
}
