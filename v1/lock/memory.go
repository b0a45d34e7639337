package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory implements Store with a mutex-guarded map. Expiry is lazy: every
// operation treats a record past its deadline as absent before applying its
// own logic, so no background task is needed for correctness. Sweep exists
// purely to reclaim memory from keys that are never touched again.
type InMemory struct {
	mu      sync.Mutex
	locks   map[string]*Record // Key.String() -> record
	byToken map[string]string  // token -> Key.String()

	now func() time.Time
}

// InMemoryOption configures an InMemory store.
type InMemoryOption func(*InMemory)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		s.now = now
	}
}

// NewInMemory returns an empty in-memory store.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		locks:   make(map[string]*Record),
		byToken: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// evict removes rec from both indexes. Caller holds mu.
func (s *InMemory) evict(rec *Record) {
	delete(s.locks, rec.Key().String())
	delete(s.byToken, rec.Token)
}

// live returns the unexpired record for key, evicting an expired one.
// Caller holds mu.
func (s *InMemory) live(key string, now time.Time) *Record {
	rec, ok := s.locks[key]
	if !ok {
		return nil
	}
	if rec.Expired(now) {
		s.evict(rec)
		return nil
	}
	return rec
}

// Acquire implements Store.Acquire.
func (s *InMemory) Acquire(_ context.Context, key Key, owner Owner, ttl time.Duration) (AcquireResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec := s.live(key.String(), now); rec != nil {
		if rec.UserID == owner.ID {
			// Reentrant: hand back the existing grant with a fresh
			// deadline. The heartbeat renewal window keeps the
			// original timeout, matching the Redis backend.
			rec.ExpiresAt = now.Add(ttl)
			return AcquireResult{OK: true, Token: rec.Token, Reentrant: true}, nil
		}
		return AcquireResult{HeldBy: rec.UserName}, nil
	}

	rec := &Record{
		Token:      uuid.NewString(),
		Namespace:  key.Namespace,
		BusinessID: key.BusinessID,
		UserID:     owner.ID,
		UserName:   owner.Name,
		Timeout:    int64(ttl / time.Second),
		GrantedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.locks[key.String()] = rec
	s.byToken[rec.Token] = key.String()
	return AcquireResult{OK: true, Token: rec.Token}, nil
}

// Heartbeat implements Store.Heartbeat.
func (s *InMemory) Heartbeat(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byToken[token]
	if !ok {
		return false, nil
	}
	now := s.now()
	rec := s.live(key, now)
	if rec == nil || rec.Token != token {
		return false, nil
	}
	rec.ExpiresAt = now.Add(time.Duration(rec.Timeout) * time.Second)
	return true, nil
}

// Release implements Store.Release.
func (s *InMemory) Release(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byToken[token]
	if !ok {
		return false, nil
	}
	rec := s.live(key, s.now())
	if rec == nil || rec.Token != token {
		// stale index entry, the key was reassigned or expired
		delete(s.byToken, token)
		return false, nil
	}
	s.evict(rec)
	return true, nil
}

// Get implements Store.Get.
func (s *InMemory) Get(_ context.Context, key Key) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.live(key.String(), s.now())
	if rec == nil {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// Sweep removes every expired record and returns how many were reclaimed.
// It shares the store mutex with the operations, so it can never remove a
// record a racing Acquire still considers live.
func (s *InMemory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, rec := range s.locks {
		if rec.Expired(now) {
			s.evict(rec)
			n++
		}
	}
	return n
}

// Len reports the number of records currently held, expired or not.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
