package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns every live session. Each session has its own lock, so unrelated sessions
// never wait on each other; the map lock is only held for lookups and eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	now    func() time.Time
	newID  func() string
	logger *zap.Logger

	hooksMu sync.RWMutex
	onEvict []func(id string)
}

type entry struct {
	mu      sync.RWMutex
	session *Session
	removed bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how session ids are produced.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnEvict registers fn to run for every evicted session.
func WithOnEvict(fn func(id string)) StoreOption {
	return func(s *Store) {
		s.OnEvict(fn)
	}
}

// OnEvict registers fn to run for every evicted session, after the session is gone.
// Hooks run outside the store locks.
func (s *Store) OnEvict(fn func(id string)) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onEvict = append(s.onEvict, fn)
}

// NewStore returns an empty in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session in the created phase and returns its id.
// Ids are never reused, even after eviction.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for _, exists := s.entries[id]; exists; _, exists = s.entries[id] {
		id = s.newID()
	}

	s.entries[id] = &entry{session: newSession(id, s.now())}
	return id
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Get returns a consistent snapshot of the session.
func (s *Store) Get(id string) (Snapshot, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.removed {
		return Snapshot{}, ErrNotFound
	}
	return e.session.Snapshot(), nil
}

// Mutate applies fn to the session under exclusive access. fn works on a private copy;
// the copy replaces the stored session only when fn returns nil, so a failing mutation
// leaves no trace.
func (s *Store) Mutate(id string, fn func(*Session) error) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrNotFound
	}

	working := e.session.clone()
	if err := fn(working); err != nil {
		return err
	}

	working.lastActivity = s.now()
	e.session = working
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict removes sessions idle for longer than idleTTL. Sessions with a request in
// flight are never evicted. Eviction hooks run for every removed session.
func (s *Store) Evict(idleTTL time.Duration) []string {
	if idleTTL <= 0 {
		return nil
	}

	evicted := s.evict(s.now().Add(-idleTTL))

	s.hooksMu.RLock()
	hooks := slices.Clone(s.onEvict)
	s.hooksMu.RUnlock()

	for _, id := range evicted {
		for _, hook := range hooks {
			hook(id)
		}
	}

	return evicted
}

func (s *Store) evict(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.entries {
		e.mu.Lock()
		if !e.session.InFlight() && e.session.lastActivity.Before(cutoff) {
			e.removed = true
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}

	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval, idleTTL time.Duration) {
	if interval <= 0 || idleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.Evict(idleTTL); len(evicted) > 0 {
				s.logger.Info("evicted idle sessions",
					zap.Strings("session_ids", evicted),
					zap.Int("sessions_left", s.Len()),
				)
			}
		}
	}
}
