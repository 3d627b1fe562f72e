package audiostore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is applied when Put is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// Eviction reasons reported to the evict hook.
const (
	EvictLazy  = "lazy"
	EvictSweep = "sweep"
)

// Entry is a synthesized clip held by the store.
type Entry struct {
	ID        string
	Blob      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is a keyed, time-expiring store of audio blobs. TTLs are absolute from
// insertion; reads never extend them.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	now        func() time.Time
	newID      func() string
	defaultTTL time.Duration
	onEvict    func(reason string, n int)
}

type Option func(*Store)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultTTL sets the TTL used when Put receives a non-positive ttl.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*Entry),
		now:        time.Now,
		newID:      newID,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEvictHook registers a callback invoked outside the lock after entries are removed.
func (s *Store) SetEvictHook(hook func(reason string, n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

// DefaultTTL returns the TTL used for ordinary responses.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Put copies blob into a new entry expiring ttl from now and returns its id.
// Expired entries are swept afterwards.
func (s *Store) Put(blob []byte, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	owned := make([]byte, len(blob))
	copy(owned, blob)

	now := s.now()
	e := &Entry{
		ID:        s.newID(),
		Blob:      owned,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()

	s.Sweep()
	return e.ID
}

// Get returns the blob for id. Expired entries are removed and reported absent.
// The returned slice is shared and must not be modified.
func (s *Store) Get(id string) ([]byte, bool) {
	now := s.now()

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expired(now) {
		return e.Blob, true
	}

	s.mu.Lock()
	removed := false
	// The entry may have been swept or re-stamped since the read lock was released.
	if cur, ok := s.entries[id]; ok && cur.expired(s.now()) {
		delete(s.entries, id)
		removed = true
	}
	hook := s.onEvict
	s.mu.Unlock()

	if removed && hook != nil {
		hook(EvictLazy, 1)
	}
	return nil, false
}

// Sweep removes every expired entry and reports how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	hook := s.onEvict
	s.mu.Unlock()

	if removed > 0 && hook != nil {
		hook(EvictSweep, removed)
	}
	return removed
}

// ExtendAll re-stamps every live entry to expire ttl from now.
func (s *Store) ExtendAll(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.expired(now) {
			continue
		}
		// Entries are shared with concurrent readers of Blob; swap rather than mutate.
		s.entries[e.ID] = &Entry{
			ID:        e.ID,
			Blob:      e.Blob,
			CreatedAt: e.CreatedAt,
			ExpiresAt: expiresAt,
		}
		n++
	}
	return n
}

// Lookup returns a copy of the entry metadata for id, including expired entries
// that have not been evicted yet.
func (s *Store) Lookup(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor sweeps on a fixed interval until ctx is done, so expired clips do
// not stay resident through quiet periods with no new insertions.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
