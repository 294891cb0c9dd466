// Package authsource holds the credentials the proxy routes requests with.
// It is the reload sink of the capture supervisor: after every capture run
// (and on manual edits of the store) it rescans the credential store and
// rebuilds its index table.
package authsource

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/steveyegge/authcap/internal/credstore"
)

// ErrUnknownIndex is returned when switching to an index that is not loaded.
var ErrUnknownIndex = errors.New("unknown auth index")

// ErrNoSources is returned when no credential is loaded.
var ErrNoSources = errors.New("no auth sources available")

// Source is the in-memory table of loaded credentials.
type Source struct {
	store  *credstore.Store
	logger func(format string, args ...interface{})

	mu        sync.RWMutex
	records   map[int]*credstore.Record
	indices   []int
	current   int
	preferred int
	loaded    bool
}

// New creates a source over store. preferred is the index to select on the
// first reload when it is available; pass -1 for the lowest index.
func New(store *credstore.Store, preferred int, logger func(format string, args ...interface{})) *Source {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Source{
		store:     store,
		logger:    logger,
		records:   map[int]*credstore.Record{},
		current:   -1,
		preferred: preferred,
	}
}

// ReloadAuthSources rescans the store. Files that cannot be read or parsed
// are dropped with a log line. The current index is kept when it is still
// available, otherwise the lowest available index is selected.
func (s *Source) ReloadAuthSources() error {
	entries, err := s.store.List()
	if err != nil {
		return fmt.Errorf("listing credentials: %w", err)
	}

	records := make(map[int]*credstore.Record, len(entries))
	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		rec, err := s.store.Load(e.Index)
		if err != nil {
			s.logger("authsource: dropping %s: %v", e.File, err)
			continue
		}
		records[e.Index] = rec
		indices = append(indices, e.Index)
	}
	sort.Ints(indices)

	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.current
	if !s.loaded {
		want = s.preferred
	}
	s.records = records
	s.indices = indices
	s.loaded = true

	switch {
	case len(indices) == 0:
		s.current = -1
		s.logger("authsource: no credential files in %s", s.store.Dir())
	case records[want] != nil:
		s.current = want
	default:
		if want >= 0 {
			s.logger("authsource: auth-%d unavailable, falling back to auth-%d", want, indices[0])
		}
		s.current = indices[0]
	}
	s.logger("authsource: loaded %d credential(s) %v, current %d", len(indices), indices, s.current)
	return nil
}

// Indices returns the loaded indices in ascending order.
func (s *Source) Indices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.indices...)
}

// Current returns the selected index.
func (s *Source) Current() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current >= 0
}

// Switch selects a loaded index.
func (s *Source) Switch(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[index] == nil {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	s.current = index
	return nil
}

// Next advances to the following loaded index, wrapping around.
func (s *Source) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.indices) == 0 {
		return -1, ErrNoSources
	}
	pos := sort.SearchInts(s.indices, s.current+1)
	if pos >= len(s.indices) {
		pos = 0
	}
	s.current = s.indices[pos]
	return s.current, nil
}
