package api

import (
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/posterior/internal/pytree"
)

type runRecord struct {
	Run RunResponse
	// Draws are constrained, [chains, samples, ...] per leaf. Owned by the
	// store until the record is deleted.
	Draws pytree.Tree
}

// RunStore keeps completed runs in memory.
type RunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*runRecord
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[uuid.UUID]*runRecord),
	}
}

// Put stores rec under id, taking ownership of its draws.
func (s *RunStore) Put(id uuid.UUID, rec *runRecord) {
	s.mu.Lock()
	old := s.runs[id]
	s.runs[id] = rec
	s.mu.Unlock()
	if old != nil {
		old.Draws.Dispose()
	}
}

// View calls fn with the record while holding the store lock, so the draws
// cannot be released underneath it.
func (s *RunStore) View(id uuid.UUID, fn func(rec *runRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

func (s *RunStore) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	rec, ok := s.runs[id]
	delete(s.runs, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	rec.Draws.Dispose()
	return true
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Close releases every stored run.
func (s *RunStore) Close() {
	s.mu.Lock()
	runs := s.runs
	s.runs = make(map[uuid.UUID]*runRecord)
	s.mu.Unlock()
	for _, rec := range runs {
		rec.Draws.Dispose()
	}
}

func newRunID() uuid.UUID {
	return uuid.New()
}
