package runs

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// The console uses it when no database is configured.
type InMemoryRepository struct {
	mu   sync.RWMutex
	runs []*Run
	byID map[string]*Run
}

// NewInMemoryRepository creates a new in-memory run repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID: make(map[string]*Run),
	}
}

// Create stores a copy of run.
func (r *InMemoryRepository) Create(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *run
	r.runs = append(r.runs, &cpy)
	r.byID[run.ID] = &cpy
	return nil
}

// Get retrieves a run by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.byID[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	cpy := *run
	return &cpy, nil
}

// List returns the most recent runs, newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := opts.EffectiveLimit()
	out := make([]*Run, 0, min(limit, len(r.runs)))
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		run := r.runs[i]
		if opts.SessionID != "" && run.SessionID != opts.SessionID {
			continue
		}
		cpy := *run
		out = append(out, &cpy)
	}
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
