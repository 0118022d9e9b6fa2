// Package memstore is an in-memory store.Store for tests.
package memstore

import (
	"context"
	"sync"

	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// Store keeps trials and criteria in maps. Unlike the SQLite store it
// has no write buffering; Flush is a no-op.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	trials   map[string]*trial.Trial
	criteria map[int64]*trial.Criterion
	order    []int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		nextID:   1,
		trials:   make(map[string]*trial.Trial),
		criteria: make(map[int64]*trial.Criterion),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Flush implements store.Store.
func (s *Store) Flush(ctx context.Context) error { return nil }

// UpsertTrial inserts or replaces a trial, keyed by NCT.
func (s *Store) UpsertTrial(ctx context.Context, t *trial.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *t
	stored.Criteria = nil
	s.trials[t.NCT] = &stored
	return nil
}

// GetTrial returns a trial and its criteria.
func (s *Store) GetTrial(ctx context.Context, nct string) (*trial.Trial, bool, error) {
	s.mu.RLock()
	stored, ok := s.trials[nct]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	t := *stored
	criteria, err := s.LoadCriteria(ctx, nct)
	if err != nil {
		return nil, false, err
	}
	t.Criteria = criteria
	return &t, true, nil
}

// LoadCriteria returns all criteria for a trial in insertion order.
func (s *Store) LoadCriteria(ctx context.Context, nct string) ([]*trial.Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*trial.Criterion
	for _, id := range s.order {
		c := s.criteria[id]
		if c.NCT == nct {
			out = append(out, copyCriterion(c))
		}
	}
	return out, nil
}

// UpsertCriterion assigns an identifier on first insert and replaces
// all mutable fields.
func (s *Store) UpsertCriterion(ctx context.Context, c *trial.Criterion) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.nextID
		s.nextID++
		s.order = append(s.order, c.ID)
	} else if _, ok := s.criteria[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.criteria[c.ID] = copyCriterion(c)
	return c.ID, nil
}

func copyCriterion(c *trial.Criterion) *trial.Criterion {
	out := *c
	out.Results = make(map[string]*trial.PipelineResult, len(c.Results))
	for name, r := range c.Results {
		rc := *r
		rc.Codes = copyStrings(r.Codes)
		rc.CUIs = copyStrings(r.CUIs)
		out.Results[name] = &rc
	}
	return &out
}

// copyStrings keeps an empty list distinct from an absent one: a
// completed result with zero codes stays non-nil through a round trip.
func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
