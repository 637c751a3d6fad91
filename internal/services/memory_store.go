package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/openaire-nl/nl-stats/model"
)

// MemoryCoverageStore keeps runs in process memory. serve falls back to it
// when no ArangoDB endpoint is configured.
type MemoryCoverageStore struct {
	mu   sync.RWMutex
	runs map[string]model.Run
	rows map[string][]model.ResultRow
	last string
}

// NewMemoryCoverageStore returns an empty store.
func NewMemoryCoverageStore() *MemoryCoverageStore {
	return &MemoryCoverageStore{
		runs: make(map[string]model.Run),
		rows: make(map[string][]model.ResultRow),
	}
}

// SaveRun implements CoverageStore.
func (s *MemoryCoverageStore) SaveRun(_ context.Context, run *model.Run, rows []model.ResultRow) error {
	if run.Key == "" {
		run.Key = uuid.New().String()
	}

	stored := make([]model.ResultRow, len(rows))
	for i, row := range rows {
		row.RunID = run.Key
		row.Key = fmt.Sprintf("%s-%06d", run.Key, i)
		stored[i] = row
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Key] = *run
	s.rows[run.Key] = stored
	if run.Status != model.RunAborted {
		s.last = run.Key
	}
	return nil
}

// ListRuns implements CoverageStore.
func (s *MemoryCoverageStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	runs := make([]model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun implements CoverageStore.
func (s *MemoryCoverageStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// ListRows implements CoverageStore.
func (s *MemoryCoverageStore) ListRows(_ context.Context, runID string, filter RowFilter) ([]model.ResultRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := []model.ResultRow{}
	for _, row := range s.rows[runID] {
		if filter.Institution != "" && row.InstitutionID != filter.Institution {
			continue
		}
		if filter.AnomaliesOnly && !row.Anomaly {
			continue
		}
		rows = append(rows, row)
		if filter.Limit > 0 && len(rows) == filter.Limit {
			break
		}
	}
	return rows, nil
}

// LastRun implements CoverageStore.
func (s *MemoryCoverageStore) LastRun(ctx context.Context) (*model.Run, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == "" {
		return nil, ErrNotFound
	}
	return s.GetRun(ctx, last)
}

var _ CoverageStore = (*MemoryCoverageStore)(nil)
