package coverage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openaire-nl/nl-stats/internal/services"
)

// toMap flattens a stored record into the map the default resolver reads,
// so embedded count and summary fields resolve like top-level ones.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toMaps[T any](items []T) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(items))
	for i := range items {
		m, err := toMap(items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ResolveRuns lists the most recent runs.
func ResolveRuns(ctx context.Context, store services.CoverageStore, limit int) ([]map[string]interface{}, error) {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toMaps(runs)
}

// ResolveRun returns one run, or nil when it does not exist.
func ResolveRun(ctx context.Context, store services.CoverageStore, id string) (interface{}, error) {
	run, err := store.GetRun(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toMap(run)
}

// ResolveLastRun returns the last completed or partial run, or nil.
func ResolveLastRun(ctx context.Context, store services.CoverageStore) (interface{}, error) {
	run, err := store.LastRun(ctx)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toMap(run)
}

// ResolveCoverage returns the rows of a run.
func ResolveCoverage(ctx context.Context, store services.CoverageStore, runID string, filter services.RowFilter) ([]map[string]interface{}, error) {
	rows, err := store.ListRows(ctx, runID, filter)
	if err != nil {
		return nil, err
	}
	return toMaps(rows)
}
