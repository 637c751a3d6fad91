// Package services provides the storage and execution services behind the
// CLI, the REST API and the Kafka worker.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/google/uuid"
	"github.com/openaire-nl/nl-stats/database"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/openaire-nl/nl-stats/util"
)

// LastRunKind is the metadata key under which the last stored run is kept.
const LastRunKind = "coverage"

const insertBatchSize = 500

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RowFilter narrows the rows returned by ListRows.
type RowFilter struct {
	Institution   string // institution identifier, empty for all
	AnomaliesOnly bool
	Limit         int // 0 for no limit
}

// CoverageStore persists runs and their rows.
type CoverageStore interface {
	SaveRun(ctx context.Context, run *model.Run, rows []model.ResultRow) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRows(ctx context.Context, runID string, filter RowFilter) ([]model.ResultRow, error)
	LastRun(ctx context.Context) (*model.Run, error)
}

// runDocument is the stored form of a run. started_ns orders runs; the
// RFC 3339 strings in started_at drop trailing zeros and do not sort as times.
type runDocument struct {
	*model.Run
	StartedNs int64 `json:"started_ns"`
}

func newRunDocument(run *model.Run) runDocument {
	return runDocument{Run: run, StartedNs: run.StartedAt.UnixNano()}
}

// ArangoCoverageStore implements CoverageStore on ArangoDB.
type ArangoCoverageStore struct {
	DB database.DBConnection
}

// NewArangoCoverageStore wraps an initialized database connection.
func NewArangoCoverageStore(db database.DBConnection) *ArangoCoverageStore {
	return &ArangoCoverageStore{DB: db}
}

// SaveRun stores the run record and its rows. A missing run key is
// generated. Rows get keys "<run>-<position>" so they list in report order.
// Unless the run was aborted it becomes the last run.
func (s *ArangoCoverageStore) SaveRun(ctx context.Context, run *model.Run, rows []model.ResultRow) error {
	if run.Key == "" {
		run.Key = uuid.New().String()
	}
	run.Key = util.SanitizeKey(run.Key)

	if _, err := s.DB.Collections[database.RunCollection].CreateDocument(ctx, newRunDocument(run)); err != nil {
		return fmt.Errorf("save run %s: %w", run.Key, err)
	}

	docs := make([]model.ResultRow, len(rows))
	for i, row := range rows {
		row.RunID = run.Key
		row.Key = fmt.Sprintf("%s-%06d", run.Key, i)
		docs[i] = row
	}

	for start := 0; start < len(docs); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		cursor, err := s.DB.Database.Query(ctx, `FOR r IN @rows INSERT r INTO coverage`, &arangodb.QueryOptions{
			BindVars: map[string]interface{}{"rows": docs[start:end]},
		})
		if err != nil {
			return fmt.Errorf("save rows %d-%d of run %s: %w", start, end, run.Key, err)
		}
		cursor.Close()
	}

	if run.Status == model.RunAborted {
		return nil
	}
	return util.SaveLastRun(ctx, s.DB, LastRunKind, run.Key, run.FinishedAt)
}

// ListRuns returns the most recent runs first.
func (s *ArangoCoverageStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		FOR r IN run
			SORT r.started_ns DESC
			LIMIT @limit
			RETURN r
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	runs := []model.Run{}
	for cursor.HasMore() {
		var run model.Run
		if _, err := cursor.ReadDocument(ctx, &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetRun returns one run or ErrNotFound.
func (s *ArangoCoverageStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	key := util.SanitizeKey(id)
	if key == "" {
		return nil, ErrNotFound
	}

	cursor, err := s.DB.Database.Query(ctx, `RETURN DOCUMENT("run", @key)`, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": key},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var run *model.Run
	if _, err := cursor.ReadDocument(ctx, &run); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrNotFound
	}
	return run, nil
}

// ListRows returns the rows of a run in report order.
func (s *ArangoCoverageStore) ListRows(ctx context.Context, runID string, filter RowFilter) ([]model.ResultRow, error) {
	query := `
		FOR c IN coverage
			FILTER c.run_id == @run
			FILTER @institution == "" OR c.institution_id == @institution
			FILTER @anomalies == false OR c.anomaly == true
			SORT c._key ASC
			LIMIT @limit
			RETURN c
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000000
	}

	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"run":         util.SanitizeKey(runID),
			"institution": filter.Institution,
			"anomalies":   filter.AnomaliesOnly,
			"limit":       limit,
		},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	rows := []model.ResultRow{}
	for cursor.HasMore() {
		var row model.ResultRow
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LastRun returns the last stored run that was not aborted, or ErrNotFound.
func (s *ArangoCoverageStore) LastRun(ctx context.Context) (*model.Run, error) {
	_, id, err := util.GetLastRun(ctx, s.DB, LastRunKind)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	return s.GetRun(ctx, id)
}

var _ CoverageStore = (*ArangoCoverageStore)(nil)
