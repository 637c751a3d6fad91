package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openaire-nl/nl-stats/database"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDocumentOrdersByTime(t *testing.T) {
	whole := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	later := whole.Add(500 * time.Millisecond)

	a, err := json.Marshal(newRunDocument(&model.Run{Key: "a", StartedAt: whole}))
	require.NoError(t, err)
	b, err := json.Marshal(newRunDocument(&model.Run{Key: "b", StartedAt: later}))
	require.NoError(t, err)

	var docA, docB map[string]interface{}
	require.NoError(t, json.Unmarshal(a, &docA))
	require.NoError(t, json.Unmarshal(b, &docB))

	// "...10:00:00Z" > "...10:00:00.5Z" as strings
	assert.Greater(t, docA["started_at"].(string), docB["started_at"].(string))
	assert.Greater(t, docB["started_ns"].(float64), docA["started_ns"].(float64))

	assert.Equal(t, "a", docA["_key"])

	var back model.Run
	require.NoError(t, json.Unmarshal(a, &back))
	assert.True(t, whole.Equal(back.StartedAt))
}

// TestArangoCoverageStore needs a running ArangoDB; set ARANGO_URL to run it.
func TestArangoCoverageStore(t *testing.T) {
	if os.Getenv("ARANGO_URL") == "" {
		t.Skip("ARANGO_URL not set")
	}

	ctx := context.Background()
	db, err := database.InitializeDatabase(ctx, 30*time.Second)
	require.NoError(t, err)
	store := NewArangoCoverageStore(db)

	base := time.Now().UTC().Truncate(time.Second)
	prefix := uuid.New().String()[:8]

	rows := make([]model.ResultRow, 0, insertBatchSize+2)
	for i := 0; i < insertBatchSize+2; i++ {
		rows = append(rows, model.ResultRow{
			InstitutionID:  "R-" + prefix,
			OrganizationID: fmt.Sprintf("openorgs::%d", i),
		})
	}
	rows[3].InstitutionID = "S-" + prefix
	rows[len(rows)-1].Anomaly = true
	rows[len(rows)-1].MissingInDataSource = -2

	whole := &model.Run{Key: prefix + "-whole", Status: model.RunCompleted, StartedAt: base, FinishedAt: base}
	require.NoError(t, store.SaveRun(ctx, whole, rows))

	later := &model.Run{Key: prefix + "-later", Status: model.RunCompleted, StartedAt: base.Add(500 * time.Millisecond), FinishedAt: base.Add(time.Second)}
	require.NoError(t, store.SaveRun(ctx, later, nil))

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, later.Key, runs[0].Key)
	assert.Equal(t, whole.Key, runs[1].Key)

	all, err := store.ListRows(ctx, whole.Key, RowFilter{})
	require.NoError(t, err)
	require.Len(t, all, len(rows))
	assert.Equal(t, "openorgs::0", all[0].OrganizationID)
	assert.Equal(t, fmt.Sprintf("openorgs::%d", insertBatchSize+1), all[len(all)-1].OrganizationID)

	inst, err := store.ListRows(ctx, whole.Key, RowFilter{Institution: "S-" + prefix})
	require.NoError(t, err)
	require.Len(t, inst, 1)
	assert.Equal(t, "openorgs::3", inst[0].OrganizationID)

	anomalies, err := store.ListRows(ctx, whole.Key, RowFilter{AnomaliesOnly: true})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, -2, anomalies[0].MissingInDataSource)

	limited, err := store.ListRows(ctx, whole.Key, RowFilter{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, limited, 5)

	got, err := store.GetRun(ctx, whole.Key)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)

	_, err = store.GetRun(ctx, prefix+"-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	last, err := store.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, later.Key, last.Key)
}
