package graphql

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *services.MemoryCoverageStore {
	t.Helper()
	store := services.NewMemoryCoverageStore()

	run := &model.Run{
		Key:       "run1",
		Status:    model.RunPartial,
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Summary:   model.Summary{Institutions: 2, Rows: 2, Anomalies: 1, DataSourcesFailed: 1},
	}
	rows := []model.ResultRow{
		{InstitutionID: "R1", OrganizationID: "openorgs::A", HasDataSource: true, DataSourceID: "D1",
			CountTuple: model.CountTuple{OrgCount: 100, DataSourceCount: 40, IntersectionCount: 30, MissingInDataSource: 10, MissingInOrganization: 70}},
		{InstitutionID: "R2", OrganizationID: "openorgs::B", HasDataSource: true, DataSourceID: "D2", Anomaly: true,
			CountTuple: model.CountTuple{OrgCount: 10, DataSourceCount: 5, IntersectionCount: 8, MissingInDataSource: -3, MissingInOrganization: 2}},
	}
	require.NoError(t, store.SaveRun(context.Background(), run, rows))
	return store
}

func do(t *testing.T, schema graphql.Schema, query string) map[string]interface{} {
	t.Helper()
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query, Context: context.Background()})
	require.Empty(t, result.Errors)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestSchemaRuns(t *testing.T) {
	schema, err := CreateSchema(seededStore(t))
	require.NoError(t, err)

	data := do(t, schema, `{ runs { key status institutions anomalies datasources_failed } lastRun { key } }`)

	runs := data["runs"].([]interface{})
	require.Len(t, runs, 1)
	run := runs[0].(map[string]interface{})
	assert.Equal(t, "run1", run["key"])
	assert.Equal(t, "partial", run["status"])
	assert.Equal(t, 2, run["institutions"])
	assert.Equal(t, 1, run["anomalies"])
	assert.Equal(t, 1, run["datasources_failed"])

	assert.Equal(t, "run1", data["lastRun"].(map[string]interface{})["key"])
}

func TestSchemaRunNotFound(t *testing.T) {
	schema, err := CreateSchema(seededStore(t))
	require.NoError(t, err)

	data := do(t, schema, `{ run(id: "missing") { key } }`)
	assert.Nil(t, data["run"])
}

func TestSchemaCoverage(t *testing.T) {
	schema, err := CreateSchema(seededStore(t))
	require.NoError(t, err)

	data := do(t, schema, `{ coverage(runId: "run1") { institution_id datasource_id missing_in_datasource missing_in_organization anomaly } }`)
	rows := data["coverage"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "R1", first["institution_id"])
	assert.Equal(t, 10, first["missing_in_datasource"])
	assert.Equal(t, 70, first["missing_in_organization"])

	data = do(t, schema, `{ coverage(runId: "run1", anomaliesOnly: true) { institution_id missing_in_datasource anomaly } }`)
	rows = data["coverage"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "R2", row["institution_id"])
	assert.Equal(t, -3, row["missing_in_datasource"])
	assert.Equal(t, true, row["anomaly"])

	data = do(t, schema, `{ coverage(runId: "run1", institution: "R1") { institution_id } }`)
	assert.Len(t, data["coverage"].([]interface{}), 1)
}
