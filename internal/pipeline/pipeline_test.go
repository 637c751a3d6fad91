package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openaire-nl/nl-stats/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countKey struct{ org, ds string }

type fakeSource struct {
	orgs     map[string][]string
	resolveE map[string]error
	records  map[string]*model.Organization
	counts   map[countKey]int
	countE   map[countKey]error
	projects map[string]int
	sources  map[string][]model.DataSource
	sourcesE map[string]error

	onCount func(orgID, dsID string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		orgs:     map[string][]string{},
		resolveE: map[string]error{},
		records:  map[string]*model.Organization{},
		counts:   map[countKey]int{},
		countE:   map[countKey]error{},
		projects: map[string]int{},
		sources:  map[string][]model.DataSource{},
		sourcesE: map[string]error{},
	}
}

func (f *fakeSource) ResolveOrganizations(_ context.Context, pid string) ([]string, error) {
	if err := f.resolveE[pid]; err != nil {
		return nil, err
	}
	return f.orgs[pid], nil
}

func (f *fakeSource) GetOrganization(_ context.Context, id string) (*model.Organization, error) {
	if org, ok := f.records[id]; ok {
		cp := *org
		return &cp, nil
	}
	return &model.Organization{ID: id}, nil
}

func (f *fakeSource) CountResearchProducts(_ context.Context, orgID, dsID string) (int, error) {
	if f.onCount != nil {
		f.onCount(orgID, dsID)
	}
	k := countKey{orgID, dsID}
	if err := f.countE[k]; err != nil {
		return 0, err
	}
	return f.counts[k], nil
}

func (f *fakeSource) CountProjects(_ context.Context, orgID string) (int, error) {
	return f.projects[orgID], nil
}

func (f *fakeSource) ListDataSources(_ context.Context, orgID string) ([]model.DataSource, error) {
	if err := f.sourcesE[orgID]; err != nil {
		return nil, err
	}
	return f.sources[orgID], nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func newTestPipeline(src Source) (*Pipeline, *Recorder) {
	rec := &Recorder{}
	return New(src, WithSink(Fanout{rec, ZapSink{Logger: zap.NewNop()}}), WithClock(func() time.Time { return fixedNow })), rec
}

func TestRunSingleDataSource(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A"}
	src.records["openorgs::A"] = &model.Organization{ID: "openorgs::A", LegalName: "Org A", WebsiteURL: "https://a.example"}
	src.projects["openorgs::A"] = 12
	src.sources["openorgs::A"] = []model.DataSource{{ID: "D1", OfficialName: "Repo", OpenaireCompatibility: "OpenAIRE 4.0 (inst.&thematic. repo.)"}}
	src.counts[countKey{"openorgs::A", ""}] = 100
	src.counts[countKey{"", "D1"}] = 40
	src.counts[countKey{"openorgs::A", "D1"}] = 30

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1", Name: "Inst One"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "R1", row.InstitutionID)
	assert.Equal(t, "Inst One", row.InstitutionName)
	assert.Equal(t, "openorgs::A", row.OrganizationID)
	assert.Equal(t, "Org A", row.OrganizationName)
	assert.Equal(t, 12, row.OrganizationProjects)
	assert.True(t, row.HasDataSource)
	assert.Equal(t, "D1", row.DataSourceID)
	assert.Equal(t, "4.0", row.DataSourceGuidelines)
	assert.Equal(t, model.CountTuple{
		OrgCount:              100,
		DataSourceCount:       40,
		IntersectionCount:     30,
		MissingInDataSource:   10,
		MissingInOrganization: 70,
	}, row.CountTuple)
	assert.False(t, row.Anomaly)
	assert.Equal(t, fixedNow, row.RetrievedOn)

	assert.Equal(t, model.RunCompleted, res.Status())
	assert.Equal(t, 1, res.Summary.Institutions)
	assert.Equal(t, 1, res.Summary.Organizations)
	assert.Equal(t, 1, res.Summary.DataSources)
	assert.Equal(t, 1, res.Summary.Rows)
	assert.Empty(t, rec.Kind(EventReconcileAnomaly))
	assert.Len(t, rec.Kind(EventDataSourceProcessed), 1)
	assert.Len(t, rec.Kind(EventRunFinished), 1)
}

func TestRunNoOrganizationsContinues(t *testing.T) {
	src := newFakeSource()
	src.orgs["R2"] = []string{"openorgs::B"}
	src.counts[countKey{"openorgs::B", ""}] = 5

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}, {ID: "R2"}})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "R2", res.Rows[0].InstitutionID)
	assert.Equal(t, 2, res.Summary.Institutions)
	assert.Len(t, rec.Kind(EventNoOrganizations), 1)
	assert.Len(t, rec.Kind(EventInstitutionStarted), 2)
}

func TestRunNoDataSourcesFallbackRow(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A"}
	src.counts[countKey{"openorgs::A", ""}] = 42

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.False(t, row.HasDataSource)
	assert.Empty(t, row.DataSourceID)
	assert.Empty(t, row.DataSourceName)
	assert.Equal(t, model.CountTuple{OrgCount: 42, MissingInOrganization: 42}, row.CountTuple)
	assert.Len(t, rec.Kind(EventNoDataSources), 1)
}

func TestRunDataSourceFailureIsIsolated(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A"}
	src.sources["openorgs::A"] = []model.DataSource{{ID: "D1"}, {ID: "D2"}, {ID: "D3"}}
	src.counts[countKey{"openorgs::A", ""}] = 10
	src.counts[countKey{"", "D1"}] = 4
	src.counts[countKey{"openorgs::A", "D1"}] = 2
	src.countE[countKey{"", "D2"}] = errors.New("GET dataSources: 500 Internal Server Error")
	src.counts[countKey{"", "D3"}] = 6
	src.counts[countKey{"openorgs::A", "D3"}] = 1

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "D1", res.Rows[0].DataSourceID)
	assert.Equal(t, "D3", res.Rows[1].DataSourceID)
	assert.Equal(t, 1, res.Summary.DataSourcesFailed)
	assert.Equal(t, 2, res.Summary.DataSources)
	assert.Equal(t, model.RunPartial, res.Status())

	failed := rec.Kind(EventDataSourceFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "D2", failed[0].DataSource)
	assert.Error(t, failed[0].Err)
}

func TestRunAllDataSourcesFailedEmitsNoRow(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A", "openorgs::B"}
	src.sources["openorgs::A"] = []model.DataSource{{ID: "D1"}, {ID: "D2"}}
	src.counts[countKey{"openorgs::A", ""}] = 10
	src.countE[countKey{"", "D1"}] = errors.New("GET researchProducts: 500 Internal Server Error")
	src.countE[countKey{"openorgs::A", "D2"}] = errors.New("GET researchProducts: 503 Service Unavailable")
	src.counts[countKey{"openorgs::B", ""}] = 7

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "openorgs::B", res.Rows[0].OrganizationID)
	assert.Equal(t, 2, res.Summary.Organizations)
	assert.Equal(t, 2, res.Summary.DataSourcesFailed)
	assert.Equal(t, model.RunPartial, res.Status())

	noRows := rec.Kind(EventOrganizationNoRows)
	require.Len(t, noRows, 1)
	assert.Equal(t, "openorgs::A", noRows[0].Organization)
	assert.Equal(t, 2, noRows[0].Count)
	assert.Empty(t, rec.Kind(EventNoDataSources))
}

func TestRunInstitutionFailureIsIsolated(t *testing.T) {
	src := newFakeSource()
	src.resolveE["R1"] = errors.New("GET organizations: 400 Bad Request")
	src.orgs["R2"] = []string{"openorgs::B"}

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}, {ID: ""}, {ID: "R2"}})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "R2", res.Rows[0].InstitutionID)
	assert.Equal(t, 2, res.Summary.InstitutionsFailed)
	assert.Equal(t, 1, res.Summary.Institutions)

	failed := rec.Kind(EventInstitutionFailed)
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[1].Err, ErrNoIdentifier)
}

func TestRunOrganizationFailureIsIsolated(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A", "openorgs::B"}
	src.sourcesE["openorgs::A"] = errors.New("timeout")
	src.counts[countKey{"openorgs::B", ""}] = 3

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "openorgs::B", res.Rows[0].OrganizationID)
	assert.Equal(t, 1, res.Summary.OrganizationsFailed)
	assert.Len(t, rec.Kind(EventOrganizationFailed), 1)
}

func TestRunAnomalyKeepsRow(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A"}
	src.sources["openorgs::A"] = []model.DataSource{{ID: "D1"}}
	src.counts[countKey{"openorgs::A", ""}] = 10
	src.counts[countKey{"", "D1"}] = 5
	src.counts[countKey{"openorgs::A", "D1"}] = 8

	p, rec := newTestPipeline(src)
	res, err := p.Run(context.Background(), []model.Institution{{ID: "R1"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, -3, row.MissingInDataSource)
	assert.Equal(t, 2, row.MissingInOrganization)
	assert.True(t, row.Anomaly)
	assert.Equal(t, 1, res.Summary.Anomalies)
	assert.Equal(t, model.RunCompleted, res.Status())

	anomalies := rec.Kind(EventReconcileAnomaly)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "D1", anomalies[0].DataSource)
	require.NotNil(t, anomalies[0].Counts)
	assert.Equal(t, -3, anomalies[0].Counts.MissingInDataSource)
	assert.NotEmpty(t, anomalies[0].Reasons)
}

func TestRunCancelledReturnsPartialResult(t *testing.T) {
	src := newFakeSource()
	src.orgs["R1"] = []string{"openorgs::A"}
	src.orgs["R2"] = []string{"openorgs::B"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src.onCount = func(orgID, _ string) {
		if orgID == "openorgs::A" {
			cancel()
		}
	}

	p, _ := newTestPipeline(src)
	res, err := p.Run(ctx, []model.Institution{{ID: "R1"}, {ID: "R2"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Aborted)
	assert.Equal(t, model.RunAborted, res.Status())
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, "R1", res.Rows[0].InstitutionID)
}
