// Package pipeline walks institutions, their aggregator organizations and
// the organizations' data sources, fetching the counts for each and turning
// them into result rows.
//
// The walk is sequential. Failures are isolated at institution, organization
// and data-source granularity: the failing unit is reported through the
// EventSink and skipped, and the run continues with its next sibling.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openaire-nl/nl-stats/internal/reconcile"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/openaire-nl/nl-stats/util"
)

// Source provides the remote lookups a run needs. *openaire.Client
// implements it.
type Source interface {
	ResolveOrganizations(ctx context.Context, pid string) ([]string, error)
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	// CountResearchProducts counts research products for an organization, a
	// data source, or both when both ids are non-empty.
	CountResearchProducts(ctx context.Context, orgID, dsID string) (int, error)
	CountProjects(ctx context.Context, orgID string) (int, error)
	ListDataSources(ctx context.Context, orgID string) ([]model.DataSource, error)
}

// ErrNoIdentifier is reported for an institution row without an identifier.
var ErrNoIdentifier = errors.New("institution has no identifier")

// Pipeline runs coverage reconciliation against a Source.
type Pipeline struct {
	source Source
	sink   EventSink
	now    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets the event sink. The default discards events.
func WithSink(sink EventSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithClock replaces time.Now, e.g. for deterministic retrieval timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline reading from source.
func New(source Source, opts ...Option) *Pipeline {
	p := &Pipeline{source: source, sink: Discard, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of a run.
type Result struct {
	Rows       []model.ResultRow
	Summary    model.Summary
	StartedAt  time.Time
	FinishedAt time.Time
	Aborted    bool
}

// Status classifies the result as completed, partial or aborted.
func (r *Result) Status() string {
	switch {
	case r.Aborted:
		return model.RunAborted
	case r.Summary.Failed() > 0:
		return model.RunPartial
	default:
		return model.RunCompleted
	}
}

// Run processes the institutions in order and returns the accumulated rows.
// Isolated failures never make Run return an error; only cancellation of ctx
// does, in which case the rows gathered so far are returned with it and the
// result is marked aborted.
func (p *Pipeline) Run(ctx context.Context, institutions []model.Institution) (*Result, error) {
	res := &Result{StartedAt: p.now()}
	p.sink.Emit(Event{Kind: EventRunStarted, Count: len(institutions)})

	var err error
	for i, inst := range institutions {
		if err = ctx.Err(); err != nil {
			break
		}

		p.sink.Emit(Event{
			Kind:          EventInstitutionStarted,
			Institution:   inst.Label(),
			InstitutionID: inst.ID,
			Index:         i + 1,
			Total:         len(institutions),
		})

		if err = p.institution(ctx, inst, res); err != nil {
			break
		}
	}

	res.FinishedAt = p.now()
	if err != nil {
		res.Aborted = true
		err = fmt.Errorf("run aborted: %w", err)
	}

	summary := res.Summary
	p.sink.Emit(Event{Kind: EventRunFinished, Summary: &summary, Err: err})
	return res, err
}

// institution processes one institution. It returns an error only when ctx
// was cancelled.
func (p *Pipeline) institution(ctx context.Context, inst model.Institution, res *Result) error {
	pid := util.NormalizePID(inst.ID)
	if pid == "" {
		res.Summary.InstitutionsFailed++
		p.sink.Emit(Event{Kind: EventInstitutionFailed, Institution: inst.Label(), Err: ErrNoIdentifier})
		return nil
	}

	orgIDs, err := p.source.ResolveOrganizations(ctx, pid)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Summary.InstitutionsFailed++
		p.sink.Emit(Event{Kind: EventInstitutionFailed, Institution: inst.Label(), InstitutionID: pid, Err: err})
		return nil
	}

	res.Summary.Institutions++

	if len(orgIDs) == 0 {
		p.sink.Emit(Event{Kind: EventNoOrganizations, Institution: inst.Label(), InstitutionID: pid})
		return nil
	}
	p.sink.Emit(Event{Kind: EventOrganizationsResolved, Institution: inst.Label(), InstitutionID: pid, Count: len(orgIDs)})

	for i, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.sink.Emit(Event{
			Kind:         EventOrganizationStarted,
			Institution:  inst.Label(),
			Organization: orgID,
			Index:        i + 1,
			Total:        len(orgIDs),
		})

		if err := p.organization(ctx, inst, orgID, res); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Summary.OrganizationsFailed++
			p.sink.Emit(Event{Kind: EventOrganizationFailed, Institution: inst.Label(), Organization: orgID, Err: err})
		}
	}
	return nil
}

// organization fetches the organization-level data and walks the data
// sources. A returned error fails the whole organization; data-source
// failures are handled here.
func (p *Pipeline) organization(ctx context.Context, inst model.Institution, orgID string, res *Result) error {
	org, err := p.source.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}

	orgCount, err := p.source.CountResearchProducts(ctx, orgID, "")
	if err != nil {
		return err
	}

	if org.Projects, err = p.source.CountProjects(ctx, orgID); err != nil {
		return err
	}

	sources, err := p.source.ListDataSources(ctx, orgID)
	if err != nil {
		return err
	}

	res.Summary.Organizations++

	if len(sources) == 0 {
		p.sink.Emit(Event{Kind: EventNoDataSources, Institution: inst.Label(), Organization: orgID})
		p.addRow(res, model.NewResultRow(inst, org, nil, reconcile.NoDataSources(orgCount), p.now()))
		return nil
	}

	// Rows come only from data sources that succeeded. An organization whose
	// data sources all fail gets no fallback row.
	emitted := 0
	defer func() {
		if emitted == 0 && ctx.Err() == nil {
			p.sink.Emit(Event{Kind: EventOrganizationNoRows, Institution: inst.Label(), Organization: orgID, Count: len(sources)})
		}
	}()

	for i := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		ds := &sources[i]
		counts, err := p.dataSource(ctx, orgID, ds.ID, orgCount)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Summary.DataSourcesFailed++
			p.sink.Emit(Event{Kind: EventDataSourceFailed, Institution: inst.Label(), Organization: orgID, DataSource: ds.ID, Err: err})
			continue
		}

		res.Summary.DataSources++
		p.sink.Emit(Event{
			Kind:         EventDataSourceProcessed,
			Institution:  inst.Label(),
			Organization: orgID,
			DataSource:   ds.ID,
			Index:        i + 1,
			Total:        len(sources),
			Counts:       &counts,
		})

		if a := reconcile.Check(counts); a != nil {
			res.Summary.Anomalies++
			p.sink.Emit(Event{
				Kind:          EventReconcileAnomaly,
				Institution:   inst.Label(),
				InstitutionID: inst.ID,
				Organization:  orgID,
				DataSource:    ds.ID,
				Counts:        &counts,
				Reasons:       a.Reasons,
			})
		}

		p.addRow(res, model.NewResultRow(inst, org, ds, counts, p.now()))
		emitted++
	}
	return nil
}

func (p *Pipeline) dataSource(ctx context.Context, orgID, dsID string, orgCount int) (model.CountTuple, error) {
	dsCount, err := p.source.CountResearchProducts(ctx, "", dsID)
	if err != nil {
		return model.CountTuple{}, err
	}

	inter, err := p.source.CountResearchProducts(ctx, orgID, dsID)
	if err != nil {
		return model.CountTuple{}, err
	}

	return reconcile.Reconcile(orgCount, dsCount, inter), nil
}

func (p *Pipeline) addRow(res *Result, row model.ResultRow) {
	res.Rows = append(res.Rows, row)
	res.Summary.Rows++
}
