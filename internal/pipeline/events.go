package pipeline

import (
	"sync"

	"github.com/openaire-nl/nl-stats/model"
	"go.uber.org/zap"
)

// EventKind identifies what happened during a run.
type EventKind string

// Event kinds emitted by Pipeline.Run
const (
	EventRunStarted            EventKind = "run.started"
	EventRunFinished           EventKind = "run.finished"
	EventInstitutionStarted    EventKind = "institution.started"
	EventInstitutionFailed     EventKind = "institution.failed"
	EventNoOrganizations       EventKind = "institution.no_organizations"
	EventOrganizationStarted   EventKind = "organization.started"
	EventOrganizationFailed    EventKind = "organization.failed"
	EventNoDataSources         EventKind = "organization.no_datasources"
	EventOrganizationNoRows    EventKind = "organization.no_rows"
	EventDataSourceProcessed   EventKind = "datasource.processed"
	EventDataSourceFailed      EventKind = "datasource.failed"
	EventReconcileAnomaly      EventKind = "reconcile.anomaly"
	EventOrganizationsResolved EventKind = "institution.organizations_resolved"
)

// Event is one progress or diagnostic notification. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind          EventKind
	Institution   string // label of the institution
	InstitutionID string
	Organization  string
	DataSource    string
	Index         int // 1-based position among its siblings
	Total         int
	Count         int
	Counts        *model.CountTuple
	Reasons       []string
	Summary       *model.Summary
	Err           error
}

// EventSink receives the events of a run.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard EventSink = SinkFunc(func(Event) {})

// Fanout forwards every event to each sink in turn.
type Fanout []EventSink

// Emit implements EventSink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// ZapSink renders events as structured log lines. Progress is logged at info
// level, isolated failures and anomalies at warn level.
type ZapSink struct {
	Logger *zap.Logger
}

// Emit implements EventSink.
func (s ZapSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		return
	}

	fields := []zap.Field{zap.String("event", string(e.Kind))}
	if e.Institution != "" {
		fields = append(fields, zap.String("institution", e.Institution))
	}
	if e.InstitutionID != "" {
		fields = append(fields, zap.String("institution_id", e.InstitutionID))
	}
	if e.Organization != "" {
		fields = append(fields, zap.String("organization", e.Organization))
	}
	if e.DataSource != "" {
		fields = append(fields, zap.String("datasource", e.DataSource))
	}
	if e.Total > 0 {
		fields = append(fields, zap.Int("index", e.Index), zap.Int("total", e.Total))
	}
	if e.Counts != nil {
		fields = append(fields,
			zap.Int("org_count", e.Counts.OrgCount),
			zap.Int("ds_count", e.Counts.DataSourceCount),
			zap.Int("intersection_count", e.Counts.IntersectionCount),
			zap.Int("missing_in_datasource", e.Counts.MissingInDataSource),
			zap.Int("missing_in_organization", e.Counts.MissingInOrganization))
	}
	if len(e.Reasons) > 0 {
		fields = append(fields, zap.Strings("reasons", e.Reasons))
	}
	if e.Summary != nil {
		fields = append(fields,
			zap.Int("institutions", e.Summary.Institutions),
			zap.Int("institutions_failed", e.Summary.InstitutionsFailed),
			zap.Int("organizations", e.Summary.Organizations),
			zap.Int("organizations_failed", e.Summary.OrganizationsFailed),
			zap.Int("datasources", e.Summary.DataSources),
			zap.Int("datasources_failed", e.Summary.DataSourcesFailed),
			zap.Int("rows", e.Summary.Rows),
			zap.Int("anomalies", e.Summary.Anomalies))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Kind {
	case EventRunStarted:
		logger.Info("Starting coverage run", append(fields, zap.Int("institutions", e.Count))...)
	case EventInstitutionStarted:
		logger.Info("Processing institution", fields...)
	case EventOrganizationsResolved:
		logger.Info("Resolved organizations", append(fields, zap.Int("organizations", e.Count))...)
	case EventNoOrganizations:
		logger.Info("No organizations found for institution", fields...)
	case EventOrganizationStarted:
		logger.Info("Processing organization", fields...)
	case EventNoDataSources:
		logger.Info("No data sources found for organization", fields...)
	case EventDataSourceProcessed:
		logger.Info("Processed data source", fields...)
	case EventReconcileAnomaly:
		logger.Warn("Inconsistent counts: intersection exceeds a marginal count", fields...)
	case EventInstitutionFailed:
		logger.Warn("Skipping institution", fields...)
	case EventOrganizationFailed:
		logger.Warn("Skipping organization", fields...)
	case EventDataSourceFailed:
		logger.Warn("Skipping data source", fields...)
	case EventOrganizationNoRows:
		logger.Warn("Every data source of the organization failed, no rows emitted", append(fields, zap.Int("datasources", e.Count))...)
	case EventRunFinished:
		logger.Info("Coverage run finished", fields...)
	default:
		logger.Debug("Pipeline event", fields...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventSink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kind returns the recorded events of kind k.
func (r *Recorder) Kind(k EventKind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
