// Package model - coverage counts and the flattened rows of a coverage report
package model

import (
	"time"

	"github.com/openaire-nl/nl-stats/util"
)

// CountTuple holds the three fetched counts for an (organization, data
// source) pair and the two values derived from them.
type CountTuple struct {
	OrgCount              int `json:"org_count"`
	DataSourceCount       int `json:"ds_count"`
	IntersectionCount     int `json:"intersection_count"`
	MissingInDataSource   int `json:"missing_in_datasource"`
	MissingInOrganization int `json:"missing_in_organization"`
}

// Anomalous reports whether a derived count went negative, i.e. the
// intersection exceeded one of the marginal counts.
func (c CountTuple) Anomalous() bool {
	return c.MissingInDataSource < 0 || c.MissingInOrganization < 0
}

// ResultRow is one record of the coverage report: an institution, one of its
// aggregator organizations, optionally one data source, and the counts.
type ResultRow struct {
	Key   string `json:"_key,omitempty"`
	RunID string `json:"run_id,omitempty"`

	InstitutionID         string `json:"institution_id"`
	InstitutionName       string `json:"institution_name"`
	InstitutionAcronym    string `json:"institution_acronym,omitempty"`
	InstitutionAcronymAgg string `json:"institution_acronym_agg,omitempty"`
	InstitutionGroup      string `json:"institution_group,omitempty"`

	OrganizationID       string `json:"organization_id"`
	OrganizationName     string `json:"organization_name,omitempty"`
	OrganizationWebsite  string `json:"organization_website,omitempty"`
	OrganizationProjects int    `json:"organization_projects"`

	HasDataSource           bool   `json:"has_datasource"`
	DataSourceID            string `json:"datasource_id,omitempty"`
	DataSourceName          string `json:"datasource_name,omitempty"`
	DataSourceCompatibility string `json:"datasource_compatibility,omitempty"`
	DataSourceGuidelines    string `json:"datasource_guidelines,omitempty"`
	DataSourceLastValidated string `json:"datasource_last_validated,omitempty"`
	DataSourceURL           string `json:"datasource_url,omitempty"`

	CountTuple
	Anomaly bool `json:"anomaly"`

	RetrievedOn time.Time `json:"retrieved_on"`
}

// NewResultRow flattens an institution, an organization, an optional data
// source and the counts into one row. A nil organization leaves the
// organization fields empty; a nil data source leaves the data-source fields
// empty and marks the row as the organization's fallback row.
func NewResultRow(inst Institution, org *Organization, ds *DataSource, counts CountTuple, retrievedOn time.Time) ResultRow {
	row := ResultRow{
		InstitutionID:         inst.ID,
		InstitutionName:       inst.Name,
		InstitutionAcronym:    inst.Acronym,
		InstitutionAcronymAgg: inst.AcronymAgg,
		InstitutionGroup:      inst.Group,
		CountTuple:            counts,
		Anomaly:               counts.Anomalous(),
		RetrievedOn:           retrievedOn,
	}

	if org != nil {
		row.OrganizationID = org.ID
		row.OrganizationName = org.LegalName
		row.OrganizationWebsite = org.WebsiteURL
		row.OrganizationProjects = org.Projects
	}

	if ds != nil {
		row.HasDataSource = true
		row.DataSourceID = ds.ID
		row.DataSourceName = ds.OfficialName
		row.DataSourceCompatibility = ds.OpenaireCompatibility
		row.DataSourceGuidelines = util.GuidelinesVersion(ds.OpenaireCompatibility)
		row.DataSourceLastValidated = ds.DateOfValidation
		row.DataSourceURL = ds.WebsiteURL
	}

	return row
}

// Summary counts what a run processed and what it had to skip.
type Summary struct {
	Institutions        int `json:"institutions"`
	InstitutionsFailed  int `json:"institutions_failed"`
	Organizations       int `json:"organizations"`
	OrganizationsFailed int `json:"organizations_failed"`
	DataSources         int `json:"datasources"`
	DataSourcesFailed   int `json:"datasources_failed"`
	Rows                int `json:"rows"`
	Anomalies           int `json:"anomalies"`
}

// Failed reports whether any unit of work was skipped because of an error.
func (s Summary) Failed() int {
	return s.InstitutionsFailed + s.OrganizationsFailed + s.DataSourcesFailed
}

// Run status values
const (
	RunCompleted = "completed" // every unit processed
	RunPartial   = "partial"   // some units skipped after isolated failures
	RunAborted   = "aborted"   // stopped early, e.g. cancelled
)

// Run is the stored record of one pipeline execution.
type Run struct {
	Key        string    `json:"_key,omitempty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	InputFile  string    `json:"input_file,omitempty"`
	OutputFile string    `json:"output_file,omitempty"`
	Scheme     string    `json:"scheme,omitempty"`
	Summary
}

// RunRequest asks for one pipeline execution. Empty fields fall back to the
// configured values. DataFile and OutputDir are local overrides for the CLI
// and are never decoded from or encoded into API bodies or events.
type RunRequest struct {
	ID        string `json:"id,omitempty"`
	DataFile  string `json:"-"`
	OutputDir string `json:"-"`
	Scheme    string `json:"scheme,omitempty"`
	Store     bool   `json:"store"`
}
