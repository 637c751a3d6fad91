// Package report serializes coverage rows to CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/openaire-nl/nl-stats/model"
)

// Column scheme names
const (
	SchemeExtended = "extended"
	SchemeLegacy   = "legacy"
)

// RetrievedOnLayout is the timestamp layout of the Retrieved_On column.
const RetrievedOnLayout = "2006-01-02 15:04:05.000000"

// FileTimeLayout is the timestamp prefix of report file names.
const FileTimeLayout = "2006-01-02_15-04"

// Column is one output column: a header and how to render a row's cell.
type Column struct {
	Header string
	Value  func(r *model.ResultRow) string
}

func num(f func(r *model.ResultRow) int) func(r *model.ResultRow) string {
	return func(r *model.ResultRow) string { return strconv.Itoa(f(r)) }
}

func retrievedOn(r *model.ResultRow) string {
	if r.RetrievedOn.IsZero() {
		return ""
	}
	return r.RetrievedOn.Format(RetrievedOnLayout)
}

var extendedColumns = []Column{
	{"ROR_ID", func(r *model.ResultRow) string { return r.InstitutionID }},
	{"ROR_Name", func(r *model.ResultRow) string { return r.InstitutionName }},
	{"ROR_Acronym", func(r *model.ResultRow) string { return r.InstitutionAcronym }},
	{"ROR_Acronym_Agg", func(r *model.ResultRow) string { return r.InstitutionAcronymAgg }},
	{"ROR_Group", func(r *model.ResultRow) string { return r.InstitutionGroup }},
	{"OpenOrg_ID", func(r *model.ResultRow) string { return r.OrganizationID }},
	{"OpenOrg_Name", func(r *model.ResultRow) string { return r.OrganizationName }},
	{"OpenOrg_Website", func(r *model.ResultRow) string { return r.OrganizationWebsite }},
	{"DataSource_ID", func(r *model.ResultRow) string { return r.DataSourceID }},
	{"DataSource_Name", func(r *model.ResultRow) string { return r.DataSourceName }},
	{"DataSource_Compatibility", func(r *model.ResultRow) string { return r.DataSourceCompatibility }},
	{"DataSource_LastValidated", func(r *model.ResultRow) string { return r.DataSourceLastValidated }},
	{"DataSource_URL", func(r *model.ResultRow) string { return r.DataSourceURL }},
	{"Num_Found_ResearchProducts_for_OpenOrg", num(func(r *model.ResultRow) int { return r.OrgCount })},
	{"Num_Found_ResearchProducts_for_DataSource", num(func(r *model.ResultRow) int { return r.DataSourceCount })},
	{"Num_Found_ResearchProducts_for_OpenOrg_AND_DataSource", num(func(r *model.ResultRow) int { return r.IntersectionCount })},
	{"Num_Missing_ResearchProducts_in_DataSource", num(func(r *model.ResultRow) int { return r.MissingInDataSource })},
	{"Num_Missing_ResearchProducts_in_OpenOrg", num(func(r *model.ResultRow) int { return r.MissingInOrganization })},
	{"Num_Found_Projects_for_OpenOrg", num(func(r *model.ResultRow) int { return r.OrganizationProjects })},
	{"DataSource_Guidelines_Version", func(r *model.ResultRow) string { return r.DataSourceGuidelines }},
	{"Retrieved_On", retrievedOn},
}

var legacyColumns = []Column{
	{"Institution", func(r *model.ResultRow) string { return r.InstitutionName }},
	{"OpenAIRE_Org_ID", func(r *model.ResultRow) string { return r.OrganizationID }},
	{"DataSource_ID", func(r *model.ResultRow) string { return r.DataSourceID }},
	{"DataSource_Name", func(r *model.ResultRow) string { return r.DataSourceName }},
	{"DataSource_Compatibility", func(r *model.ResultRow) string { return r.DataSourceCompatibility }},
	{"DataSource_LastValidated", func(r *model.ResultRow) string { return r.DataSourceLastValidated }},
	{"DataSource_URL", func(r *model.ResultRow) string { return r.DataSourceURL }},
	{"Num_Research_Products_Org", num(func(r *model.ResultRow) int { return r.OrgCount })},
	{"Num_Research_Products_DS", num(func(r *model.ResultRow) int { return r.DataSourceCount })},
	{"Num_Research_Products_DS_Org", num(func(r *model.ResultRow) int { return r.IntersectionCount })},
	{"Num_Missing_DS", num(func(r *model.ResultRow) int { return r.MissingInDataSource })},
	{"Num_Missing_Org", num(func(r *model.ResultRow) int { return r.MissingInOrganization })},
	{"Retrieved_On", retrievedOn},
}

// Columns returns the columns of a scheme.
func Columns(scheme string) ([]Column, error) {
	switch scheme {
	case SchemeExtended, "":
		return extendedColumns, nil
	case SchemeLegacy:
		return legacyColumns, nil
	default:
		return nil, fmt.Errorf("unknown column scheme %q", scheme)
	}
}

// Headers returns the header line of a scheme.
func Headers(scheme string) ([]string, error) {
	cols, err := Columns(scheme)
	if err != nil {
		return nil, err
	}
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
	}
	return headers, nil
}

// WriteTo writes a header line and one line per row to w.
func WriteTo(w io.Writer, scheme string, rows []model.ResultRow) error {
	cols, err := Columns(scheme)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)

	headers, _ := Headers(scheme)
	if err := cw.Write(headers); err != nil {
		return err
	}

	record := make([]string, len(cols))
	for i := range rows {
		for j, c := range cols {
			record[j] = c.Value(&rows[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Writer writes reports to timestamped files in a directory.
type Writer struct {
	Dir    string
	Suffix string
	Scheme string
	Now    func() time.Time
}

// Path returns the file a report written at t would go to:
// <dir>/<YYYY-MM-DD_HH-MM>_<suffix>.csv.
func (w *Writer) Path(t time.Time) string {
	suffix := w.Suffix
	if suffix == "" {
		suffix = "nl-stats"
	}
	return filepath.Join(w.Dir, t.Format(FileTimeLayout)+"_"+suffix+".csv")
}

// Write writes rows to a new timestamped file and returns its path. The
// directory is created when missing.
func (w *Writer) Write(rows []model.ResultRow) (string, error) {
	if _, err := Columns(w.Scheme); err != nil {
		return "", err
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	path := w.Path(now())

	if w.Dir != "" {
		if err := os.MkdirAll(w.Dir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	if err := WriteTo(f, w.Scheme, rows); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	return path, nil
}
