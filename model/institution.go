// Package model defines the records that flow through a coverage run: the
// institutions read from the input table, the organization and data-source
// metadata fetched from the aggregator and the flattened result rows.
package model

// Institution is one row of the input table.
type Institution struct {
	ID         string `json:"id"`   // persistent organization identifier, e.g. https://ror.org/04dkp9463
	Name       string `json:"name"` // English display name
	Acronym    string `json:"acronym,omitempty"`
	AcronymAgg string `json:"acronym_agg,omitempty"`
	Group      string `json:"group,omitempty"`

	// Line is the 1-based data line the institution was read from.
	Line int `json:"-"`
}

// Label returns the name used in progress reporting.
func (i Institution) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID
}
