package model

// Organization is an aggregator organization resolved from an institution's
// persistent identifier.
type Organization struct {
	ID         string `json:"id"`
	LegalName  string `json:"legalName,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
	Pids       []PID  `json:"pids,omitempty"`

	// Projects is the number of projects linked to the organization. It is
	// filled from a separate count query, not from the record itself.
	Projects int `json:"-"`
}

// PID is a persistent identifier attached to an organization record.
type PID struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// DataSource is a content provider registered with the aggregator.
type DataSource struct {
	ID                    string `json:"id"`
	OfficialName          string `json:"officialName,omitempty"`
	OpenaireCompatibility string `json:"openaireCompatibility,omitempty"`
	DateOfValidation      string `json:"dateOfValidation,omitempty"`
	WebsiteURL            string `json:"websiteUrl,omitempty"`
}
