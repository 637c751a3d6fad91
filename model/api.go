// Package model - response envelopes returned by the aggregator's search endpoints
package model

import "encoding/json"

// SearchHeader carries the paging metadata of a search response.
type SearchHeader struct {
	NumFound  int `json:"numFound"`
	MaxScore  any `json:"maxScore,omitempty"`
	QueryTime int `json:"queryTime,omitempty"`
	Page      int `json:"page,omitempty"`
	PageSize  int `json:"pageSize,omitempty"`
}

// SearchResponse is the common envelope of every search endpoint. Results are
// kept raw so callers decode only the resource type they asked for.
type SearchResponse struct {
	Header  SearchHeader      `json:"header"`
	Results []json.RawMessage `json:"results"`
}

// OrganizationIDs returns the "id" field of every result, skipping results
// that do not decode.
func (r SearchResponse) OrganizationIDs() []string {
	ids := make([]string, 0, len(r.Results))
	for _, raw := range r.Results {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == "" {
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids
}
