// Package reconcile derives the asymmetric "missing" counts between an
// organization and a data source from the counts the aggregator reports for
// each of them and for their intersection.
package reconcile

import (
	"fmt"

	"github.com/openaire-nl/nl-stats/model"
)

// Reconcile combines the organization count, the data-source count and the
// intersection count into a CountTuple.
//
// Negative derived values are kept as they are: they mean the intersection
// exceeded a marginal count upstream, and callers report them via Check.
func Reconcile(orgCount, dsCount, intersectionCount int) model.CountTuple {
	return model.CountTuple{
		OrgCount:              orgCount,
		DataSourceCount:       dsCount,
		IntersectionCount:     intersectionCount,
		MissingInDataSource:   dsCount - intersectionCount,
		MissingInOrganization: orgCount - intersectionCount,
	}
}

// NoDataSources is the tuple for an organization without any data source:
// the whole organization count is missing relative to any data source.
func NoDataSources(orgCount int) model.CountTuple {
	return model.CountTuple{
		OrgCount:              orgCount,
		MissingInOrganization: orgCount,
	}
}

// Anomaly describes a tuple whose derived counts went negative.
type Anomaly struct {
	Counts  model.CountTuple
	Reasons []string
}

func (a *Anomaly) Error() string {
	return fmt.Sprintf("inconsistent counts (org=%d ds=%d intersection=%d): %v",
		a.Counts.OrgCount, a.Counts.DataSourceCount, a.Counts.IntersectionCount, a.Reasons)
}

// Check returns a non-nil Anomaly when counts carries a negative derived
// value. It is a data-quality signal, never a reason to drop the row.
func Check(counts model.CountTuple) *Anomaly {
	if !counts.Anomalous() {
		return nil
	}

	a := &Anomaly{Counts: counts}
	if counts.MissingInDataSource < 0 {
		a.Reasons = append(a.Reasons, "intersection exceeds data source count")
	}
	if counts.MissingInOrganization < 0 {
		a.Reasons = append(a.Reasons, "intersection exceeds organization count")
	}
	return a
}
