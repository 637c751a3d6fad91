package reconcile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name                     string
		org, ds, inter           int
		wantMissingDS, wantMissO int
	}{
		{"example from the report", 100, 40, 30, 10, 70},
		{"all zero", 0, 0, 0, 0, 0},
		{"full overlap", 25, 25, 25, 0, 0},
		{"no overlap", 12, 7, 0, 7, 12},
		{"data source is subset", 500, 20, 20, 0, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.org, tt.ds, tt.inter)
			assert.Equal(t, tt.org, got.OrgCount)
			assert.Equal(t, tt.ds, got.DataSourceCount)
			assert.Equal(t, tt.inter, got.IntersectionCount)
			assert.Equal(t, tt.wantMissingDS, got.MissingInDataSource)
			assert.Equal(t, tt.wantMissO, got.MissingInOrganization)
			assert.Nil(t, Check(got))
		})
	}
}

func TestReconcile_NonNegativeWhenIntersectionBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		org := rng.Intn(1 << 20)
		ds := rng.Intn(1 << 20)
		bound := org
		if ds < bound {
			bound = ds
		}
		inter := 0
		if bound > 0 {
			inter = rng.Intn(bound + 1)
		}

		got := Reconcile(org, ds, inter)
		require.Equal(t, ds-inter, got.MissingInDataSource)
		require.Equal(t, org-inter, got.MissingInOrganization)
		require.GreaterOrEqual(t, got.MissingInDataSource, 0)
		require.GreaterOrEqual(t, got.MissingInOrganization, 0)
		require.False(t, got.Anomalous())
	}
}

func TestReconcile_AnomalousInputStillReturns(t *testing.T) {
	got := Reconcile(10, 5, 8)

	assert.Equal(t, -3, got.MissingInDataSource)
	assert.Equal(t, 2, got.MissingInOrganization)
	assert.True(t, got.Anomalous())

	a := Check(got)
	require.NotNil(t, a)
	assert.Equal(t, []string{"intersection exceeds data source count"}, a.Reasons)
	assert.Contains(t, a.Error(), "intersection=8")
}

func TestCheck_BothSidesNegative(t *testing.T) {
	a := Check(Reconcile(3, 4, 9))
	require.NotNil(t, a)
	assert.Len(t, a.Reasons, 2)
}

func TestNoDataSources(t *testing.T) {
	got := NoDataSources(42)

	assert.Equal(t, 42, got.OrgCount)
	assert.Zero(t, got.DataSourceCount)
	assert.Zero(t, got.IntersectionCount)
	assert.Zero(t, got.MissingInDataSource)
	assert.Equal(t, 42, got.MissingInOrganization)
	assert.Nil(t, Check(got))
}
