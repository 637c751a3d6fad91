// Package graphql assembles the GraphQL schema served under /api/v1/graphql.
package graphql

import (
	"github.com/graphql-go/graphql"
	"github.com/openaire-nl/nl-stats/graphql/modules/coverage"
	"github.com/openaire-nl/nl-stats/internal/services"
)

// CreateSchema builds the read-only query schema over store.
func CreateSchema(store services.CoverageStore) (graphql.Schema, error) {
	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name:   "RootQuery",
		Fields: coverage.GetQueryFields(store),
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
