package coverage

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/openaire-nl/nl-stats/internal/services"
)

func contextOf(p graphql.ResolveParams) context.Context {
	if p.Context != nil {
		return p.Context
	}
	return context.Background()
}

// GetQueryFields returns the coverage queries to be mounted in the root schema.
func GetQueryFields(store services.CoverageStore) graphql.Fields {
	return graphql.Fields{
		"runs": &graphql.Field{
			Type: graphql.NewList(RunType),
			Args: graphql.FieldConfigArgument{
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				limit, _ := p.Args["limit"].(int)
				return ResolveRuns(contextOf(p), store, limit)
			},
		},
		"run": &graphql.Field{
			Type: RunType,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveRun(contextOf(p), store, p.Args["id"].(string))
			},
		},
		"lastRun": &graphql.Field{
			Type: RunType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveLastRun(contextOf(p), store)
			},
		},
		"coverage": &graphql.Field{
			Type: graphql.NewList(RowType),
			Args: graphql.FieldConfigArgument{
				"runId":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"institution":   &graphql.ArgumentConfig{Type: graphql.String},
				"anomaliesOnly": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				"limit":         &graphql.ArgumentConfig{Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				filter := services.RowFilter{}
				filter.Institution, _ = p.Args["institution"].(string)
				filter.AnomaliesOnly, _ = p.Args["anomaliesOnly"].(bool)
				filter.Limit, _ = p.Args["limit"].(int)
				return ResolveCoverage(contextOf(p), store, p.Args["runId"].(string), filter)
			},
		},
	}
}
