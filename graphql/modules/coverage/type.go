// Package coverage defines the GraphQL types for coverage runs and rows.
package coverage

import (
	"github.com/graphql-go/graphql"
)

// RunType represents one stored pipeline execution and its summary.
var RunType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CoverageRun",
	Fields: graphql.Fields{
		"key":                  &graphql.Field{Type: graphql.String, Resolve: field("_key")},
		"status":               &graphql.Field{Type: graphql.String},
		"started_at":           &graphql.Field{Type: graphql.String},
		"finished_at":          &graphql.Field{Type: graphql.String},
		"input_file":           &graphql.Field{Type: graphql.String},
		"output_file":          &graphql.Field{Type: graphql.String},
		"scheme":               &graphql.Field{Type: graphql.String},
		"institutions":         &graphql.Field{Type: graphql.Int},
		"institutions_failed":  &graphql.Field{Type: graphql.Int},
		"organizations":        &graphql.Field{Type: graphql.Int},
		"organizations_failed": &graphql.Field{Type: graphql.Int},
		"datasources":          &graphql.Field{Type: graphql.Int},
		"datasources_failed":   &graphql.Field{Type: graphql.Int},
		"rows":                 &graphql.Field{Type: graphql.Int},
		"anomalies":            &graphql.Field{Type: graphql.Int},
	},
})

// RowType represents one coverage row: institution, organization, optional
// data source and the five counts.
var RowType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CoverageRow",
	Fields: graphql.Fields{
		"key":                       &graphql.Field{Type: graphql.String, Resolve: field("_key")},
		"run_id":                    &graphql.Field{Type: graphql.String},
		"institution_id":            &graphql.Field{Type: graphql.String},
		"institution_name":          &graphql.Field{Type: graphql.String},
		"institution_acronym":       &graphql.Field{Type: graphql.String},
		"institution_acronym_agg":   &graphql.Field{Type: graphql.String},
		"institution_group":         &graphql.Field{Type: graphql.String},
		"organization_id":           &graphql.Field{Type: graphql.String},
		"organization_name":         &graphql.Field{Type: graphql.String},
		"organization_website":      &graphql.Field{Type: graphql.String},
		"organization_projects":     &graphql.Field{Type: graphql.Int},
		"has_datasource":            &graphql.Field{Type: graphql.Boolean},
		"datasource_id":             &graphql.Field{Type: graphql.String},
		"datasource_name":           &graphql.Field{Type: graphql.String},
		"datasource_compatibility":  &graphql.Field{Type: graphql.String},
		"datasource_guidelines":     &graphql.Field{Type: graphql.String},
		"datasource_last_validated": &graphql.Field{Type: graphql.String},
		"datasource_url":            &graphql.Field{Type: graphql.String},
		"org_count":                 &graphql.Field{Type: graphql.Int},
		"ds_count":                  &graphql.Field{Type: graphql.Int},
		"intersection_count":        &graphql.Field{Type: graphql.Int},
		"missing_in_datasource":     &graphql.Field{Type: graphql.Int},
		"missing_in_organization":   &graphql.Field{Type: graphql.Int},
		"anomaly":                   &graphql.Field{Type: graphql.Boolean},
		"retrieved_on":              &graphql.Field{Type: graphql.String},
	},
})

func field(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if m, ok := p.Source.(map[string]interface{}); ok {
			return m[name], nil
		}
		return nil, nil
	}
}
