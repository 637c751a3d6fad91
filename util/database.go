// Package util provides utility functions for the backend.
//
//revive:disable-next-line:var-naming
package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/openaire-nl/nl-stats/database"
)

// SanitizeKey ensures the database key is valid for ArangoDB
// ArangoDB keys cannot contain spaces, slashes, or brackets
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)

	replacer := strings.NewReplacer(
		" ", "-",
		"/", "-",
		"[", "",
		"]", "",
		"(", "",
		")", "",
	)

	return replacer.Replace(key)
}

// RunMetadata stores the high-water mark of successful runs
type RunMetadata struct {
	Key          string `json:"_key"`          // e.g., "coverage"
	LastModified string `json:"last_modified"` // RFC3339 Timestamp
	RunID        string `json:"run_id"`
	Type         string `json:"type"` // "run_metadata"
}

// GetLastRun retrieves the time and id of the last successful run for a report kind.
// A zero time and empty id mean no run has been recorded yet.
func GetLastRun(ctx context.Context, db database.DBConnection, kind string) (time.Time, string, error) {
	key := SanitizeKey(kind)
	if key == "" {
		return time.Time{}, "", nil
	}

	query := `RETURN DOCUMENT("metadata", @key)`
	bindVars := map[string]interface{}{"key": key}

	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return time.Time{}, "", err
	}
	defer cursor.Close()

	var meta *RunMetadata
	if _, err := cursor.ReadDocument(ctx, &meta); err != nil || meta == nil {
		return time.Time{}, "", nil
	}

	t, err := time.Parse(time.RFC3339, meta.LastModified)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid last_modified %q for %s: %w", meta.LastModified, key, err)
	}
	return t, meta.RunID, nil
}

// SaveLastRun updates the high-water mark after a successful run
func SaveLastRun(ctx context.Context, db database.DBConnection, kind, runID string, finished time.Time) error {
	key := SanitizeKey(kind)

	if key == "" {
		return fmt.Errorf("cannot save last run for empty key (original: %s)", kind)
	}

	query := `
		UPSERT { _key: @key }
		INSERT { _key: @key, last_modified: @time, run_id: @run, type: "run_metadata" }
		UPDATE { last_modified: @time, run_id: @run }
		IN metadata
	`

	bindVars := map[string]interface{}{
		"key":  key,
		"time": finished.UTC().Format(time.RFC3339),
		"run":  runID,
	}

	_, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	return err
}
