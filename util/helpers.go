// Package util provides small helpers shared by the coverage pipeline, the
// storage layer and the API: environment lookups, identifier normalisation and
// label parsing.
//
//revive:disable-next-line:var-naming
package util

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// IsEmpty checks if a string is empty or contains only whitespace
func IsEmpty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// IsNotEmpty checks if a string is not empty
func IsNotEmpty(s string) bool {
	return !IsEmpty(s)
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if IsNotEmpty(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var guidelinesPattern = regexp.MustCompile(`\bv?(\d+(?:\.\d+){0,2})\b`)

// GuidelinesVersion extracts the guidelines version from a data source
// compatibility label, e.g. "OpenAIRE 4.0 (inst.&thematic. repo.)" -> "4.0"
// and "OpenAIRE CRIS v1.1" -> "1.1". Labels without a version ("OpenAIRE Basic
// (DRIVER OA)", "not available") return "".
func GuidelinesVersion(label string) string {
	m := guidelinesPattern.FindStringSubmatch(label)
	if m == nil {
		return ""
	}

	v, err := semver.NewVersion(m[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}
