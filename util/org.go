// Organization identifier helpers.
package util

import "strings"

// DefaultNamespace is the prefix of aggregator-internal organization ids.
const DefaultNamespace = "openorgs"

// NormalizePID trims a persistent identifier as read from the input table.
// Identifiers are otherwise passed to the API unchanged, so a ROR link stays a
// link and a bare ROR id stays bare.
func NormalizePID(pid string) string {
	return strings.TrimSpace(pid)
}

// InNamespace reports whether id belongs to the given aggregator namespace.
// Ids look like "openorgs____::0000000123", so the namespace is a plain prefix.
func InNamespace(id, namespace string) bool {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return strings.HasPrefix(id, namespace)
}

// FilterNamespace keeps the ids that belong to namespace, in their original
// order. Duplicate ids are kept once.
func FilterNamespace(ids []string, namespace string) []string {
	filtered := []string{}
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !InNamespace(id, namespace) || seen[id] {
			continue
		}
		seen[id] = true
		filtered = append(filtered, id)
	}
	return filtered
}
