// Package scope computes per-request retrieval scopes.
//
// A scope is the minimal metadata filter restricting which records a
// principal may retrieve from one collection. Resolution is fail-closed:
// any missing or inconsistent attribute narrows the scope, never widens it.
package scope

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope is the access filter for one (principal, collection) pair.
type Scope struct {
	// Filters are metadata clauses applied server-side on every search
	// and count. Empty only when Unrestricted.
	Filters map[string]interface{}

	// Unrestricted is true only for admin principals. It is the single
	// bypass path; nothing else may set it.
	Unrestricted bool
}

// Set maps collection name to its resolved scope for one request.
type Set map[string]Scope

// Fingerprint returns a stable identifier for the scope's filter clauses.
//
// It is shared between the statistics cache keys and invalidation event
// payloads: both sides derive it the same way, so an external mutation
// signal lands on exactly the cache entries it should evict.
func (s Scope) Fingerprint() string {
	if s.Unrestricted {
		sum := sha256.Sum256([]byte("unrestricted"))
		return hex.EncodeToString(sum[:])
	}

	keys := make([]string, 0, len(s.Filters))
	for k := range s.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, s.Filters[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// clone copies the scope so cached entries cannot be mutated by callers.
func (s Scope) clone() Scope {
	if s.Filters == nil {
		return Scope{Unrestricted: s.Unrestricted}
	}
	filters := make(map[string]interface{}, len(s.Filters))
	for k, v := range s.Filters {
		filters[k] = v
	}
	return Scope{Filters: filters, Unrestricted: s.Unrestricted}
}
