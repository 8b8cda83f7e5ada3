// Package analyzer decides whether and how to retrieve context.
//
// A single bounded model call classifies the message; everything the
// model returns is treated as untrusted and repaired to a valid Analysis
// before use. The analyzer never fails: on timeout or malformed output
// it degrades to retrieval-on-uncertainty.
package analyzer

// QueryType classifies the retrieval strategy for a message.
type QueryType string

const (
	// QueryConversational needs semantic context from prior records.
	QueryConversational QueryType = "conversational"
	// QueryFactual is a direct lookup of specific records.
	QueryFactual QueryType = "factual"
	// QueryAggregate is answerable only by counting, not similarity.
	QueryAggregate QueryType = "aggregate"
)

func validQueryType(t QueryType) bool {
	switch t {
	case QueryConversational, QueryFactual, QueryAggregate:
		return true
	}
	return false
}

// Analysis is the repaired retrieval decision for one message.
//
// Invariants: SearchQueries is non-empty whenever NeedsContext is true,
// and TargetCollections is always a subset of the candidates offered.
type Analysis struct {
	// NeedsContext reports whether retrieval should run at all.
	NeedsContext bool

	// SearchQueries are the texts to search for.
	SearchQueries []string

	// TargetCollections are the collections to search.
	TargetCollections []string

	// QueryType selects between retrieval and aggregation.
	QueryType QueryType

	// Reasoning is the model's explanation, for logging only.
	Reasoning string

	// Degraded is true when the model call failed and the fallback
	// decision was used.
	Degraded bool
}
