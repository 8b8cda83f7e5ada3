package analyzer

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

// rawAnalysis is the model's claimed decision before repair.
type rawAnalysis struct {
	NeedsContext      *bool    `json:"needs_context"`
	SearchQueries     []string `json:"search_queries"`
	TargetCollections []string `json:"target_collections"`
	QueryType         string   `json:"query_type"`
	Reasoning         string   `json:"reasoning"`
}

// repair turns untrusted model output into a valid Analysis.
//
// Repairs applied, in order:
//   - markdown code fences are stripped before JSON parsing
//   - unparseable output degrades to the retrieval-on-uncertainty fallback
//   - collections not in candidates are dropped with a warning; if none
//     remain, all candidates are used
//   - empty or whitespace-only queries are dropped; if none remain, the
//     original message is the single query
//   - an unknown query type becomes conversational
func repair(ctx context.Context, raw, message string, candidates []string, logger *logging.Logger) Analysis {
	// Models sometimes wrap JSON in markdown code blocks.
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		logger.Warn(ctx, "unparseable analysis output, degrading",
			zap.Error(err),
		)
		return degraded(message, candidates)
	}

	analysis := Analysis{
		QueryType: QueryType(parsed.QueryType),
		Reasoning: parsed.Reasoning,
	}

	// Absent needs_context means the model did not decide; retrieve.
	if parsed.NeedsContext == nil {
		analysis.NeedsContext = true
	} else {
		analysis.NeedsContext = *parsed.NeedsContext
	}

	if !validQueryType(analysis.QueryType) {
		analysis.QueryType = QueryConversational
	}

	analysis.TargetCollections = repairCollections(ctx, parsed.TargetCollections, candidates, logger)
	analysis.SearchQueries = repairQueries(parsed.SearchQueries, message)

	return analysis
}

func repairCollections(ctx context.Context, claimed, candidates []string, logger *logging.Logger) []string {
	allowed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}

	kept := make([]string, 0, len(claimed))
	for _, c := range claimed {
		if allowed[c] {
			kept = append(kept, c)
			continue
		}
		logger.Warn(ctx, "dropping hallucinated collection",
			zap.String("collection", c),
		)
	}

	if len(kept) == 0 {
		kept = append(kept, candidates...)
	}
	return kept
}

func repairQueries(claimed []string, message string) []string {
	kept := make([]string, 0, len(claimed))
	for _, q := range claimed {
		if strings.TrimSpace(q) != "" {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, message)
	}
	return kept
}

// degraded is the retrieval-on-uncertainty fallback: search everything
// with the raw message rather than answer without context.
func degraded(message string, candidates []string) Analysis {
	return Analysis{
		NeedsContext:      true,
		SearchQueries:     []string{message},
		TargetCollections: append([]string(nil), candidates...),
		QueryType:         QueryConversational,
		Degraded:          true,
	}
}
