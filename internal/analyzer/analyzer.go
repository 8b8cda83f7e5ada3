package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/llm"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

const systemPromptTemplate = `You are a retrieval planner for a knowledge assistant.
Decide whether the user's latest message needs context retrieved from the corpus.

Available collections: %s

Respond with ONLY a JSON object, no prose:
{
  "needs_context": true or false,
  "search_queries": ["specific search text", ...],
  "target_collections": ["collection", ...],
  "query_type": "conversational" or "factual" or "aggregate",
  "reasoning": "one short sentence"
}

Rules:
- Greetings, small talk, and questions about the current conversation need no context.
- Keep quoted phrases and titles from the message verbatim in search_queries.
- Only name collections from the available list.
- Use "aggregate" when the user asks for counts or statistics.`

// shortMessageWords is the cutoff below which the raw message is kept as
// a search query verbatim; paraphrasing short lookups loses exact-match
// recall.
const shortMessageWords = 5

var quotedPhrasePattern = regexp.MustCompile(`"([^"]+)"`)

// Analyzer classifies messages with one bounded model call.
type Analyzer struct {
	model    llm.Model
	store    *config.Store
	patterns []*regexp.Regexp
	logger   *logging.Logger
}

// New creates an analyzer.
func New(model llm.Model, store *config.Store, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("analyzer")

	return &Analyzer{
		model:    model,
		store:    store,
		patterns: compilePatterns(context.Background(), store.Current().Analyzer.AggregatePatterns, logger),
		logger:   logger,
	}
}

// Analyze decides whether and how to retrieve context for a message.
//
// It never returns an error: a failed or late model call degrades to
// retrieving with the raw message across all candidate collections.
func (a *Analyzer) Analyze(ctx context.Context, message string, history []llm.Message, candidates []string) Analysis {
	message = strings.TrimSpace(message)
	if message == "" {
		return Analysis{NeedsContext: false, QueryType: QueryConversational}
	}

	// Obvious count questions skip the model call entirely.
	if matchesAny(a.patterns, message) {
		a.logger.Debug(ctx, "lexical aggregate match, skipping model call")
		return Analysis{
			NeedsContext:      true,
			SearchQueries:     []string{message},
			TargetCollections: append([]string(nil), candidates...),
			QueryType:         QueryAggregate,
			Reasoning:         "matched aggregate pattern",
		}
	}

	timeout := a.store.Current().Analyzer.Timeout
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	system := fmt.Sprintf(systemPromptTemplate, strings.Join(candidates, ", "))
	messages := append(append([]llm.Message(nil), history...), llm.Message{Role: "user", Content: message})

	raw, err := a.model.Complete(callCtx, system, messages)
	if err != nil {
		a.logger.Warn(ctx, "analysis model call failed, degrading",
			zap.Error(err),
		)
		return degraded(message, candidates)
	}

	analysis := repair(ctx, raw, message, candidates, a.logger)
	a.preservePhrases(&analysis, message)

	a.logger.Debug(ctx, "analyzed message",
		zap.Bool("needs_context", analysis.NeedsContext),
		zap.String("query_type", string(analysis.QueryType)),
		zap.Int("queries", len(analysis.SearchQueries)),
		zap.Strings("collections", analysis.TargetCollections),
	)
	return analysis
}

// preservePhrases keeps exact-match intent intact: quoted phrases from
// the message, and short messages themselves, must survive as verbatim
// search queries even when the model paraphrased them away.
func (a *Analyzer) preservePhrases(analysis *Analysis, message string) {
	if !analysis.NeedsContext {
		return
	}

	present := make(map[string]bool, len(analysis.SearchQueries))
	for _, q := range analysis.SearchQueries {
		present[strings.ToLower(q)] = true
	}

	for _, match := range quotedPhrasePattern.FindAllStringSubmatch(message, -1) {
		phrase := strings.TrimSpace(match[1])
		if phrase == "" || present[strings.ToLower(phrase)] {
			continue
		}
		analysis.SearchQueries = append(analysis.SearchQueries, phrase)
		present[strings.ToLower(phrase)] = true
	}

	if len(strings.Fields(message)) <= shortMessageWords && !present[strings.ToLower(message)] {
		analysis.SearchQueries = append(analysis.SearchQueries, message)
	}
}
