package analyzer

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

// builtinAggregatePatterns classify obvious count questions without a
// model call.
var builtinAggregatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow many\b`),
	regexp.MustCompile(`(?i)\bcount\b`),
	regexp.MustCompile(`(?i)\btotal\b`),
	regexp.MustCompile(`(?i)\bsummary\b`),
	regexp.MustCompile(`(?i)\bstatistics\b`),
}

// compilePatterns compiles configured extra patterns, skipping invalid
// ones with a warning rather than failing startup.
func compilePatterns(ctx context.Context, extra []string, logger *logging.Logger) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(builtinAggregatePatterns)+len(extra))
	patterns = append(patterns, builtinAggregatePatterns...)

	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn(ctx, "skipping invalid aggregate pattern",
				zap.String("pattern", p),
				zap.Error(err),
			)
			continue
		}
		patterns = append(patterns, re)
	}
	return patterns
}

func matchesAny(patterns []*regexp.Regexp, message string) bool {
	for _, re := range patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}
