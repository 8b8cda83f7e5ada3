package orchestrator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/retrievald/internal/assembler"
)

// Source is one citable origin of assembled context.
type Source struct {
	Citation   int    `json:"citation"`
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Node       string `json:"node,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// ListItem is one entry of an enumerated list in the answer, mapped to
// the citations it carries.
type ListItem struct {
	Text      string `json:"text"`
	Citations []int  `json:"citations,omitempty"`
}

var (
	citationPattern = regexp.MustCompile(`\[(\d+)\]`)
	listLinePattern = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)
)

// sourcesFrom builds the citation-indexed source list from assembled
// context.
func sourcesFrom(ctx assembler.AssembledContext) []Source {
	if len(ctx.Items) == 0 {
		return nil
	}
	sources := make([]Source, len(ctx.Items))
	for i, item := range ctx.Items {
		sources[i] = Source{
			Citation:   item.Citation,
			ID:         item.ID,
			Collection: item.Collection,
			Node:       item.Node,
			Truncated:  item.Truncated,
		}
	}
	return sources
}

// extractListItems finds enumerated list entries in the answer and maps
// each to the citation indices it references. Indices outside the valid
// range are dropped. Returns nil when the answer has no list.
func extractListItems(answer string, maxCitation int) []ListItem {
	var items []ListItem
	for _, line := range strings.Split(answer, "\n") {
		match := listLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		items = append(items, ListItem{
			Text:      strings.TrimSpace(match[1]),
			Citations: extractCitations(match[1], maxCitation),
		})
	}
	return items
}

func extractCitations(text string, maxCitation int) []int {
	var citations []int
	seen := make(map[int]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 0 || n > maxCitation || seen[n] {
			continue
		}
		citations = append(citations, n)
		seen[n] = true
	}
	return citations
}
