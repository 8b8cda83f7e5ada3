// Package assembler packs ranked retrieval results into a budgeted,
// citable prompt fragment.
package assembler

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
)

// AssembledItem is one retrieved item placed into the context window.
type AssembledItem struct {
	retriever.Item

	// Citation is the item's zero-based index in the assembled context.
	Citation int `json:"citation"`

	// Tokens is the estimated token cost of the (possibly truncated)
	// content.
	Tokens int `json:"tokens"`

	// Truncated is true when the content was middle-elided to fit the
	// per-item ceiling.
	Truncated bool `json:"truncated"`
}

// AssembledContext is the final budgeted context.
type AssembledContext struct {
	Items       []AssembledItem `json:"items"`
	TotalTokens int             `json:"total_tokens"`
}

// Assemble packs items into the budget, preserving rank order.
//
// Items larger than the per-item ceiling are middle-elided. Packing
// stops at the first item that would push the total past the overall
// ceiling: the item is dropped whole and nothing after it is
// considered, so rank order is never reshuffled by size.
func Assemble(items []retriever.Item, b budget.Budget) AssembledContext {
	ctx := AssembledContext{Items: make([]AssembledItem, 0, len(items))}

	for _, item := range items {
		content := item.Content
		truncated := false
		if b.MaxTokensPerItem > 0 && EstimateTokens(content) > b.MaxTokensPerItem {
			content = truncateMiddle(content, b.MaxTokensPerItem)
			truncated = true
		}

		tokens := EstimateTokens(content)
		if b.MaxTotalTokens > 0 && ctx.TotalTokens+tokens > b.MaxTotalTokens {
			break
		}

		packed := item
		packed.Content = content
		ctx.Items = append(ctx.Items, AssembledItem{
			Item:      packed,
			Citation:  len(ctx.Items),
			Tokens:    tokens,
			Truncated: truncated,
		})
		ctx.TotalTokens += tokens
	}

	return ctx
}

// Render formats the assembled context as a prompt fragment. Each item
// is prefixed with its citation index so the model can reference
// sources by number.
func (c AssembledContext) Render() string {
	if len(c.Items) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Retrieved context:\n\n")
	for _, item := range c.Items {
		source := item.Collection
		if item.Node != "" {
			source = item.Node + "/" + item.Collection
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n\n", item.Citation, source, item.Content)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Empty reports whether nothing was packed.
func (c AssembledContext) Empty() bool {
	return len(c.Items) == 0
}
