package assembler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/assembler"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
)

func item(id, content string, score float32) retriever.Item {
	return retriever.Item{ID: id, Collection: "docs", Content: content, Score: score}
}

func TestAssemblePreservesRankOrder(t *testing.T) {
	items := []retriever.Item{
		item("a", "first", 0.9),
		item("b", "second", 0.8),
		item("c", "third", 0.7),
	}

	ctx := assembler.Assemble(items, budget.Budget{MaxTokensPerItem: 100, MaxTotalTokens: 1000})

	require.Len(t, ctx.Items, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, ctx.Items[i].ID)
		assert.Equal(t, i, ctx.Items[i].Citation, "citations are zero-based positions")
	}
}

func TestAssembleTruncatesOversizedItem(t *testing.T) {
	big := strings.Repeat("important detail ", 200)
	ctx := assembler.Assemble([]retriever.Item{item("a", big, 0.9)}, budget.Budget{
		MaxTokensPerItem: 50,
		MaxTotalTokens:   1000,
	})

	require.Len(t, ctx.Items, 1)
	assert.True(t, ctx.Items[0].Truncated)
	assert.LessOrEqual(t, ctx.Items[0].Tokens, 50)
	assert.Contains(t, ctx.Items[0].Content, "[... truncated ...]")
}

func TestAssembleDropsWholeItemAtCeiling(t *testing.T) {
	// Each item is 25 tokens after the per-item ceiling; the third would
	// push the total past 60.
	content := strings.Repeat("x", 100)
	items := []retriever.Item{
		item("a", content, 0.9),
		item("b", content, 0.8),
		item("c", content, 0.7),
		item("d", "tiny", 0.6),
	}

	ctx := assembler.Assemble(items, budget.Budget{MaxTokensPerItem: 100, MaxTotalTokens: 60})

	require.Len(t, ctx.Items, 2, "packing stops at the first item over the ceiling")
	assert.Equal(t, "a", ctx.Items[0].ID)
	assert.Equal(t, "b", ctx.Items[1].ID)
	assert.Equal(t, 50, ctx.TotalTokens)
}

func TestAssembleNoBudgetMeansNoCeilings(t *testing.T) {
	ctx := assembler.Assemble([]retriever.Item{
		item("a", strings.Repeat("x", 10000), 0.9),
	}, budget.Budget{})

	require.Len(t, ctx.Items, 1)
	assert.False(t, ctx.Items[0].Truncated)
}

func TestAssembleEmpty(t *testing.T) {
	ctx := assembler.Assemble(nil, budget.Budget{MaxTotalTokens: 100})
	assert.True(t, ctx.Empty())
	assert.Equal(t, "", ctx.Render())
}

func TestRenderFormat(t *testing.T) {
	remote := item("b", "remote content", 0.8)
	remote.Node = "node-east"

	ctx := assembler.Assemble([]retriever.Item{
		item("a", "local content", 0.9),
		remote,
	}, budget.Budget{MaxTotalTokens: 1000})

	rendered := ctx.Render()
	assert.True(t, strings.HasPrefix(rendered, "Retrieved context:"))
	assert.Contains(t, rendered, "[0] (docs) local content")
	assert.Contains(t, rendered, "[1] (node-east/docs) remote content")
}
