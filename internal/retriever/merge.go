package retriever

import "sort"

// dedupeKey identifies one logical record across queries and nodes.
func dedupeKey(item Item) string {
	return item.Collection + "/" + item.ID
}

// mergeItems dedupes and ranks retrieved items.
//
// Duplicates (same collection and ID, reached by different queries or
// nodes) keep the higher-scored copy. Ranking is score descending, then
// recency descending, then dedupe key for a stable order. The merged
// list is truncated to limit when limit is positive.
func mergeItems(items []Item, recencyField string, limit int) []Item {
	best := make(map[string]Item, len(items))
	for _, item := range items {
		key := dedupeKey(item)
		if existing, ok := best[key]; ok && existing.Score >= item.Score {
			continue
		}
		best[key] = item
	}

	merged := make([]Item, 0, len(best))
	for _, item := range best {
		merged = append(merged, item)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		ri, rj := recencyOf(merged[i], recencyField), recencyOf(merged[j], recencyField)
		if !ri.Equal(rj) {
			return ri.After(rj)
		}
		return dedupeKey(merged[i]) < dedupeKey(merged[j])
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
