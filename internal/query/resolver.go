package query

import (
	"sort"

	"github.com/threadscope/pkg/models"
)

// DefaultEvidenceCap bounds the resolved evidence set so the reduce prompt
// fits one context window.
const DefaultEvidenceCap = 40

// ResolveEvidence merges per-chunk map outputs into the bounded evidence set
// the reduce stage consumes. Duplicate message IDs keep the highest-relevance
// instance; ordering is relevance descending, then recency descending, then
// message ID for a stable total order. Excess low-ranked items are dropped.
//
// This is a pure function of its input: no model calls, no I/O.
func ResolveEvidence(items []models.Evidence, limit int) []models.Evidence {
	if limit <= 0 {
		limit = DefaultEvidenceCap
	}

	best := make(map[string]models.Evidence, len(items))
	for _, e := range items {
		prev, seen := best[e.MessageID]
		if !seen || e.Relevance > prev.Relevance {
			best[e.MessageID] = e
		}
	}

	ranked := make([]models.Evidence, 0, len(best))
	for _, e := range best {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].MessageID < ranked[j].MessageID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
