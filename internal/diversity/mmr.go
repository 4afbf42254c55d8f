// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package diversity

import (
	"strings"

	"github.com/tomtom215/newsdesk/internal/scoring"
)

// maxSelectSize bounds the similarity matrix.
const maxSelectSize = 10000

// MMR implements Maximal Marginal Relevance selection over topic sets.
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max(sim(i, s)) for s in selected]
//
// sim is the Jaccard similarity of the items' topic tags. Ties go to the
// higher-ranked item, so the output is deterministic.
//
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct {
	lambda float64
}

// NewMMR creates an MMR selector; lambda is clamped to [0,1].
func NewMMR(lambda float64) *MMR {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{lambda: lambda}
}

// Name returns the strategy identifier.
func (m *MMR) Name() string { return StrategyMMR }

// Select returns min(k, len(scored)) items in MMR order.
func (m *MMR) Select(scored []scoring.Scored, k int) []scoring.Scored {
	if k <= 0 || len(scored) == 0 {
		return nil
	}
	items := scored
	if len(items) > maxSelectSize {
		items = items[:maxSelectSize]
	}
	if k > len(items) {
		k = len(items)
	}
	if m.lambda >= 1 {
		return append([]scoring.Scored(nil), items[:k]...)
	}

	sets := make([]map[string]struct{}, len(items))
	for i, sc := range items {
		sets[i] = topicSet(sc.Item.Topics)
	}

	selected := make([]scoring.Scored, 0, k)
	taken := make([]bool, len(items))
	// maxSim[i] is the highest similarity between item i and any chosen item.
	maxSim := make([]float64, len(items))

	for len(selected) < k {
		best := -1
		bestScore := 0.0
		for i, sc := range items {
			if taken[i] {
				continue
			}
			v := m.lambda*sc.Result.Score - (1-m.lambda)*maxSim[i]
			if best < 0 || v > bestScore {
				best, bestScore = i, v
			}
		}
		if best < 0 {
			break
		}

		taken[best] = true
		selected = append(selected, items[best])
		for i := range items {
			if taken[i] {
				continue
			}
			if sim := jaccard(sets[i], sets[best]); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return selected
}

func topicSet(topics []string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var _ Selector = (*MMR)(nil)
