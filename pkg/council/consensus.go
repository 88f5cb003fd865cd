package council

import "sort"

// ConsensusMetrics aggregates the non-partial judgements of one run.
// When NonPartial is zero, consensus is undefined and Top1Consensus is empty;
// the orchestrator falls back to the raw Stage-1 order (label A preferred).
type ConsensusMetrics struct {
	Top1Consensus     string
	Top1Support       float64
	AggregateRankings []AggregateRank
	PartialRate       float64
	EvidenceOKRate    float64
	DivergenceExtreme bool
	NonPartial        int
}

// Defined reports whether at least one non-partial judgement contributed.
func (m ConsensusMetrics) Defined() bool {
	return m.NonPartial > 0
}

// ScoreConsensus computes consensus metrics over all judgements of a run.
// Only non-partial judgements vote; partial ones still count toward
// partial_rate and evidence_ok_rate.
func ScoreConsensus(judgements []Judgement, labels *LabelMap) ConsensusMetrics {
	m := ConsensusMetrics{}
	if len(judgements) == 0 {
		return m
	}

	top1Counts := make(map[string]int)
	rankSums := make(map[string]float64)
	rankCounts := make(map[string]int)
	partial := 0
	evidenceSum := 0.0

	for i := range judgements {
		j := &judgements[i]
		evidenceSum += j.EvidenceOKRate()
		if j.Partial {
			partial++
			continue
		}
		m.NonPartial++
		if len(j.ParsedRanking) > 0 {
			top1Counts[j.ParsedRanking[0]]++
		}
		for pos, label := range j.ParsedRanking {
			rankSums[label] += float64(pos + 1)
			rankCounts[label]++
		}
	}

	m.PartialRate = float64(partial) / float64(len(judgements))
	m.EvidenceOKRate = evidenceSum / float64(len(judgements))

	if m.NonPartial == 0 {
		return m
	}

	// Top-1 winner, ties broken by lexicographic label order.
	winners := make([]string, 0, len(top1Counts))
	for label := range top1Counts {
		winners = append(winners, label)
	}
	sort.Strings(winners)
	best, bestCount := "", -1
	for _, label := range winners {
		if top1Counts[label] > bestCount {
			best, bestCount = label, top1Counts[label]
		}
	}
	m.Top1Consensus = best
	m.Top1Support = float64(bestCount) / float64(m.NonPartial)

	// No two non-partial judges share a top-1 pick.
	m.DivergenceExtreme = len(top1Counts) == m.NonPartial && m.NonPartial > 1

	// Mean 1-based rank per label, best first.
	for _, label := range labels.Labels() {
		count := rankCounts[label]
		if count == 0 {
			continue
		}
		model, _ := labels.Model(label)
		m.AggregateRankings = append(m.AggregateRankings, AggregateRank{
			Label:         label,
			Model:         model,
			AverageRank:   rankSums[label] / float64(count),
			RankingsCount: count,
		})
	}
	sort.SliceStable(m.AggregateRankings, func(i, k int) bool {
		return m.AggregateRankings[i].AverageRank < m.AggregateRankings[k].AverageRank
	})

	return m
}
