package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldAdjudicate(t *testing.T) {
	tests := []struct {
		name       string
		metrics    ConsensusMetrics
		want       bool
		wantReason string
	}{
		{
			name: "strong consensus does not adjudicate",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.75, EvidenceOKRate: 0.9, PartialRate: 0.0,
			},
			want: false,
		},
		{
			name: "low top1 support",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.5, EvidenceOKRate: 0.9, PartialRate: 0.0,
			},
			want:       true,
			wantReason: ReasonLowTop1Support,
		},
		{
			name: "low evidence rate",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.75, EvidenceOKRate: 0.5, PartialRate: 0.0,
			},
			want:       true,
			wantReason: ReasonLowEvidenceOKRate,
		},
		{
			name: "high partial rate",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.75, EvidenceOKRate: 0.9, PartialRate: 0.25,
			},
			want:       true,
			wantReason: ReasonHighPartialRate,
		},
		{
			name: "extreme divergence",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.75, EvidenceOKRate: 0.9, PartialRate: 0.0,
				DivergenceExtreme: true,
			},
			want:       true,
			wantReason: ReasonDivergenceExtreme,
		},
		{
			name: "support check precedes evidence check",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.25, EvidenceOKRate: 0.25, PartialRate: 0.5,
			},
			want:       true,
			wantReason: ReasonLowTop1Support,
		},
		{
			name: "undefined consensus never adjudicates",
			metrics: ConsensusMetrics{
				NonPartial: 0, Top1Support: 0, EvidenceOKRate: 0, PartialRate: 1.0,
			},
			want: false,
		},
		{
			name: "thresholds are exclusive at the boundary",
			metrics: ConsensusMetrics{
				NonPartial: 4, Top1Support: 0.60, EvidenceOKRate: 0.75, PartialRate: 0.10,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldAdjudicate(tt.metrics)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestMergeAdjudication(t *testing.T) {
	t.Run("non-partial verdict replaces the consensus", func(t *testing.T) {
		m := ConsensusMetrics{Top1Consensus: "A", NonPartial: 2}
		adj := &Judgement{ParsedRanking: []string{"C", "A", "B"}, Adjudicator: true}

		assert.True(t, MergeAdjudication(&m, adj))
		assert.Equal(t, "C", m.Top1Consensus)
	})

	t.Run("partial verdict is ignored", func(t *testing.T) {
		m := ConsensusMetrics{Top1Consensus: "A", NonPartial: 2}
		adj := &Judgement{Partial: true, PartialReason: PartialReasonRankingInvalid, ParsedRanking: []string{}}

		assert.False(t, MergeAdjudication(&m, adj))
		assert.Equal(t, "A", m.Top1Consensus)
	})

	t.Run("nil verdict is ignored", func(t *testing.T) {
		m := ConsensusMetrics{Top1Consensus: "A"}
		assert.False(t, MergeAdjudication(&m, nil))
		assert.Equal(t, "A", m.Top1Consensus)
	})
}
