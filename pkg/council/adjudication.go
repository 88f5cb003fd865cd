package council

// Adjudication trigger thresholds. The reason strings below record which
// threshold fired in the decision trace.
const (
	minTop1Support    = 0.60
	minEvidenceOKRate = 0.75
	maxPartialRate    = 0.10
)

// Reason strings recorded as DecisionTrace.Adjudication.TriggeredReason.
const (
	ReasonLowTop1Support    = "top1_support<0.60"
	ReasonLowEvidenceOKRate = "evidence_ok_rate<0.75"
	ReasonHighPartialRate   = "partial_rate>0.10"
	ReasonDivergenceExtreme = "divergence_extreme"
)

// RubricDimensions are the judging dimensions the adjudicator (and the
// chairman) reason along.
var RubricDimensions = []string{
	"correctness",
	"completeness",
	"actionability",
	"risk_safety",
	"clarity",
	"contract_compliance",
}

// ShouldAdjudicate decides whether consensus is weak enough to call in the
// adjudicator. Checks run in a fixed order; the first failing check names
// the trigger. Undefined consensus never adjudicates: there is nothing to
// re-judge against.
func ShouldAdjudicate(m ConsensusMetrics) (bool, string) {
	if !m.Defined() {
		return false, ""
	}
	switch {
	case m.Top1Support < minTop1Support:
		return true, ReasonLowTop1Support
	case m.EvidenceOKRate < minEvidenceOKRate:
		return true, ReasonLowEvidenceOKRate
	case m.PartialRate > maxPartialRate:
		return true, ReasonHighPartialRate
	case m.DivergenceExtreme:
		return true, ReasonDivergenceExtreme
	}
	return false, ""
}

// MergeAdjudication folds an adjudicator judgement into the consensus:
// the adjudicator's top-1 replaces Top1Consensus iff its ranking is
// non-partial. Returns whether the replacement happened.
func MergeAdjudication(m *ConsensusMetrics, adj *Judgement) bool {
	if adj == nil || adj.Partial || len(adj.ParsedRanking) == 0 {
		return false
	}
	m.Top1Consensus = adj.ParsedRanking[0]
	return true
}
