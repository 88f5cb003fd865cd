// Package council implements the three-stage deliberation pipeline:
// Stage 1 fans a prompt out to council members, Stage 2 has judges rank the
// anonymized answers under a strict critique contract, and Stage 3 asks the
// chairman to synthesize a single answer. Every run produces a decision
// trace that records why it concluded what it did.
package council

// Stage1Answer is one council member's answer. Immutable after creation;
// produced exactly once per member.
type Stage1Answer struct {
	Model     string `json:"model_id"`
	Role      string `json:"role"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Failed reports whether this member produced no usable answer.
func (a Stage1Answer) Failed() bool {
	return a.Error != "" || a.Text == ""
}

// PartialReason explains why a judgement was excluded from consensus.
type PartialReason string

const (
	PartialReasonEmptyText      PartialReason = "empty_text"
	PartialReasonLineCount      PartialReason = "line_count"
	PartialReasonPlaceholder    PartialReason = "placeholder"
	PartialReasonRankingInvalid PartialReason = "ranking_invalid"
	PartialReasonModelError     PartialReason = "model_error"
	PartialReasonTimeout        PartialReason = "timeout"
)

// Critique is one judge's assessment of one labelled answer.
type Critique struct {
	Strength       string   `json:"strength"`
	Flaw           string   `json:"flaw"`
	EvidenceTokens []string `json:"evidence_tokens,omitempty"`
	EvidenceOK     bool     `json:"evidence_ok"`
	Placeholder    bool     `json:"placeholder,omitempty"`
}

// Judgement is one Stage-2 judge's parsed output.
type Judgement struct {
	Model         string              `json:"model_id"`
	RawText       string              `json:"raw_text"`
	RankingText   string              `json:"ranking_text"`
	ParsedRanking []string            `json:"parsed_ranking"`
	Critiques     map[string]Critique `json:"per_label_critiques"`
	Partial       bool                `json:"partial"`
	PartialReason PartialReason       `json:"partial_reason,omitempty"`
	FormatFixUsed bool                `json:"format_fix_used"`
	Coerced       bool                `json:"coerced"`
	Adjudicator   bool                `json:"adjudicator"`
	LatencyMS     int64               `json:"latency_ms"`
}

// EvidenceOKRate is the fraction of this judge's critiques that quote
// verifiable evidence. Zero when no critiques were parsed.
func (j *Judgement) EvidenceOKRate() float64 {
	if len(j.Critiques) == 0 {
		return 0
	}
	ok := 0
	for _, c := range j.Critiques {
		if c.EvidenceOK {
			ok++
		}
	}
	return float64(ok) / float64(len(j.Critiques))
}

// Contributor records an improvement the chairman merged into the base answer.
type Contributor struct {
	Label     string `json:"label"`
	Reason    string `json:"reason"`
	Dimension string `json:"dimension,omitempty"`
}

// Rejection records a council suggestion the chairman explicitly declined.
type Rejection struct {
	Label  string `json:"label"`
	Point  string `json:"point"`
	Reason string `json:"reason"`
}

// Stage3Result is the chairman's synthesis. All fields are omitempty so a
// failed Stage 3 serializes as {}.
type Stage3Result struct {
	Model        string        `json:"model_id,omitempty"`
	Text         string        `json:"text,omitempty"`
	BaseLabel    string        `json:"base_label,omitempty"`
	Contributors []Contributor `json:"contributors,omitempty"`
	Rejections   []Rejection   `json:"rejections,omitempty"`
	LatencyMS    int64         `json:"latency_ms,omitempty"`
}

// Empty reports whether Stage 3 produced nothing.
func (r Stage3Result) Empty() bool {
	return r.Text == ""
}

// AggregateRank is the mean 1-based rank one label received across
// non-partial judges. Lower is better.
type AggregateRank struct {
	Label         string  `json:"label"`
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// RunError is one degraded-path failure recorded in the decision trace.
type RunError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message"`
}

// AdjudicationRecord documents an adjudication pass in the decision trace.
type AdjudicationRecord struct {
	TriggeredReason string     `json:"triggered_reason"`
	Replaced        bool       `json:"replaced"`
	Result          *Judgement `json:"result,omitempty"`
}

// DecisionTrace is the persisted audit record for one run. It is assembled
// once by the orchestrator and never mutated afterwards.
type DecisionTrace struct {
	ContractStack     string              `json:"contract_stack,omitempty"`
	LabelToModel      map[string]string   `json:"label_to_model"`
	AggregateRankings []AggregateRank     `json:"aggregate_rankings"`
	ModelRoles        map[string]string   `json:"model_roles"`
	Errors            []RunError          `json:"errors"`
	Top1Consensus     string              `json:"top1_consensus,omitempty"`
	Top1Support       float64             `json:"top1_support"`
	EvidenceOKRate    float64             `json:"evidence_ok_rate"`
	PartialRate       float64             `json:"partial_rate"`
	Adjudication      *AdjudicationRecord `json:"adjudication,omitempty"`
}

// AssistantMessage is the schema-stable message handed to the conversation
// store and to clients. Meta and Metadata carry the same DecisionTrace value;
// the duplicate key is tolerated for compatibility. No other keys may be
// added: clients bind to exactly this shape.
type AssistantMessage struct {
	Role     string         `json:"role"`
	Stage1   []Stage1Answer `json:"stage1"`
	Stage2   []Judgement    `json:"stage2"`
	Stage3   Stage3Result   `json:"stage3"`
	Meta     *DecisionTrace `json:"meta"`
	Metadata *DecisionTrace `json:"metadata"`
}
