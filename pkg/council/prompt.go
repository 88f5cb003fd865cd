package council

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/conclave-labs/conclave/pkg/roles"
)

// PromptBuilder composes all prompt text for the pipeline. It is stateless
// and safe for concurrent use.
type PromptBuilder struct{}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildStage1SystemPrompts returns the system prompt stack for one council
// member: contract stack first, then the member's role prompt.
func (b *PromptBuilder) BuildStage1SystemPrompts(contractIDs []string, roleName string) ([]string, error) {
	spec, err := roles.Get(roleName)
	if err != nil {
		return nil, err
	}
	return append(roles.ContractSystemPrompts(contractIDs), spec.SystemPrompt), nil
}

// BuildJudgeSystemPrompts returns the system prompt stack for a Stage-2 judge.
func (b *PromptBuilder) BuildJudgeSystemPrompts(contractIDs []string) []string {
	spec, _ := roles.Get(roles.RoleJudge)
	return append(roles.ContractSystemPrompts(contractIDs), spec.SystemPrompt)
}

// BuildJudgeUserPrompt renders the Stage-2 user prompt: the original
// question, the strict critique contract, and the anonymized answers.
// It must never contain a model id.
func (b *PromptBuilder) BuildJudgeUserPrompt(userPrompt string, public []LabeledAnswer) string {
	var sb strings.Builder
	sb.WriteString("USER PROMPT:\n")
	sb.WriteString(userPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(b.formatInstruction(public))
	sb.WriteString("\n\nANONYMIZED RESPONSES:\n")
	for _, a := range public {
		fmt.Fprintf(&sb, "\nResponse %s:\n%s\n", a.Label, a.Text)
	}
	return sb.String()
}

// formatInstruction spells out the exact output contract: one critique line
// per label, then one FINAL_RANKING line. The line count is N+1.
func (b *PromptBuilder) formatInstruction(public []LabeledAnswer) string {
	labels := make([]string, len(public))
	for i, a := range public {
		labels[i] = a.Label
	}
	var sb strings.Builder
	sb.WriteString("You must answer in EXACTLY this format, one line per response, nothing else:\n")
	for _, label := range labels {
		fmt.Fprintf(&sb, "Response %s: Strength: <concrete strength>; Flaw: <concrete flaw>\n", label)
	}
	sb.WriteString("FINAL_RANKING: Response X > Response Y > ...\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Quote a concrete phrase from each response as evidence for its strength or flaw.\n")
	sb.WriteString(`- If a response gives you nothing to work with, write "Insufficient signal in text." as its critique.` + "\n")
	sb.WriteString("- The FINAL_RANKING must contain every label exactly once. Ties are not allowed.\n")
	return sb.String()
}

// BuildChairmanSystemPrompts returns the chairman's system prompt stack,
// including contract addenda.
func (b *PromptBuilder) BuildChairmanSystemPrompts(contractIDs []string) []string {
	spec, _ := roles.Get(roles.RoleChairman)
	return append(roles.ChairmanContractSystemPrompts(contractIDs), spec.SystemPrompt)
}

// BuildChairmanUserPrompt renders the Stage-3 prompt: the anonymized Stage-1
// set, the consensus base label, aggregate ranks, and the rubric dimensions.
func (b *PromptBuilder) BuildChairmanUserPrompt(
	userPrompt string,
	public []LabeledAnswer,
	baseLabel string,
	aggregates []AggregateRank,
) string {
	var sb strings.Builder
	sb.WriteString("You are synthesizing the council's final answer.\n\n")
	fmt.Fprintf(&sb, "The judges' consensus base answer is Response %s.\n", baseLabel)
	if len(aggregates) > 0 {
		sb.WriteString("Aggregate ranks (lower is better):\n")
		for _, agg := range aggregates {
			fmt.Fprintf(&sb, "- Response %s: %.2f over %d rankings\n", agg.Label, agg.AverageRank, agg.RankingsCount)
		}
	}
	sb.WriteString("\nRubric dimensions: " + strings.Join(RubricDimensions, ", ") + ".\n")
	sb.WriteString("\nInstructions:\n")
	sb.WriteString("1) Start from the base answer.\n")
	sb.WriteString("2) Incorporate improvements from other responses where they are valid; ")
	sb.WriteString("explicitly reject suggestions that are wrong or unsupported.\n")
	sb.WriteString("3) Write one final response to the user. Do not mention the council or its stages.\n")
	sb.WriteString("4) After your answer, you MAY append a fenced ```json block with keys ")
	sb.WriteString(`"base_label", "contributors" (label/reason/dimension), and "rejections" (label/point/reason).` + "\n")
	sb.WriteString("\nUSER PROMPT:\n" + userPrompt + "\n")
	sb.WriteString("\nANONYMIZED RESPONSES:\n")
	for _, a := range public {
		fmt.Fprintf(&sb, "\nResponse %s:\n%s\n", a.Label, a.Text)
	}
	return sb.String()
}

// BuildAdjudicatorSystemPrompts returns the adjudicator's system prompt stack.
func (b *PromptBuilder) BuildAdjudicatorSystemPrompts(contractIDs []string) []string {
	spec, _ := roles.Get(roles.RoleAdjudicator)
	return append(roles.ContractSystemPrompts(contractIDs), spec.SystemPrompt)
}

// BuildAdjudicatorUserPrompt renders the adjudication prompt: anonymized
// answers, every judge's rationale, and the rubric dimensions, followed by
// the same strict output contract judges use.
func (b *PromptBuilder) BuildAdjudicatorUserPrompt(
	userPrompt string,
	public []LabeledAnswer,
	judgements []Judgement,
) string {
	var sb strings.Builder
	sb.WriteString("The judges below disagreed; you are re-judging from scratch.\n")
	sb.WriteString("Reason along these rubric dimensions: " + strings.Join(RubricDimensions, ", ") + ".\n\n")
	sb.WriteString("USER PROMPT:\n" + userPrompt + "\n")
	sb.WriteString("\nANONYMIZED RESPONSES:\n")
	for _, a := range public {
		fmt.Fprintf(&sb, "\nResponse %s:\n%s\n", a.Label, a.Text)
	}
	sb.WriteString("\nJUDGE RATIONALES:\n")
	for i, j := range judgements {
		fmt.Fprintf(&sb, "\nJudge %d:\n%s\n", i+1, j.RankingText)
	}
	sb.WriteString("\n" + b.formatInstruction(public))
	return sb.String()
}

// BuildTitleUserPrompt asks for a short conversation title.
func (b *PromptBuilder) BuildTitleUserPrompt(userPrompt string) string {
	return "Write a short title (at most 8 words, no quotes, no trailing punctuation) " +
		"for a conversation that starts with this message:\n\n" + userPrompt
}

var jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// chairmanStructured mirrors the optional fenced JSON block the chairman may
// append to its answer.
type chairmanStructured struct {
	BaseLabel    string        `json:"base_label"`
	Contributors []Contributor `json:"contributors"`
	Rejections   []Rejection   `json:"rejections"`
}

// ParseChairmanOutput splits the chairman's text from its optional
// structured block. The text keeps everything outside the fence; parsing is
// deliberately minimal and never fails the stage.
func ParseChairmanOutput(raw string) (text string, baseLabel string, contributors []Contributor, rejections []Rejection) {
	text = strings.TrimSpace(raw)
	m := jsonFencePattern.FindStringSubmatchIndex(raw)
	if m == nil {
		return text, "", nil, nil
	}

	var structured chairmanStructured
	if err := json.Unmarshal([]byte(raw[m[2]:m[3]]), &structured); err != nil {
		return text, "", nil, nil
	}

	text = strings.TrimSpace(raw[:m[0]] + raw[m[1]:])
	return text, strings.ToUpper(strings.TrimPrefix(structured.BaseLabel, "Response ")),
		structured.Contributors, structured.Rejections
}
