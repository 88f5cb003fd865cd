package council

import (
	"fmt"
	"sort"
)

// maxLabels bounds the label alphabet. Two-character labels (AA, AB, ...)
// are rejected until their behaviour is decided.
const maxLabels = 26

// LabeledAnswer is the judge-facing view of a Stage-1 answer: label and text
// only, never a model id.
type LabeledAnswer struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// LabelMap is the bijection between labels A..N and the council models that
// produced a non-error Stage-1 answer. Label order follows council config
// order with failed answers skipped. Stable for the lifetime of one run.
type LabelMap struct {
	labels  []string
	byLabel map[string]string // label -> model
	byModel map[string]string // model -> label
}

// Anonymize assigns labels to the non-errored answers in their given order.
// Returns an error when more than 26 answers survive Stage 1.
func Anonymize(answers []Stage1Answer) (*LabelMap, error) {
	m := &LabelMap{
		byLabel: make(map[string]string),
		byModel: make(map[string]string),
	}
	for _, a := range answers {
		if a.Failed() {
			continue
		}
		if len(m.labels) >= maxLabels {
			return nil, fmt.Errorf("cannot anonymize more than %d answers", maxLabels)
		}
		label := string(rune('A' + len(m.labels)))
		m.labels = append(m.labels, label)
		m.byLabel[label] = a.Model
		m.byModel[a.Model] = label
	}
	return m, nil
}

// Labels returns the assigned labels in order (a copy).
func (m *LabelMap) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// Len returns the number of labelled answers.
func (m *LabelMap) Len() int {
	return len(m.labels)
}

// Model resolves a label back to its model id.
func (m *LabelMap) Model(label string) (string, bool) {
	model, ok := m.byLabel[label]
	return model, ok
}

// Label resolves a model id to its label.
func (m *LabelMap) Label(model string) (string, bool) {
	label, ok := m.byModel[model]
	return label, ok
}

// ToModelMap returns label -> model for the decision trace. Only the
// orchestrator may see this; it must never reach a judge prompt.
func (m *LabelMap) ToModelMap() map[string]string {
	out := make(map[string]string, len(m.byLabel))
	for label, model := range m.byLabel {
		out[label] = model
	}
	return out
}

// ToPublic returns the anonymized view of the answers, in label order.
// Failed answers are skipped to mirror label assignment.
func (m *LabelMap) ToPublic(answers []Stage1Answer) []LabeledAnswer {
	out := make([]LabeledAnswer, 0, len(m.labels))
	for _, a := range answers {
		if a.Failed() {
			continue
		}
		if label, ok := m.byModel[a.Model]; ok {
			out = append(out, LabeledAnswer{Label: label, Text: a.Text})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
