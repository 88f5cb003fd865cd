package roles

import (
	"fmt"
	"strings"
)

// ContractSpec is a small, explicit system prompt that defines how the
// council behaves for one run. Contracts stack: the factory base contract is
// always applied first, optional product contracts layer on top.
type ContractSpec struct {
	ID               string
	Name             string
	SystemPrompt     string
	ChairmanAddendum string
}

// Contract ids. The factory base contract is applied to every run; product
// contracts are optional layers.
const (
	ContractFactoryTruth    = "factory_truth_v1"
	ContractEldercareSafety = "eldercare_safety_v1"
)

var contracts = map[string]ContractSpec{
	ContractFactoryTruth: {
		ID:   ContractFactoryTruth,
		Name: "Factory Truth-First v1",
		SystemPrompt: "You are running inside a product-agnostic model council.\n" +
			"Contract (must follow):\n" +
			"1) Truth-first: prioritize what is most likely true about the user's real problem; state uncertainty explicitly.\n" +
			"2) Separate facts from guesses; do not blur them.\n" +
			"3) Smallest valuable action: propose something testable with minimal build.\n" +
			"4) One primary risk: name the single highest-risk failure mode and one simple guardrail.\n" +
			"5) Make it legible: short rationale, clear next step, no jargon.\n" +
			"Keep outputs concise and practical.",
		ChairmanAddendum: "Chairman: ensure the final answer is traceable to council inputs. " +
			"If you introduce anything not present in the council answers, label it [New Proposal] and justify it briefly.",
	},
	ContractEldercareSafety: {
		ID:   ContractEldercareSafety,
		Name: "Eldercare Safety v1",
		SystemPrompt: "Product Addendum (elder-care safety):\n" +
			"- Do not provide medical diagnosis or dosing advice. Default to safe-hold instructions and escalation.\n" +
			"- For scam-risk: prioritize immediate 'stop/hold' guidance; avoid asking for sensitive info.\n" +
			"- For caregiver escalation: prioritize burnout controls (rate limits, batching, quiet hours) while preserving safety overrides.\n" +
			"- Be explicit about consent/privacy when capturing audio; keep retention minimal.",
		ChairmanAddendum: "Chairman: keep the result minimal and safe; avoid compliance theater; prefer simple guardrails.",
	},
}

// GetContract returns the ContractSpec for a contract id.
func GetContract(id string) (ContractSpec, error) {
	spec, ok := contracts[id]
	if !ok {
		return ContractSpec{}, fmt.Errorf("unknown contract %q", id)
	}
	return spec, nil
}

// ParseContractStack parses a comma-separated contract stack into an ordered
// id list with the factory base contract always first. Unknown ids are an
// error so the boundary can reject them before any stage runs.
func ParseContractStack(stack string) ([]string, error) {
	ids := []string{ContractFactoryTruth}
	for _, raw := range strings.Split(stack, ",") {
		id := strings.TrimSpace(raw)
		if id == "" || id == ContractFactoryTruth {
			continue
		}
		if _, ok := contracts[id]; !ok {
			return nil, fmt.Errorf("unknown contract %q", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ContractSystemPrompts returns the stacked system prompts for council
// members and judges. ids must come from ParseContractStack.
func ContractSystemPrompts(ids []string) []string {
	prompts := make([]string, 0, len(ids))
	for _, id := range ids {
		if spec, ok := contracts[id]; ok {
			prompts = append(prompts, spec.SystemPrompt)
		}
	}
	return prompts
}

// ChairmanContractSystemPrompts returns the stacked system prompts for the
// chairman, with each contract's addendum appended.
func ChairmanContractSystemPrompts(ids []string) []string {
	prompts := make([]string, 0, len(ids))
	for _, id := range ids {
		spec, ok := contracts[id]
		if !ok {
			continue
		}
		content := spec.SystemPrompt
		if spec.ChairmanAddendum != "" {
			content += "\n" + spec.ChairmanAddendum
		}
		prompts = append(prompts, content)
	}
	return prompts
}
