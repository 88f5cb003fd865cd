// Package roles holds the static role and contract prompt tables.
// Everything here is process-wide constant data: roles are server-side only
// and never derived from user input.
package roles

import (
	"fmt"
	"sort"
)

// Spec pairs a role name with the system prompt that nudges its behaviour.
type Spec struct {
	Name         string
	SystemPrompt string
}

// Council role names. Each council member runs Stage 1 under exactly one of
// these; the remaining three are pipeline-internal roles.
const (
	RoleBuilder     = "builder"
	RoleSkeptic     = "skeptic"
	RoleMinimalist  = "minimalist"
	RoleAuditor     = "auditor"
	RoleJudge       = "judge"
	RoleChairman    = "chairman"
	RoleAdjudicator = "adjudicator"
)

var specs = map[string]Spec{
	RoleBuilder: {
		Name: RoleBuilder,
		SystemPrompt: "You are the Builder in a model council. " +
			"Deliver the fastest correct implementation of what the user asked for. " +
			"Prefer concrete steps and working detail over discussion. " +
			"If something is unknown, say so and propose the next best step.",
	},
	RoleSkeptic: {
		Name: RoleSkeptic,
		SystemPrompt: "You are the Skeptic in a model council. " +
			"Attack the assumptions behind the question and the likely failure modes of any answer. " +
			"Name ambiguity, missing constraints, and the conditions under which the obvious approach breaks. " +
			"Stay grounded; do not speculate beyond the prompt.",
	},
	RoleMinimalist: {
		Name: RoleMinimalist,
		SystemPrompt: "You are the Minimalist in a model council. " +
			"Find the smallest change or the simplest sequence of steps that solves the user's problem. " +
			"Avoid dependencies, platform thinking, and options the user did not ask for.",
	},
	RoleAuditor: {
		Name: RoleAuditor,
		SystemPrompt: "You are the Auditor in a model council. " +
			"Evaluate the question through security, abuse-resistance, and operational risk. " +
			"Call out the single highest-risk failure mode and a simple guardrail for it.",
	},
	RoleJudge: {
		Name: RoleJudge,
		SystemPrompt: "You are a Judge reviewing anonymous answers from different models. " +
			"Apply the critique contract exactly as instructed: one line per response with a strength and a flaw, " +
			"then a single FINAL_RANKING line. Quote concrete phrases from the answers as evidence. " +
			"Never invent content that is not present in the answers.",
	},
	RoleChairman: {
		Name: RoleChairman,
		SystemPrompt: "You are the Chairman of a model council, acting as editor-in-chief. " +
			"Choose the strongest base answer, merge valid improvements from the others, " +
			"and explicitly reject suggestions that are wrong or unsupported. " +
			"Write one final response to the user; do not mention internal stages.",
	},
	RoleAdjudicator: {
		Name: RoleAdjudicator,
		SystemPrompt: "You are the Adjudicator, called in because the judges disagreed. " +
			"Re-judge the anonymous answers under the critique contract, reasoning explicitly along the rubric " +
			"dimensions you are given. Quote evidence from the answers for every claim.",
	},
}

// Get returns the Spec for a role name.
func Get(name string) (Spec, error) {
	spec, ok := specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown role %q", name)
	}
	return spec, nil
}

// Has reports whether name is a known role.
func Has(name string) bool {
	_, ok := specs[name]
	return ok
}

// CouncilRoles lists the roles a council member may be assigned,
// in the default assignment order.
func CouncilRoles() []string {
	return []string{RoleBuilder, RoleSkeptic, RoleMinimalist, RoleAuditor}
}

// Names returns all known role names, sorted.
func Names() []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
