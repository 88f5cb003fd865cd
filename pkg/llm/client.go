// Package llm provides the model gateway abstraction used by the council
// pipeline. The only contract an upstream gateway must satisfy is: given a
// model id and a prompt pair, return text or a classified error before the
// caller's deadline expires.
package llm

import "context"

// ModelClient issues one prompt to one named model.
// Implementations must honour ctx deadlines and must not retry internally;
// retry policy belongs to the stage runner.
type ModelClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single model call.
// SystemPrompts are sent in order before the user prompt (contract stack
// first, then the role prompt).
type CompletionRequest struct {
	Model         string
	SystemPrompts []string
	UserPrompt    string
}
