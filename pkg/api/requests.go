package api

// PostMessageRequest is the body of POST /api/conversations/:id/messages
// (both the JSON and the streaming variant).
type PostMessageRequest struct {
	// Content is the user's message. Required, bounded by MAX_PROMPT_BYTES.
	Content string `json:"content"`
	// Contracts optionally names extra contract ids to stack on top of the
	// base contract. Unknown ids are rejected with 400.
	Contracts []string `json:"contracts,omitempty"`
}
