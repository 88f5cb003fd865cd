package api

import "github.com/conclave-labs/conclave/pkg/store"

// IndexResponse is returned by GET /.
type IndexResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// ConversationListResponse is returned by GET /api/conversations.
type ConversationListResponse struct {
	Conversations []store.Summary `json:"conversations"`
}

// userMessage is the shape persisted for each user turn.
type userMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
