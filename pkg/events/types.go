// Package events defines the stage lifecycle events a deliberation run emits
// and the sinks that deliver them to a client.
package events

// Type tags an event on the wire. Clients must ignore unknown types.
type Type string

const (
	TypeStage1Start    Type = "stage1_start"
	TypeStage1Complete Type = "stage1_complete"
	TypeStage2Start    Type = "stage2_start"
	TypeStage2Complete Type = "stage2_complete"
	TypeStage3Start    Type = "stage3_start"
	TypeStage3Complete Type = "stage3_complete"
	TypeTitleComplete  Type = "title_complete"
	TypeComplete       Type = "complete"
	TypeError          Type = "error"
)

// Event is one record of the run's event sequence. Data carries the stage
// payload on *_complete events; Metadata carries the decision trace so far on
// stage2_complete; Message is set on error events.
type Event struct {
	Type     Type   `json:"type"`
	Data     any    `json:"data,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Sink delivers events to one client, in emit order. A failed Emit means the
// client is gone; the orchestrator treats it as a cancellation signal and
// stops emitting, but finishes and persists the run.
type Sink interface {
	Emit(Event) error
}
