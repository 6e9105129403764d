package models

import "time"

// Practice event kinds published to the event queue.
const (
	EventSessionScored = "session.scored"
	EventCardReviewed  = "card.reviewed"
	EventCardCreated   = "card.created"
)

// PracticeEvent represents one event on the practice-event exchange. The
// worker consumes these to persist history and update review stats; loss of
// an event is logged, never fatal to the session.
type PracticeEvent struct {
	Kind      string                `json:"kind"`
	Entry     *PracticeHistoryEntry `json:"entry,omitempty"`
	CardID    string                `json:"card_id,omitempty"`
	Quality   *int                  `json:"quality,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}
