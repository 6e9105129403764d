package models

import "time"

// SessionState represents the lifecycle state of a practice session
type SessionState string

// Session states. A session holds exactly one state at a time and phases
// never overlap.
const (
	SessionStateIdle      SessionState = "idle"
	SessionStateCapturing SessionState = "capturing"
	SessionStateReady     SessionState = "ready"
	SessionStateRecording SessionState = "recording"
	SessionStateScored    SessionState = "scored"
	SessionStateReviewing SessionState = "reviewing"
)

// PracticeSession represents one capture-record-score workflow over a
// selected subtitle range. One session is active at a time; it is destroyed
// when the studio closes or a new practice starts.
type PracticeSession struct {
	ID         string         `json:"id"`
	VideoID    string         `json:"video_id"`
	VideoTitle string         `json:"video_title,omitempty"`
	Selection  SelectionRange `json:"selection"`
	State      SessionState   `json:"state"`
	TargetClip *AudioClip     `json:"target_clip,omitempty"`
	UserClip   *AudioClip     `json:"user_clip,omitempty"`
	Score      *int           `json:"score,omitempty"`
	Band       string         `json:"band,omitempty"`
	CardID     string         `json:"card_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// QueueItem represents one entry of the persisted practice queue.
type QueueItem struct {
	VideoID       string  `json:"video_id"`
	SubtitleIndex int     `json:"subtitle_index"`
	Text          string  `json:"text"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
}
