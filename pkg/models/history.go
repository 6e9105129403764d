package models

import "time"

// HistoryLimit caps the practice history at the most recent entries; the
// oldest entries are dropped first.
const HistoryLimit = 500

// PracticeHistoryEntry represents one append-only practice log record. Pure
// audit trail; no algorithm reads it back.
type PracticeHistoryEntry struct {
	VideoID      string    `json:"video_id" db:"video_id"`
	VideoTitle   string    `json:"video_title" db:"video_title"`
	SubtitleText string    `json:"subtitle_text" db:"subtitle_text"`
	StartTime    float64   `json:"start_time" db:"start_time"`
	EndTime      float64   `json:"end_time" db:"end_time"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Score        *int      `json:"score,omitempty" db:"score"`
}

// TrimHistory drops the oldest entries until at most HistoryLimit remain.
func TrimHistory(entries []PracticeHistoryEntry) []PracticeHistoryEntry {
	if len(entries) <= HistoryLimit {
		return entries
	}
	return entries[len(entries)-HistoryLimit:]
}
