package models

import "time"

// Review quality ratings. The UI exposes exactly four buttons; 1 and 2 are
// valid algorithm inputs but never produced by the review surface.
const (
	QualityAgain = 0
	QualityHard  = 3
	QualityGood  = 4
	QualityEasy  = 5
)

// MinEaseFactor is the floor the ease factor never drops below.
const MinEaseFactor = 1.3

// SRSCard represents a spaced-repetition flashcard promoted from a practice
// session. Mutated only by the review transition; deletion is an explicit
// external action.
type SRSCard struct {
	ID          string     `json:"id" db:"id"`
	VideoID     string     `json:"video_id" db:"video_id"`
	VideoTitle  string     `json:"video_title" db:"video_title"`
	Text        string     `json:"text" db:"text"`
	StartTime   float64    `json:"start_time" db:"start_time"`
	EndTime     float64    `json:"end_time" db:"end_time"`
	AudioBase64 string     `json:"audio_base64" db:"audio_base64"`
	Created     time.Time  `json:"created" db:"created"`
	Interval    float64    `json:"interval" db:"interval"`
	Repetition  int        `json:"repetition" db:"repetition"`
	EaseFactor  float64    `json:"ease_factor" db:"ease_factor"`
	NextReview  time.Time  `json:"next_review" db:"next_review"`
	LastReview  *time.Time `json:"last_review,omitempty" db:"last_review"`
}

// NewSRSCard creates a card with the initial scheduling state: due
// immediately, one-day interval, default ease factor.
func NewSRSCard(id, videoID, videoTitle, text string, startTime, endTime float64, audioBase64 string, now time.Time) *SRSCard {
	return &SRSCard{
		ID:          id,
		VideoID:     videoID,
		VideoTitle:  videoTitle,
		Text:        text,
		StartTime:   startTime,
		EndTime:     endTime,
		AudioBase64: audioBase64,
		Created:     now,
		Interval:    1,
		Repetition:  0,
		EaseFactor:  2.5,
		NextReview:  now,
		LastReview:  nil,
	}
}

// Due reports whether the card is due for review at the given time.
func (c *SRSCard) Due(now time.Time) bool {
	return !c.NextReview.After(now)
}
