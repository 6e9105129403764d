package models

// SubtitleSegment represents one timed subtitle entry within a video.
// Segments are immutable once produced by the subtitle feed and are ordered
// by StartTime ascending within one video.
type SubtitleSegment struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// SelectionRange represents a user-chosen set of segments forming a practice
// range. StartTime/EndTime/Text are derived from the selected segments and
// the range is never persisted.
type SelectionRange struct {
	Indices   []int   `json:"indices"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// Duration returns the length of the selected window in seconds.
func (r SelectionRange) Duration() float64 {
	return r.EndTime - r.StartTime
}
