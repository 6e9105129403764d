package subtitles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chorusapp/chorus/pkg/models"
)

// NoCurrent is returned by ResolveCurrent when the playback time precedes
// the first segment or no segments are loaded.
const NoCurrent = -1

// Index holds the ordered, immutable subtitle segments of one video and
// resolves the current segment against the advancing playback clock. The
// whole sequence is replaced wholesale when the video changes.
type Index struct {
	videoID  string
	segments []models.SubtitleSegment

	// mu guards lastIndex; resolution may run from concurrent requests.
	mu        sync.Mutex
	lastIndex int
}

// NewIndex builds an index over an ordered segment sequence. The feed is
// trusted to deliver segments sorted by start time.
func NewIndex(videoID string, segments []models.SubtitleSegment) *Index {
	segs := make([]models.SubtitleSegment, len(segments))
	copy(segs, segments)
	for i := range segs {
		segs[i].Index = i
	}
	return &Index{
		videoID:   videoID,
		segments:  segs,
		lastIndex: NoCurrent,
	}
}

// VideoID returns the video this index was built for.
func (idx *Index) VideoID() string {
	return idx.videoID
}

// Len returns the number of segments.
func (idx *Index) Len() int {
	return len(idx.segments)
}

// Segments returns a copy of the ordered segment sequence.
func (idx *Index) Segments() []models.SubtitleSegment {
	segs := make([]models.SubtitleSegment, len(idx.segments))
	copy(segs, idx.segments)
	return segs
}

// Segment returns the segment at position i.
func (idx *Index) Segment(i int) (models.SubtitleSegment, bool) {
	if i < 0 || i >= len(idx.segments) {
		return models.SubtitleSegment{}, false
	}
	return idx.segments[i], true
}

// ResolveCurrent returns the index of the segment containing timeSeconds:
// the segment i with timeSeconds >= segments[i].StartTime and either i is
// last or timeSeconds < segments[i+1].StartTime. Returns NoCurrent when the
// time precedes the first segment. Called on every playback tick; only the
// last resolved index is remembered, for a cheap no-change comparison.
func (idx *Index) ResolveCurrent(timeSeconds float64) int {
	if len(idx.segments) == 0 {
		return NoCurrent
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if timeSeconds < idx.segments[0].StartTime {
		idx.lastIndex = NoCurrent
		return NoCurrent
	}

	// Fast path: still inside the segment resolved on the previous tick.
	if i := idx.lastIndex; i >= 0 && i < len(idx.segments) {
		if timeSeconds >= idx.segments[i].StartTime &&
			(i == len(idx.segments)-1 || timeSeconds < idx.segments[i+1].StartTime) {
			return i
		}
	}

	i := sort.Search(len(idx.segments), func(i int) bool {
		return idx.segments[i].StartTime > timeSeconds
	}) - 1

	idx.lastIndex = i
	return i
}

// BuildRange builds a SelectionRange from the chosen segment positions.
// Out-of-bounds indices are ignored; an empty effective selection is an
// error the caller must guard against before starting practice.
func (idx *Index) BuildRange(indices []int) (models.SelectionRange, error) {
	valid := make([]int, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(idx.segments) || seen[i] {
			continue
		}
		seen[i] = true
		valid = append(valid, i)
	}
	if len(valid) == 0 {
		return models.SelectionRange{}, fmt.Errorf("empty selection")
	}
	sort.Ints(valid)

	first := idx.segments[valid[0]]
	last := idx.segments[valid[len(valid)-1]]

	texts := make([]string, len(valid))
	for n, i := range valid {
		texts[n] = idx.segments[i].Text
	}

	return models.SelectionRange{
		Indices:   valid,
		StartTime: first.StartTime,
		EndTime:   last.EndTime,
		Text:      strings.Join(texts, " "),
	}, nil
}
