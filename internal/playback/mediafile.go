package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/chorusapp/chorus/pkg/models"
)

// MediaFile simulates host media playback over a local media file. Position
// advances against the wall clock while playing; output capture extracts the
// played window with FFmpeg. Used when the service itself holds the source
// media; the browser client is the other CaptureSource implementation.
type MediaFile struct {
	mu         sync.Mutex
	ffmpegPath string
	path       string
	duration   float64
	position   float64
	playing    bool
	playedAt   time.Time
}

// NewMediaFile creates a simulated playback surface over the file at path.
func NewMediaFile(ffmpegPath, path string, duration float64) *MediaFile {
	return &MediaFile{
		ffmpegPath: ffmpegPath,
		path:       path,
		duration:   duration,
	}
}

// Seek sets the playback position. Local files seek instantly, so the
// returned channel is already closed.
func (m *MediaFile) Seek(ctx context.Context, timeSeconds float64) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timeSeconds < 0 {
		timeSeconds = 0
	}
	if m.duration > 0 && timeSeconds > m.duration {
		timeSeconds = m.duration
	}
	m.position = timeSeconds
	m.playedAt = time.Now()

	done := make(chan struct{})
	close(done)
	return done, nil
}

// Play starts advancing the playback position.
func (m *MediaFile) Play(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.playing {
		m.playing = true
		m.playedAt = time.Now()
	}
	return nil
}

// Pause freezes the playback position.
func (m *MediaFile) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playing {
		m.position = m.currentLocked()
		m.playing = false
	}
	return nil
}

// CurrentTime returns the simulated playback position in seconds.
func (m *MediaFile) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

func (m *MediaFile) currentLocked() float64 {
	pos := m.position
	if m.playing {
		pos += time.Since(m.playedAt).Seconds()
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	return pos
}

// OutputRecorder returns a window recorder over the media file.
func (m *MediaFile) OutputRecorder() (OutputRecorder, bool) {
	return &windowRecorder{source: m}, true
}

// windowRecorder notes the playback position when started and, on stop,
// extracts the elapsed window from the source file as an opus/webm clip.
type windowRecorder struct {
	source    *MediaFile
	startPos  float64
	startedAt time.Time
	started   bool
}

func (r *windowRecorder) Start(ctx context.Context) error {
	r.startPos = r.source.CurrentTime()
	r.startedAt = time.Now()
	r.started = true
	return nil
}

func (r *windowRecorder) Stop(ctx context.Context) (*models.AudioClip, error) {
	if !r.started {
		return nil, fmt.Errorf("recorder not started")
	}
	elapsed := time.Since(r.startedAt).Seconds()
	return r.source.extractWindow(ctx, r.startPos, elapsed)
}

// extractWindow encodes [start, start+length] of the source file's audio as
// an opus/webm clip.
func (m *MediaFile) extractWindow(ctx context.Context, start, length float64) (*models.AudioClip, error) {
	args := []string{
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-t", strconv.FormatFloat(length, 'f', 3, 64),
		"-i", m.path,
		"-vn",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio extraction failed: %w, stderr: %s", err, stderr.String())
	}

	return &models.AudioClip{
		Data:     stdout.Bytes(),
		MimeType: "audio/webm",
	}, nil
}
