// Package playback models the host media surface the practice pipeline
// drives: playback control, host output capture, microphone capture and clip
// playback. The session state machine owns exactly one of these at a time;
// no two phases drive playback concurrently.
package playback

import (
	"context"

	"github.com/chorusapp/chorus/pkg/models"
)

// Controller drives host media playback.
type Controller interface {
	// Seek moves playback to timeSeconds. The returned channel closes when
	// the seek has visibly completed; callers bound the wait.
	Seek(ctx context.Context, timeSeconds float64) (<-chan struct{}, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	CurrentTime() float64
}

// OutputRecorder records the host's audio output into an encoded clip.
type OutputRecorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*models.AudioClip, error)
}

// CaptureSource is a controller whose audio output can be captured.
type CaptureSource interface {
	Controller

	// OutputRecorder returns a recorder over the host output, or false when
	// the host does not support output capture.
	OutputRecorder() (OutputRecorder, bool)
}

// MicrophoneSource captures user audio as an encoded clip until stopped.
type MicrophoneSource interface {
	// Open acquires microphone access. Fails with
	// models.ErrPermissionDenied when access is refused.
	Open(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*models.AudioClip, error)
	// Close releases the microphone stream. Safe to call in any state.
	Close()
}

// ClipPlayer plays an encoded clip from the start to completion once.
type ClipPlayer interface {
	PlayOnce(ctx context.Context, clip *models.AudioClip, rate float64) error
}
