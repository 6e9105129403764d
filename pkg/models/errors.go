package models

import "errors"

// Failure kinds for the practice pipeline. All are local-recoverable: they
// terminate the current session phase and return the state machine to Idle
// (or Ready for a failed re-record) without affecting other sessions.
var (
	// ErrCaptureUnsupported means the host media does not support output
	// capture.
	ErrCaptureUnsupported = errors.New("audio capture not supported")

	// ErrSeekTimeout means the host playback did not complete a seek within
	// the configured bound.
	ErrSeekTimeout = errors.New("seek did not complete in time")

	// ErrDecode means a clip's bytes are not valid audio.
	ErrDecode = errors.New("audio decode failed")

	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrInsufficientOverlap means the two PCM buffers share less than one
	// analysis window and cannot be scored.
	ErrInsufficientOverlap = errors.New("insufficient audio overlap to score")

	// ErrStorage means a persistence read/write failed. Writes of history
	// and cards are logged and swallowed; in-memory state stays usable.
	ErrStorage = errors.New("storage operation failed")
)
