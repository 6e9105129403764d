// Package capture records a time window of host media output into an
// encoded audio clip.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/pkg/models"
)

// Defaults for the capture timing parameters.
const (
	// DefaultSeekTimeout bounds the wait for the host seek to complete.
	DefaultSeekTimeout = 5 * time.Second

	// DefaultMargin extends recording slightly past the window so trailing
	// audio is not truncated.
	DefaultMargin = 200 * time.Millisecond
)

// Config holds capture timing parameters.
type Config struct {
	SeekTimeout time.Duration
	Margin      time.Duration
}

// Service captures audio windows from a playback source.
type Service struct {
	cfg    Config
	logger *logging.Logger
}

// NewService creates a capture service.
func NewService(cfg Config, logger *logging.Logger) *Service {
	if cfg.SeekTimeout <= 0 {
		cfg.SeekTimeout = DefaultSeekTimeout
	}
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	return &Service{cfg: cfg, logger: logger}
}

// CaptureWindow seeks the source to startTime, records its output while
// playing, and stops both after (endTime-startTime) plus the safety margin.
// The returned clip's encoded duration is at least the requested window and
// at most window+margin plus scheduling jitter; callers re-derive the actual
// duration from decoding.
//
// Fails with models.ErrCaptureUnsupported when the source cannot capture
// output, and models.ErrSeekTimeout when the seek does not complete within
// the configured bound.
func (s *Service) CaptureWindow(ctx context.Context, src playback.CaptureSource, startTime, endTime float64) (*models.AudioClip, error) {
	if endTime < startTime {
		return nil, fmt.Errorf("invalid window: end %.3f before start %.3f", endTime, startTime)
	}

	recorder, ok := src.OutputRecorder()
	if !ok {
		return nil, models.ErrCaptureUnsupported
	}

	seeked, err := src.Seek(ctx, startTime)
	if err != nil {
		return nil, fmt.Errorf("seek failed: %w", err)
	}

	seekTimer := time.NewTimer(s.cfg.SeekTimeout)
	defer seekTimer.Stop()
	select {
	case <-seeked:
	case <-seekTimer.C:
		return nil, models.ErrSeekTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := recorder.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start output recording: %w", err)
	}
	if err := src.Play(ctx); err != nil {
		s.discardRecording(recorder)
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}

	window := time.Duration((endTime-startTime)*float64(time.Second)) + s.cfg.Margin

	windowTimer := time.NewTimer(window)
	defer windowTimer.Stop()
	select {
	case <-windowTimer.C:
	case <-ctx.Done():
		src.Pause(context.Background())
		s.discardRecording(recorder)
		return nil, ctx.Err()
	}

	if err := src.Pause(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to pause playback after capture")
	}

	clip, err := recorder.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stop output recording: %w", err)
	}

	s.logger.Debugf("Captured %.3fs window (%d bytes)", endTime-startTime, len(clip.Data))
	return clip, nil
}

// discardRecording stops a started recorder on an abort path, releasing the
// host capture stream. The partial clip is dropped.
func (s *Service) discardRecording(recorder playback.OutputRecorder) {
	if _, err := recorder.Stop(context.Background()); err != nil {
		s.logger.WithError(err).Warn("Failed to release output recorder")
	}
}
