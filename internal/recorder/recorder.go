// Package recorder captures the user's voice while the target clip plays.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/pkg/models"
)

// Defaults for the pre-roll countdown.
const (
	DefaultCountdownTicks = 3
	DefaultTickInterval   = time.Second
)

// Config holds recording timing parameters.
type Config struct {
	CountdownTicks int
	TickInterval   time.Duration
}

// CountdownFunc observes countdown ticks (3, 2, 1) for presentation. May be
// nil.
type CountdownFunc func(remaining int)

// Recorder records the user's microphone for the duration of N scripted
// playbacks of a target clip.
type Recorder struct {
	cfg    Config
	player playback.ClipPlayer
	logger *logging.Logger
}

// New creates a recorder that plays target clips through player.
func New(cfg Config, player playback.ClipPlayer, logger *logging.Logger) *Recorder {
	if cfg.CountdownTicks <= 0 {
		cfg.CountdownTicks = DefaultCountdownTicks
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Recorder{cfg: cfg, player: player, logger: logger}
}

// RecordDuringPlayback acquires the microphone, runs the pre-roll countdown,
// then records while playing target from the start listenCount times
// sequentially. Recording never begins before the countdown finishes.
//
// Cancelling ctx after recording has started stops recording at that point
// and returns the partial clip; the result is still valid scorer input.
// Cancelling during the countdown aborts without a clip. Microphone refusal
// surfaces as models.ErrPermissionDenied.
func (r *Recorder) RecordDuringPlayback(ctx context.Context, mic playback.MicrophoneSource, target *models.AudioClip, listenCount int, rate float64, onTick CountdownFunc) (*models.AudioClip, error) {
	if listenCount < 1 {
		listenCount = 1
	}
	if rate <= 0 {
		rate = 1
	}

	if err := mic.Open(ctx); err != nil {
		return nil, err
	}
	defer mic.Close()

	if err := r.countdown(ctx, onTick); err != nil {
		return nil, err
	}

	if err := mic.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}

	for i := 0; i < listenCount; i++ {
		if err := r.player.PlayOnce(ctx, target, rate); err != nil {
			if ctx.Err() != nil {
				// Manual stop mid-playback: the recording up to this point
				// still covers part of the utterance.
				r.logger.Debugf("Recording stopped after %d/%d playbacks", i, listenCount)
				break
			}
			mic.Stop(context.Background())
			return nil, fmt.Errorf("target playback failed: %w", err)
		}
	}

	clip, err := mic.Stop(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	return clip, nil
}

func (r *Recorder) countdown(ctx context.Context, onTick CountdownFunc) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for remaining := r.cfg.CountdownTicks; remaining > 0; remaining-- {
		if onTick != nil {
			onTick(remaining)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
