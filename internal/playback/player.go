package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusapp/chorus/pkg/models"
)

// DurationFunc derives the playable duration of an encoded clip, typically
// by decoding it.
type DurationFunc func(ctx context.Context, clip *models.AudioClip) (time.Duration, error)

// TimedPlayer is a ClipPlayer that paces playback against the wall clock:
// PlayOnce returns when the clip would have finished playing at the given
// rate. Used server-side where no audible output device exists but the
// recording window must still span the scripted playbacks.
type TimedPlayer struct {
	duration DurationFunc
}

// NewTimedPlayer creates a player paced by the clip duration from fn.
func NewTimedPlayer(fn DurationFunc) *TimedPlayer {
	return &TimedPlayer{duration: fn}
}

// PlayOnce blocks for the clip's duration scaled by rate.
func (p *TimedPlayer) PlayOnce(ctx context.Context, clip *models.AudioClip, rate float64) error {
	if rate <= 0 {
		rate = 1
	}

	d, err := p.duration(ctx, clip)
	if err != nil {
		return fmt.Errorf("failed to derive clip duration: %w", err)
	}

	timer := time.NewTimer(time.Duration(float64(d) / rate))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
