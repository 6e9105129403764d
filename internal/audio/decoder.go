package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"

	"github.com/chorusapp/chorus/pkg/models"
)

// DefaultSampleRate is the rate all clips are decoded at. Fixing the output
// rate keeps decoding idempotent regardless of the clip's native rate.
const DefaultSampleRate = 16000

// Decoder decodes encoded audio clips to mono PCM using FFmpeg. The decoder
// holds no per-clip state and is safe for reuse across calls.
type Decoder struct {
	ffmpegPath string
	sampleRate int
}

// NewDecoder creates a decoder that resamples to the given rate.
func NewDecoder(ffmpegPath string, sampleRate int) *Decoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Decoder{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
	}
}

// Decode turns a clip into mono float PCM in [-1, 1]. The clip is not
// mutated; decoding the same clip twice yields equal sample data. Returns
// models.ErrDecode when the bytes are not valid audio (a zero-length capture
// included).
func (d *Decoder) Decode(ctx context.Context, clip *models.AudioClip) (*models.DecodedAudio, error) {
	if clip == nil || len(clip.Data) == 0 {
		return nil, fmt.Errorf("%w: empty clip", models.ErrDecode)
	}

	args := []string{
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", d.sampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(clip.Data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v, stderr: %s", models.ErrDecode, err, stderr.String())
	}

	samples, err := parsePCM(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples decoded", models.ErrDecode)
	}

	return &models.DecodedAudio{
		Samples:    samples,
		SampleRate: d.sampleRate,
	}, nil
}

// parsePCM converts little-endian float32 frames to float64 samples.
func parsePCM(raw []byte) ([]float64, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: truncated PCM stream (%d bytes)", models.ErrDecode, len(raw))
	}

	samples := make([]float64, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples, nil
}
