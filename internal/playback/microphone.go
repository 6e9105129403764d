package playback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/chorusapp/chorus/pkg/models"
)

// DeviceMicrophone captures user audio from a host capture device through
// FFmpeg. Used when the service runs co-located with the user; browser
// clients record locally and upload the clip instead.
type DeviceMicrophone struct {
	ffmpegPath string
	format     string
	device     string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout *bytes.Buffer
	opened bool
}

// NewDeviceMicrophone creates a microphone over an FFmpeg input device.
// format is the input format (alsa, pulse, avfoundation); device names the
// capture source within it.
func NewDeviceMicrophone(ffmpegPath, format, device string) *DeviceMicrophone {
	return &DeviceMicrophone{
		ffmpegPath: ffmpegPath,
		format:     format,
		device:     device,
	}
}

// Open acquires the capture device. An unconfigured device reads as a
// permission refusal, same as a denied microphone prompt.
func (d *DeviceMicrophone) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == "" {
		return fmt.Errorf("%w: no capture device configured", models.ErrPermissionDenied)
	}
	d.opened = true
	return nil
}

// Start begins recording from the device into an opus/webm buffer.
func (d *DeviceMicrophone) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return fmt.Errorf("microphone not opened")
	}
	if d.cmd != nil {
		return fmt.Errorf("microphone already recording")
	}

	args := []string{
		"-f", d.format,
		"-i", d.device,
		"-ac", "1",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}

	cmd := exec.Command(d.ffmpegPath, args...)
	buf := &bytes.Buffer{}
	cmd.Stdout = buf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	d.cmd = cmd
	d.stdout = buf
	return nil
}

// Stop ends the recording and returns the captured clip. FFmpeg is
// interrupted rather than killed so it finalizes the container.
func (d *DeviceMicrophone) Stop(ctx context.Context) (*models.AudioClip, error) {
	d.mu.Lock()
	cmd := d.cmd
	buf := d.stdout
	d.cmd = nil
	d.stdout = nil
	d.mu.Unlock()

	if cmd == nil {
		return nil, fmt.Errorf("microphone not recording")
	}

	_ = cmd.Process.Signal(os.Interrupt)
	_ = cmd.Wait()

	return &models.AudioClip{
		Data:     buf.Bytes(),
		MimeType: "audio/webm",
	}, nil
}

// Close releases the device, killing any recording still in flight.
func (d *DeviceMicrophone) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
		d.cmd = nil
		d.stdout = nil
	}
	d.opened = false
}
