package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource scripts a CaptureSource: the seek channel is handed to the test
// so it controls when the seek "completes".
type fakeSource struct {
	seeked      chan struct{}
	seekTo      float64
	playing     bool
	playErr     error
	pauseCalls  int
	recorder    *fakeRecorder
	unsupported bool
}

func newFakeSource() *fakeSource {
	seeked := make(chan struct{})
	close(seeked)
	return &fakeSource{
		seeked:   seeked,
		recorder: &fakeRecorder{},
	}
}

func (s *fakeSource) Seek(ctx context.Context, timeSeconds float64) (<-chan struct{}, error) {
	s.seekTo = timeSeconds
	return s.seeked, nil
}

func (s *fakeSource) Play(ctx context.Context) error {
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	return nil
}

func (s *fakeSource) Pause(ctx context.Context) error {
	s.playing = false
	s.pauseCalls++
	return nil
}

func (s *fakeSource) CurrentTime() float64 { return s.seekTo }

func (s *fakeSource) OutputRecorder() (playback.OutputRecorder, bool) {
	if s.unsupported {
		return nil, false
	}
	return s.recorder, true
}

type fakeRecorder struct {
	started   bool
	stopped   bool
	startedAt time.Time
	stoppedAt time.Time
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.started = true
	r.startedAt = time.Now()
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) (*models.AudioClip, error) {
	r.stopped = true
	r.stoppedAt = time.Now()
	return &models.AudioClip{Data: []byte("encoded"), MimeType: "audio/webm"}, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	return logger
}

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{
		SeekTimeout: 50 * time.Millisecond,
		Margin:      20 * time.Millisecond,
	}, testLogger(t))
}

func TestCaptureWindow(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()

	clip, err := svc.CaptureWindow(context.Background(), src, 1.5, 1.6)
	require.NoError(t, err)
	require.NotNil(t, clip)

	assert.Equal(t, "audio/webm", clip.MimeType)
	assert.NotEmpty(t, clip.Data)
	assert.Equal(t, 1.5, src.seekTo)
	assert.True(t, src.recorder.started)
	assert.True(t, src.recorder.stopped)
	assert.Equal(t, 1, src.pauseCalls)
	assert.False(t, src.playing)
}

func TestCaptureWindow_MarginExtendsRecording(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()

	start := time.Now()
	_, err := svc.CaptureWindow(context.Background(), src, 2.0, 2.1)
	require.NoError(t, err)

	// 100ms window plus 20ms margin.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.GreaterOrEqual(t, src.recorder.stoppedAt.Sub(src.recorder.startedAt), 120*time.Millisecond)
}

func TestCaptureWindow_Unsupported(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()
	src.unsupported = true

	_, err := svc.CaptureWindow(context.Background(), src, 0, 1)
	assert.ErrorIs(t, err, models.ErrCaptureUnsupported)
	assert.False(t, src.recorder.started)
}

func TestCaptureWindow_SeekTimeout(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()
	src.seeked = make(chan struct{}) // never closes

	_, err := svc.CaptureWindow(context.Background(), src, 0, 1)
	assert.ErrorIs(t, err, models.ErrSeekTimeout)

	// Nothing downstream of the seek ran.
	assert.False(t, src.recorder.started)
	assert.False(t, src.playing)
}

func TestCaptureWindow_InvalidWindow(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()

	_, err := svc.CaptureWindow(context.Background(), src, 5.0, 4.0)
	assert.Error(t, err)
	assert.False(t, src.recorder.started)
}

func TestCaptureWindow_CancelDuringWindow(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := svc.CaptureWindow(ctx, src, 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, src.playing)

	// The abandoned recording is stopped so the capture stream is released.
	assert.True(t, src.recorder.stopped)
}

func TestCaptureWindow_PlayFailureReleasesRecorder(t *testing.T) {
	svc := testService(t)
	src := newFakeSource()
	src.playErr = errors.New("player gone")

	_, err := svc.CaptureWindow(context.Background(), src, 0, 1)
	require.Error(t, err)

	assert.True(t, src.recorder.started)
	assert.True(t, src.recorder.stopped)
}
