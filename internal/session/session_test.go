package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chorusapp/chorus/internal/capture"
	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/internal/recorder"
	"github.com/chorusapp/chorus/internal/scoring"
	"github.com/chorusapp/chorus/internal/subtitles"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes for the playback surfaces.

type fakeSource struct {
	seeked      chan struct{}
	unsupported bool
}

func newFakeSource() *fakeSource {
	seeked := make(chan struct{})
	close(seeked)
	return &fakeSource{seeked: seeked}
}

func (s *fakeSource) Seek(ctx context.Context, timeSeconds float64) (<-chan struct{}, error) {
	return s.seeked, nil
}
func (s *fakeSource) Play(ctx context.Context) error  { return nil }
func (s *fakeSource) Pause(ctx context.Context) error { return nil }
func (s *fakeSource) CurrentTime() float64            { return 0 }

func (s *fakeSource) OutputRecorder() (playback.OutputRecorder, bool) {
	if s.unsupported {
		return nil, false
	}
	return &fakeOutputRecorder{}, true
}

type fakeOutputRecorder struct{}

func (r *fakeOutputRecorder) Start(ctx context.Context) error { return nil }
func (r *fakeOutputRecorder) Stop(ctx context.Context) (*models.AudioClip, error) {
	return &models.AudioClip{Data: []byte("target-bytes"), MimeType: "audio/webm"}, nil
}

type fakeMic struct {
	mu      sync.Mutex
	denied  bool
	touched bool
}

func (m *fakeMic) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = true
	if m.denied {
		return models.ErrPermissionDenied
	}
	return nil
}
func (m *fakeMic) Start(ctx context.Context) error { return nil }
func (m *fakeMic) Stop(ctx context.Context) (*models.AudioClip, error) {
	return &models.AudioClip{Data: []byte("mic-bytes"), MimeType: "audio/webm"}, nil
}
func (m *fakeMic) Close() {}

func (m *fakeMic) wasTouched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched
}

// instantPlayer completes each scripted playback immediately.
type instantPlayer struct{}

func (instantPlayer) PlayOnce(ctx context.Context, clip *models.AudioClip, rate float64) error {
	return ctx.Err()
}

// fakeDecoder derives deterministic PCM from the clip bytes, so identical
// clips score identically without touching a real codec.
type fakeDecoder struct {
	failFor string
}

func (d *fakeDecoder) Decode(ctx context.Context, clip *models.AudioClip) (*models.DecodedAudio, error) {
	if clip == nil || len(clip.Data) == 0 {
		return nil, models.ErrDecode
	}
	if d.failFor != "" && string(clip.Data) == d.failFor {
		return nil, models.ErrDecode
	}

	samples := make([]float64, scoring.WindowSize*4)
	seed := float64(clip.Data[0]%7+1) / 10
	for i := range samples {
		if i%2 == 0 {
			samples[i] = seed
		} else {
			samples[i] = -seed
		}
	}
	return &models.DecodedAudio{Samples: samples, SampleRate: 16000}, nil
}

// In-memory stores.

type memCardStore struct {
	mu    sync.Mutex
	cards map[string]models.SRSCard
}

func newMemCardStore() *memCardStore {
	return &memCardStore{cards: make(map[string]models.SRSCard)}
}

func (s *memCardStore) CreateCard(ctx context.Context, card *models.SRSCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = *card
	return nil
}

func (s *memCardStore) GetCard(ctx context.Context, id string) (*models.SRSCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, errors.New("card not found")
	}
	return &card, nil
}

func (s *memCardStore) UpdateCard(ctx context.Context, card *models.SRSCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = *card
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []models.PracticeEvent
}

func (p *memPublisher) PublishEvent(ctx context.Context, event *models.PracticeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *memPublisher) byKind(kind string) []models.PracticeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.PracticeEvent
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Harness.

type harness struct {
	manager *Manager
	cards   *memCardStore
	events  *memPublisher
	decoder *fakeDecoder
	subs    *subtitles.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	subs := subtitles.NewService(nil, 0, logger)
	capSvc := capture.NewService(capture.Config{
		SeekTimeout: 50 * time.Millisecond,
		Margin:      time.Millisecond,
	}, logger)
	rec := recorder.New(recorder.Config{
		CountdownTicks: 1,
		TickInterval:   time.Millisecond,
	}, instantPlayer{}, logger)

	cards := newMemCardStore()
	events := &memPublisher{}
	decoder := &fakeDecoder{}
	queue := NewPracticeQueue(context.Background(), nil, logger)

	manager := NewManager(subs, capSvc, rec, decoder, cards, nil, events, queue, logger)

	subs.Ingest(context.Background(), "video-1", []models.SubtitleSegment{
		{StartTime: 0.0, EndTime: 0.02, Text: "hello"},
		{StartTime: 0.02, EndTime: 0.04, Text: "world"},
	})

	return &harness{
		manager: manager,
		cards:   cards,
		events:  events,
		decoder: decoder,
		subs:    subs,
	}
}

func (h *harness) startReady(t *testing.T) *models.PracticeSession {
	t.Helper()
	sess, err := h.manager.StartPractice(context.Background(), newFakeSource(), "video-1", "Lesson", []int{0, 1})
	require.NoError(t, err)
	require.Equal(t, models.SessionStateReady, sess.State)
	return sess
}

func TestStartPractice(t *testing.T) {
	h := newHarness(t)

	sess := h.startReady(t)

	assert.Equal(t, "video-1", sess.VideoID)
	assert.Equal(t, "hello world", sess.Selection.Text)
	assert.Equal(t, []int{0, 1}, sess.Selection.Indices)
	require.NotNil(t, sess.TargetClip)
	assert.NotEmpty(t, sess.TargetClip.Data)
	assert.Nil(t, sess.Score)
}

func TestStartPractice_EmptySelection(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.StartPractice(context.Background(), newFakeSource(), "video-1", "Lesson", []int{99})
	assert.Error(t, err)

	_, active := h.manager.Active()
	assert.False(t, active)
}

func TestStartPractice_UnknownVideo(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.StartPractice(context.Background(), newFakeSource(), "other-video", "", []int{0})
	assert.Error(t, err)
}

func TestStartPractice_ReplacesPreviousSession(t *testing.T) {
	h := newHarness(t)

	first := h.startReady(t)
	second := h.startReady(t)

	assert.NotEqual(t, first.ID, second.ID)

	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)
}

func TestStartPractice_CaptureUnsupported(t *testing.T) {
	h := newHarness(t)

	src := newFakeSource()
	src.unsupported = true

	_, err := h.manager.StartPractice(context.Background(), src, "video-1", "", []int{0})
	assert.ErrorIs(t, err, models.ErrCaptureUnsupported)

	// Failure returns the machine to idle.
	_, active := h.manager.Active()
	assert.False(t, active)
}

func TestStartPractice_SeekTimeoutLeavesMicUntouched(t *testing.T) {
	h := newHarness(t)

	src := newFakeSource()
	src.seeked = make(chan struct{}) // never closes

	_, err := h.manager.StartPractice(context.Background(), src, "video-1", "", []int{0})
	assert.ErrorIs(t, err, models.ErrSeekTimeout)

	// The failure happened before the recording phase, so no microphone was
	// ever requested and the machine is idle again.
	_, active := h.manager.Active()
	assert.False(t, active)
}

func TestRecord_ScoresAndEmitsHistory(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	mic := &fakeMic{}
	sess, err := h.manager.Record(context.Background(), mic, 1, 1.0, nil)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStateScored, sess.State)
	require.NotNil(t, sess.Score)
	assert.GreaterOrEqual(t, *sess.Score, 0)
	assert.LessOrEqual(t, *sess.Score, 100)
	require.NotNil(t, sess.UserClip)

	events := h.events.byKind(models.EventSessionScored)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Entry)
	assert.Equal(t, "hello world", events[0].Entry.SubtitleText)
	assert.Equal(t, sess.Score, events[0].Entry.Score)
}

func TestRecord_RequiresSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRecord_PermissionDeniedReturnsToReady(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	mic := &fakeMic{denied: true}
	_, err := h.manager.Record(context.Background(), mic, 1, 1.0, nil)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, models.SessionStateReady, active.State)
	require.NotNil(t, active.TargetClip)
}

func TestRecord_ReRecordDiscardsPreviousAttempt(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	first, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Score)

	second, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStateScored, second.State)
	require.NotNil(t, second.Score)

	// Every completed attempt lands in history, re-records included.
	assert.Len(t, h.events.byKind(models.EventSessionScored), 2)
}

func TestRecord_UserDecodeFailureReturnsToPriorState(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	h.decoder.failFor = "mic-bytes"
	_, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	assert.ErrorIs(t, err, models.ErrDecode)

	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, models.SessionStateReady, active.State)
	assert.Nil(t, active.Score)

	// A failed attempt produces no history entry.
	assert.Empty(t, h.events.byKind(models.EventSessionScored))
}

func TestAttachRecording(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	sess, err := h.manager.AttachRecording(context.Background(), &models.AudioClip{
		Data:     []byte("uploaded"),
		MimeType: "audio/webm",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SessionStateScored, sess.State)
	require.NotNil(t, sess.Score)
	assert.Len(t, h.events.byKind(models.EventSessionScored), 1)
}

func TestCloseDuringRecordingDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	// Destroy the session while a recording commit is in flight by closing
	// between the unlocked recording and the commit: simplest determinstic
	// equivalent is closing first, then attaching.
	h.manager.Close(context.Background())

	_, err := h.manager.AttachRecording(context.Background(), &models.AudioClip{Data: []byte("late")})
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Empty(t, h.events.byKind(models.EventSessionScored))
}

func TestPromote(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	_, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	require.NoError(t, err)

	card, err := h.manager.Promote(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "video-1", card.VideoID)
	assert.Equal(t, "hello world", card.Text)
	assert.NotEmpty(t, card.AudioBase64)
	assert.Equal(t, 1.0, card.Interval)
	assert.Equal(t, 0, card.Repetition)
	assert.Equal(t, 2.5, card.EaseFactor)

	// Promotion does not change the session state.
	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, models.SessionStateScored, active.State)
	assert.Equal(t, card.ID, active.CardID)

	assert.Len(t, h.events.byKind(models.EventCardCreated), 1)
}

func TestPromote_RequiresScoredOrReviewing(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	_, err := h.manager.Promote(context.Background())
	assert.ErrorIs(t, err, ErrBadState)
}

func TestStartReviewAndRate(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)
	_, err := h.manager.Record(context.Background(), &fakeMic{}, 1, 1.0, nil)
	require.NoError(t, err)

	card, err := h.manager.Promote(context.Background())
	require.NoError(t, err)

	sess, err := h.manager.StartReview(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateReviewing, sess.State)
	assert.Equal(t, card.ID, sess.CardID)
	require.NotNil(t, sess.TargetClip)
	assert.NotEmpty(t, sess.TargetClip.Data)

	rated, err := h.manager.RateCard(context.Background(), models.QualityGood)
	require.NoError(t, err)
	assert.Equal(t, 1, rated.Repetition)
	assert.Equal(t, 1.0, rated.Interval)

	stored, err := h.cards.GetCard(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Repetition)

	events := h.events.byKind(models.EventCardReviewed)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Quality)
	assert.Equal(t, models.QualityGood, *events[0].Quality)
}

func TestRateCard_RejectsInvalidQuality(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.RateCard(context.Background(), 7)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.startReady(t)

	h.manager.Close(context.Background())

	_, active := h.manager.Active()
	assert.False(t, active)

	// Closing again is harmless.
	h.manager.Close(context.Background())
}
