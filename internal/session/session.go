// Package session owns the practice state machine: one active session moving
// through capture, recording, scoring and review.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chorusapp/chorus/internal/capture"
	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/metrics"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/internal/recorder"
	"github.com/chorusapp/chorus/internal/scoring"
	"github.com/chorusapp/chorus/internal/srs"
	"github.com/chorusapp/chorus/internal/storage"
	"github.com/chorusapp/chorus/internal/subtitles"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/google/uuid"
)

// AudioDecoder turns encoded clips into PCM for scoring.
type AudioDecoder interface {
	Decode(ctx context.Context, clip *models.AudioClip) (*models.DecodedAudio, error)
}

// CardStore persists SRS cards.
type CardStore interface {
	CreateCard(ctx context.Context, card *models.SRSCard) error
	GetCard(ctx context.Context, id string) (*models.SRSCard, error)
	UpdateCard(ctx context.Context, card *models.SRSCard) error
}

// ClipStore persists session audio clips.
type ClipStore interface {
	UploadClip(ctx context.Context, objectName string, clip *models.AudioClip) error
	GetURL(ctx context.Context, objectName string) (string, error)
	DeleteSessionClips(ctx context.Context, sessionID string) error
}

// EventPublisher emits practice events to the worker pipeline.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.PracticeEvent) error
}

// ErrNoActiveSession is returned by operations that need a session when none
// is active.
var ErrNoActiveSession = errors.New("no active session")

// ErrBadState is returned when an operation is requested in a state it is
// not valid in.
var ErrBadState = errors.New("operation not valid in current session state")

// Manager runs the practice state machine. Exactly one session is active at
// a time; starting a new practice destroys the previous session. All state
// transitions happen under the manager lock, and async results are tagged
// with the session ID they belong to so results from a destroyed session are
// discarded rather than committed.
type Manager struct {
	subtitles *subtitles.Service
	capture   *capture.Service
	recorder  *recorder.Recorder
	decoder   AudioDecoder
	cards     CardStore
	clips     ClipStore
	events    EventPublisher
	logger    *logging.Logger

	mu           sync.Mutex
	active       *models.PracticeSession
	sessCtx      context.Context
	sessCancel   context.CancelFunc
	recordCancel context.CancelFunc

	queue *PracticeQueue
}

// NewManager creates a session manager. events and clips may be nil; history
// and clip storage then degrade to in-memory only.
func NewManager(
	subs *subtitles.Service,
	cap *capture.Service,
	rec *recorder.Recorder,
	dec AudioDecoder,
	cards CardStore,
	clips ClipStore,
	events EventPublisher,
	queue *PracticeQueue,
	logger *logging.Logger,
) *Manager {
	return &Manager{
		subtitles: subs,
		capture:   cap,
		recorder:  rec,
		decoder:   dec,
		cards:     cards,
		clips:     clips,
		events:    events,
		queue:     queue,
		logger:    logger,
	}
}

// Queue returns the practice queue.
func (m *Manager) Queue() *PracticeQueue {
	return m.queue
}

// Active returns a copy of the active session, or false when idle.
func (m *Manager) Active() (models.PracticeSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return models.PracticeSession{}, false
	}
	return *m.active, true
}

// StartPractice starts a new practice session over the selected subtitle
// positions: captures the target window from the source, validates it
// decodes, and leaves the session Ready for recording. Any previous session
// is destroyed first.
func (m *Manager) StartPractice(ctx context.Context, src playback.CaptureSource, videoID, videoTitle string, indices []int) (*models.PracticeSession, error) {
	idx, ok := m.subtitles.Get(videoID)
	if !ok {
		return nil, fmt.Errorf("no subtitles ingested for video %s", videoID)
	}

	selection, err := idx.BuildRange(indices)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %w", err)
	}

	sess := &models.PracticeSession{
		ID:         uuid.New().String(),
		VideoID:    videoID,
		VideoTitle: videoTitle,
		Selection:  selection,
		State:      models.SessionStateCapturing,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.destroyLocked(context.Background())
	sessCtx, cancel := context.WithCancel(context.Background())
	m.active = sess
	m.sessCtx = sessCtx
	m.sessCancel = cancel
	m.mu.Unlock()

	metrics.SessionsStartedTotal.WithLabelValues("practice").Inc()
	m.logger.LogSessionTransition(sess.ID, string(models.SessionStateIdle), string(models.SessionStateCapturing))

	clip, err := m.capture.CaptureWindow(sessCtx, src, selection.StartTime, selection.EndTime)
	if err != nil {
		return nil, m.failSession(sess.ID, "capture", err)
	}

	// A capture that does not decode would fail every later phase; reject it
	// here while the source is still in reach.
	if _, err := m.decoder.Decode(sessCtx, clip); err != nil {
		return nil, m.failSession(sess.ID, "capture", err)
	}

	m.storeClip(sessCtx, sess.ID, storage.TargetClipKey(sess.ID), clip)
	metrics.CaptureDuration.Observe(selection.Duration())

	return m.commit(sess.ID, func(s *models.PracticeSession) {
		s.TargetClip = clip
		s.State = models.SessionStateReady
		m.logger.LogSessionTransition(s.ID, string(models.SessionStateCapturing), string(models.SessionStateReady))
	})
}

// StartReview starts a review session over a stored card. The target clip
// comes from the card itself; no capture runs.
func (m *Manager) StartReview(ctx context.Context, cardID string) (*models.PracticeSession, error) {
	card, err := m.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(card.AudioBase64)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: card %s has no playable audio", models.ErrDecode, cardID)
	}

	sess := &models.PracticeSession{
		ID:         uuid.New().String(),
		VideoID:    card.VideoID,
		VideoTitle: card.VideoTitle,
		Selection: models.SelectionRange{
			StartTime: card.StartTime,
			EndTime:   card.EndTime,
			Text:      card.Text,
		},
		State:      models.SessionStateReviewing,
		TargetClip: &models.AudioClip{Data: data, MimeType: "audio/webm"},
		CardID:     card.ID,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.destroyLocked(context.Background())
	sessCtx, cancel := context.WithCancel(context.Background())
	m.active = sess
	m.sessCtx = sessCtx
	m.sessCancel = cancel
	m.mu.Unlock()

	metrics.SessionsStartedTotal.WithLabelValues("review").Inc()
	m.logger.LogSessionTransition(sess.ID, string(models.SessionStateIdle), string(models.SessionStateReviewing))

	return m.snapshot(sess.ID)
}

// Record acquires the microphone and records the user while the target clip
// plays listenCount times, then scores the attempt. Valid from Ready, Scored
// and Reviewing; re-recording discards the previous user clip and score.
// The recording can be stopped early with StopRecording; the partial clip is
// scored normally.
func (m *Manager) Record(ctx context.Context, mic playback.MicrophoneSource, listenCount int, rate float64, onTick recorder.CountdownFunc) (*models.PracticeSession, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sess := m.active
	switch sess.State {
	case models.SessionStateReady, models.SessionStateScored, models.SessionStateReviewing:
	default:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadState, sess.State)
	}

	sessionID := sess.ID
	target := sess.TargetClip
	from := sess.State
	sess.State = models.SessionStateRecording
	sess.UserClip = nil
	sess.Score = nil
	sess.Band = ""

	recCtx, recCancel := context.WithCancel(m.sessCtx)
	m.recordCancel = recCancel
	m.mu.Unlock()

	m.logger.LogSessionTransition(sessionID, string(from), string(models.SessionStateRecording))

	clip, err := m.recorder.RecordDuringPlayback(recCtx, mic, target, listenCount, rate, onTick)
	recCancel()

	if err != nil {
		// Cancellation during the countdown aborts without a clip; the
		// session returns to where it was.
		if errors.Is(err, context.Canceled) {
			m.commit(sessionID, func(s *models.PracticeSession) {
				s.State = from
			})
			return nil, err
		}
		return nil, m.failRecording(sessionID, from, err)
	}

	return m.finishAttempt(sessionID, from, target, clip)
}

// AttachRecording accepts a user clip recorded outside the manager (an
// upload from a client-side microphone) and scores it against the target.
// Same validity rules and commit path as Record.
func (m *Manager) AttachRecording(ctx context.Context, clip *models.AudioClip) (*models.PracticeSession, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sess := m.active
	switch sess.State {
	case models.SessionStateReady, models.SessionStateScored, models.SessionStateReviewing:
	default:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadState, sess.State)
	}

	sessionID := sess.ID
	target := sess.TargetClip
	from := sess.State
	sess.State = models.SessionStateRecording
	sess.UserClip = nil
	sess.Score = nil
	sess.Band = ""
	m.mu.Unlock()

	m.logger.LogSessionTransition(sessionID, string(from), string(models.SessionStateRecording))

	return m.finishAttempt(sessionID, from, target, clip)
}

// StopRecording stops an in-progress recording early. The partial clip is
// still scored. No-op when nothing is recording.
func (m *Manager) StopRecording() {
	m.mu.Lock()
	cancel := m.recordCancel
	m.recordCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// finishAttempt decodes both clips, scores the attempt and commits the
// result if the session is still the active one. The history entry is
// emitted on every completed scoring, including a zero score.
func (m *Manager) finishAttempt(sessionID string, from models.SessionState, target, user *models.AudioClip) (*models.PracticeSession, error) {
	ctx := context.Background()

	targetAudio, err := m.decoder.Decode(ctx, target)
	if err != nil {
		return nil, m.failRecording(sessionID, from, err)
	}
	userAudio, err := m.decoder.Decode(ctx, user)
	if err != nil {
		return nil, m.failRecording(sessionID, from, err)
	}

	score, err := scoring.Score(targetAudio, userAudio)
	if err != nil {
		if !errors.Is(err, models.ErrInsufficientOverlap) {
			return nil, m.failRecording(sessionID, from, err)
		}
		// Too little overlap to analyze reads as a zero, not a failure.
		score = 0
	}

	m.storeClip(ctx, sessionID, storage.UserClipKey(sessionID), user)

	band := scoring.Band(score)
	metrics.ScoresTotal.WithLabelValues(band).Inc()
	metrics.ScoreDistribution.Observe(float64(score))
	m.logger.LogScore(sessionID, score, band)

	sess, err := m.commit(sessionID, func(s *models.PracticeSession) {
		s.UserClip = user
		s.Score = &score
		s.Band = band
		s.State = models.SessionStateScored
		m.logger.LogSessionTransition(s.ID, string(models.SessionStateRecording), string(models.SessionStateScored))
	})
	if err != nil {
		return nil, err
	}

	m.publish(&models.PracticeEvent{
		Kind: models.EventSessionScored,
		Entry: &models.PracticeHistoryEntry{
			VideoID:      sess.VideoID,
			VideoTitle:   sess.VideoTitle,
			SubtitleText: sess.Selection.Text,
			StartTime:    sess.Selection.StartTime,
			EndTime:      sess.Selection.EndTime,
			Timestamp:    time.Now(),
			Score:        &score,
		},
		Timestamp: time.Now(),
	})

	return sess, nil
}

// Promote creates an SRS card from the session's target clip. Valid from
// Scored and Reviewing; the session state does not change.
func (m *Manager) Promote(ctx context.Context) (*models.SRSCard, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sess := m.active
	if sess.State != models.SessionStateScored && sess.State != models.SessionStateReviewing {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadState, sess.State)
	}
	sessionID := sess.ID
	card := models.NewSRSCard(
		uuid.New().String(),
		sess.VideoID,
		sess.VideoTitle,
		sess.Selection.Text,
		sess.Selection.StartTime,
		sess.Selection.EndTime,
		base64.StdEncoding.EncodeToString(sess.TargetClip.Data),
		time.Now(),
	)
	m.mu.Unlock()

	if err := m.cards.CreateCard(ctx, card); err != nil {
		return nil, err
	}

	metrics.CardsCreatedTotal.Inc()
	m.logger.WithCardID(card.ID).WithSessionID(sessionID).Info("Created SRS card")

	m.commit(sessionID, func(s *models.PracticeSession) {
		s.CardID = card.ID
	})

	m.publish(&models.PracticeEvent{
		Kind:      models.EventCardCreated,
		CardID:    card.ID,
		Timestamp: time.Now(),
	})

	return card, nil
}

// RateCard applies a review rating to the session's card and persists the
// new schedule. Valid only in a Reviewing session (before or after its
// scoring attempt).
func (m *Manager) RateCard(ctx context.Context, quality int) (*models.SRSCard, error) {
	if quality < 0 || quality > 5 {
		return nil, fmt.Errorf("quality must be 0-5, got %d", quality)
	}

	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sess := m.active
	if sess.CardID == "" {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session has no card", ErrBadState)
	}
	cardID := sess.CardID
	m.mu.Unlock()

	card, err := m.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	rated := srs.Rate(*card, quality, time.Now())
	if err := m.cards.UpdateCard(ctx, &rated); err != nil {
		return nil, err
	}

	metrics.ReviewsTotal.WithLabelValues(fmt.Sprintf("%d", quality)).Inc()
	m.logger.LogReview(rated.ID, quality, rated.Interval, rated.EaseFactor)

	m.publish(&models.PracticeEvent{
		Kind:      models.EventCardReviewed,
		CardID:    rated.ID,
		Quality:   &quality,
		Timestamp: time.Now(),
	})

	return &rated, nil
}

// Close destroys the active session from any state, releasing the capture
// and microphone pipelines and the session's stored clips.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.destroyLocked(ctx)
	m.mu.Unlock()
}

// destroyLocked tears the active session down. Caller holds the lock.
func (m *Manager) destroyLocked(ctx context.Context) {
	if m.active == nil {
		return
	}

	sessionID := m.active.ID
	from := m.active.State

	if m.sessCancel != nil {
		m.sessCancel()
		m.sessCancel = nil
	}
	m.recordCancel = nil
	m.active = nil
	m.sessCtx = nil

	if m.clips != nil {
		if err := m.clips.DeleteSessionClips(ctx, sessionID); err != nil {
			m.logger.WithSessionID(sessionID).WithError(err).Warn("Failed to delete session clips")
		}
	}

	m.logger.LogSessionTransition(sessionID, string(from), string(models.SessionStateIdle))
}

// failSession records a phase failure and destroys the session.
func (m *Manager) failSession(sessionID, phase string, err error) error {
	metrics.SessionFailuresTotal.WithLabelValues(phase, failureKind(err)).Inc()
	m.logger.WithSessionID(sessionID).WithError(err).Errorf("Session failed during %s", phase)

	m.mu.Lock()
	if m.active != nil && m.active.ID == sessionID {
		m.destroyLocked(context.Background())
	}
	m.mu.Unlock()

	return err
}

// failRecording records a recording failure and returns the session to the
// state it was recording from, keeping the captured target usable for
// another attempt.
func (m *Manager) failRecording(sessionID string, from models.SessionState, err error) error {
	metrics.SessionFailuresTotal.WithLabelValues("record", failureKind(err)).Inc()
	m.logger.WithSessionID(sessionID).WithError(err).Error("Recording attempt failed")

	m.commit(sessionID, func(s *models.PracticeSession) {
		s.State = from
	})

	return err
}

// commit applies fn to the active session only if it is still the session
// the result belongs to; results from a destroyed session are discarded.
func (m *Manager) commit(sessionID string, fn func(*models.PracticeSession)) (*models.PracticeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		m.logger.WithSessionID(sessionID).Debug("Discarding result for destroyed session")
		return nil, ErrNoActiveSession
	}

	fn(m.active)
	snapshot := *m.active
	return &snapshot, nil
}

// snapshot returns a copy of the session if still active.
func (m *Manager) snapshot(sessionID string) (*models.PracticeSession, error) {
	return m.commit(sessionID, func(*models.PracticeSession) {})
}

// storeClip uploads a clip. Storage is an offload, not a dependency; a
// failed upload leaves the in-memory clip authoritative.
func (m *Manager) storeClip(ctx context.Context, sessionID, key string, clip *models.AudioClip) {
	if m.clips == nil {
		return
	}

	if err := m.clips.UploadClip(ctx, key, clip); err != nil {
		m.logger.WithSessionID(sessionID).WithError(err).Warn("Failed to store clip")
		return
	}

	if url, err := m.clips.GetURL(ctx, key); err == nil {
		clip.SourceURL = url
	}
}

// publish emits a practice event. Delivery is fire and forget; a publish
// failure never fails the session.
func (m *Manager) publish(event *models.PracticeEvent) {
	if m.events == nil {
		return
	}

	if err := m.events.PublishEvent(context.Background(), event); err != nil {
		m.logger.WithError(err).Warnf("Failed to publish %s event", event.Kind)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(event.Kind).Inc()
}

// failureKind maps an error to its metric label.
func failureKind(err error) string {
	switch {
	case errors.Is(err, models.ErrCaptureUnsupported):
		return "capture_unsupported"
	case errors.Is(err, models.ErrSeekTimeout):
		return "seek_timeout"
	case errors.Is(err, models.ErrDecode):
		return "decode"
	case errors.Is(err, models.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, models.ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
