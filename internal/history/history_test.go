package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	entries   []models.PracticeHistoryEntry
	failWrite bool
}

func (s *memStore) AppendHistory(ctx context.Context, entry *models.PracticeHistoryEntry) error {
	if s.failWrite {
		return errors.New("database down")
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memStore) CountHistory(ctx context.Context) (int, error) {
	return len(s.entries), nil
}

type memStats struct {
	counts map[string]int64
	fail   bool
}

func (s *memStats) IncrementStat(ctx context.Context, stat string) error {
	if s.fail {
		return errors.New("cache down")
	}
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[stat]++
	return nil
}

func testService(t *testing.T, store *memStore, stats *memStats) *Service {
	t.Helper()
	logger, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	// A nil *memStats must reach NewService as an untyped nil, not a
	// non-nil interface wrapping a nil pointer.
	var sc StatCache
	if stats != nil {
		sc = stats
	}
	return NewService(store, sc, logger)
}

func scoredEvent(score int) *models.PracticeEvent {
	return &models.PracticeEvent{
		Kind: models.EventSessionScored,
		Entry: &models.PracticeHistoryEntry{
			VideoID:      "v1",
			VideoTitle:   "Title",
			SubtitleText: "hello",
			StartTime:    1.0,
			EndTime:      2.5,
			Timestamp:    time.Now().UTC(),
			Score:        &score,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestHandleEvent_Scored(t *testing.T) {
	store := &memStore{}
	stats := &memStats{}
	svc := testService(t, store, stats)

	err := svc.HandleEvent(context.Background(), scoredEvent(87))
	require.NoError(t, err)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "hello", store.entries[0].SubtitleText)
	require.NotNil(t, store.entries[0].Score)
	assert.Equal(t, 87, *store.entries[0].Score)
	assert.Equal(t, int64(1), stats.counts["attempts"])
}

func TestHandleEvent_ZeroScorePersists(t *testing.T) {
	store := &memStore{}
	svc := testService(t, store, nil)

	err := svc.HandleEvent(context.Background(), scoredEvent(0))
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	assert.Equal(t, 0, *store.entries[0].Score)
}

func TestHandleEvent_ScoredWithoutEntryDropped(t *testing.T) {
	store := &memStore{}
	svc := testService(t, store, nil)

	err := svc.HandleEvent(context.Background(), &models.PracticeEvent{
		Kind:      models.EventSessionScored,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Empty(t, store.entries)
}

func TestHandleEvent_PersistFailurePropagates(t *testing.T) {
	store := &memStore{failWrite: true}
	svc := testService(t, store, nil)

	err := svc.HandleEvent(context.Background(), scoredEvent(50))
	assert.Error(t, err)
}

func TestHandleEvent_Reviewed(t *testing.T) {
	stats := &memStats{}
	svc := testService(t, &memStore{}, stats)

	quality := models.QualityGood
	err := svc.HandleEvent(context.Background(), &models.PracticeEvent{
		Kind:      models.EventCardReviewed,
		CardID:    "c1",
		Quality:   &quality,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.counts["reviews"])
	assert.Equal(t, int64(1), stats.counts["reviews:quality:4"])
}

func TestHandleEvent_Created(t *testing.T) {
	stats := &memStats{}
	svc := testService(t, &memStore{}, stats)

	err := svc.HandleEvent(context.Background(), &models.PracticeEvent{
		Kind:      models.EventCardCreated,
		CardID:    "c1",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.counts["cards_created"])
}

func TestHandleEvent_UnknownKindDropped(t *testing.T) {
	svc := testService(t, &memStore{}, nil)

	err := svc.HandleEvent(context.Background(), &models.PracticeEvent{
		Kind:      "session.imaginary",
		Timestamp: time.Now().UTC(),
	})
	assert.NoError(t, err)
}

func TestHandleEvent_StatFailureIsNotFatal(t *testing.T) {
	store := &memStore{}
	stats := &memStats{fail: true}
	svc := testService(t, store, stats)

	err := svc.HandleEvent(context.Background(), scoredEvent(60))
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
}
