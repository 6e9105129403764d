package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/metrics"
	"github.com/chorusapp/chorus/pkg/models"
)

// Store is the persistence surface the history service needs.
type Store interface {
	AppendHistory(ctx context.Context, entry *models.PracticeHistoryEntry) error
	CountHistory(ctx context.Context) (int, error)
}

// StatCache records running practice counters.
type StatCache interface {
	IncrementStat(ctx context.Context, stat string) error
}

// Service persists the practice audit trail. It runs on the worker side of
// the event queue; every scored attempt lands here whether or not the score
// was computable.
type Service struct {
	store  Store
	stats  StatCache
	logger *logging.Logger
}

// NewService creates a history service. stats may be nil.
func NewService(store Store, stats StatCache, logger *logging.Logger) *Service {
	return &Service{
		store:  store,
		stats:  stats,
		logger: logger,
	}
}

// HandleEvent dispatches one practice event. Returning an error requeues the
// event, so only persistence failures propagate; malformed events are logged
// and dropped.
func (s *Service) HandleEvent(ctx context.Context, event *models.PracticeEvent) error {
	switch event.Kind {
	case models.EventSessionScored:
		return s.handleScored(ctx, event)
	case models.EventCardReviewed:
		return s.handleReviewed(ctx, event)
	case models.EventCardCreated:
		return s.handleCreated(ctx, event)
	default:
		s.logger.Warnf("Dropping event with unknown kind %q", event.Kind)
		metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "dropped").Inc()
		return nil
	}
}

func (s *Service) handleScored(ctx context.Context, event *models.PracticeEvent) error {
	if event.Entry == nil {
		s.logger.Warn("Dropping scored event without history entry")
		metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "dropped").Inc()
		return nil
	}

	if err := s.store.AppendHistory(ctx, event.Entry); err != nil {
		metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "error").Inc()
		return fmt.Errorf("failed to persist history entry: %w", err)
	}

	if count, err := s.store.CountHistory(ctx); err == nil {
		metrics.HistoryEntries.Set(float64(count))
	}

	s.incrementStat(ctx, "attempts")
	metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "ok").Inc()

	s.logger.WithVideoID(event.Entry.VideoID).Debug("Persisted practice history entry")
	return nil
}

func (s *Service) handleReviewed(ctx context.Context, event *models.PracticeEvent) error {
	if event.Quality != nil {
		s.incrementStat(ctx, "reviews")
		s.incrementStat(ctx, "reviews:quality:"+strconv.Itoa(*event.Quality))
	}

	metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "ok").Inc()
	s.logger.WithCardID(event.CardID).Debug("Recorded card review")
	return nil
}

func (s *Service) handleCreated(ctx context.Context, event *models.PracticeEvent) error {
	s.incrementStat(ctx, "cards_created")
	metrics.EventsConsumedTotal.WithLabelValues(event.Kind, "ok").Inc()
	s.logger.WithCardID(event.CardID).Debug("Recorded card creation")
	return nil
}

// incrementStat bumps a cache counter. Stats are best effort.
func (s *Service) incrementStat(ctx context.Context, stat string) {
	if s.stats == nil {
		return
	}
	if err := s.stats.IncrementStat(ctx, stat); err != nil {
		s.logger.WithError(err).Warnf("Failed to increment stat %q", stat)
	}
}
