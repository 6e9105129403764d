package subtitles

import (
	"context"
	"sync"
	"time"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/pkg/models"
)

// DefaultFeedTTL is how long an ingested subtitle sequence stays cached,
// keyed by video id.
const DefaultFeedTTL = 45 * time.Minute

// FeedCache caches ingested subtitle sequences between page visits.
type FeedCache interface {
	GetSegments(ctx context.Context, videoID string) ([]models.SubtitleSegment, error)
	SetSegments(ctx context.Context, videoID string, segments []models.SubtitleSegment, ttl time.Duration) error
}

// Service owns the subtitle index of the currently watched video. The feed
// (an external collaborator) delivers a finite ordered sequence once per
// video; the index is swapped wholesale on video change.
type Service struct {
	mu      sync.RWMutex
	current *Index
	cache   FeedCache
	ttl     time.Duration
	logger  *logging.Logger
}

// NewService creates a subtitle service. cache may be nil, in which case
// ingested feeds are held in memory only.
func NewService(cache FeedCache, ttl time.Duration, logger *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	return &Service{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Ingest replaces the current index with a freshly delivered segment
// sequence and writes it through to the cache. Cache write failures are
// logged and swallowed; the in-memory index is authoritative for the page
// lifetime.
func (s *Service) Ingest(ctx context.Context, videoID string, segments []models.SubtitleSegment) *Index {
	idx := NewIndex(videoID, segments)

	s.mu.Lock()
	s.current = idx
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetSegments(ctx, videoID, idx.Segments(), s.ttl); err != nil {
			s.logger.WithVideoID(videoID).WithError(err).Warn("Failed to cache subtitle feed")
		}
	}

	s.logger.WithVideoID(videoID).Infof("Ingested %d subtitle segments", idx.Len())
	return idx
}

// Restore tries to rebuild the index for a revisited video from the cache.
// Returns false on a miss or cache failure.
func (s *Service) Restore(ctx context.Context, videoID string) (*Index, bool) {
	if s.cache == nil {
		return nil, false
	}

	segments, err := s.cache.GetSegments(ctx, videoID)
	if err != nil {
		s.logger.WithVideoID(videoID).WithError(err).Warn("Failed to read subtitle cache")
		return nil, false
	}
	if segments == nil {
		return nil, false
	}

	idx := NewIndex(videoID, segments)
	s.mu.Lock()
	s.current = idx
	s.mu.Unlock()

	return idx, true
}

// Current returns the index of the currently watched video, or nil when no
// feed has been ingested yet.
func (s *Service) Current() *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Get returns the current index only if it belongs to the given video.
func (s *Service) Get(videoID string) (*Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.VideoID() != videoID {
		return nil, false
	}
	return s.current, true
}
