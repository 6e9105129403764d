package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/chorusapp/chorus/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Subtitle Feed Operations

// SetSegments caches an ingested subtitle sequence keyed by video id
func (c *Cache) SetSegments(ctx context.Context, videoID string, segments []models.SubtitleSegment, ttl time.Duration) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	key := fmt.Sprintf("subtitles:%s", videoID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSegments retrieves a cached subtitle sequence. Returns nil on a miss.
func (c *Cache) GetSegments(ctx context.Context, videoID string) ([]models.SubtitleSegment, error) {
	key := fmt.Sprintf("subtitles:%s", videoID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get segments from cache: %w", err)
	}

	var segments []models.SubtitleSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
	}

	return segments, nil
}

// DeleteSegments removes a cached subtitle sequence
func (c *Cache) DeleteSegments(ctx context.Context, videoID string) error {
	key := fmt.Sprintf("subtitles:%s", videoID)
	return c.client.Del(ctx, key).Err()
}

// Session Operations

// SetSession caches the active practice session for quick status reads
func (c *Cache) SetSession(ctx context.Context, session *models.PracticeSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := fmt.Sprintf("session:%s", session.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSession retrieves a cached session. Returns nil on a miss.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (*models.PracticeSession, error) {
	key := fmt.Sprintf("session:%s", sessionID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get session from cache: %w", err)
	}

	var session models.PracticeSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// DeleteSession removes a cached session
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf("session:%s", sessionID)
	return c.client.Del(ctx, key).Err()
}

// Practice Queue Operations

// SetQueue persists the practice queue. The queue survives restarts but not
// a cache flush; an empty slice clears it.
func (c *Cache) SetQueue(ctx context.Context, items []models.QueueItem) error {
	if len(items) == 0 {
		return c.client.Del(ctx, "practice:queue").Err()
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	return c.client.Set(ctx, "practice:queue", data, 0).Err()
}

// GetQueue retrieves the persisted practice queue. Returns nil when empty.
func (c *Cache) GetQueue(ctx context.Context) ([]models.QueueItem, error) {
	data, err := c.client.Get(ctx, "practice:queue").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue from cache: %w", err)
	}

	var items []models.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue: %w", err)
	}

	return items, nil
}

// Bookmark Operations

// AddBookmark marks a segment index as bookmarked for a video
func (c *Cache) AddBookmark(ctx context.Context, videoID string, index int) error {
	key := fmt.Sprintf("bookmarks:%s", videoID)
	return c.client.SAdd(ctx, key, index).Err()
}

// RemoveBookmark unmarks a bookmarked segment index
func (c *Cache) RemoveBookmark(ctx context.Context, videoID string, index int) error {
	key := fmt.Sprintf("bookmarks:%s", videoID)
	return c.client.SRem(ctx, key, index).Err()
}

// GetBookmarks returns the bookmarked segment indices for a video, ascending
func (c *Cache) GetBookmarks(ctx context.Context, videoID string) ([]int, error) {
	key := fmt.Sprintf("bookmarks:%s", videoID)
	vals, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	indices := make([]int, 0, len(vals))
	for _, v := range vals {
		i, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}

// Stats Cache Operations

// IncrementStat increments a statistic counter
func (c *Cache) IncrementStat(ctx context.Context, stat string) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Incr(ctx, key).Err()
}

// GetStat retrieves a statistic value
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// SetStat sets a statistic value
func (c *Cache) SetStat(ctx context.Context, stat string, value int64, ttl time.Duration) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Rate Limiting Operations

// CheckRateLimit checks if a rate limit has been exceeded
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	// Increment counter
	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	// Check if limit exceeded
	return count <= limit, nil
}

// Locking Operations

// AcquireLock attempts to acquire a distributed lock. A single active
// session is enforced by locking the "session" resource.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
