package session

import (
	"context"
	"sync"

	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/pkg/models"
)

// QueueStore persists the practice queue between runs.
type QueueStore interface {
	SetQueue(ctx context.Context, items []models.QueueItem) error
	GetQueue(ctx context.Context) ([]models.QueueItem, error)
}

// PracticeQueue is an ordered list of subtitle segments queued up for
// back-to-back practice. The in-memory list is authoritative; the store is
// written through on every change and read once at startup.
type PracticeQueue struct {
	mu     sync.Mutex
	items  []models.QueueItem
	store  QueueStore
	logger *logging.Logger
}

// NewPracticeQueue creates a queue, restoring any persisted items. store may
// be nil for a memory-only queue.
func NewPracticeQueue(ctx context.Context, store QueueStore, logger *logging.Logger) *PracticeQueue {
	q := &PracticeQueue{store: store, logger: logger}

	if store != nil {
		items, err := store.GetQueue(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to restore practice queue")
		} else if len(items) > 0 {
			q.items = items
			logger.Infof("Restored practice queue with %d items", len(items))
		}
	}

	return q
}

// Add appends an item to the queue.
func (q *PracticeQueue) Add(ctx context.Context, item models.QueueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	items := q.snapshot()
	q.mu.Unlock()

	q.persist(ctx, items)
}

// Next pops the head of the queue. Returns false when the queue is empty,
// which signals queue-mode completion.
func (q *PracticeQueue) Next(ctx context.Context) (models.QueueItem, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return models.QueueItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	items := q.snapshot()
	q.mu.Unlock()

	q.persist(ctx, items)
	return item, true
}

// Items returns a copy of the queued items in order.
func (q *PracticeQueue) Items() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

// Len returns the number of queued items.
func (q *PracticeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue.
func (q *PracticeQueue) Clear(ctx context.Context) {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()

	q.persist(ctx, nil)
}

// snapshot copies the items. Caller holds the lock.
func (q *PracticeQueue) snapshot() []models.QueueItem {
	items := make([]models.QueueItem, len(q.items))
	copy(items, q.items)
	return items
}

// persist writes the queue through to the store. Persistence is best
// effort; the in-memory queue stays usable on failure.
func (q *PracticeQueue) persist(ctx context.Context, items []models.QueueItem) {
	if q.store == nil {
		return
	}
	if err := q.store.SetQueue(ctx, items); err != nil {
		q.logger.WithError(err).Warn("Failed to persist practice queue")
	}
}
