package cache

import (
	"path/filepath"
	"sync"

	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/pkg/metrics"
	"go.uber.org/zap"
)

// Cache is the in-memory ordered, deduplicated, size-bounded message
// collection. Every mutation schedules an asynchronous atomic write of the
// full contents to disk; mutation calls never block on I/O.
type Cache struct {
	logger *zap.Logger
	path   string
	limit  func() int
	bus    *event.Bus

	mu       sync.Mutex
	messages []message.Message
}

// NewCache creates a message cache persisted under dataDir.
func NewCache(logger *zap.Logger, dataDir string, limit func() int, bus *event.Bus) *Cache {
	return &Cache{
		logger: logger.Named("cache"),
		path:   filepath.Join(dataDir, "messages.json"),
		limit:  limit,
		bus:    bus,
	}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// UpsertFront inserts a freshly arrived live message at the head, replacing
// any existing entry with the same id, and enforces the cache limit. The
// return value reports whether the id was newly seen; replacements must not
// re-trigger user notification.
func (c *Cache) UpsertFront(m message.Message) bool {
	c.mu.Lock()

	existed := false
	for i, cur := range c.messages {
		if cur.ID == m.ID {
			existed = true
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}

	c.messages = append([]message.Message{m}, c.messages...)
	if limit := c.limit(); len(c.messages) > limit {
		c.messages = c.messages[:limit]
	}

	snapshot := c.copyLocked()
	c.mu.Unlock()

	metrics.CacheSize.Set(float64(len(snapshot)))
	c.persistAsync(snapshot)
	return !existed
}

// Reconcile treats a freshly fetched set as authoritative: normalize it
// (sort, dedupe, truncate) and replace the cache wholesale. When the result
// is content-identical to the current state, nothing is persisted and no
// change event fires. Returns whether the cache was replaced.
func (c *Cache) Reconcile(fresh []message.Message) bool {
	normalized := message.Normalize(fresh, c.limit())

	c.mu.Lock()
	if c.equalLocked(normalized) {
		c.mu.Unlock()
		metrics.SyncRuns.WithLabelValues("unchanged").Inc()
		return false
	}
	c.messages = normalized
	snapshot := c.copyLocked()
	c.mu.Unlock()

	metrics.SyncRuns.WithLabelValues("changed").Inc()
	metrics.CacheSize.Set(float64(len(snapshot)))
	c.persistAsync(snapshot)
	c.bus.Emit(event.MessagesSynced, true)
	c.bus.Emit(event.MessagesUpdated, snapshot)
	return true
}

// Remove deletes an entry by id regardless of position. The call is
// idempotent: it persists and emits even when the id was absent.
func (c *Cache) Remove(id int64) []message.Message {
	c.mu.Lock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	snapshot := c.copyLocked()
	c.mu.Unlock()

	metrics.CacheSize.Set(float64(len(snapshot)))
	c.persistAsync(snapshot)
	c.bus.Emit(event.MessagesSynced, true)
	c.bus.Emit(event.MessagesUpdated, snapshot)
	return snapshot
}

// Snapshot returns an immutable copy of the current contents.
func (c *Cache) Snapshot() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Len returns the current number of cached messages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Cache) copyLocked() []message.Message {
	out := make([]message.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Cache) equalLocked(other []message.Message) bool {
	if len(c.messages) != len(other) {
		return false
	}
	for i := range other {
		if !c.messages[i].Equal(other[i]) {
			return false
		}
	}
	return true
}
