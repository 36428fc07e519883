package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event names emitted by the engine.
const (
	ConnectionState    = "connection-state"
	ConnectionError    = "connection-error"
	MessageReceived    = "message-received"
	MessagesUpdated    = "messages-updated"
	MessagesSynced     = "messages-synced"
	RuntimeDiagnostics = "runtime-diagnostics"
)

// Event is a named payload delivered to UI-side observers.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Bus fans engine events out to subscribers. Emission is fire-and-forget:
// a slow or missing listener never affects engine correctness.
type Bus struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	watchers map[chan Event]struct{}
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger.Named("event.bus"),
		watchers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a listener channel. It is closed and removed when ctx
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 32)
	b.watchers[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.watchers, ch)
		close(ch)
	}()

	return ch
}

// Emit delivers an event to every subscriber without blocking.
func (b *Bus) Emit(name string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.watchers {
		select {
		case ch <- Event{Name: name, Payload: payload}:
		default:
			b.logger.Warn("event watcher channel is full, dropping event",
				zap.String("event", name))
		}
	}
}
