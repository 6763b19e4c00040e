package services

import (
	"log/slog"
	"sync"

	"github.com/okapihq/okapi/internal/core/domain"
)

// EventBus fans progress events out to per-conversation subscribers.
// Publishing never blocks: full subscriber channels drop events.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.ConversationID][]chan domain.ProgressEvent
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.ConversationID][]chan domain.ProgressEvent),
	}
}

// Subscribe returns a channel receiving events for one conversation and
// an unsubscribe function that closes it.
func (b *EventBus) Subscribe(convID domain.ConversationID) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.ProgressEvent, 100)
	b.subs[convID] = append(b.subs[convID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[convID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[convID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[convID]) == 0 {
			delete(b.subs, convID)
		}
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of its conversation.
func (b *EventBus) Publish(e domain.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.ConversationID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event bus channel full, dropping event",
				"conversation_id", string(e.ConversationID), "kind", string(e.Kind))
		}
	}
}
