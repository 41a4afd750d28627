package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus delivers events in-process. It also keeps every published event
// so callers can inspect recent history.
type MemoryBus struct {
	mu       sync.Mutex
	events   []Event
	handlers []func(Event)
	limit    int
}

func NewMemoryBus(limit int) *MemoryBus {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryBus{limit: limit}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	if len(b.events) > b.limit {
		b.events = b.events[len(b.events)-b.limit:]
	}
	handlers := append([]func(Event){}, b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(_ context.Context, onEvent func(ev Event)) error {
	if onEvent == nil {
		return nil
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onEvent)
	b.mu.Unlock()
	return nil
}

// Events returns published events of the given type, or all when typ is empty.
func (b *MemoryBus) Events(typ string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (b *MemoryBus) Close() error { return nil }
