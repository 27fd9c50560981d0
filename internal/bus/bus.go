// Package bus is a small in-process event fan-out used by the engine and the
// gateway's websocket feed.
package bus

import (
	"sync"
	"time"
)

// Event types emitted by the runtime.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventToolCall     = "tool.call"
	EventToolResult   = "tool.result"
	EventCronFired    = "cron.fired"
)

// Event is one runtime event.
type Event struct {
	Type    string         `json:"type"`
	Agent   string         `json:"agent,omitempty"`
	Channel string         `json:"channel,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Ts      int64          `json:"ts"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than stalling publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func New() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Publish delivers the event to every subscriber, non-blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Ts == 0 {
		ev.Ts = time.Now().UnixMilli()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a buffered event channel and a cancel function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}
