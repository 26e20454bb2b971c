// Package events fans tag detections out to in-process consumers such as
// the MQTT publisher.
package events

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

const subBufferSize = 8

// Bus is a non-blocking publish-subscribe bus for tag events.
// A subscriber that falls behind loses events; publishers never block.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]chan models.TagEvent
	dropped uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan models.TagEvent),
	}
}

// Subscribe registers id and returns its event channel. Subscribing an id
// twice replaces (and closes) the earlier channel.
func (b *Bus) Subscribe(id string) <-chan models.TagEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan models.TagEvent, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Bus) Publish(ev models.TagEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			slog.Debug("events: subscriber full, dropping", "subscriber", id, "tag", ev.Tag)
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were dropped so far.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
