/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventStatus is emitted on every supervisor state transition.
	EventStatus EventType = "status"
	// EventNowPlaying is emitted when a new item starts streaming.
	EventNowPlaying EventType = "now_playing"
	// EventStreamError is emitted for transient stream failures.
	EventStreamError EventType = "stream.error"
	// EventPlaylistReloaded is emitted when the deck is rebuilt.
	EventPlaylistReloaded EventType = "playlist.reloaded"
	// EventDiagnosis carries a self-diagnosis report.
	EventDiagnosis EventType = "diagnosis"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers drop
// events rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Sends happen under the lock so
// Unsubscribe cannot close a channel mid-publish; the default case
// keeps publishers non-blocking regardless.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
