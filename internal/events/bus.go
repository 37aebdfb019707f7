/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventNowPlaying   EventType = "now_playing"
	EventQueueChanged EventType = "queue_changed"
	EventMixChanged   EventType = "mix_changed"
	EventHealth       EventType = "health"
	EventEngineError  EventType = "engine_error"
	EventRuleFired    EventType = "rotation.rule_fired"

	// Show transition events
	EventShowStart    EventType = "show.start"
	EventShowEnd      EventType = "show.end"
	EventShowDeferred EventType = "show.deferred"
	EventShowMissed   EventType = "show.missed"

	// Jingle slot events
	EventJingleStart EventType = "jingle.start"
	EventJingleEnd   EventType = "jingle.end"
)

// AllTypes lists every event type, for subscribers that want everything.
var AllTypes = []EventType{
	EventNowPlaying,
	EventQueueChanged,
	EventMixChanged,
	EventHealth,
	EventEngineError,
	EventRuleFired,
	EventShowStart,
	EventShowEnd,
	EventShowDeferred,
	EventShowMissed,
	EventJingleStart,
	EventJingleEnd,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Hook observes every published event. Hooks run synchronously in Publish
// and must not block.
type Hook func(EventType, Payload)

// Bus implements a simple in-process pubsub. Delivery is best effort: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu    sync.RWMutex
	subs  map[EventType][]Subscriber
	hooks []Hook
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// AddHook registers a hook called for every event.
func (b *Bus) AddHook(h Hook) {
	b.mu.Lock()
	b.hooks = append(b.hooks, h)
	b.mu.Unlock()
}

// Publish sends payload to subscribers without blocking; a full
// subscriber misses the event. Hooks run synchronously afterwards.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
	hooks := append([]Hook(nil), b.hooks...)
	b.mu.RUnlock()
	for _, h := range hooks {
		h(eventType, payload)
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
