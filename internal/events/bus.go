/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events fans live notifications out to websocket sessions. The
// domain has exactly two streams, so the bus carries them as fixed fields
// rather than a topic registry.
package events

import "sync"

// EventType names one of the two notification streams.
type EventType string

const (
	// EventState carries the full playback-state projection after every
	// reported or control-triggered change. Observers treat it as a snapshot.
	EventState EventType = "state"

	// EventMetadataUpdated signals that enrichment finished for a disc.
	// Payload carries player and position; observers re-fetch.
	EventMetadataUpdated EventType = "metadata_updated"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus is the in-process pubsub for the two notification streams.
type Bus struct {
	mu       sync.Mutex
	state    map[Subscriber]struct{}
	metadata map[Subscriber]struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		state:    make(map[Subscriber]struct{}),
		metadata: make(map[Subscriber]struct{}),
	}
}

func (b *Bus) stream(eventType EventType) map[Subscriber]struct{} {
	if eventType == EventMetadataUpdated {
		return b.metadata
	}
	return b.state
}

// Subscribe registers a subscriber on one stream.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.stream(eventType)[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Publish sends payload to the stream's subscribers. Delivery is
// best-effort: slow subscribers drop events rather than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.Lock()
	subs := make([]Subscriber, 0, len(b.stream(eventType)))
	for sub := range b.stream(eventType) {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel. Unsubscribing
// twice is a no-op.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stream := b.stream(eventType)
	if _, ok := stream[sub]; !ok {
		return
	}
	delete(stream, sub)
	close(sub)
}
