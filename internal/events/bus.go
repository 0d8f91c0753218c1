package events

import (
	"context"
	"sync"
)

// Bus is the in-process fan-out used by the live pipeline. Every publish is
// delivered to local subscribers of that session and, when a downstream
// publisher is configured, forwarded to it (Redis in production). Subscribe
// returns the channel and an unsubscribe func; a subscriber that falls
// behind its buffer has events dropped rather than blocking the pipeline.
type Bus struct {
	mu         sync.Mutex
	subs       map[string]map[int]chan Envelope
	nextID     int
	downstream Publisher
	bufSize    int
}

func NewBus(downstream Publisher) *Bus {
	return &Bus{
		subs:       make(map[string]map[int]chan Envelope),
		downstream: downstream,
		bufSize:    64,
	}
}

func (b *Bus) Subscribe(sessionID string) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Envelope, b.bufSize)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Envelope)
	}
	b.subs[sessionID][id] = ch

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[sessionID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, unsub
}

func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	for _, ch := range b.subs[env.SessionID] {
		select {
		case ch <- env:
		default: // slow subscriber, drop
		}
	}
	b.mu.Unlock()

	if b.downstream != nil {
		return b.downstream.Publish(ctx, env)
	}
	return nil
}
