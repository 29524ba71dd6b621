// Package stream fans audit events out to live subscribers such as the
// moderation feed.
package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"pollhub.org/internal/audit"
)

const subscriberBuffer = 16

// Stream is an audit.Sink that forwards every recorded event to the current
// subscribers. Slow subscribers miss events rather than block writers.
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

type subscriber struct {
	ch     chan audit.Event
	prefix string
}

var _ audit.Sink = (*Stream)(nil)

func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for events whose type starts with prefix
// (all events when prefix is empty). The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, prefix string) <-chan audit.Event {
	ch := make(chan audit.Event, subscriberBuffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, prefix: prefix}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all matching subscribers.
func (s *Stream) Publish(e audit.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.prefix != "" && !strings.HasPrefix(e.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Stream) Record(ctx context.Context, e audit.Event) error {
	e, err := audit.Normalize(ctx, e)
	if err != nil {
		return err
	}
	s.Publish(e)
	return nil
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Subscribers reports the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
