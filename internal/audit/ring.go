package audit

import (
	"context"
	"errors"
	"sync"
)

// RingSink keeps the most recent events in memory, evicting the oldest once
// full. It is local to one process.
type RingSink struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

// NewRingSink allocates a ring holding at most size events.
func NewRingSink(size int) (*RingSink, error) {
	if size <= 0 {
		return nil, errors.New("ring size must be positive")
	}
	return &RingSink{buf: make([]Event, size)}, nil
}

func (r *RingSink) Record(ctx context.Context, e Event) error {
	e, err := Normalize(ctx, e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	return nil
}

// Reader serves stored events to the audit endpoint.
type Reader interface {
	Query(ctx context.Context, f Filter) ([]Event, error)
}

var (
	_ Reader = (*RingSink)(nil)
	_ Reader = (*RedisSink)(nil)
)

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	Type       string
	ActorID    string
	ResourceID string
	Limit      int
}

func (f Filter) match(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	return true
}

// Recent returns matching events newest first.
func (r *RingSink) Recent(f Filter) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for i := 0; i < r.count; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		e := r.buf[idx]
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Query satisfies Reader.
func (r *RingSink) Query(_ context.Context, f Filter) ([]Event, error) {
	return r.Recent(f), nil
}

// Len reports how many events are currently retained.
func (r *RingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
