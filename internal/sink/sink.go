// Package sink delivers one-way events, such as incremental feed updates, to
// any number of listeners.
package sink

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Event is an unsolicited envelope. No acknowledgement is expected.
type Event struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, ev Event) error

func (f Func) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Item is one keyed element of a batch payload.
type Item struct {
	Key   string
	Value any
}

// Batch is implemented by payloads that carry keyed items, which keyed
// stores upsert one by one.
type Batch interface {
	Items() []Item
}

// Router fans events out to every registered sink. A failing sink does not
// stop delivery to the others.
type Router struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewRouter returns a router delivering to sinks.
func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks}
}

// Add registers another sink.
func (r *Router) Add(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Emit delivers ev to every sink and joins their errors.
func (r *Router) Emit(ctx context.Context, ev Event) error {
	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Emit(ctx, ev); err != nil {
			log.Printf("[SINK] %s delivery failed: %v", ev.Action, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = Func(func(context.Context, Event) error { return nil })
