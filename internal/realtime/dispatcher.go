package realtime

import (
	"fmt"
	"sync"

	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
)

type Handler func(ev domain.Event)

// Subscription identifies one registration. Off removes exactly the
// registration it was returned for, so independent subscribers to the same
// kind never disturb each other.
type Subscription struct {
	kind    domain.EventKind
	handler Handler
}

func (s *Subscription) Kind() domain.EventKind {
	return s.kind
}

// Dispatcher fans typed events out to handlers registered per kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind][]*Subscription
	logger   logging.Logger
}

func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[domain.EventKind][]*Subscription),
		logger:   logger,
	}
}

func (d *Dispatcher) On(kind domain.EventKind, handler Handler) *Subscription {
	sub := &Subscription{kind: kind, handler: handler}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], sub)
	return sub
}

// Off removes sub. It reports false when sub was not registered, which makes
// repeated calls harmless.
func (d *Dispatcher) Off(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.handlers[sub.kind]
	for i, s := range subs {
		if s != sub {
			continue
		}
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(d.handlers, sub.kind)
		} else {
			d.handlers[sub.kind] = next
		}
		return true
	}
	return false
}

// Dispatch calls every handler registered for ev's kind, in registration
// order, on the caller's goroutine. A panicking handler is logged and the
// remaining handlers still run.
func (d *Dispatcher) Dispatch(ev domain.Event) {
	d.mu.RLock()
	subs := d.handlers[ev.Kind()]
	d.mu.RUnlock()

	for _, sub := range subs {
		d.invoke(sub, ev)
	}
}

func (d *Dispatcher) invoke(sub *Subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(logging.Connection, logging.Dispatch, "event handler panicked", map[logging.ExtraKey]any{
				logging.Event:        string(ev.Kind()),
				logging.BookingID:    ev.Booking(),
				logging.ErrorMessage: fmt.Sprint(r),
			})
		}
	}()
	sub.handler(ev)
}

func (d *Dispatcher) Count(kind domain.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// Handle adapts a handler for one concrete event variant. Events of any
// other variant are ignored.
func Handle[E domain.Event](fn func(E)) Handler {
	return func(ev domain.Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	}
}
