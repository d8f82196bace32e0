package booking

import (
	"maps"
	"sync"

	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
)

// Transition folds one event payload into a snapshot. Transitions never
// mutate their input.
type Transition func(current domain.Snapshot, payload map[string]any) domain.Snapshot

var transitions = map[domain.EventKind]Transition{
	domain.EventStatusChanged:            mergeAll,
	domain.EventPaymentConfirmed:         withStatus(domain.StatusPaid),
	domain.EventJobStartApproved:         withStatus(domain.StatusInProgress),
	domain.EventJobCompleteApproved:      withStatus(domain.StatusCompleted),
	domain.EventAssignmentTimeoutWarning: timeoutWarning("assignment"),
	domain.EventQuoteTimeoutWarning:      timeoutWarning("quote"),
	domain.EventQuoteAccepted:            quoteOutcome(domain.FieldQuoteAccepted),
	domain.EventQuoteDeclined:            quoteOutcome(domain.FieldQuoteDeclined),
	domain.EventJobConflictWarning:       conflictWarning,
}

// TransitionFor returns the transition registered for kind.
func TransitionFor(kind domain.EventKind) (Transition, bool) {
	t, ok := transitions[kind]
	return t, ok
}

func mergeAll(current domain.Snapshot, payload map[string]any) domain.Snapshot {
	next := current.Clone()
	maps.Copy(next, payload)
	return next
}

func withStatus(status domain.BookingStatus) Transition {
	return func(current domain.Snapshot, payload map[string]any) domain.Snapshot {
		next := mergeAll(current, payload)
		next[domain.FieldStatus] = string(status)
		return next
	}
}

// mergeKeepingStatus merges payload but leaves status untouched.
func mergeKeepingStatus(current domain.Snapshot, payload map[string]any) domain.Snapshot {
	next := current.Clone()
	for k, v := range payload {
		if k == domain.FieldStatus {
			continue
		}
		next[k] = v
	}
	return next
}

func timeoutWarning(kind string) Transition {
	return func(current domain.Snapshot, payload map[string]any) domain.Snapshot {
		next := mergeKeepingStatus(current, payload)
		next[domain.FieldTimeoutWarning] = true
		next[domain.FieldTimeoutKind] = kind
		for _, key := range []string{domain.FieldSecondsRemaining, "seconds_remaining", "remainingSeconds"} {
			if v, ok := payload[key]; ok {
				next[domain.FieldSecondsRemaining] = v
				break
			}
		}
		return next
	}
}

func quoteOutcome(field string) Transition {
	return func(current domain.Snapshot, payload map[string]any) domain.Snapshot {
		next := mergeAll(current, payload)
		next[field] = true
		next[domain.FieldTimeoutWarning] = false
		delete(next, domain.FieldSecondsRemaining)
		return next
	}
}

func conflictWarning(current domain.Snapshot, payload map[string]any) domain.Snapshot {
	next := mergeKeepingStatus(current, payload)
	next[domain.FieldConflictWarning] = true
	return next
}

type ReducerOptions struct {
	// RejectStale drops updates whose updatedAt is older than the snapshot's.
	RejectStale bool
}

// Reducer owns the snapshot of the active booking. Events for any other
// booking are discarded without touching it.
type Reducer struct {
	opts   ReducerOptions
	logger logging.Logger

	mu        sync.RWMutex
	bookingID string
	snapshot  domain.Snapshot
	listeners []func(domain.Snapshot)
}

func NewReducer(opts ReducerOptions, logger logging.Logger) *Reducer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reducer{
		opts:     opts,
		logger:   logger,
		snapshot: domain.Snapshot{},
	}
}

func (r *Reducer) BookingID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bookingID
}

// SwitchBooking starts a new snapshot for bookingID, seeded with seed when
// given.
func (r *Reducer) SwitchBooking(bookingID string, seed domain.Snapshot) {
	r.mu.Lock()
	r.bookingID = bookingID
	r.snapshot = seed.Clone()
	snap := r.snapshot.Clone()
	r.mu.Unlock()

	r.notify(snap)
}

// Snapshot returns a copy of the current snapshot.
func (r *Reducer) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Clone()
}

// Apply folds ev into the snapshot and reports whether it was applied.
// Applying the same event twice yields the same snapshot.
func (r *Reducer) Apply(ev domain.BookingUpdateEvent) bool {
	transition, ok := TransitionFor(ev.Kind())
	if !ok {
		return false
	}

	r.mu.Lock()
	if ev.BookingID == "" || ev.BookingID != r.bookingID {
		r.mu.Unlock()
		return false
	}
	if r.opts.RejectStale && isStale(r.snapshot, ev.Payload) {
		r.mu.Unlock()
		r.logger.Debug(logging.Booking, logging.StaleEvent, "stale booking update dropped", map[logging.ExtraKey]any{
			logging.BookingID: ev.BookingID,
			logging.Event:     string(ev.Kind()),
		})
		return false
	}
	r.snapshot = transition(r.snapshot, ev.Payload)
	snap := r.snapshot.Clone()
	r.mu.Unlock()

	r.logger.Debug(logging.Booking, logging.Transition, "booking snapshot updated", map[logging.ExtraKey]any{
		logging.BookingID: ev.BookingID,
		logging.Event:     string(ev.Kind()),
	})
	r.notify(snap)
	return true
}

// Merge shallow-merges a server-provided snapshot of bookingID, e.g. the
// result of a fetch or a lifecycle action.
func (r *Reducer) Merge(bookingID string, s domain.Snapshot) bool {
	r.mu.Lock()
	if bookingID == "" || bookingID != r.bookingID {
		r.mu.Unlock()
		return false
	}
	if r.opts.RejectStale && isStale(r.snapshot, s) {
		r.mu.Unlock()
		return false
	}
	r.snapshot = mergeAll(r.snapshot, s)
	snap := r.snapshot.Clone()
	r.mu.Unlock()

	r.notify(snap)
	return true
}

// OnChange registers fn to receive a copy of every new snapshot.
func (r *Reducer) OnChange(fn func(domain.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Reducer) notify(snap domain.Snapshot) {
	r.mu.RLock()
	listeners := append([]func(domain.Snapshot){}, r.listeners...)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(snap.Clone())
	}
}

func isStale(current domain.Snapshot, payload map[string]any) bool {
	have, ok := current.UpdatedAt()
	if !ok {
		return false
	}
	incoming, ok := domain.Snapshot(payload).UpdatedAt()
	if !ok {
		return false
	}
	return incoming.Before(have)
}
