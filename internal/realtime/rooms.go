package realtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
)

// joinRetryDelay is how long a join that failed on a live connection waits
// before it is sent again.
const joinRetryDelay = 2 * time.Second

// Emitter is the part of ConnectionManager room bookkeeping needs.
type Emitter interface {
	Connected() bool
	Emit(ctx context.Context, typ string, data any) error
	OnConnectivity(fn func(connected bool)) func()
}

// RoomSubscription tracks the bookings the client wants to be joined to and
// replays the joins after every reconnect.
type RoomSubscription struct {
	conn   Emitter
	logger logging.Logger

	mu      sync.Mutex
	desired map[string]struct{}
	joined  map[string]struct{}

	retryDelay time.Duration
	retry      *time.Timer
	closed     bool

	unsubscribe func()
}

func NewRoomSubscription(conn Emitter, logger logging.Logger) *RoomSubscription {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &RoomSubscription{
		conn:       conn,
		logger:     logger,
		desired:    make(map[string]struct{}),
		joined:     make(map[string]struct{}),
		retryDelay: joinRetryDelay,
	}
	r.unsubscribe = conn.OnConnectivity(r.onConnectivity)
	return r
}

// JoinBooking records the membership and emits a join when connected.
// Joining a booking that is already joined is a no-op; a member whose join
// has not gone out yet is tried again. While offline the join is deferred
// until the next connect. A join that fails on a live connection is retried
// after a delay.
func (r *RoomSubscription) JoinBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return domain.ErrMissingBookingID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[bookingID]; ok {
		return nil
	}
	r.desired[bookingID] = struct{}{}
	if r.conn.Connected() {
		r.emitJoinLocked(ctx, bookingID)
	}
	return nil
}

// LeaveBooking drops the membership. A leave frame is sent only if a join
// went out on the current connection.
func (r *RoomSubscription) LeaveBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return domain.ErrMissingBookingID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.desired[bookingID]; !ok {
		return nil
	}
	delete(r.desired, bookingID)

	if _, ok := r.joined[bookingID]; !ok {
		return nil
	}
	delete(r.joined, bookingID)
	if err := r.conn.Emit(ctx, ws.LeaveBooking, ws.BookingRef{BookingID: bookingID}); err != nil {
		r.logger.Warn(logging.Room, logging.Leave, "leave not sent", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.ErrorMessage: err.Error(),
		})
		return nil
	}
	r.logger.Debug(logging.Room, logging.Leave, "left booking room", map[logging.ExtraKey]any{
		logging.BookingID: bookingID,
	})
	return nil
}

// Members returns the desired memberships in sorted order.
func (r *RoomSubscription) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.desired)
}

// IsJoined reports whether a join for bookingID was sent on the current
// connection.
func (r *RoomSubscription) IsJoined(bookingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.joined[bookingID]
	return ok
}

// Close stops reacting to connectivity changes and cancels a pending join
// retry. Memberships are kept.
func (r *RoomSubscription) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopRetryLocked()
}

func (r *RoomSubscription) onConnectivity(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !connected {
		clear(r.joined)
		r.stopRetryLocked()
		return
	}
	r.joinPendingLocked()
}

func (r *RoomSubscription) joinPendingLocked() {
	for _, id := range sortedKeys(r.desired) {
		if _, ok := r.joined[id]; ok {
			continue
		}
		r.emitJoinLocked(context.Background(), id)
	}
}

func (r *RoomSubscription) retryJoins() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retry = nil
	if r.closed || !r.conn.Connected() {
		return
	}
	r.joinPendingLocked()
}

func (r *RoomSubscription) scheduleRetryLocked() {
	if r.closed || r.retry != nil {
		return
	}
	r.retry = time.AfterFunc(r.retryDelay, r.retryJoins)
}

func (r *RoomSubscription) stopRetryLocked() {
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
}

func (r *RoomSubscription) emitJoinLocked(ctx context.Context, bookingID string) {
	if err := r.conn.Emit(ctx, ws.JoinBooking, ws.BookingRef{BookingID: bookingID}); err != nil {
		r.logger.Warn(logging.Room, logging.Join, "join deferred", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.ErrorMessage: err.Error(),
		})
		if r.conn.Connected() {
			r.scheduleRetryLocked()
		}
		return
	}
	r.joined[bookingID] = struct{}{}
	r.logger.Debug(logging.Room, logging.Join, "joined booking room", map[logging.ExtraKey]any{
		logging.BookingID: bookingID,
	})
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
