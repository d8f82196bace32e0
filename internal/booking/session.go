package booking

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/repository"
	"github.com/hilthontt/bookingsync/internal/infrastructure/rest"
	"github.com/hilthontt/bookingsync/internal/realtime"
)

// Rooms is the membership side of the session. *realtime.RoomSubscription
// satisfies it.
type Rooms interface {
	JoinBooking(ctx context.Context, bookingID string) error
	LeaveBooking(ctx context.Context, bookingID string) error
}

// LifecycleAPI is the REST side of booking state. *rest.Client satisfies it.
type LifecycleAPI interface {
	FetchBooking(ctx context.Context, bookingID string) (domain.Snapshot, error)
	Transition(ctx context.Context, bookingID string, action rest.Action, body any) (domain.Snapshot, error)
}

// Session binds one active booking to the shared connection. Handlers are
// registered per booking with the id fixed at registration; switching
// bookings removes them before the next set is added.
type Session struct {
	dispatcher *realtime.Dispatcher
	rooms      Rooms
	store      *MessageStore
	reducer    *Reducer
	api        LifecycleAPI
	cache      *repository.SnapshotCache
	logger     logging.Logger

	mu     sync.Mutex
	active string
	subs   []*realtime.Subscription
}

func NewSession(dispatcher *realtime.Dispatcher, rooms Rooms, store *MessageStore, reducer *Reducer, api LifecycleAPI, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		dispatcher: dispatcher,
		rooms:      rooms,
		store:      store,
		reducer:    reducer,
		api:        api,
		cache:      repository.NewSnapshotCache(0, 0),
		logger:     logger,
	}
}

func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Store() *MessageStore {
	return s.store
}

func (s *Session) Reducer() *Reducer {
	return s.reducer
}

// Activate makes bookingID the active booking: it leaves the previous room,
// drops its handlers and state, registers handlers for bookingID, joins its
// room and loads its history. Activating the active booking is a no-op.
func (s *Session) Activate(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return apperr.Wrap(apperr.Validation, domain.ErrMissingBookingID, "")
	}

	s.mu.Lock()
	if s.active == bookingID {
		s.mu.Unlock()
		return nil
	}
	s.detachLocked(ctx)

	seed, _ := s.cache.Get(bookingID)
	s.store.SwitchBooking(bookingID)
	s.reducer.SwitchBooking(bookingID, seed)
	s.attachLocked(bookingID)
	s.active = bookingID
	s.mu.Unlock()

	s.logger.Info(logging.Booking, logging.Join, "booking activated", map[logging.ExtraKey]any{
		logging.BookingID: bookingID,
	})
	if err := s.rooms.JoinBooking(ctx, bookingID); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Refresh reloads the snapshot and message history of the active booking
// over REST. Results for a booking that is no longer active are dropped.
func (s *Session) Refresh(ctx context.Context) error {
	bookingID := s.Active()
	if bookingID == "" {
		return nil
	}

	var errs []error
	snap, err := s.api.FetchBooking(ctx, bookingID)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.reducer.Merge(bookingID, snap)
	}
	if err := s.store.Load(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn(logging.Booking, logging.ExternalService, "booking refresh incomplete", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.ErrorKind:    string(apperr.KindOf(errs[0])),
			logging.ErrorMessage: err.Error(),
		})
		return apperr.Classify(errs[0])
	}
	return nil
}

// Close leaves the active booking and clears its state.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachLocked(ctx)
	s.store.SwitchBooking("")
	s.reducer.SwitchBooking("", nil)
	s.active = ""
}

func (s *Session) attachLocked(bookingID string) {
	owns := func(ev domain.Event) bool { return ev.Booking() == bookingID }

	s.subs = append(s.subs,
		s.dispatcher.On(domain.EventNewMessage, realtime.Handle(func(e domain.NewMessageEvent) {
			if owns(e) {
				s.store.HandleNewMessage(e)
			}
		})),
		s.dispatcher.On(domain.EventMessageRead, realtime.Handle(func(e domain.MessageReadEvent) {
			if owns(e) {
				s.store.HandleMessageRead(e)
			}
		})),
		s.dispatcher.On(domain.EventTyping, realtime.Handle(func(e domain.TypingEvent) {
			if owns(e) {
				s.store.HandleTyping(e)
			}
		})),
	)
	for _, kind := range domain.BookingUpdateKinds {
		s.subs = append(s.subs, s.dispatcher.On(kind, realtime.Handle(func(e domain.BookingUpdateEvent) {
			if owns(e) {
				s.reducer.Apply(e)
			}
		})))
	}
}

func (s *Session) detachLocked(ctx context.Context) {
	if s.active == "" {
		return
	}
	if err := s.rooms.LeaveBooking(ctx, s.active); err != nil {
		s.logger.Warn(logging.Booking, logging.Leave, "leave failed", map[logging.ExtraKey]any{
			logging.BookingID:    s.active,
			logging.ErrorMessage: err.Error(),
		})
	}
	for _, sub := range s.subs {
		s.dispatcher.Off(sub)
	}
	s.subs = nil
	s.cache.Put(s.active, s.reducer.Snapshot())
}

// Messages, Snapshot and Send expose the active booking to readers that do
// not hold the store or reducer.
func (s *Session) Messages() []domain.Message {
	return s.store.Messages()
}

func (s *Session) Snapshot() domain.Snapshot {
	return s.reducer.Snapshot()
}

func (s *Session) Send(ctx context.Context, content string, typ domain.MessageType) (*domain.Message, error) {
	return s.store.Send(ctx, content, typ)
}

func (s *Session) SendImage(ctx context.Context, filename string, r io.Reader) (*domain.Message, error) {
	return s.store.SendImage(ctx, filename, r)
}

// Perform runs a lifecycle action on the active booking and merges the
// server's answer into the snapshot.
func (s *Session) Perform(ctx context.Context, action rest.Action, body any) (domain.Snapshot, error) {
	bookingID := s.Active()
	if bookingID == "" {
		return nil, apperr.Wrap(apperr.Validation, domain.ErrMissingBookingID, "")
	}

	snap, err := s.api.Transition(ctx, bookingID, action, body)
	if err != nil {
		s.logger.Warn(logging.Booking, logging.Transition, "lifecycle action failed", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.Event:        string(action),
			logging.ErrorKind:    string(apperr.KindOf(err)),
			logging.ErrorMessage: err.Error(),
		})
		return nil, apperr.Classify(err)
	}
	s.reducer.Merge(bookingID, snap)
	return snap, nil
}

func (s *Session) Accept(ctx context.Context) (domain.Snapshot, error) {
	return s.Perform(ctx, rest.ActionAccept, nil)
}

func (s *Session) Reject(ctx context.Context, reason string) (domain.Snapshot, error) {
	return s.Perform(ctx, rest.ActionReject, map[string]string{domain.FieldReason: reason})
}

func (s *Session) Quote(ctx context.Context, amount float64) (domain.Snapshot, error) {
	if amount <= 0 {
		return nil, apperr.NewValidation("amount: must be positive")
	}
	return s.Perform(ctx, rest.ActionQuote, map[string]float64{"amount": amount})
}

func (s *Session) OnTheWay(ctx context.Context) (domain.Snapshot, error) {
	return s.Perform(ctx, rest.ActionOnTheWay, nil)
}

func (s *Session) Start(ctx context.Context) (domain.Snapshot, error) {
	return s.Perform(ctx, rest.ActionStart, nil)
}

func (s *Session) Complete(ctx context.Context) (domain.Snapshot, error) {
	return s.Perform(ctx, rest.ActionComplete, nil)
}
