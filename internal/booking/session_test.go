package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/rest"
	"github.com/hilthontt/bookingsync/internal/realtime"
)

type sessionFixture struct {
	session    *Session
	dispatcher *realtime.Dispatcher
	rooms      *fakeRooms
	fallback   *fakeFallback
	api        *fakeAPI
}

func newSessionFixture() *sessionFixture {
	dispatcher := realtime.NewDispatcher(nil)
	rooms := newFakeRooms()
	fallback := &fakeFallback{history: map[string][]domain.Message{}}
	api := &fakeAPI{bookings: map[string]domain.Snapshot{
		"b1": {"status": "pending"},
		"b2": {"status": "accepted"},
	}}
	store := NewMessageStore(&fakeTransport{}, fallback, StoreOptions{}, nil)
	reducer := NewReducer(ReducerOptions{}, nil)

	return &sessionFixture{
		session:    NewSession(dispatcher, rooms, store, reducer, api, nil),
		dispatcher: dispatcher,
		rooms:      rooms,
		fallback:   fallback,
		api:        api,
	}
}

func newMessageEvent(bookingID, id string) domain.NewMessageEvent {
	return domain.NewMessageEvent{BookingID: bookingID, Message: domain.Message{ID: id, BookingID: bookingID, Content: id}}
}

func TestActivateJoinsAndLoads(t *testing.T) {
	f := newSessionFixture()
	f.fallback.history["b1"] = []domain.Message{{ID: "m1", Content: "hi"}}

	require.NoError(t, f.session.Activate(context.Background(), "b1"))

	assert.Equal(t, []string{"join:b1"}, f.rooms.calls)
	assert.Equal(t, domain.StatusPending, f.session.Snapshot().Status())
	assert.Len(t, f.session.Messages(), 1)
}

func TestActivateSameBookingIsNoop(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	require.NoError(t, f.session.Activate(ctx, "b1"))
	handlers := f.dispatcher.Count(domain.EventNewMessage)
	require.NoError(t, f.session.Activate(ctx, "b1"))

	assert.Equal(t, []string{"join:b1"}, f.rooms.calls)
	assert.Equal(t, handlers, f.dispatcher.Count(domain.EventNewMessage))
}

func TestSwitchingBookingsDoesNotLeakMessages(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	require.NoError(t, f.session.Activate(ctx, "b1"))
	f.dispatcher.Dispatch(newMessageEvent("b1", "m1"))
	require.Len(t, f.session.Messages(), 1)

	require.NoError(t, f.session.Activate(ctx, "b2"))
	assert.Empty(t, f.session.Messages())

	f.dispatcher.Dispatch(newMessageEvent("b1", "late"))
	f.dispatcher.Dispatch(newMessageEvent("b2", "m2"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, []string{"join:b1", "leave:b1", "join:b2"}, f.rooms.calls)
}

func TestSwitchingReplacesHandlersInsteadOfAddingThem(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	require.NoError(t, f.session.Activate(ctx, "b1"))
	perBooking := f.dispatcher.Count(domain.EventStatusChanged)
	require.NoError(t, f.session.Activate(ctx, "b2"))

	assert.Equal(t, perBooking, f.dispatcher.Count(domain.EventStatusChanged))
	assert.Equal(t, 1, perBooking)
}

func TestStatusEventsReachOnlyTheActiveBooking(t *testing.T) {
	f := newSessionFixture()
	require.NoError(t, f.session.Activate(context.Background(), "b1"))

	other, err := domain.NewBookingUpdate(domain.EventPaymentConfirmed, "b2", nil)
	require.NoError(t, err)
	f.dispatcher.Dispatch(other)
	assert.Equal(t, domain.StatusPending, f.session.Snapshot().Status())

	own, err := domain.NewBookingUpdate(domain.EventPaymentConfirmed, "b1", nil)
	require.NoError(t, err)
	f.dispatcher.Dispatch(own)
	assert.Equal(t, domain.StatusPaid, f.session.Snapshot().Status())
}

func TestSwitchingBackSeedsFromCache(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	require.NoError(t, f.session.Activate(ctx, "b1"))
	require.NoError(t, f.session.Activate(ctx, "b2"))

	f.api.err = apperr.New(apperr.Network, "")
	err := f.session.Activate(ctx, "b1")

	assert.Equal(t, apperr.Network, apperr.KindOf(err))
	assert.Equal(t, domain.StatusPending, f.session.Snapshot().Status())
}

func TestCloseDetachesEverything(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	require.NoError(t, f.session.Activate(ctx, "b1"))

	f.session.Close(ctx)

	assert.Equal(t, "", f.session.Active())
	assert.Zero(t, f.dispatcher.Count(domain.EventNewMessage))
	assert.Equal(t, []string{"join:b1", "leave:b1"}, f.rooms.calls)
}

func TestLifecycleActionsMergeServerAnswer(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	require.NoError(t, f.session.Activate(ctx, "b1"))

	_, err := f.session.Accept(ctx)
	require.NoError(t, err)
	_, err = f.session.Quote(ctx, 75)
	require.NoError(t, err)
	_, err = f.session.Reject(ctx, "busy")
	require.NoError(t, err)

	assert.Equal(t, []rest.Action{rest.ActionAccept, rest.ActionQuote, rest.ActionReject}, f.api.actions)
	assert.Equal(t, map[string]float64{"amount": 75}, f.api.bodies[1])
	assert.Equal(t, "rejected", f.session.Snapshot().String("status"))
}

func TestLifecycleActionsNeedActiveBooking(t *testing.T) {
	f := newSessionFixture()

	_, err := f.session.Start(context.Background())
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	require.NoError(t, f.session.Activate(context.Background(), "b1"))
	_, err = f.session.Quote(context.Background(), 0)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}
