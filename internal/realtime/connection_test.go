package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/auth"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
)

func TestInboundFramesAreDispatchedAsEvents(t *testing.T) {
	conn := newFakeConn()
	m, dispatcher := startManager(t, testOptions(), newFakeDialer(conn), nil)

	got := make(chan domain.NewMessageEvent, 1)
	dispatcher.On(domain.EventNewMessage, Handle(func(e domain.NewMessageEvent) { got <- e }))
	waitConnected(t, m)

	conn.inbound <- ws.Frame{Type: "new-message", Data: json.RawMessage(`{"bookingId":"b1","_id":"m1","content":"hi"}`)}

	select {
	case ev := <-got:
		assert.Equal(t, "b1", ev.BookingID)
		assert.Equal(t, "m1", ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestRoomIDFillsMissingBookingID(t *testing.T) {
	conn := newFakeConn()
	m, dispatcher := startManager(t, testOptions(), newFakeDialer(conn), nil)

	got := make(chan domain.Event, 1)
	dispatcher.On(domain.EventMessageRead, func(e domain.Event) { got <- e })
	waitConnected(t, m)

	conn.inbound <- ws.Frame{Type: "message-read", RoomID: "b7", Data: json.RawMessage(`{"messageId":"m1"}`)}

	select {
	case ev := <-got:
		assert.Equal(t, "b7", ev.Booking())
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestUnknownFramesAreDropped(t *testing.T) {
	conn := newFakeConn()
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	conn.inbound <- ws.Frame{Type: "mystery", Data: json.RawMessage(`{}`)}
	conn.inbound <- ws.Frame{Type: "new-message", Data: json.RawMessage(`not json`)}

	assert.Never(t, func() bool { return !m.Connected() }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(conn)
	m, dispatcher := startManager(t, testOptions(), dialer, nil)

	got := make(chan domain.NewMessageEvent, 1)
	dispatcher.On(domain.EventNewMessage, Handle(func(e domain.NewMessageEvent) { got <- e }))
	waitConnected(t, m)

	conn.readErrs <- fmt.Errorf("read frame: %w: bad json", ws.ErrMalformedFrame)
	conn.inbound <- ws.Frame{Type: "new-message", Data: json.RawMessage(`{"bookingId":"b1","id":"m2","content":"after"}`)}

	select {
	case ev := <-got:
		assert.Equal(t, "m2", ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("frame after malformed one was not dispatched")
	}
	assert.True(t, m.Connected())
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Len(t, dialer.tokens, 1)
}

func TestRequestResolvesWithAckData(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = func(c *fakeConn, f ws.Frame) {
		if f.Type == ws.SendMessage {
			c.inbound <- ws.Frame{Type: ws.Ack, AckID: f.AckID, Data: json.RawMessage(`{"_id":"m9","content":"hello"}`)}
		}
	}
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	var msg domain.Message
	err := m.Request(context.Background(), ws.SendMessage, ws.SendMessagePayload{BookingID: "b1", Content: "hello", Type: "text"}, &msg)

	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	sent := conn.framesOfType(ws.SendMessage)
	require.Len(t, sent, 1)
	assert.NotEmpty(t, sent[0].AckID)
}

func TestRequestMapsAckErrorOntoTaxonomy(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = func(c *fakeConn, f ws.Frame) {
		if f.Type == ws.SendMessage {
			c.inbound <- ws.Frame{Type: ws.Ack, AckID: f.AckID, Error: &ws.ErrorPayload{
				Code: "RATE_LIMITED", Message: "slow down", RetryAfter: 3,
			}}
		}
	}
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	err := m.Request(context.Background(), ws.SendMessage, ws.SendMessagePayload{BookingID: "b1", Content: "x"}, nil)

	appErr := apperr.Classify(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.RateLimited, appErr.Kind)
	assert.Equal(t, 3*time.Second, appErr.RetryAfter)
	assert.Equal(t, "slow down", appErr.Message)
}

func TestOfflineCallsFailWithNetworkError(t *testing.T) {
	m := NewConnectionManager(testOptions(), newFakeDialer(), auth.NewStaticToken("t"), NewDispatcher(nil), nil)

	err := m.Request(context.Background(), ws.SendMessage, nil, nil)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, apperr.Network, apperr.KindOf(err))

	err = m.Emit(context.Background(), ws.SetTyping, ws.TypingPayload{BookingID: "b1"})
	assert.Equal(t, apperr.Network, apperr.KindOf(err))
	assert.Equal(t, Disconnected, m.State())
}

func TestAckTimeoutIsNetworkError(t *testing.T) {
	opts := testOptions()
	opts.AckTimeout = 30 * time.Millisecond
	conn := newFakeConn()
	m, _ := startManager(t, opts, newFakeDialer(conn), nil)
	waitConnected(t, m)

	err := m.Request(context.Background(), ws.SendMessage, nil, nil)

	assert.True(t, errors.Is(err, ErrAckTimeout))
	assert.Equal(t, apperr.Network, apperr.KindOf(err))
}

func TestPendingRequestsFailWhenConnectionDrops(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = func(c *fakeConn, f ws.Frame) {
		if f.Type == ws.SendMessage {
			go c.Close()
		}
	}
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	err := m.Request(context.Background(), ws.SendMessage, nil, nil)

	assert.Equal(t, apperr.Network, apperr.KindOf(err))
}

func TestReconnectNotifiesConnectivityListeners(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := newFakeDialer(first)
	dispatcher := NewDispatcher(nil)
	m := NewConnectionManager(testOptions(), dialer, auth.NewStaticToken("t"), dispatcher, nil)

	var mu sync.Mutex
	var transitions []bool
	unsubscribe := m.OnConnectivity(func(connected bool) {
		mu.Lock()
		transitions = append(transitions, connected)
		mu.Unlock()
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitConnected(t, m)
	first.Close()
	require.Eventually(t, func() bool { return !m.Connected() }, time.Second, time.Millisecond)

	dialer.conns <- second
	waitConnected(t, m)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, Disconnected, m.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false, true, false}, transitions)
}

func TestMissingCredentialKeepsRetrying(t *testing.T) {
	conn := newFakeConn()
	tokens := auth.NewStaticToken("")
	dialer := newFakeDialer(conn)
	m, _ := startManager(t, testOptions(), dialer, auth.Validated(tokens, nil))

	assert.Never(t, m.Connected, 40*time.Millisecond, 5*time.Millisecond)

	tokens.Set("fresh")
	waitConnected(t, m)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Equal(t, []string{"fresh"}, dialer.tokens)
}

func TestKeepalivePings(t *testing.T) {
	opts := testOptions()
	opts.PingInterval = 10 * time.Millisecond
	conn := newFakeConn()
	m, _ := startManager(t, opts, newFakeDialer(conn), nil)
	waitConnected(t, m)

	require.Eventually(t, func() bool { return len(conn.framesOfType(ws.Ping)) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestServerPingIsAnswered(t *testing.T) {
	conn := newFakeConn()
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	conn.inbound <- ws.Frame{Type: ws.Ping}

	require.Eventually(t, func() bool { return len(conn.framesOfType(ws.Pong)) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunTwiceIsRejected(t *testing.T) {
	conn := newFakeConn()
	m, _ := startManager(t, testOptions(), newFakeDialer(conn), nil)
	waitConnected(t, m)

	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyRunning)
}
