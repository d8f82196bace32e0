package booking

import (
	"context"
	"io"
	"sync"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/rest"
)

type sentFrame struct {
	typ  string
	data any
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	emitted   []sentFrame
	requests  []sentFrame
	respond   func(typ string, data any, out any) error
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Emit(_ context.Context, typ string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return apperr.New(apperr.Network, "")
	}
	t.emitted = append(t.emitted, sentFrame{typ, data})
	return nil
}

func (t *fakeTransport) Request(_ context.Context, typ string, data any, out any) error {
	t.mu.Lock()
	t.requests = append(t.requests, sentFrame{typ, data})
	respond := t.respond
	t.mu.Unlock()
	if respond == nil {
		return nil
	}
	return respond(typ, data, out)
}

func (t *fakeTransport) emittedOfType(typ string) []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []sentFrame
	for _, f := range t.emitted {
		if f.typ == typ {
			out = append(out, f)
		}
	}
	return out
}

type fakeFallback struct {
	mu       sync.Mutex
	history  map[string][]domain.Message
	posted   []string
	marked   []string
	postErr  error
	uploaded string
	onFetch  func()
}

func (f *fakeFallback) FetchMessages(_ context.Context, bookingID string) ([]domain.Message, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.history[bookingID]...), nil
}

func (f *fakeFallback) PostMessage(_ context.Context, bookingID, content string, typ domain.MessageType) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, content)
	return &domain.Message{ID: "rest-" + content, BookingID: bookingID, Content: content, Type: typ}, nil
}

func (f *fakeFallback) MarkRead(_ context.Context, bookingID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, messageID)
	return nil
}

func (f *fakeFallback) UploadImage(_ context.Context, bookingID, filename string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = string(body)
	return "https://cdn.test/" + filename, nil
}

type fakeRooms struct {
	mu     sync.Mutex
	calls  []string
	joined map[string]bool
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{joined: map[string]bool{}}
}

func (r *fakeRooms) JoinBooking(_ context.Context, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "join:"+bookingID)
	r.joined[bookingID] = true
	return nil
}

func (r *fakeRooms) LeaveBooking(_ context.Context, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "leave:"+bookingID)
	delete(r.joined, bookingID)
	return nil
}

type fakeAPI struct {
	bookings map[string]domain.Snapshot
	actions  []rest.Action
	bodies   []any
	err      error
}

func (a *fakeAPI) FetchBooking(_ context.Context, bookingID string) (domain.Snapshot, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.bookings[bookingID].Clone(), nil
}

func (a *fakeAPI) Transition(_ context.Context, bookingID string, action rest.Action, body any) (domain.Snapshot, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.actions = append(a.actions, action)
	a.bodies = append(a.bodies, body)
	return domain.Snapshot{"status": string(action) + "ed"}, nil
}
