package realtime

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/infrastructure/auth"
	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
)

type fakeConn struct {
	inbound   chan ws.Frame
	readErrs  chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []ws.Frame
	onWrite func(c *fakeConn, f ws.Frame)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan ws.Frame, 16),
		readErrs: make(chan error, 4),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (ws.Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case err := <-c.readErrs:
		return ws.Frame{}, err
	case <-c.closed:
		return ws.Frame{}, net.ErrClosed
	}
}

func (c *fakeConn) WriteFrame(f ws.Frame) error {
	select {
	case <-c.closed:
		return apperr.ErrTransport
	default:
	}

	c.mu.Lock()
	c.written = append(c.written, f)
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(c, f)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) framesOfType(typ string) []ws.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ws.Frame
	for _, f := range c.written {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// fakeDialer hands out queued connections, failing while none are queued.
type fakeDialer struct {
	conns  chan *fakeConn
	mu     sync.Mutex
	tokens []string
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	d := &fakeDialer{conns: make(chan *fakeConn, 8)}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, url, token string) (ws.Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	d.mu.Unlock()

	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, apperr.ErrTransport
	}
}

func testOptions() Options {
	return Options{
		URL:        "ws://test/socket",
		AckTimeout: time.Second,
		Reconnect: configs.ReconnectConfig{
			MinDelay:   5 * time.Millisecond,
			MaxDelay:   20 * time.Millisecond,
			Multiplier: 2,
		},
	}
}

// startManager runs a manager until the test ends.
func startManager(t *testing.T, opts Options, dialer Dialer, tokens auth.TokenSource) (*ConnectionManager, *Dispatcher) {
	t.Helper()
	if tokens == nil {
		tokens = auth.NewStaticToken("token-1")
	}
	logger := logging.FromZap(zaptest.NewLogger(t))
	dispatcher := NewDispatcher(logger)
	m := NewConnectionManager(opts, dialer, tokens, dispatcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("manager did not stop")
		}
	})
	return m, dispatcher
}

func waitConnected(t *testing.T, m *ConnectionManager) {
	t.Helper()
	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
}
