package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/auth"
	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/metrics"
	"github.com/hilthontt/bookingsync/internal/infrastructure/tracing"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
)

var (
	// ErrNotConnected is returned by Emit and Request while the socket is
	// down. It classifies as NETWORK_ERROR.
	ErrNotConnected   = fmt.Errorf("socket not connected: %w", apperr.ErrTransport)
	ErrAckTimeout     = fmt.Errorf("acknowledgment timed out: %w", apperr.ErrTransport)
	ErrConnectionLost = fmt.Errorf("connection lost before acknowledgment: %w", apperr.ErrTransport)
	ErrAlreadyRunning = errors.New("connection manager already running")
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Dialer opens one authenticated socket. *ws.Dialer satisfies it.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (ws.Conn, error)
}

type Options struct {
	URL          string
	PingInterval time.Duration
	AckTimeout   time.Duration
	Reconnect    configs.ReconnectConfig
	Metrics      *metrics.Metrics
}

func OptionsFromConfig(cfg *configs.Config) Options {
	return Options{
		URL:          cfg.Connection.URL,
		PingInterval: cfg.Connection.PingInterval,
		AckTimeout:   cfg.Connection.AckTimeout,
		Reconnect:    cfg.Reconnect,
	}
}

type ackResult struct {
	data json.RawMessage
	err  error
}

type connectivityListener struct {
	fn func(connected bool)
}

// ConnectionManager owns the single socket of the process. It reconnects with
// exponential backoff, decodes inbound frames into domain events for the
// Dispatcher and correlates acknowledgments for outbound requests.
type ConnectionManager struct {
	opts       Options
	dialer     Dialer
	tokens     auth.TokenSource
	dispatcher *Dispatcher
	logger     logging.Logger

	mu        sync.Mutex
	state     State
	conn      ws.Conn
	pending   map[string]chan ackResult
	listeners []*connectivityListener
	running   bool
	cancel    context.CancelFunc
}

func NewConnectionManager(opts Options, dialer Dialer, tokens auth.TokenSource, dispatcher *Dispatcher, logger logging.Logger) *ConnectionManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	return &ConnectionManager{
		opts:       opts,
		dialer:     dialer,
		tokens:     tokens,
		dispatcher: dispatcher,
		logger:     logger,
		pending:    make(map[string]chan ackResult),
	}
}

func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) Connected() bool {
	return m.State() == Connected
}

// OnConnectivity registers fn for every transition into and out of the
// connected state. Listeners run on the connection goroutine, before any
// frame of the new connection is read. The returned func unregisters fn.
func (m *ConnectionManager) OnConnectivity(fn func(connected bool)) func() {
	l := &connectivityListener{fn: fn}

	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, existing := range m.listeners {
				if existing == l {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Run dials, serves and redials until ctx is cancelled or Close is called.
// Only one Run may be active at a time.
func (m *ConnectionManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		m.setState(Disconnected, nil)
	}()

	b := m.newBackOff()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		m.setState(Connecting, nil)
		conn, err := m.connect(ctx)
		m.opts.Metrics.ObserveDial(err)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := b.NextBackOff()
			m.logger.Warn(logging.Connection, logging.Reconnect, "dial failed", map[logging.ExtraKey]any{
				logging.Attempt:      attempt,
				logging.Delay:        delay.String(),
				logging.ErrorKind:    string(apperr.KindOf(err)),
				logging.ErrorMessage: err.Error(),
			})
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		b.Reset()
		attempt = 0
		m.logger.Info(logging.Connection, logging.Dial, "connected", map[logging.ExtraKey]any{
			logging.URL: m.opts.URL,
		})
		m.setState(Connected, conn)

		err = m.serve(ctx, conn)
		_ = conn.Close()
		m.setState(Connecting, nil)
		m.failPending()

		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn(logging.Connection, logging.Reconnect, "connection dropped", map[logging.ExtraKey]any{
			logging.ErrorMessage: errString(err),
		})
		if !sleep(ctx, b.NextBackOff()) {
			return nil
		}
	}
}

// Close stops a running Run loop. It is safe to call more than once.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Emit writes a fire-and-forget frame.
func (m *ConnectionManager) Emit(ctx context.Context, typ string, data any) error {
	frame, err := ws.NewFrame(typ, data)
	if err != nil {
		return apperr.Wrap(apperr.Generic, err, "")
	}

	conn := m.currentConn()
	if conn == nil {
		return apperr.Classify(ErrNotConnected)
	}
	if err := conn.WriteFrame(frame); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// Request writes a frame carrying a fresh ack id and waits for the matching
// ack. The ack's data is decoded into out when out is non-nil. An ack carrying
// an error payload is mapped onto the error taxonomy.
func (m *ConnectionManager) Request(ctx context.Context, typ string, data any, out any) error {
	ctx, span := tracing.GetTracer("realtime").Start(ctx, "realtime.Request")
	defer span.End()
	span.SetAttributes(attribute.String("ws.op", typ))

	start := time.Now()
	err := m.request(ctx, typ, data, out)
	m.opts.Metrics.ObserveRequest(typ, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *ConnectionManager) request(ctx context.Context, typ string, data any, out any) error {
	frame, err := ws.NewFrame(typ, data)
	if err != nil {
		return apperr.Wrap(apperr.Generic, err, "")
	}
	frame.AckID = uuid.NewString()
	ch := make(chan ackResult, 1)

	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		m.mu.Unlock()
		return apperr.Classify(ErrNotConnected)
	}
	conn := m.conn
	m.pending[frame.AckID] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, frame.AckID)
		m.mu.Unlock()
	}()

	if err := conn.WriteFrame(frame); err != nil {
		return apperr.Classify(err)
	}

	timer := time.NewTimer(m.opts.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if out != nil && len(res.data) > 0 {
			if err := json.Unmarshal(res.data, out); err != nil {
				return apperr.Wrap(apperr.Generic, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err), "")
			}
		}
		return nil
	case <-timer.C:
		return apperr.Classify(ErrAckTimeout)
	case <-ctx.Done():
		return apperr.Classify(ctx.Err())
	}
}

func (m *ConnectionManager) connect(ctx context.Context) (ws.Conn, error) {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		m.logger.Warn(logging.Connection, logging.Credential, "credential unavailable", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return nil, apperr.Classify(err)
	}
	return m.dialer.Dial(ctx, m.opts.URL, token)
}

// serve pumps frames from conn until it fails or ctx ends. Keepalive pings
// run on their own goroutine; a failed ping closes conn, which ends the read.
func (m *ConnectionManager) serve(ctx context.Context, conn ws.Conn) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(done)

	wg.Add(1)
	go func() {
		defer wg.Done()
		var tick <-chan time.Time
		if m.opts.PingInterval > 0 {
			ticker := time.NewTicker(m.opts.PingInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-tick:
				if err := conn.WriteFrame(ws.Frame{Type: ws.Ping}); err != nil {
					m.logger.Warn(logging.Connection, logging.Keepalive, "ping failed", map[logging.ExtraKey]any{
						logging.ErrorMessage: err.Error(),
					})
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		frame, err := conn.ReadFrame()
		if errors.Is(err, ws.ErrMalformedFrame) {
			m.opts.Metrics.ObserveFrame("malformed")
			m.logger.Warn(logging.Connection, logging.Dispatch, "skipping malformed frame", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			continue
		}
		if err != nil {
			return err
		}
		m.handleFrame(conn, frame)
	}
}

func (m *ConnectionManager) handleFrame(conn ws.Conn, frame ws.Frame) {
	m.opts.Metrics.ObserveFrame(frame.Type)
	switch frame.Type {
	case ws.Ack:
		m.resolve(frame)
		return
	case ws.Ping:
		_ = conn.WriteFrame(ws.Frame{Type: ws.Pong})
		return
	case ws.Pong:
		return
	case ws.Error:
		if frame.AckID != "" {
			m.resolve(frame)
			return
		}
		msg := ""
		if frame.Error != nil {
			msg = frame.Error.Message
		}
		m.logger.Warn(logging.Connection, logging.Dispatch, "server error frame", map[logging.ExtraKey]any{
			logging.ErrorMessage: msg,
		})
		return
	}

	ev, err := domain.DecodeEvent(frame.Type, frame.Data)
	if err != nil {
		level := m.logger.Warn
		if errors.Is(err, domain.ErrUnknownEvent) {
			level = m.logger.Debug
		}
		level(logging.Connection, logging.Dispatch, "dropping inbound frame", map[logging.ExtraKey]any{
			logging.Event:        frame.Type,
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	m.dispatcher.Dispatch(domain.WithBookingID(ev, frame.RoomID))
}

func (m *ConnectionManager) resolve(frame ws.Frame) {
	m.mu.Lock()
	ch, ok := m.pending[frame.AckID]
	delete(m.pending, frame.AckID)
	m.mu.Unlock()
	if !ok {
		return
	}

	res := ackResult{data: frame.Data}
	if frame.Error != nil {
		res.err = ackError(frame.Error)
	}
	ch <- res
}

// failPending rejects every request still waiting on the dropped connection.
func (m *ConnectionManager) failPending() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]chan ackResult)
	m.mu.Unlock()

	for _, ch := range pending {
		ch <- ackResult{err: apperr.Classify(ErrConnectionLost)}
	}
}

func (m *ConnectionManager) setState(state State, conn ws.Conn) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	m.conn = conn
	listeners := append([]*connectivityListener(nil), m.listeners...)
	m.mu.Unlock()

	was, is := prev == Connected, state == Connected
	if was == is {
		return
	}
	m.opts.Metrics.SetConnected(is)
	for _, l := range listeners {
		l.fn(is)
	}
}

func (m *ConnectionManager) currentConn() ws.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return nil
	}
	return m.conn
}

func (m *ConnectionManager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if m.opts.Reconnect.MinDelay > 0 {
		b.InitialInterval = m.opts.Reconnect.MinDelay
	}
	if m.opts.Reconnect.MaxDelay > 0 {
		b.MaxInterval = m.opts.Reconnect.MaxDelay
	}
	if m.opts.Reconnect.Multiplier >= 1 {
		b.Multiplier = m.opts.Reconnect.Multiplier
	}
	b.RandomizationFactor = m.opts.Reconnect.Jitter
	b.Reset()
	return b
}

func ackError(p *ws.ErrorPayload) *apperr.Error {
	e := apperr.New(apperr.FromCode(p.Code), p.Message)
	e.RetryAfter = time.Duration(p.RetryAfter * float64(time.Second))
	e.Fields = p.Fields
	return e
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
