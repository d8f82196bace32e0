package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hilthontt/bookingsync/internal/apperr"
)

// Conn is what the connection manager needs from a live socket.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// connWrapper serialises writes; gorilla allows one concurrent reader and
// one concurrent writer.
type connWrapper struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mutex        sync.Mutex
	closed       bool
}

func newConnWrapper(c *websocket.Conn, writeTimeout time.Duration) *connWrapper {
	return &connWrapper{conn: c, writeTimeout: writeTimeout}
}

// ReadFrame separates transport failures, which end the connection, from
// undecodable payloads, which wrap ErrMalformedFrame.
func (w *connWrapper) ReadFrame() (Frame, error) {
	_, raw, err := w.conn.ReadMessage()
	if err != nil {
		return Frame{}, fmt.Errorf("read frame: %w: %w", apperr.ErrTransport, err)
	}
	f, err := DecodeFrame(raw)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

func (w *connWrapper) WriteFrame(f Frame) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return fmt.Errorf("write %s: %w: connection closed", f.Type, apperr.ErrTransport)
	}
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	if err := w.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w: %w", f.Type, apperr.ErrTransport, err)
	}
	return nil
}

func (w *connWrapper) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}
