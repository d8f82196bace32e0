package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/infrastructure/tracing"
)

type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{
		HandshakeTimeout: handshakeTimeout,
		WriteTimeout:     10 * time.Second,
	}
}

// Dial opens an authenticated socket. The credential travels as a bearer
// token on the upgrade request; a 401/403 answer is reported as
// UNAUTHORIZED, every other failure as a transport error.
func (d *Dialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	ctx, span := tracing.GetTracer("ws").Start(ctx, "ws.Dial")
	defer span.End()
	span.SetAttributes(attribute.String("ws.url", url))

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, apperr.Wrap(apperr.Unauthorized, err, "")
			}
		}
		return nil, fmt.Errorf("dial %s: %w: %w", url, apperr.ErrTransport, err)
	}

	return newConnWrapper(conn, d.WriteTimeout), nil
}
