package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hilthontt/bookingsync/internal/booking"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/auth"
	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/metrics"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/bookingsync/internal/infrastructure/rest"
	"github.com/hilthontt/bookingsync/internal/infrastructure/tracing"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
	"github.com/hilthontt/bookingsync/internal/presentation/api"
	healthHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/health"
	messagesHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/messages"
	notificationsHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/notifications"
	statusHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/status"
	"github.com/hilthontt/bookingsync/internal/realtime"
)

const statusRequestsPerMinute = 120

// run wires the client and blocks until ctx ends or a component fails.
func run(ctx context.Context, cfg *configs.Config, bookingID string, logger logging.Logger) error {
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warnf("tracer shutdown: %v", err)
		}
	}()

	collectors := metrics.New()
	connOpts := realtime.OptionsFromConfig(cfg)
	connOpts.Metrics = collectors

	tokens := auth.Validated(auth.NewStaticToken(cfg.Connection.Token), nil)

	dispatcher := realtime.NewDispatcher(logger)
	conn := realtime.NewConnectionManager(
		connOpts,
		ws.NewDialer(cfg.Connection.HandshakeTimeout),
		tokens,
		dispatcher,
		logger,
	)
	rooms := realtime.NewRoomSubscription(conn, logger)
	defer rooms.Close()

	client, err := rest.NewClient(cfg.Rest, tokens, logger)
	if err != nil {
		return fmt.Errorf("rest client: %w", err)
	}

	sendLimiter := ratelimiter.NewFixedWindowRateLimiter(cfg.Outbound.MessagesPerWindow, cfg.Outbound.Window)
	defer sendLimiter.Close()

	store := booking.NewMessageStore(conn, client, booking.StoreOptions{
		Capacity:       cfg.MessageStore.Capacity,
		SendLimiter:    sendLimiter,
		TypingInterval: cfg.Outbound.TypingInterval,
		SelfID:         cfg.Connection.SelfID,
		Role:           domain.Role(cfg.Connection.Role),
		Metrics:        collectors,
	}, logger)
	reducer := booking.NewReducer(booking.ReducerOptions{RejectStale: cfg.Reducer.RejectStale}, logger)
	session := booking.NewSession(dispatcher, rooms, store, reducer, client, logger)

	printer := newPrinter(os.Stdout)
	reducer.OnChange(func(s domain.Snapshot) {
		printer.print("snapshot", reducer.BookingID(), s)
	})
	store.OnChange(func() {
		printer.print("messages", store.BookingID(), map[string]any{
			"count":      len(store.Messages()),
			"unread":     store.UnreadCount(),
			"peerTyping": store.PeerTyping(),
		})
	})
	unsubscribe := conn.OnConnectivity(func(connected bool) {
		logger.Info(logging.Connection, logging.Dial, "connectivity changed", map[logging.ExtraKey]any{
			logging.Event: map[bool]string{true: "online", false: "offline"}[connected],
		})
	})
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Run(ctx)
	})

	if cfg.StatusServer.Enabled {
		apiLimiter := ratelimiter.NewFixedWindowRateLimiter(statusRequestsPerMinute, time.Minute)
		defer apiLimiter.Close()

		app := api.NewApplication(
			cfg.StatusServer,
			healthHandler.NewHandler(conn),
			statusHandler.NewHandler(conn, rooms, store, session),
			messagesHandler.NewHandler(store),
			notificationsHandler.NewHandler(logger),
			logger,
			apiLimiter,
			collectors,
		)
		g.Go(func() error {
			return app.Run(ctx, app.Mount())
		})
	}

	if bookingID != "" {
		g.Go(func() error {
			if err := session.Activate(ctx, bookingID); err != nil {
				logger.Warn(logging.Booking, logging.Join, "initial load incomplete", map[logging.ExtraKey]any{
					logging.BookingID:    bookingID,
					logging.ErrorMessage: err.Error(),
				})
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		session.Close(context.Background())
		return nil
	})

	logger.Info(logging.General, logging.Startup, "bookingsync started", map[logging.ExtraKey]any{
		logging.AppName: cfg.Tracing.ServiceName,
		logging.URL:     cfg.Connection.URL,
	})
	err = g.Wait()
	logger.Info(logging.General, logging.Shutdown, "bookingsync stopped", nil)
	return err
}

// printer writes state changes as JSON lines for the UI shell to consume.
type printer struct {
	enc *json.Encoder
}

func newPrinter(out *os.File) *printer {
	return &printer{enc: json.NewEncoder(out)}
}

func (p *printer) print(kind, bookingID string, data any) {
	_ = p.enc.Encode(map[string]any{
		"kind":      kind,
		"bookingId": bookingID,
		"data":      data,
	})
}
