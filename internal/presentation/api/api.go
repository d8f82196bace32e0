package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/metrics"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/health"
	messagesHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/messages"
	notificationsHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/notifications"
	statusHandler "github.com/hilthontt/bookingsync/internal/presentation/handler/status"
)

// Application is the local status API. It lets tools and the UI shell look at
// and drive the running client.
type Application struct {
	config               configs.StatusServerConfig
	healthHandler        *healthHandler.Handler
	statusHandler        *statusHandler.Handler
	messagesHandler      *messagesHandler.Handler
	notificationsHandler *notificationsHandler.Handler
	logger               logging.Logger
	ratelimiter          ratelimiter.Limiter
	metrics              *metrics.Metrics
}

func NewApplication(
	config configs.StatusServerConfig,
	healthHandler *healthHandler.Handler,
	statusHandler *statusHandler.Handler,
	messagesHandler *messagesHandler.Handler,
	notificationsHandler *notificationsHandler.Handler,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
	metrics *metrics.Metrics,
) *Application {
	return &Application{
		config:               config,
		healthHandler:        healthHandler,
		statusHandler:        statusHandler,
		messagesHandler:      messagesHandler,
		notificationsHandler: notificationsHandler,
		logger:               logger,
		ratelimiter:          ratelimiter,
		metrics:              metrics,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.requestLogger)
	r.Use(app.prometheusMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)

	if app.metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", app.statusHandler.GetStatusHandler)

		r.Route("/booking", func(r chi.Router) {
			r.Get("/", app.statusHandler.GetSnapshotHandler)
			r.Put("/", app.statusHandler.ActivateHandler)
			r.Delete("/", app.statusHandler.CloseHandler)
			r.Post("/actions/{action}", app.statusHandler.PerformActionHandler)

			r.Get("/messages", app.messagesHandler.ListMessagesHandler)
			r.Post("/messages", app.messagesHandler.CreateMessageHandler)
			r.Post("/messages/{messageId}/read", app.messagesHandler.MarkReadHandler)
			r.Post("/typing", app.messagesHandler.TypingHandler)
		})

		r.Post("/notifications/route", app.notificationsHandler.RouteHandler)

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
	})

	return r
}

// Run serves mux until ctx is cancelled, then shuts down gracefully.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.Host, app.config.Port),
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "status server stopping", map[logging.ExtraKey]any{
			logging.URL: srv.Addr,
		})
		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(logging.General, logging.Startup, "status server has started", map[logging.ExtraKey]any{
		logging.URL: srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdown; err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "status server has stopped", map[logging.ExtraKey]any{
		logging.URL: srv.Addr,
	})
	return nil
}
