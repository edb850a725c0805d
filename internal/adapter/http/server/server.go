package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ecodeli/delivery-tracking-system/config"
	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/handler"
	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/middleware"
	wshandler "github.com/ecodeli/delivery-tracking-system/internal/adapter/http/ws"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
)

const serviceName = "tracking-service"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

type handlers struct {
	health   *handler.Health
	delivery *handler.Delivery
	ws       *wshandler.TrackingWsHandler
}

func New(
	cfg config.Config,
	deliveryService handler.DeliveryService,
	reconcileService handler.Reconciler,
	wsHandler *wshandler.TrackingWsHandler,
	authService middleware.AuthService,
	log logger.Logger,
) (*API, error) {
	if authService == nil {
		return nil, errors.New("auth service is required")
	}

	routes := &handlers{
		health:   handler.NewHealth(serviceName, log),
		delivery: handler.NewDelivery(deliveryService, reconcileService, log),
		ws:       wsHandler,
	}

	api := &API{
		mux:    http.NewServeMux(),
		routes: routes,
		m:      middleware.NewMiddleware(authService, log),
		addr:   cfg.Server.Addr(),
		log:    log,
	}

	setupRoutes(api.mux, api.routes, api.m)

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	return api, nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

// withMiddleware applies the shared middleware chain to the mux.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.Metrics(serviceName)(a.m.Logging(a.m.Auth(a.mux))))
}
