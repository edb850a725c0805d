package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ecodeli/delivery-tracking-system/internal/adapter/http/middleware"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	// System health
	mux.HandleFunc("/health", routes.health.HealthCheck)

	// Observability
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/swagger/", httpSwagger.Handler())

	// Read path. Tracking by code is public: the code itself is the
	// capability.
	mux.Handle("GET /deliveries/{delivery_id}", m.RequireRoles(routes.delivery.GetDelivery))
	mux.HandleFunc("GET /track/{tracking_code}", routes.delivery.TrackByCode)

	// Admin
	mux.Handle("POST /deliveries/{delivery_id}/reconcile", m.RequireRoles(routes.delivery.ForceReconcile, types.RoleAdmin))

	// Real-time sockets
	mux.Handle("GET /ws/couriers", m.RequireRoles(routes.ws.HandleCourier, types.RoleCourier, types.RoleAdmin))
	mux.Handle("GET /ws/deliveries", m.RequireRoles(routes.ws.HandleObserver))
}
