package handlers

import (
	"fmt"
	"net/http"

	"fadedreams/repairshop/repair-service/metrics"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouterConfig holds the transport settings of the HTTP API
type RouterConfig struct {
	ServiceName string
	Secret      []byte
	CORSOrigins []string
	// RateLimit is a limiter rate such as "100-M"; empty disables limiting
	RateLimit   string
	MetricsPath string
}

// NewRouter wires every route and the middleware stack
func NewRouter(h *RepairHandler, cfg RouterConfig) (http.Handler, error) {
	router := mux.NewRouter()
	router.Use(otelmux.Middleware(cfg.ServiceName))
	router.Use(RequestID)
	router.Use(metrics.Middleware)

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if cfg.MetricsPath != "" {
		router.Handle(cfg.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(Authenticate(cfg.Secret))

	api.HandleFunc("/repairs", h.ListRepairs).Methods(http.MethodGet)
	api.HandleFunc("/repairs", h.CreateRepair).Methods(http.MethodPost)
	api.HandleFunc("/repairs/{id}", h.GetRepair).Methods(http.MethodGet)
	api.HandleFunc("/repairs/{id}", h.UpdateRepair).Methods(http.MethodPut)
	api.HandleFunc("/repairs/{id}", h.DeleteRepair).Methods(http.MethodDelete)
	api.HandleFunc("/repairs/{id}/iterations", h.AddIteration).Methods(http.MethodPost)
	api.HandleFunc("/repairs/{id}/assign", h.AssignMechanic).Methods(http.MethodPost)

	api.HandleFunc("/cars", h.ListCars).Methods(http.MethodGet)
	api.HandleFunc("/cars", h.CreateCar).Methods(http.MethodPost)

	api.HandleFunc("/workshops", h.ListWorkshops).Methods(http.MethodGet)
	api.HandleFunc("/workshops", h.CreateWorkshop).Methods(http.MethodPost)
	api.HandleFunc("/workshops/{id}", h.GetWorkshop).Methods(http.MethodGet)
	api.HandleFunc("/workshops/{id}/mechanics", h.AddWorkshopMechanic).Methods(http.MethodPost)
	api.HandleFunc("/workshops/{id}/mechanics/{mechanicId}", h.RemoveWorkshopMechanic).Methods(http.MethodDelete)

	api.HandleFunc("/mechanics", h.ListMechanics).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.Me).Methods(http.MethodGet)
	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods(http.MethodPut)

	var handler http.Handler = router
	if cfg.RateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.RateLimit, err)
		}
		handler = stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate)).Handler(handler)
	}

	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "If-Match", requestIDHeader},
			ExposedHeaders:   []string{"ETag", requestIDHeader},
			AllowCredentials: true,
		}).Handler(handler)
	}
	return handler, nil
}
