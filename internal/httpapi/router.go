package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lockfleet/lockfleet"
)

// NewRouter builds the chi router for the lock fleet's HTTP surface:
//   - POST   /transfer
//   - POST   /withdraw
//   - GET    /accounts/{id}/balance
//   - GET    /lock-management/status
//   - POST   /lock-management/switch
//   - GET    /lock-management/providers
//   - GET    /lock-management/locks
//   - POST   /lock-management/locks/{key}/force-release
//   - GET    /actuator/health
func NewRouter(h *Handlers, logger lockfleet.Logger, corsOrigins []string) http.Handler {
	if logger == nil {
		logger = &lockfleet.NoOpLogger{}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		MaxAge:           300,
		AllowCredentials: false,
	}))

	r.Post("/transfer", h.Transfer)
	r.Post("/withdraw", h.Withdraw)
	r.Get("/accounts/{id}/balance", h.Balance)

	r.Route("/lock-management", func(r chi.Router) {
		r.Get("/status", h.LockManagementStatus)
		r.Post("/switch", h.LockManagementSwitch)
		r.Get("/providers", h.LockManagementProviders)
		r.Get("/locks", h.LockManagementLocks)
		r.Post("/locks/{key}/force-release", h.LockManagementForceRelease)
	})

	r.Get("/actuator/health", h.Health)

	return r
}

// requestLogger logs each request's method, path, status and duration
// through the configured Logger once the handler chain completes.
func requestLogger(logger lockfleet.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
