package core

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ParleSec/LetsAuth/internal/obs"
	"github.com/ParleSec/LetsAuth/pkg/models"
)

// BaseRouter builds a chi router with the middleware stack shared by the
// IdP and RP servers.
func BaseRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(RequestLogger)
	r.Use(SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rateLimiter := NewRateLimiter(cfg.RateBurst, cfg.RatePerSec)
	r.Use(rateLimiter.Limit)

	r.Use(obs.Instrument)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RespondJSON writes v as a JSON response body.
func RespondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RespondError writes the shared JSON error body.
func RespondError(w http.ResponseWriter, status int, code, description string) {
	RespondJSON(w, status, models.ErrorResponse{
		Error:       code,
		Description: description,
	})
}
