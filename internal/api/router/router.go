package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
	httpmiddleware "github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/http/middleware"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *whatsapp.WebhookHandler
	MetricsHandler http.Handler
	Env            string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", statusHandler(cfg.Env))
	r.Get("/health", healthCheck)

	if cfg.Webhook != nil {
		r.Get("/webhook", cfg.Webhook.HandleVerification)
		r.Post("/webhook", cfg.Webhook.HandleInbound)
	}

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

// statusHandler answers the root path so platform load balancers and uptime
// probes that only hit "/" see a 200.
func statusHandler(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"service": "loopera-whatsapp-ai-rails",
			"status":  "running",
			"env":     env,
		})
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
