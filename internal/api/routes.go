package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/leadflow/internal/ingest"
	"github.com/ignite/leadflow/internal/pkg/httputil"
)

// Options carries the router settings that come from configuration.
type Options struct {
	AllowedOrigins []string
	// APIToken protects /api. Empty disables the check.
	APIToken string
	// Import serves POST /functions/zapier-import when set.
	Import        http.Handler
	ImportLimiter *ingest.IPRateLimiter
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Signature"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	if opts.Import != nil {
		r.Route("/functions", func(r chi.Router) {
			if opts.ImportLimiter != nil {
				r.Use(opts.ImportLimiter.Middleware)
			}
			r.Method(http.MethodPost, "/zapier-import", opts.Import)
		})
	}

	r.Route("/api", func(r chi.Router) {
		if opts.APIToken != "" {
			r.Use(requireToken(opts.APIToken))
		}

		r.Route("/campaigns/{campaignID}/qualification-rules", func(r chi.Router) {
			r.Get("/", h.ListQualificationRules)
			r.Post("/", h.CreateQualificationRule)
		})
		r.Route("/qualification-rules/{ruleID}", func(r chi.Router) {
			r.Get("/", h.GetQualificationRule)
			r.Put("/", h.UpdateQualificationRule)
			r.Put("/active", h.SetQualificationActive)
			r.Delete("/", h.DeleteQualificationRule)
		})

		r.Route("/steps/{stepID}/conditions", func(r chi.Router) {
			r.Get("/", h.ListStepConditions)
			r.Post("/", h.CreateStepCondition)
			r.Put("/", h.ReplaceStepConditions)
		})
		r.Route("/step-conditions/{id}", func(r chi.Router) {
			r.Put("/", h.UpdateStepCondition)
			r.Delete("/", h.DeleteStepCondition)
		})

		r.Route("/clients/{clientID}/escalation-rules", func(r chi.Router) {
			r.Get("/", h.ListEscalationRules)
			r.Post("/", h.CreateEscalationRule)
		})
		r.Route("/escalation-rules/{id}", func(r chi.Router) {
			r.Put("/", h.UpdateEscalationRule)
			r.Put("/active", h.SetEscalationActive)
			r.Delete("/", h.DeleteEscalationRule)
		})

		r.Route("/evaluate", func(r chi.Router) {
			r.Post("/qualification", h.EvaluateQualification)
			r.Post("/steps", h.EvaluateSteps)
			r.Post("/escalations", h.EvaluateEscalations)
		})

		r.Post("/events", h.HandleEvent)
	})

	return r
}

// requireToken checks the static bearer token guarding the management API.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httputil.Unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
