/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for operational tooling
  5. BasicAuth:  Optional; stamps the authenticated user onto the
                 request context for the orchestrator's auth gate

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/savings-core/savings"
)

// BasicAuthConfig enables HTTP basic auth when Username is non-empty.
type BasicAuthConfig struct {
	Username string
	Password string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth BasicAuthConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if auth.Username != "" {
		r.Use(basicAuth(auth))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/journal", h.GetJournal)

			r.Post("/{id}/deposits", h.Deposit)
			r.Post("/{id}/withdrawals", h.Withdraw)
			r.Post("/{id}/dividends", h.Dividend)
			r.Post("/{id}/holds", h.Hold)
			r.Post("/{id}/releases", h.Release)
			r.Post("/{id}/reversals", h.Reverse)
			r.Post("/{id}/interest-postings", h.PostInterest)
		})
	})

	return r
}

// basicAuth validates credentials with constant-time comparison and
// stamps the user onto the context for the orchestrator's auth gate.
func basicAuth(cfg BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.Password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="savings"`)
				writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(savings.WithUser(r.Context(), user)))
		})
	}
}
