package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/mw"
)

// Rate limiting runs before authentication so bad tokens are throttled too.
func init() { Register("api", registerAPI, rateLimited, authenticated) }

func rateLimited(d deps.Deps) func(http.Handler) http.Handler {
	return mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitPerMin,
		MaxEntries:        d.RateLimitMaxItems,
		TrustProxy:        d.TrustProxy,
	})
}

func authenticated(d deps.Deps) func(http.Handler) http.Handler {
	return mw.Authenticate(d.Verifier, d.Profiles, d.Logger)
}

func registerAPI(r chi.Router, d deps.Deps) {
	r.Get("/api/capsules", handlers.ListCapsules(d))
	r.Post("/api/capsules", handlers.CreateCapsule(d))
	r.Get("/api/capsules/stats", handlers.CapsuleStats(d))
	r.Get("/api/capsules/{id}", handlers.GetCapsule(d))
	r.Delete("/api/capsules/{id}", handlers.DeleteCapsule(d))
	r.Get("/api/prompts", handlers.Prompts(d))
}
