package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/mw"
)

func init() { Register("internal", registerInternal, allowedNetworks) }

func allowedNetworks(d deps.Deps) func(http.Handler) http.Handler {
	return mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
}

func registerInternal(r chi.Router, d deps.Deps) {
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/internal/sweep", handlers.TriggerSweep(d))
}
