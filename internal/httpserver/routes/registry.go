package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// Registrar mounts one group of routes.
type Registrar func(r chi.Router, d deps.Deps)

// Guard builds a group middleware once the dependencies are known, ex: a
// CIDR filter that needs the configured allow list.
type Guard func(d deps.Deps) func(http.Handler) http.Handler

type entry struct {
	name   string
	reg    Registrar
	guards []Guard
}

var registry []entry

// Register adds a route group. Guards wrap every route of the group, in order.
func Register(name string, reg Registrar, guards ...Guard) {
	registry = append(registry, entry{name: name, reg: reg, guards: guards})
}

// RegisterAll mounts every group. Called once per router.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		sub := r
		if len(e.guards) > 0 {
			mws := make([]func(http.Handler) http.Handler, 0, len(e.guards))
			for _, g := range e.guards {
				mws = append(mws, g(d))
			}
			sub = r.With(mws...)
		}
		e.reg(sub, d)
		d.Logger.Debug("routes registered",
			logger.String("group", e.name),
			logger.Int("guards", len(e.guards)))
	}
}
