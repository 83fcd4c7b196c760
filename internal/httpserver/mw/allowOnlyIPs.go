package mw

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/apierr"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/utils"
)

var networkRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "capsule_http_network_rejected_total",
	Help: "Requests to internal endpoints refused because of the client address.",
})

// AllowOnlyCIDRS restricts the wrapped routes to the given IPs/CIDRs. An empty
// list disables the filter.
// trustProxy should be true behind a trusted reverse proxy/tunnel (e.g., cloudflared).
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Warn("internal endpoints are reachable from any address, set CAPSULE_ALLOWED_CIDRS to restrict them")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("internal endpoints restricted",
		logger.Strings("cidrs", allowed),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				networkRejectedTotal.Inc()
				log.Warn("internal endpoint refused",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				apierr.Forbidden(w, "address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
