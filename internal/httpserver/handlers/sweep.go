package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/apierr"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/utils"
)

// TriggerSweep queues an unlock sweep run on this instance.
func TriggerSweep(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Sweeper == nil {
			apierr.WriteError(w, http.StatusServiceUnavailable, apierr.CodeDependency, "the sweep does not run in this process")
			return
		}

		if !d.Sweeper.Trigger() {
			d.Logger.Warn("unlock sweep already queued",
				logger.String("remote_ip", utils.ClientIP(r, d.TrustProxy)))
			apierr.WriteError(w, http.StatusTooManyRequests, apierr.CodeRateLimited, "a sweep is already queued, please wait")
			return
		}

		d.Logger.Info("manual unlock sweep triggered via endpoint",
			logger.String("remote_ip", utils.ClientIP(r, d.TrustProxy)))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}
