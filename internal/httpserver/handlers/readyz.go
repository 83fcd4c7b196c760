package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

const readyTimeout = 2 * time.Second

type componentStatus struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz probes every backing service concurrently and answers 503 when
// any of them is unavailable.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu  sync.Mutex
			wg  sync.WaitGroup
			out = readyzResponse{Ready: true, Components: make(map[string]componentStatus, len(d.Checkers))}
		)
		for _, c := range d.Checkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				start := time.Now()
				err := c.Ready(ctx)
				st := componentStatus{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
				if err != nil {
					st.Error = "unavailable"
					d.Logger.Warn("readiness check failed",
						logger.String("component", c.Name()),
						logger.Error(err))
				}

				mu.Lock()
				out.Components[c.Name()] = st
				if err != nil {
					out.Ready = false
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		status := http.StatusOK
		if !out.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, out)
	}
}
