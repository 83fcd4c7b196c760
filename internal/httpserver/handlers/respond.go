package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/apierr"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// session returns the caller, or writes 401 and reports false.
func session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	s, ok := mw.SessionFrom(r)
	if !ok {
		apierr.Unauthorized(w, "authentication required")
	}
	return s, ok
}
