package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
)

type promptsResponse struct {
	Prompts []string `json:"prompts"`
}

// Prompts returns journaling suggestions for the caller. It always answers
// 200: generation failures degrade to the fallback list.
func Prompts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, promptsResponse{Prompts: d.Prompts.GetPrompts(r.Context(), sess.UserID)})
	}
}
