// Package auth verifies bearer tokens and carries the resulting session
// through request contexts.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Session is the authenticated caller of one request. It is built by the
// auth middleware and passed down explicitly through the context; there is
// no process-wide current user.
type Session struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
}

type contextKey string

const sessionKey contextKey = "auth_session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
