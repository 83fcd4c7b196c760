package mw

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/apierr"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// profileTTL is how long a recorded profile is trusted before the next
// request writes it again.
const profileTTL = 10 * time.Minute

type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Session, error)
}

type ProfileUpserter interface {
	UpsertProfile(ctx context.Context, p *domain.Profile) error
}

type sessionHolderKey struct{}

func withSessionHolder(ctx context.Context, h *auth.Session) context.Context {
	return context.WithValue(ctx, sessionHolderKey{}, h)
}

func recordSession(ctx context.Context, s auth.Session) {
	if h, ok := ctx.Value(sessionHolderKey{}).(*auth.Session); ok {
		*h = s
	}
}

// Authenticate verifies the bearer token, records the caller's profile and
// puts the session in the request context. Requests without a valid token
// get 401.
func Authenticate(v Verifier, profiles ProfileUpserter, log logger.Logger) func(http.Handler) http.Handler {
	// Remembers the profile last written per user to skip redundant upserts.
	seen := expirable.NewLRU[uuid.UUID, domain.Profile](4096, nil, profileTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := v.Verify(r.Context(), auth.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				if errors.Is(err, auth.ErrMissingToken) {
					apierr.Unauthorized(w, "missing bearer token")
				} else {
					log.Debug("token rejected", logger.Error(err))
					apierr.Unauthorized(w, "invalid or expired token")
				}
				return
			}

			p := domain.Profile{UserID: sess.UserID, Email: sess.Email, DisplayName: sess.DisplayName}
			if prev, ok := seen.Get(sess.UserID); profiles != nil && (!ok || prev.Email != p.Email || prev.DisplayName != p.DisplayName) {
				if err := profiles.UpsertProfile(r.Context(), &p); err != nil {
					// Capsule inserts need the profile row; creation will fail
					// loudly if it is really missing.
					log.Warn("profile not recorded",
						logger.String("user_id", sess.UserID.String()),
						logger.Error(err))
				} else {
					seen.Add(sess.UserID, domain.Profile{UserID: p.UserID, Email: p.Email, DisplayName: p.DisplayName})
				}
			}

			recordSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

// SessionFrom returns the authenticated session of a request that went
// through Authenticate.
func SessionFrom(r *http.Request) (auth.Session, bool) {
	return auth.FromContext(r.Context())
}
