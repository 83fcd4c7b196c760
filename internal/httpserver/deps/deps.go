package deps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/capsule"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// Capsules is the capsule workflow surface used by the handlers.
type Capsules interface {
	Create(ctx context.Context, sess auth.Session, in capsule.CreateInput) (*capsule.CreateResult, error)
	List(ctx context.Context, sess auth.Session) (*capsule.Listing, error)
	Get(ctx context.Context, sess auth.Session, id uuid.UUID) (*capsule.View, error)
	Delete(ctx context.Context, sess auth.Session, id uuid.UUID) error
	Stats(ctx context.Context, sess auth.Session) (*capsule.Stats, error)
}

// Prompts suggests journaling prompts. It never fails.
type Prompts interface {
	GetPrompts(ctx context.Context, userID uuid.UUID) []string
}

// Sweeper queues an unlock sweep run.
type Sweeper interface {
	Trigger() bool
}

// TokenVerifier turns a bearer token into a session.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Session, error)
}

// Profiles records the caller's profile on each authenticated request.
type Profiles interface {
	UpsertProfile(ctx context.Context, p *domain.Profile) error
}

// ReadinessChecker is one backing service probed by /readyz.
type ReadinessChecker interface {
	Name() string
	Ready(ctx context.Context) error
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS  []string         // IPs allowed to access /metrics and /internal
	TrustProxy    bool             // true if running behind a trusted reverse proxy
	CORSOrigins   []string         // allowed browser origins, empty => any
	MaxMediaSize  int64            // per-file ceiling, bounds the multipart body
	MaxMediaFiles int

	RateLimitBurst    int
	RateLimitPerMin   int
	RateLimitMaxItems int

	Capsules Capsules
	Prompts  Prompts
	Sweeper  Sweeper // nil when the sweep runs out of process
	Verifier TokenVerifier
	Profiles Profiles
	Checkers []ReadinessChecker
}
