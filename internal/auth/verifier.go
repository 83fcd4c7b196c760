package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken means the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// claims are the token fields the service relies on.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Verifier validates bearer tokens and turns them into sessions.
type Verifier struct {
	keyfunc  jwt.Keyfunc
	methods  []string
	issuer   string
	audience string
	leeway   time.Duration
}

// Options holds the optional claim checks.
type Options struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret string, opts Options) *Verifier {
	key := []byte(secret)
	return &Verifier{
		keyfunc:  func(*jwt.Token) (any, error) { return key, nil },
		methods:  []string{jwt.SigningMethodHS256.Alg()},
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
	}
}

// NewJWKSVerifier verifies asymmetric tokens against a remote JWKS that is
// refreshed in the background for the lifetime of ctx.
func NewJWKSVerifier(ctx context.Context, jwksURL string, opts Options) (*Verifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks %s: %w", jwksURL, err)
	}
	return NewKeyfuncVerifier(k, opts), nil
}

// NewKeyfuncVerifier wraps an existing key set, ex: one built from static JSON.
func NewKeyfuncVerifier(k keyfunc.Keyfunc, opts Options) *Verifier {
	return &Verifier{
		keyfunc:  k.Keyfunc,
		methods:  []string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"},
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
	}
}

// Verify checks the token and returns the session it describes. The "sub"
// claim must be a UUID.
func (v *Verifier) Verify(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	c := &claims{}
	if _, err := jwt.ParseWithClaims(token, c, v.keyfunc, parserOpts...); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Session{}, fmt.Errorf("%w: sub is not a user id", ErrInvalidToken)
	}

	return Session{
		UserID:      userID,
		Email:       strings.TrimSpace(c.Email),
		DisplayName: c.Name,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
