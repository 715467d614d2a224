// Package auth identifies the official behind an API request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/crease/internal/domain/model"
)

// Development-mode identity headers, honored only without a signing secret.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorTeam = "X-Actor-Team"
)

var (
	// ErrUnauthenticated means the request carried no identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken wraps every token parsing and validation failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Actor is the authenticated official.
type Actor struct {
	ID     string     `json:"id"`
	Role   model.Role `json:"role"`
	TeamID string     `json:"team_id,omitempty"`
}

type claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
	Team string     `json:"team,omitempty"`
}

// Authenticator issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New creates an authenticator. An empty secret selects development mode.
func New(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// DevMode reports whether identity headers are trusted.
func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// Issue signs a token for actor valid for ttl.
func (a *Authenticator) Issue(actor Actor, ttl time.Duration) (string, error) {
	if a.DevMode() {
		return "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}
	now := a.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: actor.Role,
		Team: actor.TeamID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

// Verify parses a token and returns its actor.
func (a *Authenticator) Verify(token string) (Actor, error) {
	var c claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || !c.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: subject and role are required", ErrInvalidToken)
	}
	return Actor{ID: c.Subject, Role: c.Role, TeamID: c.Team}, nil
}

// Authenticate resolves the actor of r.
func (a *Authenticator) Authenticate(r *http.Request) (Actor, error) {
	if h := r.Header.Get("Authorization"); h != "" && !a.DevMode() {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return Actor{}, fmt.Errorf("%w: bearer scheme required", ErrInvalidToken)
		}
		return a.Verify(strings.TrimSpace(token))
	}
	if a.DevMode() {
		actor := Actor{
			ID:     strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Role:   model.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
			TeamID: strings.TrimSpace(r.Header.Get(HeaderActorTeam)),
		}
		if actor.ID != "" && actor.Role.Valid() {
			return actor, nil
		}
	}
	return Actor{}, ErrUnauthenticated
}

type ctxKey struct{}

// WithActor stores actor on ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// FromContext returns the actor stored by Middleware.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}

// Middleware attaches the actor to the request context when one is present.
// Anonymous requests pass through; a bad token is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Authenticate(r)
		switch {
		case err == nil:
			r = r.WithContext(WithActor(r.Context(), actor))
		case errors.Is(err, ErrInvalidToken):
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"unauthorized","message":"invalid token"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
