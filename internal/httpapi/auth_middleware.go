package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
)

type actorContextKey struct{}

// Actor is the authenticated caller a request is acting on behalf of.
type Actor struct {
	CustomerID uuid.UUID
	Role       auth.Role
}

// IsStaff reports whether the actor can see agent/admin-only content such
// as internal claim notes.
func (a Actor) IsStaff() bool {
	return a.Role == auth.RoleAgent || a.Role == auth.RoleAdmin
}

func withActor(ctx context.Context, actor Actor) context.Context {
	ctx = context.WithValue(ctx, actorContextKey{}, actor)
	ctx = logging.WithActorID(ctx, actor.CustomerID.String())
	ctx = logging.WithRole(ctx, string(actor.Role))
	return ctx
}

// ActorFromContext returns the authenticated actor carried on ctx. ok is
// false for requests on public routes that never passed through
// RequireAuth.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// publicPaths never require a bearer token: they are how a caller obtains
// one in the first place, or infrastructure endpoints probed by automation
// that doesn't carry application credentials.
var publicPaths = map[string]bool{
	"/health":                   true,
	"/health/db":                true,
	"/metrics":                  true,
	"/v1/auth/login":            true,
	"/v1/auth/refresh":          true,
	"/v1/auth/magic-link":       true,
	"/v1/auth/magic-link/redeem": true,
	"/v1/auth/password-reset":   true,
	"/v1/auth/password-reset/confirm": true,
}

// RequireAuth extracts and verifies a bearer access token, attaching the
// resulting Actor to the request context. Requests to publicPaths pass
// through untouched.
func RequireAuth(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				WriteError(w, r, apierr.Unauthenticated("missing bearer token"))
				return
			}
			token := strings.TrimPrefix(header, prefix)

			claims, err := issuer.Verify(token)
			if err != nil {
				WriteError(w, r, apierr.InvalidToken(err))
				return
			}

			actor := Actor{CustomerID: claims.CustomerID, Role: auth.Role(claims.Role)}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects requests whose actor does not hold one of the
// permitted roles. It must run after RequireAuth.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !allowed[actor.Role] {
				WriteError(w, r, apierr.Forbidden("this action requires elevated privileges"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
