package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/documents"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
	"github.com/flightclaims/claims-engine/internal/platform/config"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/platform/metrics"
)

// Dependencies bundles every service the router needs to build its handler
// groups.
type Dependencies struct {
	DB       *sqlx.DB
	Config   *config.Config
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Issuer    *auth.TokenIssuer
	AuthSvc   *auth.Service
	ClaimSt   *claims.Store
	ClaimGrpSt *claims.GroupStore
	ClaimSvc  *claims.Service
	DocSt     *documents.Store
	Pipeline  *documents.Pipeline
	AuthLimit *auth.RateLimiter
}

// authRateLimit and authRateLimitWindow bound unauthenticated auth traffic
// per client IP: high enough that a legitimate customer retrying a typo'd
// password never notices, low enough to blunt a credential-stuffing or
// token-enumeration run against the same endpoints.
const (
	authRateLimit       = 20
	authRateLimitWindow = time.Minute
)

// routePattern returns the chi route pattern matched for r, falling back
// to the raw path when chi has not yet resolved one (e.g. a 404 that
// never reached a registered route) so metrics never explode into one
// series per distinct path value.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// NewRouter builds the full claims-engine HTTP handler: the outer-to-inner
// middleware chain, then public/customer/admin route groups, health and
// metrics endpoints, and the gorilla/mux admin bulk-claim sub-router.
func NewRouter(deps Dependencies) http.Handler {
	authHandlers := NewAuthHandlers(deps.AuthSvc, deps.Issuer)
	claimHandlers := NewClaimHandlers(deps.ClaimSt, deps.ClaimGrpSt, deps.ClaimSvc)
	docHandlers := NewDocumentHandlers(deps.ClaimSt, deps.DocSt, deps.Pipeline)
	customerHandlers := NewCustomerHandlers(deps.AuthSvc)

	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(Timeout(deps.Config.Server.RequestTimeout))
	r.Use(BodyLimit(deps.Config.Server.MaxBodyBytes))
	r.Use(SecurityHeaders(DefaultSecurityHeaders()))
	r.Use(CORS(CORSConfig{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowCredentials: deps.Config.CORS.AllowCredentials,
	}))
	r.Use(RequestLogging(deps.Logger))
	r.Use(RequestMetrics(deps.Metrics, "claims-engine"))
	r.Use(RequireAuth(deps.Issuer))

	r.Get("/health", livenessHandler)
	r.Get("/health/db", readinessHandler(deps.DB))
	if metrics.Enabled() {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(RateLimitByIP(deps.AuthLimit, authRateLimit, authRateLimitWindow))
		r.Post("/login", authHandlers.Login)
		r.Post("/refresh", authHandlers.Refresh)
		r.Post("/magic-link", authHandlers.RequestMagicLink)
		r.Post("/magic-link/redeem", authHandlers.RedeemMagicLink)
		r.Post("/password-reset", authHandlers.RequestPasswordReset)
		r.Post("/password-reset/confirm", authHandlers.ConfirmPasswordReset)
	})

	r.Route("/v1/account", func(r chi.Router) {
		r.Post("/anonymize", customerHandlers.Anonymize)
	})

	r.Route("/v1/claim-groups", func(r chi.Router) {
		r.Post("/", claimHandlers.CreateGroup)
		r.Post("/{groupID}/confirm-consent", claimHandlers.ConfirmGroupConsent)
	})

	r.Route("/v1/claims", func(r chi.Router) {
		r.Post("/", claimHandlers.CreateDraft)
		r.Get("/", claimHandlers.ListMine)
		r.Route("/{claimID}", func(r chi.Router) {
			r.Get("/", claimHandlers.Get)
			r.Post("/submit", claimHandlers.Submit)
			r.Get("/notes", claimHandlers.ListNotes)
			r.Post("/notes", claimHandlers.AddNote)
			r.Post("/documents", docHandlers.Upload)
			r.Get("/documents", docHandlers.List)
			r.Get("/documents/{fileID}", docHandlers.Download)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAgent, auth.RoleAdmin))
				r.Post("/begin-review", claimHandlers.BeginReview)
				r.Post("/approve", claimHandlers.Approve)
				r.Post("/reject", claimHandlers.Reject)
				r.Post("/reverse", claimHandlers.Reverse)
				r.Post("/reopen", claimHandlers.Reopen)
				r.Post("/mark-paid", claimHandlers.MarkPaid)
				r.Post("/close", claimHandlers.Close)
			})
		})
	})

	r.Mount("/v1/admin", newAdminRouter(claimHandlers))

	return r
}

// newAdminRouter builds the admin-only bulk-claim sub-router on
// gorilla/mux, alongside chi for the rest of the API surface. It still
// runs behind the outer chi middleware chain (recovery/timeout/auth
// already applied); it only adds the role check specific to admin
// operations.
func newAdminRouter(claimHandlers *ClaimHandlers) http.Handler {
	m := mux.NewRouter()
	sub := m.PathPrefix("/v1/admin").Subrouter()
	sub.Use(muxify(RequireRole(auth.RoleAdmin)))
	sub.HandleFunc("/claims/bulk-approve", claimHandlers.BulkApprove).Methods(http.MethodPost)
	return m
}

// muxify adapts a chi-style middleware (func(http.Handler) http.Handler)
// into a gorilla/mux MiddlewareFunc, which has the identical signature —
// the two routers' middleware conventions are interchangeable.
func muxify(mw func(http.Handler) http.Handler) mux.MiddlewareFunc {
	return mux.MiddlewareFunc(mw)
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func readinessHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			WriteError(w, r, apierr.DependencyUnavailable("database", err))
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	}
}
