package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/middleware"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

// GoogleAuthenticator is the primary sign-in collaborator. Satisfied by
// *oauth.GoogleProvider; tests substitute a stub.
type GoogleAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (identity.GoogleIdentity, error)
}

// GitHubAuthenticator is the secondary (linking) collaborator. Satisfied by
// *oauth.GitHubProvider.
type GitHubAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (identity.GitHubIdentity, error)
}

// Options wires the collaborators and policy knobs into a Server.
type Options struct {
	Users    *identity.Service
	Sessions *session.RedisStore
	Issuer   *token.Issuer
	Google   GoogleAuthenticator
	GitHub   GitHubAuthenticator

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// CORSOrigins lists the portal frontend origins allowed to call the API.
	CORSOrigins []string

	// SecureCookies marks session and state cookies Secure. Disabled only for
	// plain-HTTP local development.
	SecureCookies bool

	// PostLoginRedirect is where browser flows land after a callback.
	PostLoginRedirect string

	// TracingEnabled wraps the handler chain in otelhttp instrumentation.
	TracingEnabled bool

	// LoginRateLimit overrides the per-IP limit on the /auth endpoints.
	LoginRateLimit *middleware.RateLimitConfig
}

// Server is the HTTP API server.
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger

	auth   *AuthHandlers
	tokens *TokenHandlers
	admin  *AdminHandlers

	sessions *session.RedisStore
	issuer   *token.Issuer
}

// NewServer creates the server and registers all routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.PostLoginRedirect == "" {
		opts.PostLoginRedirect = "/"
	}
	if opts.LoginRateLimit == nil {
		opts.LoginRateLimit = middleware.LoginRateLimitConfig()
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   opts.Logger,
		sessions: opts.Sessions,
		issuer:   opts.Issuer,
		auth: &AuthHandlers{
			users:             opts.Users,
			sessions:          opts.Sessions,
			issuer:            opts.Issuer,
			google:            opts.Google,
			github:            opts.GitHub,
			logger:            opts.Logger,
			metrics:           opts.Metrics,
			secureCookies:     opts.SecureCookies,
			postLoginRedirect: opts.PostLoginRedirect,
		},
		tokens: &TokenHandlers{
			users:   opts.Users,
			issuer:  opts.Issuer,
			metrics: opts.Metrics,
		},
		admin: &AdminHandlers{
			users:   opts.Users,
			issuer:  opts.Issuer,
			logger:  opts.Logger,
			metrics: opts.Metrics,
		},
	}
	s.setupRoutes(opts)
	s.handler = s.buildHandler(opts)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	loginLimiter := middleware.NewRateLimiter(opts.LoginRateLimit)

	authRouter := s.router.PathPrefix("/auth").Subrouter()
	authRouter.Use(mux.MiddlewareFunc(middleware.IPRateLimitMiddleware(loginLimiter)))
	s.auth.RegisterRoutes(authRouter)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	requireAuth := middleware.NewAuthMiddleware(opts.Sessions, opts.Issuer, false)
	apiRouter.Use(mux.MiddlewareFunc(requireAuth.Handler))

	// /api/me stays open to pending sessions so the client can read its
	// one-shot status; everything else requires the access-policy gate.
	apiRouter.HandleFunc("/me", s.me).Methods("GET")

	s.tokens.RegisterRoutes(apiRouter)

	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(mux.MiddlewareFunc(middleware.RequireAdmin))
	s.admin.RegisterRoutes(adminRouter)
}

// buildHandler wraps the router in the cross-cutting middleware chain.
func (s *Server) buildHandler(opts Options) http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
	}
	if len(opts.CORSOrigins) > 0 {
		chain = append(chain, httputil.CORSMiddleware(opts.CORSOrigins))
	}
	if opts.Metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	chain = append(chain, httputil.MaxBytesMiddleware(1<<20))

	handler := httputil.Chain(chain...)(s.router)
	if opts.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "firn-auth")
	}
	return handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// me returns the caller's session view. For cookie sessions this is a consuming
// read: an attached one-shot auth status is returned here exactly once.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.GetSessionID(r); sessionID != "" {
		view, err := s.sessions.Read(r.Context(), sessionID)
		if err != nil {
			httputil.WriteUnauthorized(w, "session expired or unknown")
			return
		}
		httputil.WriteSuccess(w, view)
		return
	}

	view := middleware.GetView(r)
	if view == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, view)
}
