// Package httpapi serves the REST API: authentication, cached NASA search
// and favorites.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/leonardcser/nasa-proxy/internal/auth"
	"github.com/leonardcser/nasa-proxy/internal/metrics"
	"github.com/leonardcser/nasa-proxy/internal/nasa"
	"github.com/leonardcser/nasa-proxy/internal/store"
)

// Searcher is the cached NASA search used by the search route.
type Searcher interface {
	Search(ctx context.Context, query string, page, limit int) (*nasa.SearchResult, error)
}

// Users is the persistence the auth and favorites routes need.
type Users interface {
	CreateUser(u *store.User) error
	FindUserByID(id string) (*store.User, error)
	FindUserByUsername(username string) (*store.User, error)
	UpdateUser(u *store.User) error
	AddFavorite(userID string, a store.Asset) (*store.Asset, error)
	RemoveFavorite(userID, nasaID string) (bool, error)
	SearchFavorites(userID, query string) ([]store.Asset, error)
}

type Options struct {
	// Production marks cookies Secure and quiets the access log.
	Production bool
	// CookieTTL is the lifetime of the session cookie.
	CookieTTL time.Duration
	// RateLimit requests are allowed per RateWindow and client IP.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
	// Metrics is optional; when set /metrics is served.
	Metrics *metrics.Metrics
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	searcher Searcher
	users    Users
	issuer   *auth.Issuer
	opts     Options
	metrics  *metrics.Metrics
	now      func() time.Time
	handler  http.Handler
}

func New(searcher Searcher, users Users, issuer *auth.Issuer, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		searcher: searcher,
		users:    users,
		issuer:   issuer,
		opts:     opts,
		metrics:  opts.Metrics,
		now:      now,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(route, h))
	}

	handle("POST /api/v1/auth/register", "register", s.register)
	handle("POST /api/v1/auth/login", "login", s.login)
	handle("GET /api/v1/auth/logout", "logout", s.logout)
	handle("GET /api/v1/auth/me", "me", s.protect(s.me))
	handle("PUT /api/v1/auth/updatedetails", "updatedetails", s.protect(s.updateDetails))

	handle("GET /api/v1/nasa/search", "search", s.protect(s.search))
	handle("GET /api/v1/nasa/searchAssets", "searchAssets", s.protect(s.searchAssets))
	handle("POST /api/v1/nasa/addToFavorite/user/{userId}/nasa/{nasaId}", "addToFavorite", s.protect(s.addToFavorite))
	handle("DELETE /api/v1/nasa/removeFromFavorite/user/{userId}/nasa/{nasaId}", "removeFromFavorite", s.protect(s.removeFromFavorite))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"success": true})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errorf(http.StatusNotFound, "Route %s %s not found", r.Method, r.URL.Path))
	})

	mws := []middleware{recoverer, accessLog(s.opts.Production), secureHeaders}
	if s.opts.RateLimit > 0 && s.opts.RateWindow > 0 {
		mws = append(mws, newIPLimiter(s.opts.RateLimit, s.opts.RateWindow, s.now).middleware)
	}
	return chain(mux, mws...)
}
