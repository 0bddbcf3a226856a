package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/service"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	service      *service.Service
	store        Pinger
	metrics      http.Handler
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

// NewRouter creates a router. metrics may be nil, in which case /metrics is
// not served.
func NewRouter(svc *service.Service, st Pinger, metrics http.Handler, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		service:      svc,
		store:        st,
		metrics:      metrics,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerRPC()
	r.registerWellKnown()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerRPC() {
	// Anonymous calls pass through; a presented token must verify.
	r.Mux.Handle("POST /rpc",
		httpx.Chain(NewHandler(r.service),
			httpx.RateLimitByIP(httpx.RPCLimit),
			httpx.OptionalAuthnMiddleware(r.service),
			httpx.RateLimitByClient(httpx.RPCClientLimit),
		),
	)
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.service),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.HealthLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.service.Keys),
			httpx.RateLimitByIP(httpx.HealthLimit),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics)
	}
}
