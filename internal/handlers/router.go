package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockline/api/internal/platform/httpx"
)

// RouteRegistrar mounts one resource's routes.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

// routeGroup is a set of registrars sharing a middleware stack.
type routeGroup struct {
	middlewares []middlewareFunc
	registrars  []RouteRegistrar
}

func (g routeGroup) mount(r chi.Router) {
	for _, mw := range g.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	for _, reg := range g.registrars {
		if reg != nil {
			reg(r)
		}
	}
}

type routerConfig struct {
	middlewares []middlewareFunc
	health      *HealthHandlers
	staff       routeGroup
	internal    routeGroup
}

type Option func(*routerConfig)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// NewRouter serves /healthz and /readyz at the root and everything else under /api/v1.
// Staff routes sit behind the API middlewares (Firebase auth, idempotency). Internal routes
// live under /api/v1/internal with their own stack (OIDC) and answer 501 until some are
// registered.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", "method "+req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		api.Group(cfg.staff.mount)
		api.Route("/internal", func(internal chi.Router) {
			if len(cfg.internal.registrars) == 0 {
				cfg.internal.registrars = []RouteRegistrar{notImplemented("internal")}
			}
			cfg.internal.mount(internal)
		})
	})
	return r
}

// WithMiddlewares appends middleware applied to every request, health checks included.
func WithMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.staff.registrars = append(cfg.staff.registrars, reg...) }
}

func WithAPIMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.staff.middlewares = append(cfg.staff.middlewares, mw...) }
}

func WithInternalRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal.registrars = append(cfg.internal.registrars, reg...) }
}

func WithInternalMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.internal.middlewares = append(cfg.internal.middlewares, mw...) }
}

func notImplemented(name string) RouteRegistrar {
	return func(r chi.Router) {
		h := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
		}
		r.HandleFunc("/", h)
		r.HandleFunc("/*", h)
	}
}
