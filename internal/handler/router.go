package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Bidon15/licensesale/internal/database"
	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/handler/jsonrpc"
	"github.com/Bidon15/licensesale/internal/metrics"
	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/repository"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/token"
)

// RouterConfig holds everything the HTTP surface is built from.
// Redis, Events, Metrics and Checks are optional.
type RouterConfig struct {
	Logger   *slog.Logger
	Version  string
	Executor *executor.Executor
	Engine   *sale.Engine
	Admin    *sale.Admin
	Registry *token.Registry
	Book     *token.ERC20Book
	Events   repository.EventRepository
	Redis    *database.Redis
	Metrics  *metrics.Metrics
	Checks   map[string]Check

	Auth           middleware.CallerAuthConfig
	RateLimit      middleware.RPCRateLimitConfig
	AllowedOrigins []string
}

// NewRouter builds the daemon's HTTP handler:
//
//	POST /rpc                JSON-RPC, optionally signed, rate limited
//	GET  /v1/settings        sale settings
//	GET  /v1/tiers/{tier}    tier configuration
//	GET  /v1/events          event index (with a database)
//	/v1/admin/...            owner setters, signed
//	GET  /health, /ready     probes
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.HeaderAddress, middleware.HeaderTimestamp, middleware.HeaderSignature},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Version, cfg.Checks)
	r.Get("/health", health.Live)
	r.Get("/ready", health.Ready)

	rpc := jsonrpc.NewHandler(logger, jsonrpc.WithObserver(cfg.Metrics.ObserveRPC))
	jsonrpc.Register(rpc, jsonrpc.Services{
		Executor: cfg.Executor,
		Engine:   cfg.Engine,
		Registry: cfg.Registry,
		Book:     cfg.Book,
	})
	rpcAuth := cfg.Auth
	rpcAuth.RPC = true
	limit := cfg.RateLimit
	if limit.OnLimited == nil {
		limit.OnLimited = cfg.Metrics.RateLimited
	}
	if limit.Logger == nil {
		limit.Logger = logger
	}
	r.With(
		middleware.OptionalCallerAuth(rpcAuth),
		middleware.RPCRateLimit(cfg.Redis, limit),
	).Post("/rpc", rpc.ServeHTTP)

	saleHandler := NewSaleHandler(cfg.Executor, cfg.Engine)
	adminHandler := NewAdminHandler(cfg.Executor, cfg.Admin, cfg.Engine)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", saleHandler.GetSettings)
		r.Get("/tiers/{tier}", saleHandler.GetTier)
		if cfg.Events != nil {
			r.Mount("/events", NewEventHandler(cfg.Events).Routes())
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.CallerAuth(cfg.Auth))
			r.Mount("/", adminHandler.Routes())
		})
	})

	return r
}
