// Package app wires the sale daemon together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Bidon15/licensesale/internal/authz"
	"github.com/Bidon15/licensesale/internal/config"
	"github.com/Bidon15/licensesale/internal/database"
	"github.com/Bidon15/licensesale/internal/events"
	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/handler"
	"github.com/Bidon15/licensesale/internal/metrics"
	"github.com/Bidon15/licensesale/internal/middleware"
	"github.com/Bidon15/licensesale/internal/repository"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/state"
	"github.com/Bidon15/licensesale/internal/telemetry"
	"github.com/Bidon15/licensesale/internal/token"
)

// Application is the assembled daemon.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	State    *state.State
	Executor *executor.Executor
	Engine   *sale.Engine
	Admin    *sale.Admin
	Registry *token.Registry
	Book     *token.ERC20Book
	Metrics  *metrics.Metrics

	Pool    *pgxpool.Pool
	Redis   *database.Redis
	Tracing *telemetry.Provider

	Router        http.Handler
	Server        *http.Server
	MetricsServer *http.Server
}

// New builds the application. With a database configured the persisted
// state is restored before anything is served.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Application, error) {
	a := &Application{
		Config:  cfg,
		Logger:  logger,
		Version: version,
		Metrics: metrics.New(),
	}

	var err error
	a.Tracing, err = telemetry.Setup(telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "licensesaled",
		ServiceVersion: version,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.State = state.New(cfg.Settings())

	var repo repository.StateRepository
	if cfg.Database.URL != "" {
		if repo, err = a.openDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = database.NewRedis(ctx, database.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Connected to redis", slog.String("addr", cfg.Redis.Addr))
	}

	a.initServices(ctx, repo)
	if err := a.initAdmin(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initRouter()
	return a, nil
}

// openDatabase migrates, connects and restores the sale state. On a fresh
// database the configured settings are written as the first checkpoint.
func (a *Application) openDatabase(ctx context.Context) (repository.StateRepository, error) {
	url := a.Config.Database.URL
	if a.Config.Database.Migrate {
		version, dirty, err := repository.Migrate(url, 0)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("Database migrated", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}

	pool, err := database.NewPostgres(ctx, url)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	repo := repository.NewStateRepository(pool)
	stored, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}
	if stored.Settings == nil {
		if err := repo.Commit(ctx, a.State.Image()); err != nil {
			return nil, fmt.Errorf("failed to seed state: %w", err)
		}
		a.Logger.Info("Seeded sale settings", slog.String("owner", a.Config.Sale.Owner))
		return repo, nil
	}

	a.State.Apply(stored)
	a.Logger.Info("Restored sale state",
		slog.Int("licenses", len(stored.Owners)),
		slog.Uint64("next_token_id", stored.Settings.NextTokenID))
	return repo, nil
}

func (a *Application) initServices(ctx context.Context, repo repository.StateRepository) {
	publishers := events.Multi{events.NewLogPublisher(a.Logger)}
	if a.Redis != nil {
		publishers = append(publishers, events.NewStreamPublisher(a.Redis, a.Config.Redis.Stream, a.Config.Redis.MaxLen))
	}

	opts := []executor.Option{
		executor.WithPublisher(publishers),
		executor.WithMetrics(a.Metrics),
		executor.WithTracer(a.Tracing.Tracer),
		executor.WithLogger(a.Logger),
	}
	if repo != nil {
		opts = append(opts, executor.WithCommitter(repo))
	}
	a.Executor = executor.New(a.State, opts...)

	a.Book = token.NewERC20Book(a.State)
	a.Registry = token.NewRegistry(a.State)
	a.Engine = sale.NewEngine(a.State, sale.BookPayments(a.Book), a.Registry, a.Config.Spender(),
		sale.WithLogger(a.Logger))
}

func (a *Application) initAdmin(ctx context.Context) error {
	owner := func() common.Address { return a.State.Settings().Owner }
	policy, err := authz.NewPolicyAuthorizer(ctx, a.Config.Authz.PolicyPath, owner)
	if err != nil {
		return err
	}

	var faucet sale.Faucet
	if a.Config.Sale.Faucet {
		faucet = a.Book
		a.Logger.Warn("Payment token faucet enabled")
	}
	a.Admin = sale.NewAdmin(a.State, a.Engine.Store(), policy, faucet)
	return nil
}

func (a *Application) initRouter() {
	cfg := handler.RouterConfig{
		Logger:   a.Logger,
		Version:  a.Version,
		Executor: a.Executor,
		Engine:   a.Engine,
		Admin:    a.Admin,
		Registry: a.Registry,
		Book:     a.Book,
		Redis:    a.Redis,
		Metrics:  a.Metrics,
		Checks:   map[string]handler.Check{},
		Auth: middleware.CallerAuthConfig{
			MaxClockSkew: a.Config.Auth.MaxClockSkew,
		},
		RateLimit: middleware.RPCRateLimitConfig{
			RequestsPerSecond: a.Config.RateLimit.RequestsPerSecond,
			BurstSize:         a.Config.RateLimit.Burst,
		},
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	}
	if a.Pool != nil {
		cfg.Events = repository.NewEventRepository(a.Pool)
		cfg.Checks["postgres"] = a.Pool.Ping
	}
	if a.Redis != nil {
		cfg.Checks["redis"] = a.Redis.Ping
	}
	a.Router = handler.NewRouter(cfg)

	a.Server = &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if a.Config.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		a.MetricsServer = &http.Server{
			Addr:              a.Config.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	servers := []*http.Server{a.Server}
	if a.MetricsServer != nil {
		servers = append(servers, a.MetricsServer)
	}
	for _, srv := range servers {
		g.Go(func() error {
			a.Logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server %s shutdown: %w", srv.Addr, err))
			}
		}
		if err := a.Tracing.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases database connections.
func (a *Application) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", slog.String("error", err.Error()))
		}
		a.Redis = nil
	}
}
