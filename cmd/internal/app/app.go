// Package app wires the Pulse server runtime: config, logging, stores, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"pulse/cmd/identity"
	authapi "pulse/cmd/internal/auth/api"
	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/metrics"
	"pulse/cmd/internal/notification"
	notifyapi "pulse/cmd/internal/notification/api"
	"pulse/cmd/internal/realtime"
	"pulse/cmd/internal/social"
	socialapi "pulse/cmd/internal/social/api"
	"pulse/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// App owns the HTTP server and every dependency behind it.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	reg     *prometheus.Registry
	handler http.Handler

	auth       *authapi.Handler
	registry   *realtime.Registry
	dispatcher *notification.Dispatcher
}

type stores struct {
	users    identity.Store
	sessions session.Store
	notifs   notification.Store
	posts    social.Store
}

// New constructs a fully wired App. A non-empty DatabaseURL selects Postgres stores.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		return nil, err
	}
	passwords, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	pool, st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)

	sessions := session.NewService(sessCfg, st.sessions, tokens)
	registry := realtime.NewRegistry(log, m)
	gateway := realtime.NewGateway(log, registry, sessions, realtime.LoadConfigFromEnv(), m)
	dispatcher := notification.NewDispatcher(st.notifs, registry, log, m)

	auth := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), st.users, sessions, passwords, m)
	feed := social.NewService(log, st.posts, st.users, dispatcher)

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, routes{
		pool:    pool,
		metrics: metrics.Handler(reg),
		ws:      gateway,
		apis: []routeRegistrar{
			auth,
			notifyapi.NewHandler(log, st.notifs, dispatcher, sessions),
			socialapi.NewHandler(log, feed, sessions),
		},
	})

	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, m)
	h = WithRequestID(h)

	return &App{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		reg:        reg,
		handler:    h,
		auth:       auth,
		registry:   registry,
		dispatcher: dispatcher,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Dispatcher exposes the notification entry point for in-process producers.
func (a *App) Dispatcher() *notification.Dispatcher { return a.dispatcher }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.Close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on a caller-provided listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.Close()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZero(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZero(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZero(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZero(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZero(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", ln.Addr().String(), "db_enabled", a.pool != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZero(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		a.log.Info("server.stopped")
		return nil
	})

	g.Go(func() error {
		return a.auth.Limiter().Run(gctx, nonZero(a.cfg.LimiterSweepInterval, time.Minute))
	})

	return g.Wait()
}

// Close releases the database pool. It is safe to call more than once.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func newStores(ctx context.Context, cfg Config, log Logger) (*pgxpool.Pool, stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.memory_stores")
		return nil, stores{
			users:    identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			notifs:   notification.NewMemoryStore(),
			posts:    social.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		return nil, stores{}, err
	}
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, stores{}, err
	}
	notifs, err := notification.NewPostgresStore(pool, "")
	if err != nil {
		pool.Close()
		return nil, stores{}, err
	}

	log.Info("db.enabled.postgres_stores")
	return pool, stores{
		users:    users,
		sessions: session.NewPostgresStore(pool),
		notifs:   notifs,
		posts:    social.NewPostgresStore(pool),
	}, nil
}

func nonZero[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
