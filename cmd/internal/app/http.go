package app

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// routeRegistrar is implemented by every API handler package.
type routeRegistrar interface {
	Register(mux *http.ServeMux)
}

type routes struct {
	pool    *pgxpool.Pool
	metrics http.Handler
	ws      http.Handler
	apis    []routeRegistrar
}

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && rt.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if rt.pool != nil {
			if err := PingDB(r.Context(), rt.pool, 2*time.Second); err != nil {
				log.Info("readyz.db.not_ready", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", rt.metrics)
	mux.Handle("GET /ws", rt.ws)

	for _, api := range rt.apis {
		api.Register(mux)
	}
}
