package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shardgate/gateway/middleware"
)

const readyTimeout = 5 * time.Second

// RPCHandler serves JSON-RPC over HTTP POST and WebSocket.
type RPCHandler interface {
	http.Handler
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type Config struct {
	RPC           RPCHandler
	Ready         func(ctx context.Context) error
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Ready != nil {
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
	}

	if cfg.RPC != nil {
		r.Group(func(gr chi.Router) {
			if cfg.RateLimiter != nil {
				gr.Use(cfg.RateLimiter.Middleware)
			}
			if obs != nil {
				gr.With(obs.Middleware("rpc")).Post("/rpc", cfg.RPC.ServeHTTP)
				gr.With(obs.Middleware("rpc")).Post("/", cfg.RPC.ServeHTTP)
				gr.With(obs.Middleware("ws")).Get("/ws", cfg.RPC.ServeWS)
				return
			}
			gr.Post("/rpc", cfg.RPC.ServeHTTP)
			gr.Post("/", cfg.RPC.ServeHTTP)
			gr.Get("/ws", cfg.RPC.ServeWS)
		})
	}

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r
}
