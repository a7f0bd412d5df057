package queryserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blockdex/blockdex/internal/query"
	"github.com/blockdex/blockdex/pkg/config"
	"github.com/blockdex/blockdex/pkg/health"
	"github.com/blockdex/blockdex/pkg/metrics"
	"github.com/blockdex/blockdex/pkg/middleware"
	pkgredis "github.com/blockdex/blockdex/pkg/redis"
)

// defaultCacheTTLSeconds is used when a posting cache is enabled; cache
// entries are short-lived since index.bin is immutable for the lifetime
// of a query server process and freshness is never a concern, only memory
// pressure on Redis.
const defaultCacheTTLSeconds = 300

// Server wraps the nextGEQ/docFreq HTTP handler with health checks,
// metrics middleware, and graceful shutdown.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server serving cfg against the index loaded in
// accessor. redisClient may be nil, in which case posting lists are read
// straight from the accessor with no cache in front.
func NewServer(cfg config.QueryConfig, accessor *query.Accessor, redisClient *pkgredis.Client, m *metrics.Metrics, indexDir string) *Server {
	var opener ListOpener
	if cfg.CacheEnabled && redisClient != nil {
		cache := query.NewPostingCache(redisClient, indexDir, defaultCacheTTLSeconds).WithMetrics(m)
		opener = NewListOpener(accessor, cache)
	} else {
		opener = NewListOpener(accessor, nil)
	}
	h := New(accessor, opener, m)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "index loaded"}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/nextGEQ", h.NextGEQ)
	mux.HandleFunc("/docFreq", h.DocFreq)
	mux.HandleFunc("/healthz", checker.LiveHandler())
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      chain,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	go func() {
		<-ctx.Done()
		slog.Info("query server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("query server shutdown error", "error", err)
		}
	}()

	slog.Info("query server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
