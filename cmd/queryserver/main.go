// Command queryserver loads a final index directory and serves nextGEQ and
// docFreq lookups over HTTP until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockdex/blockdex/internal/query"
	"github.com/blockdex/blockdex/internal/queryserver"
	"github.com/blockdex/blockdex/pkg/config"
	"github.com/blockdex/blockdex/pkg/logger"
	"github.com/blockdex/blockdex/pkg/metrics"
	pkgredis "github.com/blockdex/blockdex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: queryserver -config <path> <finalIndexDir>")
		os.Exit(1)
	}
	indexDir := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	accessor, err := query.Load(indexDir)
	if err != nil {
		slog.Error("failed to load index", "dir", indexDir, "error", err)
		os.Exit(1)
	}
	defer accessor.Close()

	var redisClient *pkgredis.Client
	if cfg.Query.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, posting-list cache disabled", "error", err)
			redisClient = nil
		}
	}

	server := queryserver.NewServer(cfg.Query, accessor, redisClient, m, indexDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("query server starting", "index_dir", indexDir, "terms", len(accessor.Terms()))
	if err := server.Start(ctx, cfg.Query.ShutdownTimeout); err != nil {
		slog.Error("query server exited with error", "error", err)
		os.Exit(1)
	}
}
