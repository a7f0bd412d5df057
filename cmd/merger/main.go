// Command merger performs the external k-way merge of a directory of
// partial-index files into a final index, lexicon, and block-metadata file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blockdex/blockdex/internal/merge"
	"github.com/blockdex/blockdex/pkg/config"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
	"github.com/blockdex/blockdex/pkg/logger"
	"github.com/blockdex/blockdex/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: merger -config <path> <intermediateDir> <finalIndexDir>")
		os.Exit(1)
	}
	intermediateDir := flag.Arg(0)
	finalIndexDir := flag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	paths, err := partialPaths(intermediateDir)
	if err != nil {
		slog.Error("failed to list partial-index files", "dir", intermediateDir, "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		slog.Error("no partial-index files found", "dir", intermediateDir)
		os.Exit(1)
	}

	if err := os.MkdirAll(finalIndexDir, 0755); err != nil {
		slog.Error("failed to create final index directory", "dir", finalIndexDir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	merger, err := merge.Open(ctx, paths, cfg.Build.PostingsPerBlock)
	if err != nil {
		slog.Error("failed to open partial-index readers", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	stats, err := merger.Merge(
		filepath.Join(finalIndexDir, "index.bin"),
		filepath.Join(finalIndexDir, "lexicon.txt"),
		filepath.Join(finalIndexDir, "blockMetaData.txt"),
	)
	if err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}
	duration := time.Since(start)

	m.MergeDurationSeconds.Observe(duration.Seconds())
	m.TermsMergedTotal.Add(float64(stats.TermsMerged))
	m.BlocksEmittedTotal.Add(float64(stats.BlocksEmitted))
	m.BlockEncodeBytesTotal.Add(float64(stats.IndexBytes))

	slog.Info("merge complete",
		"partials", len(paths),
		"terms_merged", stats.TermsMerged,
		"blocks_emitted", stats.BlocksEmitted,
		"index_bytes", stats.IndexBytes,
		"duration", duration,
	)
}

// partialPaths returns every intermediate_<N>.txt file under dir, sorted by
// spill number so merge.Open's determinism guarantee (tie-break by reader
// index) corresponds to spill order.
func partialPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", bdxerrors.ErrIOError, dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "intermediate_") || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		return spillNumber(names[i]) < spillNumber(names[j])
	})
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// spillNumber extracts N from "intermediate_N.txt", returning -1 if the
// name doesn't parse (sorting such names first is harmless since
// partialPaths only ever passes names already matched by the prefix).
func spillNumber(name string) int {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "intermediate_"), ".txt")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1
	}
	return n
}
