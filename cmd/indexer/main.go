// Command indexer builds a partial-index set from a document collection,
// reading either a TSV file of docID\tpassage lines or, with -stream, a
// Kafka topic of the same pairs as JSON events.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blockdex/blockdex/internal/build"
	"github.com/blockdex/blockdex/internal/buildledger"
	"github.com/blockdex/blockdex/internal/ingest"
	"github.com/blockdex/blockdex/internal/tokenizer"
	"github.com/blockdex/blockdex/pkg/config"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
	"github.com/blockdex/blockdex/pkg/kafka"
	"github.com/blockdex/blockdex/pkg/logger"
	"github.com/blockdex/blockdex/pkg/metrics"
	"github.com/blockdex/blockdex/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	stream := flag.String("stream", "", "Kafka topic to consume from instead of reading a collection file")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: indexer -config <path> [-stream <topic>] <collection.tsv|unused> <outputDir>")
		os.Exit(1)
	}
	collectionPath := flag.Arg(0)
	outputDir := flag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		slog.Error("failed to create output directory", "dir", outputDir, "error", err)
		os.Exit(1)
	}

	var ledger *buildledger.Ledger
	var db *postgres.Client
	if cfg.Postgres.Host != "" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build ledger disabled", "error", err)
		} else {
			defer db.Close()
		}
	}
	ledger = buildledger.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := ledger.StartRun(ctx, collectionPath, outputDir)
	ctx = logger.WithRequestID(ctx, strconv.FormatInt(runID, 10))
	log := logger.FromContext(ctx)

	tk := tokenizer.New(tokenizer.DefaultStopWords)
	b, err := build.New(tk, outputDir, filepath.Join(outputDir, "pagetable.txt"), cfg.Build.SpillThresholdBytes)
	if err != nil {
		log.Error("failed to initialize builder", "error", err)
		ledger.FailRun(ctx, runID, err)
		os.Exit(1)
	}

	if *stream != "" {
		err = runStreaming(ctx, cfg, *stream, b, ledger, runID)
	} else {
		err = runFile(ctx, collectionPath, b, ledger, runID)
	}
	if err != nil {
		log.Error("indexing failed", "error", err)
		ledger.FailRun(ctx, runID, err)
		os.Exit(1)
	}

	paths, err := b.Finish()
	if err != nil {
		log.Error("failed to finalize build", "error", err)
		ledger.FailRun(ctx, runID, err)
		os.Exit(1)
	}

	ledger.FinishRun(ctx, runID, int64(b.DocCount()), int64(b.SpillCount()))
	m.DocsIndexedTotal.Add(float64(b.DocCount()))
	m.SpillsWrittenTotal.Add(float64(b.SpillCount()))

	log.Info("indexing complete",
		"docs_indexed", b.DocCount(),
		"spills", len(paths),
		"output_dir", outputDir,
	)
	for _, p := range paths {
		fmt.Println(p)
	}
}

// runFile streams docID\tpassage lines from collectionPath into b, reporting
// progress to the ledger after each spill.
func runFile(ctx context.Context, collectionPath string, b *build.Builder, ledger *buildledger.Ledger, runID int64) error {
	log := logger.FromContext(ctx)

	f, err := os.Open(collectionPath)
	if err != nil {
		return fmt.Errorf("%w: opening collection %s: %v", bdxerrors.ErrIOError, collectionPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	lineNum := 0
	reportedSpills := 0
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		if line == "" {
			continue
		}
		docIDStr, passage, ok := strings.Cut(line, "\t")
		if !ok {
			log.Warn("skipping malformed collection line with no tab separator", "line", lineNum)
			continue
		}
		docID, err := strconv.ParseUint(docIDStr, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: line %d has a malformed docID %q: %v", bdxerrors.ErrParseError, lineNum, docIDStr, err)
		}
		if err := b.AddDocument(uint32(docID), passage); err != nil {
			return err
		}
		if b.SpillCount() != reportedSpills {
			reportedSpills = b.SpillCount()
			ledger.UpdateProgress(ctx, runID, int64(b.DocCount()), int64(b.SpillCount()))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: reading collection %s: %v", bdxerrors.ErrIOError, collectionPath, err)
	}
	return nil
}

// runStreaming consumes topic from Kafka until ctx is cancelled, folding
// each decoded document into b.
func runStreaming(ctx context.Context, cfg *config.Config, topic string, b *build.Builder, ledger *buildledger.Ledger, runID int64) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: -stream requires kafka.brokers to be configured", bdxerrors.ErrInvalidInput)
	}
	handler := ingest.HandleMessage(b)
	wrapped := func(ctx context.Context, key, value []byte) error {
		err := handler(ctx, key, value)
		if err == nil {
			ledger.UpdateProgress(ctx, runID, int64(b.DocCount()), int64(b.SpillCount()))
		}
		return err
	}
	consumer := kafka.NewConsumer(cfg.Kafka, topic, wrapped)
	logger.FromContext(ctx).Info("streaming ingestion started", "topic", topic, "brokers", cfg.Kafka.Brokers)
	return consumer.Start(ctx)
}
