// Package buildledger records one row per indexer invocation in PostgreSQL.
// It is an optional, non-gating observability aid: a build that cannot
// reach PostgreSQL still completes and produces a valid index, it simply
// leaves no ledger row behind.
package buildledger

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/blockdex/blockdex/pkg/postgres"
)

// Run is one row of the build_runs table.
type Run struct {
	ID             int64
	CollectionPath string
	OutputDir      string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	DocsProcessed  int64
	SpillCount     int64
	Status         string
}

// Ledger persists Run rows. A nil db makes every method a no-op, letting
// callers wire the ledger unconditionally and skip it only when Postgres
// was never configured or is unreachable.
type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Ledger backed by db. Passing a nil db yields a Ledger whose
// methods are no-ops.
func New(db *postgres.Client) *Ledger {
	return &Ledger{db: db, logger: slog.Default().With("component", "build-ledger")}
}

// StartRun inserts a new build_runs row in the 'running' state and returns
// its ID. With a nil database it returns ID 0 silently; if the insert fails
// it logs at warn and returns ID 0. It never returns an error: the ledger
// never gates a build.
func (l *Ledger) StartRun(ctx context.Context, collectionPath, outputDir string) int64 {
	if l.db == nil {
		return 0
	}
	var id int64
	err := l.db.DB.QueryRowContext(ctx,
		`INSERT INTO build_runs (collection_path, output_dir, started_at, status, docs_processed, spill_count)
		 VALUES ($1, $2, NOW(), 'running', 0, 0) RETURNING id`,
		collectionPath, outputDir,
	).Scan(&id)
	if err != nil {
		l.logger.Warn("build ledger unavailable, continuing without a run record", "error", err)
		return 0
	}
	l.logger.Info("build run started", "run_id", id, "collection", collectionPath, "output_dir", outputDir)
	return id
}

// UpdateProgress records the running docsProcessed/spillCount counts for
// runID. The file-ingestion path calls it after each spill and the streaming
// path after each folded document; a nil database or zero runID is a no-op.
func (l *Ledger) UpdateProgress(ctx context.Context, runID int64, docsProcessed, spillCount int64) {
	if l.db == nil || runID == 0 {
		return
	}
	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE build_runs SET docs_processed = $1, spill_count = $2 WHERE id = $3`,
		docsProcessed, spillCount, runID,
	)
	if err != nil {
		l.logger.Warn("build ledger progress update failed", "run_id", runID, "error", err)
	}
}

// FinishRun marks a build run completed. A nil database or zero runID is a
// no-op.
func (l *Ledger) FinishRun(ctx context.Context, runID int64, docsProcessed, spillCount int64) {
	if l.db == nil || runID == 0 {
		return
	}
	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE build_runs SET finished_at = NOW(), status = 'completed', docs_processed = $1, spill_count = $2 WHERE id = $3`,
		docsProcessed, spillCount, runID,
	)
	if err != nil {
		l.logger.Warn("build ledger completion update failed", "run_id", runID, "error", err)
		return
	}
	l.logger.Info("build run completed", "run_id", runID, "docs_processed", docsProcessed, "spill_count", spillCount)
}

// FailRun marks a build run failed. A nil database or zero runID is a
// no-op. The failure itself is still returned to the caller by indexer;
// this only records it.
func (l *Ledger) FailRun(ctx context.Context, runID int64, buildErr error) {
	if l.db == nil || runID == 0 {
		return
	}
	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE build_runs SET finished_at = NOW(), status = 'failed' WHERE id = $1`,
		runID,
	)
	if err != nil {
		l.logger.Warn("build ledger failure update failed", "run_id", runID, "error", err)
		return
	}
	l.logger.Error("build run failed", "run_id", runID, "error", buildErr)
}
