// Package build drives the single accumulator used by both the file-based
// and Kafka-streaming ingestion paths: fold a document in, spill to disk
// once the accumulator crosses its byte budget, and track the page table
// alongside it. There is exactly one Builder per indexer process, honoring
// the single-writer-per-output-file rule partial-index spills depend on.
package build

import (
	"fmt"
	"log/slog"

	"github.com/blockdex/blockdex/internal/pagetable"
	"github.com/blockdex/blockdex/internal/partial"
	"github.com/blockdex/blockdex/internal/tokenizer"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Builder folds documents into an in-memory accumulator, spilling it to a
// new partial-index file whenever its estimated size crosses
// thresholdBytes, and records each document's token length to a page
// table sidecar.
type Builder struct {
	acc            *partial.Accumulator
	spiller        *partial.Spiller
	pageTable      *pagetable.Writer
	thresholdBytes int64

	spillCount         int
	docsAlreadySpilled int
	partialPaths       []string
	logger             *slog.Logger
}

// New creates a Builder whose spills land in workDir and whose page table
// is written to pageTablePath.
func New(tk *tokenizer.Tokenizer, workDir, pageTablePath string, thresholdBytes int64) (*Builder, error) {
	pt, err := pagetable.NewWriter(pageTablePath)
	if err != nil {
		return nil, err
	}
	return &Builder{
		acc:            partial.New(tk),
		spiller:        partial.NewSpiller(workDir),
		pageTable:      pt,
		thresholdBytes: thresholdBytes,
		logger:         slog.Default().With("component", "builder"),
	}, nil
}

// AddDocument folds one (docID, passage) pair into the accumulator,
// records its token length in the page table, and spills if the
// accumulator has crossed its byte budget.
func (b *Builder) AddDocument(docID uint32, passage string) error {
	tokenCount := b.acc.AddDocument(docID, passage)
	if err := b.pageTable.Write(docID, tokenCount); err != nil {
		return err
	}
	if b.acc.Size() >= b.thresholdBytes {
		return b.spill()
	}
	return nil
}

// DocCount returns the number of documents folded into the accumulator
// since the builder was created, across all spills.
func (b *Builder) DocCount() int {
	return b.acc.DocCount() + b.docsAlreadySpilled
}

// SpillCount returns the number of partial-index files written so far.
func (b *Builder) SpillCount() int {
	return b.spillCount
}

func (b *Builder) spill() error {
	docsThisSpill := b.acc.DocCount()
	snapshot := b.acc.Snapshot()
	path, err := b.spiller.Spill(snapshot)
	if err != nil {
		return err
	}
	if path != "" {
		b.partialPaths = append(b.partialPaths, path)
		b.spillCount++
	}
	b.docsAlreadySpilled += docsThisSpill
	b.acc.Reset()
	b.logger.Info("accumulator spilled", "path", path, "docs", docsThisSpill, "spill_number", b.spillCount)
	return nil
}

// Finish flushes any remaining accumulator contents to a final spill,
// closes the page table, and returns the full list of partial-index paths
// written across the builder's lifetime in spill order.
func (b *Builder) Finish() ([]string, error) {
	if b.acc.DocCount() > 0 || b.acc.Size() > 0 {
		if err := b.spill(); err != nil {
			b.pageTable.Close()
			return nil, err
		}
	}
	if err := b.pageTable.Close(); err != nil {
		return nil, err
	}
	if len(b.partialPaths) == 0 {
		return nil, fmt.Errorf("%w: no documents were indexed", bdxerrors.ErrInvalidInput)
	}
	return b.partialPaths, nil
}
