// Package merge performs the external k-way merge of partial index readers
// into a single globally sorted term stream, delegating per-term block
// encoding to internal/blockcodec and writing the three final-index files.
package merge

import (
	"bufio"
	"container/heap"
	"context"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/blockdex/blockdex/internal/blockcodec"
	"github.com/blockdex/blockdex/internal/partial"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
	"github.com/blockdex/blockdex/pkg/tracing"
)

// Stats summarizes one merge run, useful for logging and metrics.
type Stats struct {
	TermsMerged   int
	BlocksEmitted int
	IndexBytes    int64
}

// Merger drives the external k-way merge over a fixed set of partial-index
// readers.
type Merger struct {
	readers          []*partial.Reader
	postingsPerBlock int
}

// Open opens a Reader for each path in paths concurrently (the merge's
// output order and determinism do not depend on the order readers finish
// opening, only on the paths slice's own order) and returns a Merger ready
// to drive the merge over them.
func Open(ctx context.Context, paths []string, postingsPerBlock int) (*Merger, error) {
	readers := make([]*partial.Reader, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			r, err := partial.Open(p)
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range readers {
			if r != nil {
				r.Close()
			}
		}
		return nil, err
	}
	if postingsPerBlock <= 0 {
		postingsPerBlock = blockcodec.DefaultPostingsPerBlock
	}
	return &Merger{readers: readers, postingsPerBlock: postingsPerBlock}, nil
}

// heapNode is one entry in the merge min-heap: a reader's current term and
// its reader index, used to break ties deterministically.
type heapNode struct {
	term      string
	readerIdx int
}

type termHeap []heapNode

func (h termHeap) Len() int { return len(h) }

// Less orders by term first; ties are broken by reader index ascending so
// output is deterministic across runs even when two partials are
// byte-identical.
func (h termHeap) Less(i, j int) bool {
	if h[i].term != h[j].term {
		return h[i].term < h[j].term
	}
	return h[i].readerIdx < h[j].readerIdx
}

func (h termHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *termHeap) Push(x interface{}) {
	*h = append(*h, x.(heapNode))
}

func (h *termHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge drains all readers via a min-heap merge, dedups and sums postings
// that share a (term, docID) pair across partials, block-encodes each
// term's merged posting list, and writes index.bin, lexicon.txt, and
// blockMetaData.txt. Readers are closed before Merge returns.
func (m *Merger) Merge(indexPath, lexiconPath, blockMetaPath string) (Stats, error) {
	defer m.closeReaders()

	ctx, span := tracing.StartSpan(context.Background(), "merge", indexPath)
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("readers", len(m.readers))
	span.SetAttr("postings_per_block", m.postingsPerBlock)

	indexFile, err := os.Create(indexPath)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: creating %s: %v", bdxerrors.ErrIOError, indexPath, err)
	}
	defer indexFile.Close()
	indexW := bufio.NewWriter(indexFile)

	lexiconFile, err := os.Create(lexiconPath)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: creating %s: %v", bdxerrors.ErrIOError, lexiconPath, err)
	}
	defer lexiconFile.Close()
	lexiconW := bufio.NewWriter(lexiconFile)

	blockMetaFile, err := os.Create(blockMetaPath)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: creating %s: %v", bdxerrors.ErrIOError, blockMetaPath, err)
	}
	defer blockMetaFile.Close()
	blockMetaW := bufio.NewWriter(blockMetaFile)

	_, heapSpan := tracing.StartChildSpan(ctx, "heap-merge")
	defer heapSpan.End()

	h := &termHeap{}
	heap.Init(h)
	for i, r := range m.readers {
		if r.HasNext() {
			heap.Push(h, heapNode{term: r.CurrentTerm(), readerIdx: i})
		}
	}

	var stats Stats
	var offset int64

	for h.Len() > 0 {
		node := heap.Pop(h).(heapNode)
		term := node.term

		merged := append([]partial.Posting(nil), m.readers[node.readerIdx].CurrentPostings()...)
		if err := m.advance(node.readerIdx, h); err != nil {
			return stats, err
		}

		for h.Len() > 0 && (*h)[0].term == term {
			same := heap.Pop(h).(heapNode)
			merged = append(merged, m.readers[same.readerIdx].CurrentPostings()...)
			if err := m.advance(same.readerIdx, h); err != nil {
				return stats, err
			}
		}

		unique := dedupeAndSum(merged)

		blockBytes, metas := blockcodec.Encode(unique, m.postingsPerBlock)
		if _, err := indexW.Write(blockBytes); err != nil {
			return stats, fmt.Errorf("%w: writing term %q to index: %v", bdxerrors.ErrIOError, term, err)
		}

		length := int64(len(blockBytes))
		if _, err := fmt.Fprintf(lexiconW, "%s %d %d %d\n", term, offset, length, len(unique)); err != nil {
			return stats, fmt.Errorf("%w: writing lexicon entry for %q: %v", bdxerrors.ErrIOError, term, err)
		}
		for _, meta := range metas {
			if _, err := fmt.Fprintf(blockMetaW, "%d %d\n", meta.Length, meta.LastDocID); err != nil {
				return stats, fmt.Errorf("%w: writing block metadata for %q: %v", bdxerrors.ErrIOError, term, err)
			}
		}

		offset += length
		stats.TermsMerged++
		stats.BlocksEmitted += len(metas)
	}

	stats.IndexBytes = offset
	heapSpan.SetAttr("terms_merged", stats.TermsMerged)
	heapSpan.SetAttr("blocks_emitted", stats.BlocksEmitted)

	if err := indexW.Flush(); err != nil {
		return stats, fmt.Errorf("%w: flushing index file: %v", bdxerrors.ErrIOError, err)
	}
	if err := lexiconW.Flush(); err != nil {
		return stats, fmt.Errorf("%w: flushing lexicon file: %v", bdxerrors.ErrIOError, err)
	}
	if err := blockMetaW.Flush(); err != nil {
		return stats, fmt.Errorf("%w: flushing block-metadata file: %v", bdxerrors.ErrIOError, err)
	}
	return stats, nil
}

// advance moves readerIdx's reader to its next term and, if one exists,
// pushes it back onto the heap.
func (m *Merger) advance(readerIdx int, h *termHeap) error {
	r := m.readers[readerIdx]
	if err := r.Advance(); err != nil {
		return err
	}
	if r.HasNext() {
		heap.Push(h, heapNode{term: r.CurrentTerm(), readerIdx: readerIdx})
	}
	return nil
}

// dedupeAndSum sorts postings by docID ascending and sums term frequencies
// for postings sharing a docID, producing the strictly-increasing-docID
// sequence the final index requires.
func dedupeAndSum(postings []partial.Posting) []partial.Posting {
	if len(postings) == 0 {
		return postings
	}
	sort.SliceStable(postings, func(i, j int) bool {
		return postings[i].DocID < postings[j].DocID
	})
	out := make([]partial.Posting, 0, len(postings))
	out = append(out, postings[0])
	for _, p := range postings[1:] {
		last := &out[len(out)-1]
		if p.DocID == last.DocID {
			last.TermFreq += p.TermFreq
		} else {
			out = append(out, p)
		}
	}
	return out
}

func (m *Merger) closeReaders() {
	for _, r := range m.readers {
		r.Close()
	}
}
