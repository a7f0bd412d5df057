// Package integration exercises the full offline build pipeline end to
// end: accumulation, spilling, merging, and HTTP query serving, wired
// together the way the indexer, merger, and queryserver binaries wire them,
// but in-process so the tests need no external services.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/blockdex/blockdex/internal/build"
	"github.com/blockdex/blockdex/internal/merge"
	"github.com/blockdex/blockdex/internal/query"
	"github.com/blockdex/blockdex/internal/queryserver"
	"github.com/blockdex/blockdex/internal/tokenizer"
	"github.com/blockdex/blockdex/pkg/metrics"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type docRow struct {
	docID   uint32
	passage string
}

var corpus = []docRow{
	{1, "the quick brown fox jumps over the lazy dog"},
	{2, "a quick fox runs through the forest"},
	{3, "distributed search engines process queries across shards"},
	{4, "the lazy dog sleeps all afternoon in the sun"},
	{5, "query processing requires an inverted index"},
}

// buildAndMerge runs corpus through a Builder with a tiny spill threshold
// (forcing multiple partial files) and merges the result into a final
// index directory, returning the loaded Accessor.
func buildAndMerge(t *testing.T) *query.Accessor {
	t.Helper()
	workDir := t.TempDir()
	finalDir := t.TempDir()

	b, err := build.New(tokenizer.New(tokenizer.DefaultStopWords), workDir, filepath.Join(workDir, "pagetable.txt"), 1)
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}
	for _, row := range corpus {
		if err := b.AddDocument(row.docID, row.passage); err != nil {
			t.Fatalf("AddDocument(%d): %v", row.docID, err)
		}
	}
	paths, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(paths) < 2 {
		t.Fatalf("expected multiple spills with threshold 1, got %d", len(paths))
	}

	merger, err := merge.Open(context.Background(), paths, 64)
	if err != nil {
		t.Fatalf("merge.Open: %v", err)
	}
	if _, err := merger.Merge(
		filepath.Join(finalDir, "index.bin"),
		filepath.Join(finalDir, "lexicon.txt"),
		filepath.Join(finalDir, "blockMetaData.txt"),
	); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	accessor, err := query.Load(finalDir)
	if err != nil {
		t.Fatalf("query.Load: %v", err)
	}
	t.Cleanup(func() { accessor.Close() })
	return accessor
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestBuildMergeQueryRoundTrip verifies that a term spread across multiple
// spilled partials is merged into a single posting list with the right
// document frequency and docIDs in ascending order.
func TestBuildMergeQueryRoundTrip(t *testing.T) {
	accessor := buildAndMerge(t)

	df, ok := accessor.DocFreq("quick")
	if !ok {
		t.Fatal("expected term 'quick' to be present in the merged lexicon")
	}
	if df != 2 {
		t.Fatalf("docFreq(quick) = %d, want 2 (docs 1 and 2)", df)
	}

	list, err := accessor.OpenList("quick")
	if err != nil {
		t.Fatalf("OpenList(quick): %v", err)
	}
	first, err := list.NextGEQ(0)
	if err != nil {
		t.Fatalf("NextGEQ(0): %v", err)
	}
	if first.DocID != 1 {
		t.Fatalf("first posting docID = %d, want 1", first.DocID)
	}
	second, err := list.NextGEQ(first.DocID + 1)
	if err != nil {
		t.Fatalf("NextGEQ(2): %v", err)
	}
	if second.DocID != 2 {
		t.Fatalf("second posting docID = %d, want 2", second.DocID)
	}
}

// TestDogTermSpansMultiplePartials verifies a term appearing in more than
// one spilled partial ("dog", in docs 1 and 4) is counted once per document
// across the merge.
func TestDogTermSpansMultiplePartials(t *testing.T) {
	accessor := buildAndMerge(t)

	df, ok := accessor.DocFreq("dog")
	if !ok {
		t.Fatal("expected term 'dog' to be present")
	}
	if df != 2 {
		t.Fatalf("docFreq(dog) = %d, want 2 (docs 1 and 4)", df)
	}
}

// TestQueryServerNextGEQHandlerOverBuiltIndex wires the HTTP handler in
// front of a real built-and-merged index and drives it through an
// httptest server, the way an embedder would use NewServer's mux.
func TestQueryServerNextGEQHandlerOverBuiltIndex(t *testing.T) {
	accessor := buildAndMerge(t)

	opener := queryserver.NewListOpener(accessor, nil)
	h := queryserver.New(accessor, opener, metrics.New())
	mux := http.NewServeMux()
	mux.HandleFunc("/nextGEQ", h.NextGEQ)
	mux.HandleFunc("/docFreq", h.DocFreq)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/nextGEQ?term=fox&docID=2")
	if err != nil {
		t.Fatalf("GET /nextGEQ: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Term     string `json:"term"`
		DocID    uint32 `json:"docID"`
		TermFreq uint32 `json:"termFreq"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.DocID != 2 {
		t.Fatalf("nextGEQ(fox, >=2) docID = %d, want 2", body.DocID)
	}

	resp2, err := http.Get(srv.URL + "/docFreq?term=nonexistent")
	if err != nil {
		t.Fatalf("GET /docFreq: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("docFreq for unknown term: expected 404, got %d", resp2.StatusCode)
	}
}

// TestStreamingAndFileSourceProduceEquivalentIndexes verifies that folding
// the same documents through Builder.AddDocument directly (standing in for
// the Kafka streaming path, which calls the identical method) in a single
// spill gives the same document frequencies for a sample of terms as the
// multi-spill build of the same corpus.
func TestStreamingAndFileSourceProduceEquivalentIndexes(t *testing.T) {
	fileAccessor := buildAndMerge(t)

	workDir := t.TempDir()
	finalDir := t.TempDir()
	b, err := build.New(tokenizer.New(tokenizer.DefaultStopWords), workDir, filepath.Join(workDir, "pagetable.txt"), 1<<30)
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}
	for _, row := range corpus {
		if err := b.AddDocument(row.docID, row.passage); err != nil {
			t.Fatalf("AddDocument(%d): %v", row.docID, err)
		}
	}
	paths, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	merger, err := merge.Open(context.Background(), paths, 64)
	if err != nil {
		t.Fatalf("merge.Open: %v", err)
	}
	if _, err := merger.Merge(
		filepath.Join(finalDir, "index.bin"),
		filepath.Join(finalDir, "lexicon.txt"),
		filepath.Join(finalDir, "blockMetaData.txt"),
	); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	streamAccessor, err := query.Load(finalDir)
	if err != nil {
		t.Fatalf("query.Load: %v", err)
	}
	t.Cleanup(func() { streamAccessor.Close() })

	for _, term := range []string{"quick", "fox", "dog", "query", "index"} {
		wantDF, wantOK := fileAccessor.DocFreq(term)
		gotDF, gotOK := streamAccessor.DocFreq(term)
		if wantOK != gotOK || wantDF != gotDF {
			t.Fatalf("docFreq(%q) differs between single-spill and multi-spill builds: want (%d,%v), got (%d,%v)", term, wantDF, wantOK, gotDF, gotOK)
		}
	}
}
