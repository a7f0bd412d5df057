package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blockdex/blockdex/internal/merge"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"

	goerrors "errors"
)

// buildIndex writes a single-term partial file with the given docID:freq
// postings and merges it into a final index under a fresh temp directory,
// using postingsPerBlock as the block size.
func buildIndex(t *testing.T, postingsPerBlock int, partialLine string) string {
	t.Helper()
	dir := t.TempDir()
	partialPath := filepath.Join(dir, "intermediate_0.txt")
	if err := os.WriteFile(partialPath, []byte(partialLine+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := merge.Open(context.Background(), []string{partialPath}, postingsPerBlock)
	if err != nil {
		t.Fatalf("merge.Open: %v", err)
	}
	if _, err := m.Merge(filepath.Join(dir, "index.bin"), filepath.Join(dir, "lexicon.txt"), filepath.Join(dir, "blockMetaData.txt")); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return dir
}

func TestNextGEQSkipping(t *testing.T) {
	// docIDs [10,11,12,13,20,21] with postingsPerBlock=4 -> two blocks,
	// lastDocID 13 then 21.
	dir := buildIndex(t, 4, "term 10:1 11:1 12:1 13:1 20:1 21:1")

	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close()

	list, err := a.OpenList("term")
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}

	posting, err := list.NextGEQ(15)
	if err != nil {
		t.Fatalf("NextGEQ(15): %v", err)
	}
	if posting.DocID != 20 {
		t.Fatalf("NextGEQ(15) = %+v, want docID 20", posting)
	}
	if list.BlocksDecoded() != 1 {
		t.Fatalf("BlocksDecoded() = %d, want 1 (only the second block should be decoded)", list.BlocksDecoded())
	}
}

func TestNextGEQNotFound(t *testing.T) {
	dir := buildIndex(t, 4, "term 10:1 11:1 12:1 13:1 20:1 21:1")
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close()

	list, err := a.OpenList("term")
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	if _, err := list.NextGEQ(15); err != nil {
		t.Fatalf("NextGEQ(15): %v", err)
	}
	_, err = list.NextGEQ(99)
	if !goerrors.Is(err, bdxerrors.ErrNotFound) {
		t.Fatalf("NextGEQ(99) error = %v, want ErrNotFound", err)
	}
}

func TestOpenListUnknownTerm(t *testing.T) {
	dir := buildIndex(t, 64, "term 1:1")
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close()

	_, err = a.OpenList("missing")
	if !goerrors.Is(err, bdxerrors.ErrNotFound) {
		t.Fatalf("OpenList(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNextGEQMonotonicity(t *testing.T) {
	dir := buildIndex(t, 2, "term 1:1 2:1 3:1 4:1 5:1")
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close()

	list, err := a.OpenList("term")
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}

	targets := []uint32{1, 2, 2, 3, 5}
	prev := uint32(0)
	for _, target := range targets {
		p, err := list.NextGEQ(target)
		if err != nil {
			t.Fatalf("NextGEQ(%d): %v", target, err)
		}
		if p.DocID < prev {
			t.Fatalf("NextGEQ(%d) = %d, which is less than previous result %d", target, p.DocID, prev)
		}
		prev = p.DocID
	}
}

func TestDocFreq(t *testing.T) {
	dir := buildIndex(t, 64, "term 1:2 2:1 3:5")
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close()

	df, ok := a.DocFreq("term")
	if !ok || df != 3 {
		t.Fatalf("DocFreq(term) = (%d, %v), want (3, true)", df, ok)
	}
	if _, ok := a.DocFreq("missing"); ok {
		t.Fatal("DocFreq(missing) should report ok=false")
	}
}
