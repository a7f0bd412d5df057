package merge

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blockdex/blockdex/internal/blockcodec"
)

func writePartial(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

type lexiconLine struct {
	term    string
	offset  int64
	length  int64
	docFreq int
}

func parseLexicon(t *testing.T, path string) []lexiconLine {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening lexicon: %v", err)
	}
	defer f.Close()
	var out []lexiconLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			t.Fatalf("malformed lexicon line %q", sc.Text())
		}
		var l lexiconLine
		l.term = fields[0]
		fscan(t, fields[1], &l.offset)
		fscan(t, fields[2], &l.length)
		var df int64
		fscan(t, fields[3], &df)
		l.docFreq = int(df)
		out = append(out, l)
	}
	return out
}

func fscan(t *testing.T, s string, dst *int64) {
	t.Helper()
	var n int64
	for _, c := range s {
		n = n*10 + int64(c-'0')
	}
	*dst = n
}

func TestMergeTinyBuild(t *testing.T) {
	dir := t.TempDir()
	// Collection: "1\tapple banana apple", "2\tbanana cherry" folds into a
	// single partial file with terms already in lexicographic order.
	writePartial(t, dir, "intermediate_0.txt", "apple 1:2\nbanana 1:1 2:1\ncherry 2:1\n")

	m, err := Open(context.Background(), []string{filepath.Join(dir, "intermediate_0.txt")}, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	stats, err := m.Merge(filepath.Join(dir, "index.bin"), filepath.Join(dir, "lexicon.txt"), filepath.Join(dir, "blockMetaData.txt"))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.TermsMerged != 3 {
		t.Fatalf("TermsMerged = %d, want 3", stats.TermsMerged)
	}

	lex := parseLexicon(t, filepath.Join(dir, "lexicon.txt"))
	if len(lex) != 3 {
		t.Fatalf("expected 3 lexicon entries, got %d", len(lex))
	}
	wantTerms := []string{"apple", "banana", "cherry"}
	wantDocFreq := []int{1, 2, 1}
	for i, l := range lex {
		if l.term != wantTerms[i] {
			t.Errorf("lex[%d].term = %q, want %q", i, l.term, wantTerms[i])
		}
		if l.docFreq != wantDocFreq[i] {
			t.Errorf("lex[%d].docFreq = %d, want %d", i, l.docFreq, wantDocFreq[i])
		}
	}

	// Lexicon tiling invariant.
	var cursor int64
	for _, l := range lex {
		if l.offset != cursor {
			t.Errorf("term %q offset = %d, want %d (tiling broken)", l.term, l.offset, cursor)
		}
		cursor += l.length
	}
	info, err := os.Stat(filepath.Join(dir, "index.bin"))
	if err != nil {
		t.Fatalf("stat index.bin: %v", err)
	}
	if cursor != info.Size() {
		t.Errorf("final lexicon cursor %d != index.bin size %d", cursor, info.Size())
	}

	decodeTerm(t, dir, lex[0], []uint32{1}, []uint32{2})
	decodeTerm(t, dir, lex[1], []uint32{1, 2}, []uint32{1, 1})
	decodeTerm(t, dir, lex[2], []uint32{2}, []uint32{1})
}

func decodeTerm(t *testing.T, dir string, l lexiconLine, wantDocs, wantFreqs []uint32) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "index.bin"))
	if err != nil {
		t.Fatalf("reading index.bin: %v", err)
	}
	blockBytes := data[l.offset : l.offset+l.length]
	docIDs, freqs, err := blockcodec.Decode(blockBytes, 0)
	if err != nil {
		t.Fatalf("decode term %q: %v", l.term, err)
	}
	if len(docIDs) != len(wantDocs) {
		t.Fatalf("term %q: decoded %d docIDs, want %d", l.term, len(docIDs), len(wantDocs))
	}
	for i := range wantDocs {
		if docIDs[i] != wantDocs[i] || freqs[i] != wantFreqs[i] {
			t.Errorf("term %q posting %d = (%d,%d), want (%d,%d)", l.term, i, docIDs[i], freqs[i], wantDocs[i], wantFreqs[i])
		}
	}
}

func TestMergeCrossPartial(t *testing.T) {
	dir := t.TempDir()
	pathA := writePartial(t, dir, "intermediate_0.txt", "foo 1:2 3:1\n")
	pathB := writePartial(t, dir, "intermediate_1.txt", "foo 3:4 5:1\n")
	pathC := writePartial(t, dir, "intermediate_2.txt", "bar 2:1\n")

	m, err := Open(context.Background(), []string{pathA, pathB, pathC}, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = m.Merge(filepath.Join(dir, "index.bin"), filepath.Join(dir, "lexicon.txt"), filepath.Join(dir, "blockMetaData.txt"))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	lex := parseLexicon(t, filepath.Join(dir, "lexicon.txt"))
	if len(lex) != 2 || lex[0].term != "bar" || lex[1].term != "foo" {
		t.Fatalf("lexicon = %+v, want bar then foo", lex)
	}

	decodeTerm(t, dir, lex[0], []uint32{2}, []uint32{1})
	decodeTerm(t, dir, lex[1], []uint32{1, 3, 5}, []uint32{2, 5, 1})
}
