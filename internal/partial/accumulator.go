package partial

import (
	"sort"
	"sync"

	"github.com/blockdex/blockdex/internal/tokenizer"
)

// bytesPerPosting is the estimated per-posting byte cost used to decide
// when the accumulator has grown large enough to spill: len(term) + 8.
const bytesPerPosting = 8

// Accumulator folds tokenized documents into term -> postings lists up to
// a byte budget, then hands a sorted snapshot to the spiller. There is at
// most one posting per (term, docID) pair within a single accumulator
// lifetime, since each docID is folded exactly once.
type Accumulator struct {
	mu        sync.Mutex
	postings  map[string][]Posting
	tokenizer *tokenizer.Tokenizer
	size      int64
	docCount  int
}

// New creates an empty Accumulator using the given tokenizer.
func New(tk *tokenizer.Tokenizer) *Accumulator {
	return &Accumulator{
		postings:  make(map[string][]Posting),
		tokenizer: tk,
	}
}

// AddDocument tokenizes passage, tallies per-term frequency, and appends one
// Posting per distinct term to the accumulator. It returns the number of
// tokens passage produced, for callers maintaining a page table.
func (a *Accumulator) AddDocument(docID uint32, passage string) int {
	tokens := a.tokenizer.Tokenize(passage)
	if len(tokens) == 0 {
		a.mu.Lock()
		a.docCount++
		a.mu.Unlock()
		return 0
	}

	freq := make(map[string]uint32, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for term, f := range freq {
		a.postings[term] = append(a.postings[term], Posting{DocID: docID, TermFreq: f})
		a.size += int64(len(term) + bytesPerPosting)
	}
	a.docCount++
	return len(tokens)
}

// Size returns the current estimated byte size of the accumulator.
func (a *Accumulator) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// DocCount returns the number of documents folded since the last Reset.
func (a *Accumulator) DocCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.docCount
}

// Snapshot returns the accumulator's contents as TermEntry values sorted by
// term in lexicographic order. Posting order within a term reflects
// insertion order (the order AddDocument calls were folded in).
func (a *Accumulator) Snapshot() []TermEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]TermEntry, 0, len(a.postings))
	for term, postings := range a.postings {
		cp := make([]Posting, len(postings))
		copy(cp, postings)
		entries = append(entries, TermEntry{Term: term, Postings: cp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Reset clears the accumulator's contents and byte-size counter.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.postings = make(map[string][]Posting)
	a.size = 0
	a.docCount = 0
}
