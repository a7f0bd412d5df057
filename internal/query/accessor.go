// Package query loads the final-index lexicon and block metadata and
// serves nextGEQ lookups by binary-searching block metadata before
// decoding a single block.
package query

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blockdex/blockdex/internal/blockcodec"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// LexiconEntry is one term's location and document frequency within the
// final index file.
type LexiconEntry struct {
	Term    string
	Offset  uint64
	Length  uint32
	DocFreq uint32
}

// Accessor loads a built index's lexicon and block metadata and serves
// random-access posting-list queries against its index.bin.
type Accessor struct {
	lexicon      map[string]LexiconEntry
	blockMetas   []blockcodec.Meta
	blockOffsets []uint64 // blockOffsets[i] is the absolute start offset of blockMetas[i]
	indexFile    *os.File
}

// Load reads lexicon.txt and blockMetaData.txt from dir and opens
// index.bin for random-access reads.
func Load(dir string) (*Accessor, error) {
	lexicon, err := loadLexicon(joinPath(dir, "lexicon.txt"))
	if err != nil {
		return nil, err
	}
	blockMetas, err := loadBlockMetas(joinPath(dir, "blockMetaData.txt"))
	if err != nil {
		return nil, err
	}
	indexFile, err := os.Open(joinPath(dir, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("%w: opening index.bin: %v", bdxerrors.ErrIOError, err)
	}

	offsets := make([]uint64, len(blockMetas))
	var cursor uint64
	for i, m := range blockMetas {
		offsets[i] = cursor
		cursor += uint64(m.Length)
	}

	return &Accessor{
		lexicon:      lexicon,
		blockMetas:   blockMetas,
		blockOffsets: offsets,
		indexFile:    indexFile,
	}, nil
}

// Close releases the underlying index.bin file handle.
func (a *Accessor) Close() error {
	return a.indexFile.Close()
}

// DocFreq returns a term's document frequency, or (0, false) if the term is
// not present in the lexicon.
func (a *Accessor) DocFreq(term string) (uint32, bool) {
	entry, ok := a.lexicon[term]
	return entry.DocFreq, ok
}

// Terms returns every term in the lexicon, sorted ascending. Intended for
// diagnostic tools that need to walk the whole index rather than look up a
// single term.
func (a *Accessor) Terms() []string {
	terms := make([]string, 0, len(a.lexicon))
	for t := range a.lexicon {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// OpenList looks up term in the lexicon and reads its full posting-list
// byte range from index.bin, returning a cursor ready for nextGEQ calls.
// It returns an ErrNotFound-wrapped error if term is absent.
func (a *Accessor) OpenList(term string) (*PostingList, error) {
	entry, blocks, err := a.resolveTerm(term)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, entry.Length)
	if _, err := a.indexFile.ReadAt(buf, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("%w: reading posting list for %q: %v", bdxerrors.ErrIOError, term, err)
	}
	return buildPostingList(term, entry.DocFreq, blocks, buf), nil
}

// BuildPostingList constructs a cursor for term from an already-fetched raw
// byte buffer (e.g. one retrieved from a posting-list cache) instead of
// reading index.bin. The caller is responsible for ensuring buf holds
// exactly the bytes OpenList(term) would have read.
func (a *Accessor) BuildPostingList(term string, buf []byte) (*PostingList, error) {
	entry, blocks, err := a.resolveTerm(term)
	if err != nil {
		return nil, err
	}
	if uint32(len(buf)) != entry.Length {
		return nil, fmt.Errorf("%w: cached buffer for %q is %d bytes, want %d", bdxerrors.ErrInvariantViolation, term, len(buf), entry.Length)
	}
	return buildPostingList(term, entry.DocFreq, blocks, buf), nil
}

// resolveTerm looks up term's lexicon entry and the slice of block metadata
// belonging to it.
func (a *Accessor) resolveTerm(term string) (LexiconEntry, []blockcodec.Meta, error) {
	entry, ok := a.lexicon[term]
	if !ok {
		return LexiconEntry{}, nil, fmt.Errorf("%w: term %q", bdxerrors.ErrNotFound, term)
	}

	startBlock := sort.Search(len(a.blockOffsets), func(i int) bool {
		return a.blockOffsets[i] >= entry.Offset
	})
	if startBlock >= len(a.blockOffsets) || a.blockOffsets[startBlock] != entry.Offset {
		return LexiconEntry{}, nil, fmt.Errorf("%w: term %q offset %d has no matching block boundary", bdxerrors.ErrInvariantViolation, term, entry.Offset)
	}

	var consumed uint32
	endBlock := startBlock
	for endBlock < len(a.blockMetas) && consumed < entry.Length {
		consumed += a.blockMetas[endBlock].Length
		endBlock++
	}
	if consumed != entry.Length {
		return LexiconEntry{}, nil, fmt.Errorf("%w: term %q block lengths sum to %d, want %d", bdxerrors.ErrInvariantViolation, term, consumed, entry.Length)
	}
	return entry, a.blockMetas[startBlock:endBlock], nil
}

// buildPostingList assembles a PostingList cursor from resolved block
// metadata and the term's raw byte buffer.
func buildPostingList(term string, docFreq uint32, blocks []blockcodec.Meta, buf []byte) *PostingList {
	blockByteOffsets := make([]int, len(blocks))
	var local int
	for i, m := range blocks {
		blockByteOffsets[i] = local
		local += int(m.Length)
	}
	return &PostingList{
		term:             term,
		docFreq:          docFreq,
		buf:              buf,
		blocks:           blocks,
		blockByteOffsets: blockByteOffsets,
		decodedBlockIdx:  -1,
	}
}

// SortListsByLength stable-sorts posting lists by document frequency
// ascending (shortest first), the standard multi-term intersection
// optimization.
func SortListsByLength(lists []*PostingList) {
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].docFreq < lists[j].docFreq
	})
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

func loadLexicon(path string) (map[string]LexiconEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lexicon %s: %v", bdxerrors.ErrIOError, path, err)
	}
	defer f.Close()

	lexicon := make(map[string]LexiconEntry)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: malformed lexicon line %q", bdxerrors.ErrParseError, sc.Text())
		}
		offset, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed offset in lexicon line %q: %v", bdxerrors.ErrParseError, sc.Text(), err)
		}
		length, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed length in lexicon line %q: %v", bdxerrors.ErrParseError, sc.Text(), err)
		}
		docFreq, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed docFreq in lexicon line %q: %v", bdxerrors.ErrParseError, sc.Text(), err)
		}
		lexicon[fields[0]] = LexiconEntry{
			Term:    fields[0],
			Offset:  offset,
			Length:  uint32(length),
			DocFreq: uint32(docFreq),
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading lexicon %s: %v", bdxerrors.ErrIOError, path, err)
	}
	return lexicon, nil
}

func loadBlockMetas(path string) ([]blockcodec.Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening block metadata %s: %v", bdxerrors.ErrIOError, path, err)
	}
	defer f.Close()

	var metas []blockcodec.Meta
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: malformed block metadata line %q", bdxerrors.ErrParseError, sc.Text())
		}
		length, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed length in block metadata line %q: %v", bdxerrors.ErrParseError, sc.Text(), err)
		}
		lastDocID, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed lastDocID in block metadata line %q: %v", bdxerrors.ErrParseError, sc.Text(), err)
		}
		metas = append(metas, blockcodec.Meta{Length: uint32(length), LastDocID: uint32(lastDocID)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading block metadata %s: %v", bdxerrors.ErrIOError, path, err)
	}
	return metas, nil
}
