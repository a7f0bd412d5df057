package partial

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Reader is a finite, single-pass, forward-only cursor over the
// (term, postings) records of one partial index file, in the
// lexicographic term order the spiller wrote them in.
type Reader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner

	currentTerm     string
	currentPostings []Posting
	done            bool
}

// Open opens the partial index file at path and positions the cursor on
// its first term.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening partial index %s: %v", bdxerrors.ErrIOError, path, err)
	}
	r := &Reader{
		path:    path,
		file:    f,
		scanner: bufio.NewScanner(f),
	}
	r.scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if err := r.advance(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// HasNext reports whether the cursor currently sits on a valid term.
func (r *Reader) HasNext() bool {
	return !r.done
}

// CurrentTerm returns the term the cursor is positioned on.
func (r *Reader) CurrentTerm() string {
	return r.currentTerm
}

// CurrentPostings returns the postings for the term the cursor is
// positioned on, in the order they appear in the file.
func (r *Reader) CurrentPostings() []Posting {
	return r.currentPostings
}

// Advance moves the cursor to the next term. Call HasNext first; calling
// Advance past the end of the file is a no-op.
func (r *Reader) Advance() error {
	if r.done {
		return nil
	}
	return r.advance()
}

// advance reads the next line and parses it into currentTerm/currentPostings,
// or marks the reader done at EOF.
func (r *Reader) advance() error {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return fmt.Errorf("%w: reading partial index %s: %v", bdxerrors.ErrIOError, r.path, err)
		}
		r.done = true
		r.currentTerm = ""
		r.currentPostings = nil
		return nil
	}
	term, postings, err := parseLine(r.scanner.Text())
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %v", bdxerrors.ErrParseError, r.path, err)
	}
	r.currentTerm = term
	r.currentPostings = postings
	return nil
}

// parseLine parses one "term SP docID1:freq1 SP docID2:freq2 ..." line.
func parseLine(line string) (string, []Posting, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty line")
	}
	term := fields[0]
	postings := make([]Posting, 0, len(fields)-1)
	for _, field := range fields[1:] {
		docStr, freqStr, ok := strings.Cut(field, ":")
		if !ok {
			return "", nil, fmt.Errorf("malformed posting %q in term %q", field, term)
		}
		docID, err := strconv.ParseUint(docStr, 10, 32)
		if err != nil {
			return "", nil, fmt.Errorf("malformed docID %q in term %q: %w", docStr, term, err)
		}
		freq, err := strconv.ParseUint(freqStr, 10, 32)
		if err != nil {
			return "", nil, fmt.Errorf("malformed freq %q in term %q: %w", freqStr, term, err)
		}
		postings = append(postings, Posting{DocID: uint32(docID), TermFreq: uint32(freq)})
	}
	return term, postings, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}
