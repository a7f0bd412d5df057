// Package pagetable writes and reads the docID -> documentLengthInTokens
// sidecar file produced during indexing and consumed by scoring extensions
// downstream of the core build/query pipeline.
package pagetable

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Writer appends docID/length rows to a page-table file, one per call to
// Write, in the order documents are folded into the accumulator.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

// NewWriter creates (or truncates) the page-table file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating page table %s: %v", bdxerrors.ErrIOError, path, err)
	}
	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

// Write appends one docID/lengthInTokens row.
func (w *Writer) Write(docID uint32, lengthInTokens int) error {
	if _, err := fmt.Fprintf(w.w, "%d\t%d\n", docID, lengthInTokens); err != nil {
		return fmt.Errorf("%w: writing page table row: %v", bdxerrors.ErrIOError, err)
	}
	return nil
}

// Close flushes and closes the page-table file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("%w: flushing page table: %v", bdxerrors.ErrIOError, err)
	}
	return w.f.Close()
}

// Load reads a complete page-table file into a docID -> lengthInTokens map.
func Load(path string) (map[uint32]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening page table %s: %v", bdxerrors.ErrIOError, path, err)
	}
	defer f.Close()

	table := make(map[uint32]int)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		docStr, lenStr, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: malformed page table row %q", bdxerrors.ErrParseError, line)
		}
		docID, err := strconv.ParseUint(docStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed docID %q: %v", bdxerrors.ErrParseError, docStr, err)
		}
		length, err := strconv.Atoi(lenStr)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed length %q: %v", bdxerrors.ErrParseError, lenStr, err)
		}
		table[uint32(docID)] = length
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading page table %s: %v", bdxerrors.ErrIOError, path, err)
	}
	return table, nil
}
