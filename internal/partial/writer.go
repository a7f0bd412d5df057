package partial

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Spiller writes accumulator snapshots to sequentially numbered partial
// index files under a working directory, using an atomic
// write-to-temp-then-rename sequence so a reader never observes a
// half-written file.
type Spiller struct {
	dir     string
	nextNum int
}

// NewSpiller creates a Spiller that writes intermediate_<N>.txt files into
// dir, starting numbering at 0.
func NewSpiller(dir string) *Spiller {
	return &Spiller{dir: dir}
}

// Spill writes entries (already sorted by term) to the next sequentially
// numbered partial file and returns its path. An empty snapshot is a no-op
// and returns an empty path.
func (s *Spiller) Spill(entries []TermEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating partial-index directory: %v", bdxerrors.ErrIOError, err)
	}

	name := fmt.Sprintf("intermediate_%d.txt", s.nextNum)
	finalPath := filepath.Join(s.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: creating temp partial file: %v", bdxerrors.ErrIOError, err)
	}

	w := bufio.NewWriter(f)
	var sb strings.Builder
	for _, entry := range entries {
		sb.Reset()
		sb.WriteString(entry.Term)
		for _, p := range entry.Postings {
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatUint(uint64(p.DocID), 10))
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatUint(uint64(p.TermFreq), 10))
		}
		sb.WriteByte('\n')
		if _, err := w.WriteString(sb.String()); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: writing term %q: %v", bdxerrors.ErrIOError, entry.Term, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: flushing partial file: %v", bdxerrors.ErrIOError, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: syncing partial file: %v", bdxerrors.ErrIOError, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: closing partial file: %v", bdxerrors.ErrIOError, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: renaming partial file: %v", bdxerrors.ErrIOError, err)
	}
	s.nextNum++
	return finalPath, nil
}
