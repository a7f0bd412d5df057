// Command reverse dumps a final index's contents to a human-readable text
// file: one line per term, listing its document frequency followed by every
// (docID, termFreq) posting in ascending docID order. It exists purely for
// debugging a build, mirroring the original implementation's reverse-index
// inspection tool.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/blockdex/blockdex/internal/query"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: reverse <finalIndexDir> <output.txt>")
		os.Exit(1)
	}
	indexDir := os.Args[1]
	outputPath := os.Args[2]

	accessor, err := query.Load(indexDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load index at %s: %v\n", indexDir, err)
		os.Exit(1)
	}
	defer accessor.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	terms := accessor.Terms()
	for _, term := range terms {
		if err := dumpTerm(w, accessor, term); err != nil {
			fmt.Fprintf(os.Stderr, "failed to dump term %q: %v\n", term, err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("dumped %d terms to %s\n", len(terms), outputPath)
}

// dumpTerm writes one line for term: its document frequency followed by
// every posting, walked via repeated NextGEQ calls starting just past the
// previous docID.
func dumpTerm(w *bufio.Writer, accessor *query.Accessor, term string) error {
	list, err := accessor.OpenList(term)
	if err != nil {
		return err
	}

	docFreq, _ := accessor.DocFreq(term)
	if _, err := fmt.Fprintf(w, "%s %d", term, docFreq); err != nil {
		return fmt.Errorf("%w: %v", bdxerrors.ErrIOError, err)
	}

	var next uint32
	for {
		posting, err := list.NextGEQ(next)
		if err != nil {
			if errors.Is(err, bdxerrors.ErrNotFound) {
				break
			}
			return err
		}
		if _, err := fmt.Fprintf(w, " %d:%d", posting.DocID, posting.TermFreq); err != nil {
			return fmt.Errorf("%w: %v", bdxerrors.ErrIOError, err)
		}
		if posting.DocID == ^uint32(0) {
			break
		}
		next = posting.DocID + 1
	}
	_, err = fmt.Fprintln(w)
	if err != nil {
		return fmt.Errorf("%w: %v", bdxerrors.ErrIOError, err)
	}
	return nil
}
