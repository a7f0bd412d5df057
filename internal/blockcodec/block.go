// Package blockcodec encodes a term's sorted posting list into fixed-size
// blocks of delta-encoded varbyte docIDs and varbyte frequencies, and
// decodes those blocks back into absolute docID/frequency pairs.
package blockcodec

import (
	"bytes"
	"fmt"

	"github.com/blockdex/blockdex/internal/partial"
	"github.com/blockdex/blockdex/internal/varbyte"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// DefaultPostingsPerBlock is the default maximum number of postings per
// block (B in the block layout description).
const DefaultPostingsPerBlock = 64

// Meta describes one encoded block: its byte length in the index file and
// the absolute docID of its last posting.
type Meta struct {
	Length    uint32
	LastDocID uint32
}

// Encode splits postings (sorted ascending by DocID) into blocks of at most
// postingsPerBlock entries. It returns the concatenated block bytes and one
// Meta per block, in emission order. Each block is two concatenated varbyte
// runs: delta-encoded docIDs relative to the previous block's last docID (0
// for the term's first block), followed by frequencies.
func Encode(postings []partial.Posting, postingsPerBlock int) ([]byte, []Meta) {
	if postingsPerBlock <= 0 {
		postingsPerBlock = DefaultPostingsPerBlock
	}
	var out bytes.Buffer
	var metas []Meta
	prevLastDoc := uint32(0)

	for start := 0; start < len(postings); start += postingsPerBlock {
		end := start + postingsPerBlock
		if end > len(postings) {
			end = len(postings)
		}
		block := postings[start:end]

		blockStart := out.Len()
		var docBytes, freqBytes []byte
		prev := prevLastDoc
		for _, p := range block {
			docBytes = varbyte.Encode(docBytes, p.DocID-prev)
			prev = p.DocID
			freqBytes = varbyte.Encode(freqBytes, p.TermFreq)
		}
		out.Write(docBytes)
		out.Write(freqBytes)

		lastDocID := block[len(block)-1].DocID
		metas = append(metas, Meta{
			Length:    uint32(out.Len() - blockStart),
			LastDocID: lastDocID,
		})
		prevLastDoc = lastDocID
	}
	return out.Bytes(), metas
}

// Decode decodes one block's raw bytes into absolute docIDs and their
// frequencies. prevLastDoc is the previous block's lastDocID (0 for a term's
// first block). The block has no explicit posting count: every varbyte
// integer in the block is decoded first, and since the docID run and
// frequency run hold equal counts of integers, the flat sequence splits
// cleanly in half.
func Decode(blockBytes []byte, prevLastDoc uint32) (docIDs []uint32, freqs []uint32, err error) {
	all, err := decodeAll(blockBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding block: %w", err)
	}
	if len(all)%2 != 0 {
		return nil, nil, fmt.Errorf("%w: block decoded to an odd number of integers (%d)", bdxerrors.ErrInvariantViolation, len(all))
	}
	count := len(all) / 2
	deltas, freqs := all[:count], all[count:]

	docIDs = make([]uint32, count)
	prev := prevLastDoc
	for i, delta := range deltas {
		prev += delta
		docIDs[i] = prev
	}
	return docIDs, freqs, nil
}

// decodeAll decodes every varbyte integer in blockBytes until the slice is
// fully consumed.
func decodeAll(blockBytes []byte) ([]uint32, error) {
	var out []uint32
	pos := 0
	for pos < len(blockBytes) {
		n, consumed, err := varbyte.Decode(blockBytes[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		pos += consumed
	}
	return out, nil
}
