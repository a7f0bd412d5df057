package query

import (
	"fmt"
	"sort"

	"github.com/blockdex/blockdex/internal/blockcodec"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Posting is a single decoded (docID, termFreq) pair.
type Posting struct {
	DocID    uint32
	TermFreq uint32
}

// PostingList is a forward-only cursor over one term's blocks, opened by
// Accessor.OpenList. Successive nextGEQ calls with non-decreasing targets
// never move the cursor backwards.
type PostingList struct {
	term             string
	docFreq          uint32
	buf              []byte
	blocks           []blockcodec.Meta
	blockByteOffsets []int

	cursorBlock int

	decodedBlockIdx int
	decodedDocIDs   []uint32
	decodedFreqs    []uint32

	blocksDecoded int
}

// Term returns the term this posting list was opened for.
func (pl *PostingList) Term() string { return pl.term }

// DocFreq returns the term's document frequency.
func (pl *PostingList) DocFreq() uint32 { return pl.docFreq }

// BlocksDecoded returns the number of blocks decoded so far by nextGEQ
// calls on this cursor, for instrumentation in block-skipping tests.
func (pl *PostingList) BlocksDecoded() int { return pl.blocksDecoded }

// NextGEQ returns the posting with the smallest docID >= target, paired
// with its frequency, advancing the cursor to the block containing that
// posting. It returns an ErrNotFound-wrapped error if target exceeds the
// term's maximum docID. Calling NextGEQ with non-decreasing targets on the
// same cursor never returns a docID smaller than a prior call's result.
func (pl *PostingList) NextGEQ(target uint32) (Posting, error) {
	for pl.cursorBlock < len(pl.blocks) && pl.blocks[pl.cursorBlock].LastDocID < target {
		pl.cursorBlock++
	}
	if pl.cursorBlock >= len(pl.blocks) {
		return Posting{}, fmt.Errorf("%w: target %d exceeds term %q's maximum docID", bdxerrors.ErrNotFound, target, pl.term)
	}

	docIDs, freqs, err := pl.decodeBlock(pl.cursorBlock)
	if err != nil {
		return Posting{}, err
	}
	if docIDs[len(docIDs)-1] < target {
		return Posting{}, fmt.Errorf("%w: target %d exceeds term %q's maximum docID", bdxerrors.ErrNotFound, target, pl.term)
	}

	idx := sort.Search(len(docIDs), func(i int) bool { return docIDs[i] >= target })
	return Posting{DocID: docIDs[idx], TermFreq: freqs[idx]}, nil
}

// decodeBlock decodes blocks[idx], caching the result so repeated calls for
// the same block (e.g. consecutive nextGEQ calls landing in one block)
// don't redecode it.
func (pl *PostingList) decodeBlock(idx int) ([]uint32, []uint32, error) {
	if pl.decodedBlockIdx == idx {
		return pl.decodedDocIDs, pl.decodedFreqs, nil
	}
	prevLastDoc := uint32(0)
	if idx > 0 {
		prevLastDoc = pl.blocks[idx-1].LastDocID
	}
	start := pl.blockByteOffsets[idx]
	end := start + int(pl.blocks[idx].Length)
	docIDs, freqs, err := blockcodec.Decode(pl.buf[start:end], prevLastDoc)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding block %d of term %q: %w", idx, pl.term, err)
	}
	pl.decodedBlockIdx = idx
	pl.decodedDocIDs = docIDs
	pl.decodedFreqs = freqs
	pl.blocksDecoded++
	return docIDs, freqs, nil
}
