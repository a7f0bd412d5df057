// Package ingest adapts a Kafka topic of {docID, passage} JSON events into
// the same document builder the file-based indexer path uses, so the two
// ingestion modes produce byte-identical output for the same document
// sequence.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockdex/blockdex/internal/build"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
	"github.com/blockdex/blockdex/pkg/kafka"
)

// DocumentEvent is the wire shape of a streamed ingestion message.
type DocumentEvent struct {
	DocID   uint32 `json:"docID"`
	Passage string `json:"passage"`
}

// HandleMessage returns a kafka.MessageHandler that decodes each message as
// a DocumentEvent and folds it into b. The Kafka consumer commits the
// message's offset only after this handler returns, so a document is never
// acknowledged before it has been folded into the accumulator.
func HandleMessage(b *build.Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "stream-ingest")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			return fmt.Errorf("%w: decoding document event: %v", bdxerrors.ErrParseError, err)
		}
		if err := b.AddDocument(event.DocID, event.Passage); err != nil {
			return fmt.Errorf("folding document %d: %w", event.DocID, err)
		}
		logger.Debug("document folded from stream", "doc_id", event.DocID)
		return nil
	}
}
