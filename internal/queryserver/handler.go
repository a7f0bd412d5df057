// Package queryserver exposes a built index's nextGEQ and document-frequency
// lookups over HTTP.
package queryserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/blockdex/blockdex/internal/query"
	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
	"github.com/blockdex/blockdex/pkg/logger"
	"github.com/blockdex/blockdex/pkg/metrics"
	"github.com/blockdex/blockdex/pkg/tracing"
)

// ListOpener resolves a term to a posting-list cursor, either directly
// through an Accessor or via a PostingCache in front of one.
type ListOpener interface {
	Open(ctx context.Context, term string) (*query.PostingList, error)
}

// directOpener opens posting lists straight from the Accessor, used when no
// Redis cache is configured.
type directOpener struct {
	accessor *query.Accessor
}

func (d directOpener) Open(_ context.Context, term string) (*query.PostingList, error) {
	return d.accessor.OpenList(term)
}

// cachedOpener opens posting lists through a PostingCache.
type cachedOpener struct {
	accessor *query.Accessor
	cache    *query.PostingCache
}

func (c cachedOpener) Open(ctx context.Context, term string) (*query.PostingList, error) {
	return c.cache.OpenList(ctx, c.accessor, term)
}

// NewListOpener returns a ListOpener backed by cache if non-nil, or accessor
// directly otherwise.
func NewListOpener(accessor *query.Accessor, cache *query.PostingCache) ListOpener {
	if cache != nil {
		return cachedOpener{accessor: accessor, cache: cache}
	}
	return directOpener{accessor: accessor}
}

// Handler serves the query HTTP API over a single loaded index.
type Handler struct {
	accessor *query.Accessor
	opener   ListOpener
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler serving lookups against accessor, optionally
// routing posting-list reads through opener (pass NewListOpener(accessor,
// nil) to bypass caching). m records nextGEQ latency, blocks decoded, and
// not-found outcomes.
func New(accessor *query.Accessor, opener ListOpener, m *metrics.Metrics) *Handler {
	return &Handler{
		accessor: accessor,
		opener:   opener,
		metrics:  m,
		logger:   slog.Default().With("component", "query-handler"),
	}
}

type nextGEQResponse struct {
	Term     string `json:"term"`
	DocID    uint32 `json:"docID"`
	TermFreq uint32 `json:"termFreq"`
}

// NextGEQ handles GET /nextGEQ?term=T&docID=N, returning the posting with
// the smallest docID >= N for term.
func (h *Handler) NextGEQ(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	if rid := requestID(r); rid != "" {
		ctx = logger.WithRequestID(ctx, rid)
	}
	log := logger.FromContext(ctx)

	ctx, span := tracing.StartSpan(ctx, "nextGEQ", requestID(r))
	defer func() {
		span.End()
		span.Log()
	}()

	term := r.URL.Query().Get("term")
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'term' is required")
		return
	}
	docIDStr := r.URL.Query().Get("docID")
	target, err := strconv.ParseUint(docIDStr, 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "query parameter 'docID' must be a non-negative integer")
		return
	}
	span.SetAttr("term", term)
	span.SetAttr("target", target)

	outcome := "success"
	defer func() {
		h.metrics.NextGEQDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	list, err := h.opener.Open(ctx, term)
	if err != nil {
		outcome = lookupOutcome(err)
		h.writeLookupError(w, term, err)
		return
	}

	posting, err := list.NextGEQ(uint32(target))
	if err != nil {
		outcome = lookupOutcome(err)
		h.writeLookupError(w, term, err)
		return
	}
	span.SetAttr("blocks_decoded", list.BlocksDecoded())
	h.metrics.BlocksDecodedTotal.Add(float64(list.BlocksDecoded()))

	log.Debug("nextGEQ served",
		"term", term,
		"target", target,
		"doc_id", posting.DocID,
		"blocks_decoded", list.BlocksDecoded(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, nextGEQResponse{
		Term:     term,
		DocID:    posting.DocID,
		TermFreq: posting.TermFreq,
	})
}

type docFreqResponse struct {
	Term    string `json:"term"`
	DocFreq uint32 `json:"docFreq"`
}

// DocFreq handles GET /docFreq?term=T.
func (h *Handler) DocFreq(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'term' is required")
		return
	}
	df, ok := h.accessor.DocFreq(term)
	if !ok {
		h.writeError(w, http.StatusNotFound, "term not found")
		return
	}
	h.writeJSON(w, http.StatusOK, docFreqResponse{Term: term, DocFreq: df})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, term string, err error) {
	if errors.Is(err, bdxerrors.ErrNotFound) {
		h.metrics.QueryNotFoundTotal.Inc()
		h.writeError(w, http.StatusNotFound, "term not found or target exceeds its maximum docID")
		return
	}
	h.logger.Error("posting-list lookup failed", "term", term, "error", err)
	h.writeError(w, bdxerrors.HTTPStatusCode(err), "lookup failed")
}

// lookupOutcome classifies a lookup error for the nextGEQ latency
// histogram's "outcome" label.
func lookupOutcome(err error) string {
	if errors.Is(err, bdxerrors.ErrNotFound) {
		return "not_found"
	}
	return "error"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// requestID returns the caller-supplied X-Request-ID header, or an empty
// string if absent, to use as a trace span's trace ID.
func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}
