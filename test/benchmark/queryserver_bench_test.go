package benchmark

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/blockdex/blockdex/internal/build"
	"github.com/blockdex/blockdex/internal/merge"
	"github.com/blockdex/blockdex/internal/query"
	"github.com/blockdex/blockdex/internal/queryserver"
	"github.com/blockdex/blockdex/internal/tokenizer"
	"github.com/blockdex/blockdex/pkg/metrics"
)

var benchMetrics = metrics.New()

func buildBenchmarkIndex(b *testing.B, numDocs int) *query.Accessor {
	b.Helper()
	workDir := b.TempDir()
	finalDir := b.TempDir()
	bld, err := build.New(tokenizer.New(tokenizer.DefaultStopWords), workDir, filepath.Join(workDir, "pagetable.txt"), 1<<30)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < numDocs; i++ {
		if err := bld.AddDocument(uint32(i), passageFor(i)); err != nil {
			b.Fatal(err)
		}
	}
	paths, err := bld.Finish()
	if err != nil {
		b.Fatal(err)
	}
	merger, err := merge.Open(context.Background(), paths, 64)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := merger.Merge(
		filepath.Join(finalDir, "index.bin"),
		filepath.Join(finalDir, "lexicon.txt"),
		filepath.Join(finalDir, "blockMetaData.txt"),
	); err != nil {
		b.Fatal(err)
	}
	accessor, err := query.Load(finalDir)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { accessor.Close() })
	return accessor
}

// BenchmarkNextGEQHandlerSerial measures single-request nextGEQ latency
// over the HTTP handler at several corpus sizes.
func BenchmarkNextGEQHandlerSerial(b *testing.B) {
	sizes := []int{1000, 10000}
	for _, numDocs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			accessor := buildBenchmarkIndex(b, numDocs)
			h := queryserver.New(accessor, queryserver.NewListOpener(accessor, nil), benchMetrics)
			mux := http.NewServeMux()
			mux.HandleFunc("/nextGEQ", h.NextGEQ)
			srv := httptest.NewServer(mux)
			b.Cleanup(srv.Close)

			url := srv.URL + "/nextGEQ?term=search&docID=0"
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				resp, err := http.Get(url)
				if err != nil {
					b.Fatal(err)
				}
				resp.Body.Close()
			}
		})
	}
}

// BenchmarkNextGEQHandlerParallel measures concurrent nextGEQ request
// throughput against a shared accessor and handler.
func BenchmarkNextGEQHandlerParallel(b *testing.B) {
	accessor := buildBenchmarkIndex(b, 10000)
	h := queryserver.New(accessor, queryserver.NewListOpener(accessor, nil), benchMetrics)
	mux := http.NewServeMux()
	mux.HandleFunc("/nextGEQ", h.NextGEQ)
	srv := httptest.NewServer(mux)
	b.Cleanup(srv.Close)

	url := srv.URL + "/nextGEQ?term=distributed&docID=0"
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := http.Get(url)
			if err != nil {
				b.Fatal(err)
			}
			resp.Body.Close()
		}
	})
}
