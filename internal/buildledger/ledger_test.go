package buildledger

import (
	"context"
	"errors"
	"testing"

	"github.com/blockdex/blockdex/pkg/postgres"
)

// A nil *postgres.Client means Postgres was never configured or is
// unreachable. Every Ledger method must degrade to a no-op rather than
// panic or block a build.

func TestStartRunNilDBReturnsZero(t *testing.T) {
	l := New(nil)
	id := l.StartRun(context.Background(), "/data/collection.tsv", "/out/index")
	if id != 0 {
		t.Fatalf("StartRun with nil db = %d, want 0", id)
	}
}

func TestUpdateProgressNilDBIsNoOp(t *testing.T) {
	l := New(nil)
	l.UpdateProgress(context.Background(), 0, 100, 2)
}

func TestFinishRunNilDBIsNoOp(t *testing.T) {
	l := New(nil)
	l.FinishRun(context.Background(), 0, 100, 2)
}

func TestFailRunNilDBIsNoOp(t *testing.T) {
	l := New(nil)
	l.FailRun(context.Background(), 0, errors.New("disk full"))
}

func TestZeroRunIDIsNoOpEvenWithDB(t *testing.T) {
	// A zero runID means StartRun itself failed or was skipped; later
	// calls must not attempt an update keyed on an ID that was never
	// inserted. The client has no connection behind it, so any attempted
	// query would panic on its nil *sql.DB.
	l := New(&postgres.Client{})
	l.UpdateProgress(context.Background(), 0, 5, 1)
	l.FinishRun(context.Background(), 0, 5, 1)
	l.FailRun(context.Background(), 0, errors.New("boom"))
}
