package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestOperationName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tag  pgconn.CommandTag
		sql  string
		want string
	}{
		{"from tag", pgconn.NewCommandTag("SELECT 1"), "", "SELECT"},
		{"insert tag", pgconn.NewCommandTag("INSERT 0 1"), "", "INSERT"},
		{"fallback to sql", pgconn.CommandTag{}, "update incidents set ...", "UPDATE"},
		{"leading whitespace", pgconn.CommandTag{}, "  select * from incidents", "SELECT"},
		{"empty everything", pgconn.CommandTag{}, "", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := operationName(tt.tag, tt.sql); got != tt.want {
				t.Errorf("operationName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetQueryObserver_RoundTrip(t *testing.T) {
	// mutates the package-level observer; not parallel
	defer SetQueryObserver(nil)

	called := false
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, _, _ string, _ time.Duration) {
		called = true
	}))

	obs := getQueryObserver()
	if obs == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	obs.ObserveQuery(context.Background(), "SELECT", "ok", time.Millisecond)
	if !called {
		t.Error("observer func not invoked")
	}

	SetQueryObserver(nil)
	if getQueryObserver() != nil {
		t.Error("expected nil observer after reset")
	}
}

func TestLoggingTracer_ObservesQuery(t *testing.T) {
	// mutates the package-level observer; not parallel
	defer SetQueryObserver(nil)

	type observed struct {
		operation string
		outcome   string
	}
	var got []observed
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, operation, outcome string, _ time.Duration) {
		got = append(got, observed{operation, outcome})
	}))

	tr := wrapQueryTracer(nil)

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "SELECT * FROM incidents WHERE id = $1",
	})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("SELECT 1"),
	})

	if len(got) != 1 {
		t.Fatalf("observations = %d, want 1", len(got))
	}
	if got[0].operation != "SELECT" || got[0].outcome != "ok" {
		t.Errorf("observed %+v, want SELECT/ok", got[0])
	}
}

func TestLoggingTracer_ErrorOutcome(t *testing.T) {
	// mutates the package-level observer; not parallel
	defer SetQueryObserver(nil)

	var outcome string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, _, o string, _ time.Duration) {
		outcome = o
	}))

	tr := wrapQueryTracer(nil)

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "INSERT INTO incidents VALUES ($1)",
	})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		Err: context.DeadlineExceeded,
	})

	if outcome != "error" {
		t.Errorf("outcome = %q, want error", outcome)
	}
}
