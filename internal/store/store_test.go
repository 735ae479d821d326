package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	in := Entry{
		Question:    "What share of loans were mortgages?",
		Answer:      "78.7 percent [1]",
		Sources:     []string{"f1", "f2"},
		Fingerprint: "abc",
		Elapsed:     1500 * time.Millisecond,
	}
	if err := s.Append(ctx, in); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.ID == 0 || e.Question != in.Question || e.Answer != in.Answer || e.Fingerprint != "abc" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Sources) != 2 || e.Sources[1] != "f2" {
		t.Errorf("sources = %v", e.Sources)
	}
	if e.Elapsed != 1500*time.Millisecond {
		t.Errorf("elapsed = %v", e.Elapsed)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
}

func Test_Store_RecentLimitAndOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i, q := range []string{"first", "second", "third", "fourth"} {
		if err := s.Append(ctx, Entry{Question: q, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if got[0].Question != "fourth" || got[1].Question != "third" {
		t.Errorf("want newest first, got %q, %q", got[0].Question, got[1].Question)
	}
	if got[0].Sources == nil {
		t.Error("nil sources should round-trip as an empty slice")
	}
}

func Test_Store_EmptyReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 entries, got %d", len(got))
	}
}

func Test_Store_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append(ctx, Entry{Question: "kept?"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Question != "kept?" {
		t.Errorf("entry not persisted: %+v", got)
	}
}
