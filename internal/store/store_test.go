package store

import (
	"context"
	"errors"
	"fmt"
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

func sampleRun(id string, at time.Time) Run {
	return Run{
		ID:             id,
		Query:          "What is Python?",
		RephrasedQuery: "Python programming language overview",
		Answer:         "Python is a language.",
		Confidence:     0.9,
		Iterations:     1,
		SourcesUsed:    3,
		FileID:         "guide.pdf",
		Duration:       1500 * time.Millisecond,
		CreatedAt:      at,
	}
}

func Test_Store_SaveAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	at := time.UnixMilli(1_700_000_000_000)
	want := sampleRun("run-1", at)
	if err := s.SaveRun(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("want 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != want.ID || got.Query != want.Query || got.RephrasedQuery != want.RephrasedQuery ||
		got.Answer != want.Answer || got.Confidence != want.Confidence || got.Iterations != want.Iterations ||
		got.SourcesUsed != want.SourcesUsed || got.FileID != want.FileID {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
	if got.Duration != want.Duration {
		t.Errorf("duration = %v, want %v", got.Duration, want.Duration)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, at)
	}
}

func Test_Store_RecentNewestFirstAndLimited(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	for i := range 5 {
		if err := s.SaveRun(ctx, sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	runs, err := s.RecentRuns(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("want 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

func Test_Store_EmptyJournal(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	runs, err := s.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", runs)
	}
}

func Test_Store_DuplicateRunRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("dup", time.Now())
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveRun(ctx, run); !errors.Is(err, ErrDuplicateRun) {
		t.Errorf("second save: want ErrDuplicateRun, got %v", err)
	}
}

func Test_Store_ZeroCreatedAtIsStamped(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("stamp", time.Time{})
	before := time.Now().Add(-time.Second)
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if runs[0].CreatedAt.Before(before) {
		t.Errorf("created_at %v not stamped", runs[0].CreatedAt)
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveRun(ctx, sampleRun("persist", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	runs, err := s2.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "persist" {
		t.Errorf("want persisted run, got %+v", runs)
	}
}
