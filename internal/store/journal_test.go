package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/rill"
)

func TestJournal_RecordsTicks(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := rill.NewDomain("app", rill.Isolated())
	inc := rill.NewEvent[int]("inc", rill.InDomain(d))
	count := rill.NewStore(0, rill.WithName("count"), rill.WithSID("count"), rill.InDomain(d))
	rill.On(count, inc, func(c, n int) int { return c + n })

	scope, err := rill.Fork(
		rill.ForDomain(d),
		rill.WithHooks(NewJournal(s, nil)),
		rill.WithScopeIDs(rill.SequenceIDs("scope")),
	)
	if err != nil {
		t.Fatalf("Fork() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := rill.AllSettled(ctx, inc, rill.InScope(scope), rill.WithParams(1)); err != nil {
			t.Fatalf("AllSettled() failed: %v", err)
		}
	}

	ticks, err := s.ReadTicks(ctx, scope.ID())
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("ticks = %d, want 2", len(ticks))
	}
	for i, tick := range ticks {
		if tick.Seq != int64(i+1) {
			t.Errorf("tick %d: seq = %d", i, tick.Seq)
		}
		if tick.Root != "app/inc" || tick.RootKind != "event" {
			t.Errorf("tick %d: root = %s (%s)", i, tick.Root, tick.RootKind)
		}
		if tick.Steps < 2 {
			t.Errorf("tick %d: steps = %d, want the event and its reducer at least", i, tick.Steps)
		}
	}

	// Archive the scope and check the combined history
	if _, err := s.WriteSnapshot(ctx, SnapshotRecord{Program: "app", ScopeID: scope.ID(), Values: rill.Serialize(scope)}); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	history, err := s.GetScopeHistory(ctx, scope.ID())
	if err != nil {
		t.Fatalf("GetScopeHistory() failed: %v", err)
	}
	if history.LastSeq != 2 || len(history.Ticks) != 2 {
		t.Errorf("history = %+v", history)
	}
	if history.Failed != 0 || history.Aborted != 0 {
		t.Errorf("failed/aborted = %d/%d, want 0/0", history.Failed, history.Aborted)
	}
	if len(history.Snapshots) != 1 || history.Snapshots[0].Values["count"] != 2.0 {
		t.Errorf("snapshots = %+v", history.Snapshots)
	}
}

func TestListScopeIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteTick(ctx, TickRecord{ScopeID: "b", Seq: 1, Root: "r", RootKind: "event"}); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}
	if err := s.WriteTick(ctx, TickRecord{ScopeID: "a", Seq: 1, Root: "r", RootKind: "event"}); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}
	if _, err := s.WriteSnapshot(ctx, createTestSnapshot("snap", "p", "c", nil)); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	if _, err := s.WriteSnapshot(ctx, createTestSnapshot("snap-2", "p", "a", nil)); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	got, err := s.ListScopeIDs(ctx)
	if err != nil {
		t.Fatalf("ListScopeIDs() failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ListScopeIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListScopeIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLastTickSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{1, 2, 5} {
		if err := s.WriteTick(ctx, TickRecord{ScopeID: "a", Seq: seq, Root: "r", RootKind: "event"}); err != nil {
			t.Fatalf("WriteTick() failed: %v", err)
		}
	}
	if err := s.WriteTick(ctx, TickRecord{ScopeID: "b", Seq: 9, Root: "r", RootKind: "event"}); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}

	tests := []struct {
		scope string
		want  int64
	}{
		{"a", 5},
		{"b", 9},
		{"unknown", 0},
	}
	for _, tt := range tests {
		got, err := s.LastTickSeq(ctx, tt.scope)
		if err != nil {
			t.Fatalf("LastTickSeq(%q) failed: %v", tt.scope, err)
		}
		if got != tt.want {
			t.Errorf("LastTickSeq(%q) = %d, want %d", tt.scope, got, tt.want)
		}
	}
}
