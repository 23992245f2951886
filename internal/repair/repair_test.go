package repair

import (
	"context"
	"errors"
	"testing"

	"github.com/mkoval/storecheck/internal/inspect"
	"github.com/mkoval/storecheck/internal/store"
)

func snapshot(name, sum string, found bool) store.Snapshot {
	return store.Snapshot{Store: name, Found: found, Checksum: sum}
}

func faulted(name string) store.Snapshot {
	return store.Snapshot{Store: name, Fault: &store.Fault{Reason: store.FaultUnavailable}}
}

func result(snaps ...store.Snapshot) inspect.Result {
	return inspect.Result{RecordID: "doc-1", Snapshots: snaps}
}

func actionFor(t *testing.T, plan Plan, name string) Action {
	t.Helper()
	for _, a := range plan.Actions {
		if a.Store == name {
			return a
		}
	}
	t.Fatalf("no action for store %s in %+v", name, plan.Actions)
	return Action{}
}

func TestPlanSyncToMajority(t *testing.T) {
	plan := NewPlanner(false).Plan(result(
		snapshot("postgres", "aaa", true),
		snapshot("qdrant", "aaa", true),
		snapshot("redis", "bbb", true),
	))

	if plan.MajorityChecksum != "aaa" {
		t.Errorf("majority = %q, want aaa", plan.MajorityChecksum)
	}
	if len(plan.MajorityStores) != 2 {
		t.Errorf("majority stores = %v", plan.MajorityStores)
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("got %d actions, want 1: %+v", len(plan.Actions), plan.Actions)
	}
	a := actionFor(t, plan, "redis")
	if a.Op != OpOverwrite || a.SourceStore != "postgres" {
		t.Errorf("action = %+v", a)
	}
}

func TestPlanCopyForMissing(t *testing.T) {
	plan := NewPlanner(false).Plan(result(
		snapshot("postgres", "aaa", true),
		snapshot("redis", "", false),
	))

	a := actionFor(t, plan, "redis")
	if a.Op != OpCopy || a.SourceStore != "postgres" {
		t.Errorf("action = %+v", a)
	}
}

func TestPlanSkipsFaultedStores(t *testing.T) {
	plan := NewPlanner(false).Plan(result(
		snapshot("postgres", "aaa", true),
		faulted("redis"),
	))

	a := actionFor(t, plan, "redis")
	if a.Op != OpSkip {
		t.Errorf("action = %+v, want skip", a)
	}
}

func TestPlanTieBreaksDeterministically(t *testing.T) {
	res := result(
		snapshot("postgres", "bbb", true),
		snapshot("redis", "aaa", true),
	)
	p := NewPlanner(false)

	first := p.Plan(res)
	second := p.Plan(res)
	// 1-1 tie: the lexicographically smallest checksum wins, every time.
	if first.MajorityChecksum != "aaa" || second.MajorityChecksum != "aaa" {
		t.Errorf("majorities = %q, %q, want aaa", first.MajorityChecksum, second.MajorityChecksum)
	}
}

func TestPlanAllMissing(t *testing.T) {
	plan := NewPlanner(false).Plan(result(
		snapshot("postgres", "", false),
		snapshot("redis", "", false),
	))
	if plan.MajorityChecksum != "" {
		t.Errorf("majority = %q, want empty", plan.MajorityChecksum)
	}
	if len(plan.Actions) != 0 {
		t.Errorf("actions = %+v, want none without a source", plan.Actions)
	}
}

type recordingWriter struct {
	writes int
	err    error
}

func (w *recordingWriter) WriteRecord(ctx context.Context, id string, payload map[string]any) error {
	if w.err != nil {
		return w.err
	}
	w.writes++
	return nil
}

func TestApplyRefusesWhenDisabled(t *testing.T) {
	plan := NewPlanner(false).Plan(result(
		snapshot("postgres", "aaa", true),
		snapshot("redis", "", false),
	))
	err := NewPlanner(false).Apply(context.Background(), plan, map[string]any{}, nil)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestApplyRefusesMissingWriterBeforeWriting(t *testing.T) {
	p := NewPlanner(true)
	plan := p.Plan(result(
		snapshot("postgres", "aaa", true),
		snapshot("redis", "", false),
		snapshot("qdrant", "", false),
	))

	w := &recordingWriter{}
	err := p.Apply(context.Background(), plan, map[string]any{}, map[string]Writer{"redis": w})
	if err == nil {
		t.Fatal("no error with a missing writer")
	}
	if w.writes != 0 {
		t.Errorf("%d writes happened before the refusal, want 0", w.writes)
	}
}

func TestApplyWrites(t *testing.T) {
	p := NewPlanner(true)
	plan := p.Plan(result(
		snapshot("postgres", "aaa", true),
		snapshot("redis", "", false),
	))

	w := &recordingWriter{}
	if err := p.Apply(context.Background(), plan, map[string]any{"title": "x"}, map[string]Writer{"redis": w}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}
}
