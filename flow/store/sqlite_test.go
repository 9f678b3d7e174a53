package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pulseflow/pulseflow/flow"
)

func openSQLiteHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := NewSQLiteHistory(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteHistory failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSQLiteHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		h := openSQLiteHistory(t)
		record := stepRecord("exec-1", 1, "start")
		if err := h.SaveStep(ctx, record); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		loaded, err := h.LoadLatest(ctx, "exec-1")
		if err != nil {
			t.Fatalf("LoadLatest failed: %v", err)
		}
		if loaded.NodeID != "start" || loaded.Context["task_result"] != "done" {
			t.Errorf("loaded = %+v", loaded)
		}
	})

	t.Run("upsert replaces the same step", func(t *testing.T) {
		h := openSQLiteHistory(t)
		if err := h.SaveStep(ctx, stepRecord("exec-1", 1, "start")); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		replacement := stepRecord("exec-1", 1, "start")
		replacement.Status = flow.ExecutionFailed
		if err := h.SaveStep(ctx, replacement); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		steps, err := h.Steps(ctx, "exec-1")
		if err != nil {
			t.Fatalf("Steps failed: %v", err)
		}
		if len(steps) != 1 || steps[0].Status != flow.ExecutionFailed {
			t.Errorf("steps = %+v", steps)
		}
	})

	t.Run("steps ordered and runs isolated", func(t *testing.T) {
		h := openSQLiteHistory(t)
		for _, step := range []int{2, 1, 3} {
			if err := h.SaveStep(ctx, stepRecord("exec-1", step, "n")); err != nil {
				t.Fatalf("SaveStep failed: %v", err)
			}
		}
		if err := h.SaveStep(ctx, stepRecord("exec-2", 1, "other")); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		steps, err := h.Steps(ctx, "exec-1")
		if err != nil {
			t.Fatalf("Steps failed: %v", err)
		}
		if len(steps) != 3 || steps[0].Step != 1 || steps[2].Step != 3 {
			t.Errorf("steps = %+v", steps)
		}
	})

	t.Run("unknown execution", func(t *testing.T) {
		h := openSQLiteHistory(t)
		if _, err := h.LoadLatest(ctx, "exec-ghost"); !errors.Is(err, flow.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete run", func(t *testing.T) {
		h := openSQLiteHistory(t)
		if err := h.SaveStep(ctx, stepRecord("exec-1", 1, "start")); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		if err := h.DeleteRun(ctx, "exec-1"); err != nil {
			t.Fatalf("DeleteRun failed: %v", err)
		}
		if _, err := h.LoadLatest(ctx, "exec-1"); !errors.Is(err, flow.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		h, err := NewSQLiteHistory(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteHistory failed: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := h.SaveStep(ctx, stepRecord("exec-1", 1, "start")); !errors.Is(err, ErrClosed) {
			t.Errorf("SaveStep after Close = %v, want ErrClosed", err)
		}
		if err := h.Close(); err != nil {
			t.Errorf("double Close must be a no-op, got %v", err)
		}
	})
}
