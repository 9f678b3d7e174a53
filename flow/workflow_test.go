package flow

import (
	"errors"
	"testing"
	"time"
)

func linearWorkflow(t *testing.T) *Workflow {
	t.Helper()
	nodes := []Node{
		{ID: "start", Type: NodeStart},
		{ID: "task", Type: NodeTask, Label: "Process"},
		{ID: "end", Type: NodeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "task", Type: EdgeDefault},
		{ID: "e2", Source: "task", Target: "end", Type: EdgeDefault},
	}
	w, err := NewWorkflow("wf-1", "Pipeline", "org-1", nodes, edges)
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}
	return w
}

func TestNewWorkflowInvariants(t *testing.T) {
	t.Run("valid workflow starts in DRAFT", func(t *testing.T) {
		w := linearWorkflow(t)
		if w.Status() != StatusDraft {
			t.Errorf("Status() = %v, want DRAFT", w.Status())
		}
	})

	t.Run("empty id rejected", func(t *testing.T) {
		_, err := NewWorkflow("", "Pipeline", "org-1", []Node{{ID: "a", Type: NodeStart}}, nil)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("all violations collected", func(t *testing.T) {
		nodes := []Node{
			{ID: "a", Type: NodeTask},
			{ID: "a", Type: NodeTask}, // duplicate
		}
		edges := []Edge{
			{ID: "e1", Source: "a", Target: "a"},       // self-loop, also kills start node
			{ID: "e2", Source: "a", Target: "ghost"},   // dangling target
		}
		_, err := NewWorkflow("wf-1", "", "org-1", nodes, edges)
		var invalid *InvalidWorkflowError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidWorkflowError, got %v", err)
		}
		// Empty name, duplicate id, dangling target, self-loop, no start node.
		if len(invalid.Errors) < 5 {
			t.Errorf("expected at least 5 violations, got %d: %v", len(invalid.Errors), invalid.Errors)
		}
	})

	t.Run("no nodes rejected", func(t *testing.T) {
		_, err := NewWorkflow("wf-1", "Pipeline", "org-1", nil, nil)
		var invalid *InvalidWorkflowError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidWorkflowError, got %v", err)
		}
	})
}

func TestWorkflowStatusMachine(t *testing.T) {
	t.Run("draft to active to paused and back", func(t *testing.T) {
		w := linearWorkflow(t)
		if err := w.Activate(); err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if err := w.Pause(); err != nil {
			t.Fatalf("Pause failed: %v", err)
		}
		if err := w.Activate(); err != nil {
			t.Fatalf("re-Activate failed: %v", err)
		}
		if w.Status() != StatusActive {
			t.Errorf("Status() = %v, want ACTIVE", w.Status())
		}
	})

	t.Run("terminal states absorb", func(t *testing.T) {
		w := linearWorkflow(t)
		if err := w.Activate(); err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if err := w.Complete(); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if err := w.Activate(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState out of COMPLETED, got %v", err)
		}
		if err := w.Archive(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState out of COMPLETED, got %v", err)
		}
	})

	t.Run("draft cannot pause", func(t *testing.T) {
		w := linearWorkflow(t)
		if err := w.Pause(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("draft archives directly", func(t *testing.T) {
		w := linearWorkflow(t)
		if err := w.Archive(); err != nil {
			t.Errorf("Archive from DRAFT failed: %v", err)
		}
	})
}

func TestWorkflowAccessorsPreserveDeclarationOrder(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeStart},
		{ID: "b", Type: NodeTask},
		{ID: "a", Type: NodeTask},
		{ID: "end", Type: NodeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "b", Type: EdgeDefault},
		{ID: "e2", Source: "start", Target: "a", Type: EdgeDefault},
		{ID: "e3", Source: "b", Target: "end", Type: EdgeDefault},
		{ID: "e4", Source: "a", Target: "end", Type: EdgeDefault},
	}
	w, err := NewWorkflow("wf-1", "Fanout", "org-1", nodes, edges)
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}

	t.Run("nodes", func(t *testing.T) {
		got := w.Nodes()
		for i, want := range []NodeID{"start", "b", "a", "end"} {
			if got[i].ID != want {
				t.Errorf("Nodes()[%d] = %v, want %v", i, got[i].ID, want)
			}
		}
	})

	t.Run("outgoing edges follow edge declaration order", func(t *testing.T) {
		got := w.OutgoingEdges("start")
		if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
			t.Errorf("OutgoingEdges = %+v, want e1 then e2", got)
		}
	})

	t.Run("next nodes follow edge declaration order", func(t *testing.T) {
		got := w.NextNodes("start")
		if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
			t.Errorf("NextNodes = %+v, want b then a", got)
		}
	})

	t.Run("start and end nodes", func(t *testing.T) {
		starts := w.StartNodes()
		if len(starts) != 1 || starts[0].ID != "start" {
			t.Errorf("StartNodes = %+v", starts)
		}
		ends := w.EndNodes()
		if len(ends) != 1 || ends[0].ID != "end" {
			t.Errorf("EndNodes = %+v", ends)
		}
	})
}

func TestWorkflowUpdateStructure(t *testing.T) {
	t.Run("atomic replace", func(t *testing.T) {
		w := linearWorkflow(t)
		before := w.UpdatedAt()

		nodes := []Node{{ID: "only", Type: NodeStart}}
		if err := w.UpdateStructure("Renamed", nodes, nil); err != nil {
			t.Fatalf("UpdateStructure failed: %v", err)
		}
		if w.Name() != "Renamed" || w.NodeCount() != 1 {
			t.Errorf("update not applied: name=%q nodes=%d", w.Name(), w.NodeCount())
		}
		if w.UpdatedAt().Before(before) {
			t.Error("updatedAt moved backwards")
		}
	})

	t.Run("failed update leaves workflow unchanged", func(t *testing.T) {
		w := linearWorkflow(t)
		err := w.UpdateStructure("Broken", nil, nil)
		var invalid *InvalidWorkflowError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidWorkflowError, got %v", err)
		}
		if w.Name() != "Pipeline" || w.NodeCount() != 3 {
			t.Error("failed update must not change the workflow")
		}
	})

	t.Run("terminal workflow rejects updates", func(t *testing.T) {
		w := linearWorkflow(t)
		if err := w.Archive(); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
		err := w.UpdateStructure("Renamed", []Node{{ID: "n", Type: NodeStart}}, nil)
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestWorkflowFindNode(t *testing.T) {
	w := linearWorkflow(t)
	if _, ok := w.FindNode("task"); !ok {
		t.Error("expected to find node task")
	}
	if _, ok := w.FindNode("ghost"); ok {
		t.Error("did not expect to find node ghost")
	}
}

func TestWorkflowClockSanity(t *testing.T) {
	w := linearWorkflow(t)
	if w.CreatedAt().After(time.Now()) {
		t.Error("createdAt lies in the future")
	}
	if w.UpdatedAt().Before(w.CreatedAt()) {
		t.Error("updatedAt precedes createdAt")
	}
}
