package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulseflow/pulseflow/flow"
)

func storeWorkflow(t *testing.T, id flow.WorkflowID, name, org string) *flow.Workflow {
	t.Helper()
	nodes := []flow.Node{
		{ID: "start", Type: flow.NodeStart},
		{ID: "end", Type: flow.NodeEnd},
	}
	edges := []flow.Edge{
		{ID: "e1", Source: "start", Target: "end", Type: flow.EdgeDefault},
	}
	w, err := flow.NewWorkflow(id, name, org, nodes, edges)
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}
	return w
}

func seededWorkflowStore(t *testing.T) *MemoryWorkflowStore {
	t.Helper()
	s := NewMemoryWorkflowStore()
	ctx := context.Background()

	alpha := storeWorkflow(t, "wf-alpha", "Alpha Pipeline", "org-1")
	if err := alpha.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	beta := storeWorkflow(t, "wf-beta", "Beta Pipeline", "org-1")
	gamma := storeWorkflow(t, "wf-gamma", "Gamma Alerts", "org-2")

	for _, w := range []*flow.Workflow{alpha, beta, gamma} {
		if err := s.Save(ctx, w); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	return s
}

func TestMemoryWorkflowStoreCRUD(t *testing.T) {
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		s := NewMemoryWorkflowStore()
		w := storeWorkflow(t, "wf-1", "Pipeline", "org-1")
		if err := s.Save(ctx, w); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		found, err := s.FindByID(ctx, "wf-1")
		if err != nil || found.Name() != "Pipeline" {
			t.Errorf("FindByID = (%v, %v)", found, err)
		}
		exists, err := s.Exists(ctx, "wf-1")
		if err != nil || !exists {
			t.Errorf("Exists = (%v, %v)", exists, err)
		}
	})

	t.Run("nil workflow rejected", func(t *testing.T) {
		s := NewMemoryWorkflowStore()
		if err := s.Save(ctx, nil); !errors.Is(err, flow.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("missing workflow", func(t *testing.T) {
		s := NewMemoryWorkflowStore()
		if _, err := s.FindByID(ctx, "wf-ghost"); !errors.Is(err, flow.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := NewMemoryWorkflowStore()
		if err := s.Save(ctx, storeWorkflow(t, "wf-1", "Pipeline", "org-1")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.Delete(ctx, "wf-1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, "wf-1"); !errors.Is(err, flow.ErrNotFound) {
			t.Errorf("second Delete = %v, want ErrNotFound", err)
		}
	})
}

func TestMemoryWorkflowStoreFinders(t *testing.T) {
	ctx := context.Background()
	s := seededWorkflowStore(t)

	t.Run("by organization", func(t *testing.T) {
		found, err := s.FindByOrganization(ctx, "org-1")
		if err != nil || len(found) != 2 {
			t.Errorf("FindByOrganization = (%d, %v), want 2", len(found), err)
		}
	})

	t.Run("by status", func(t *testing.T) {
		found, err := s.FindByStatus(ctx, flow.StatusActive)
		if err != nil || len(found) != 1 || found[0].ID() != "wf-alpha" {
			t.Errorf("FindByStatus = (%v, %v)", found, err)
		}
	})

	t.Run("by organization and status", func(t *testing.T) {
		found, err := s.FindByOrganizationAndStatus(ctx, "org-1", flow.StatusDraft)
		if err != nil || len(found) != 1 || found[0].ID() != "wf-beta" {
			t.Errorf("FindByOrganizationAndStatus = (%v, %v)", found, err)
		}
	})

	t.Run("by name fragment is case-insensitive", func(t *testing.T) {
		found, err := s.FindByNameContaining(ctx, "pipeline")
		if err != nil || len(found) != 2 {
			t.Errorf("FindByNameContaining = (%d, %v), want 2", len(found), err)
		}
	})

	t.Run("by creation window", func(t *testing.T) {
		found, err := s.FindCreatedBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		if err != nil || len(found) != 3 {
			t.Errorf("FindCreatedBetween = (%d, %v), want all 3", len(found), err)
		}
		found, err = s.FindCreatedBetween(ctx, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
		if err != nil || len(found) != 0 {
			t.Errorf("future window = (%d, %v), want none", len(found), err)
		}
	})

	t.Run("updated after", func(t *testing.T) {
		found, err := s.FindUpdatedAfter(ctx, time.Now().Add(-time.Hour))
		if err != nil || len(found) != 3 {
			t.Errorf("FindUpdatedAfter = (%d, %v), want all 3", len(found), err)
		}
	})

	t.Run("by node type and node id", func(t *testing.T) {
		found, err := s.FindByNodeType(ctx, flow.NodeStart)
		if err != nil || len(found) != 3 {
			t.Errorf("FindByNodeType = (%d, %v), want all 3", len(found), err)
		}
		found, err = s.FindByNodeID(ctx, "end")
		if err != nil || len(found) != 3 {
			t.Errorf("FindByNodeID = (%d, %v), want all 3", len(found), err)
		}
	})
}

func TestMemoryWorkflowStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := seededWorkflowStore(t)

	t.Run("filters combine", func(t *testing.T) {
		draft := flow.StatusDraft
		result, err := s.Search(ctx, flow.WorkflowSearchQuery{
			OrganizationID: "org-1",
			NameContains:   "pipeline",
			Status:         &draft,
		})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if result.TotalCount != 1 || result.Workflows[0].ID() != "wf-beta" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("sort by name descending", func(t *testing.T) {
		result, err := s.Search(ctx, flow.WorkflowSearchQuery{
			SortBy:        flow.SortByName,
			SortDirection: flow.SortDesc,
		})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if result.Workflows[0].Name() != "Gamma Alerts" {
			t.Errorf("first result = %q, want Gamma Alerts", result.Workflows[0].Name())
		}
	})

	t.Run("paging keeps total count", func(t *testing.T) {
		result, err := s.Search(ctx, flow.WorkflowSearchQuery{
			SortBy: flow.SortByName,
			Offset: 1,
			Limit:  1,
		})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if result.TotalCount != 3 || len(result.Workflows) != 1 {
			t.Errorf("result = total %d, page %d; want 3/1", result.TotalCount, len(result.Workflows))
		}
		if result.Workflows[0].Name() != "Beta Pipeline" {
			t.Errorf("page = %q, want the middle entry", result.Workflows[0].Name())
		}
	})

	t.Run("offset beyond the end clamps", func(t *testing.T) {
		result, err := s.Search(ctx, flow.WorkflowSearchQuery{Offset: 99})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(result.Workflows) != 0 || result.TotalCount != 3 {
			t.Errorf("result = page %d, total %d; want 0/3", len(result.Workflows), result.TotalCount)
		}
	})
}

func TestMemoryWorkflowStoreStatistics(t *testing.T) {
	ctx := context.Background()
	s := seededWorkflowStore(t)

	stats, err := s.Statistics(ctx, "org-1")
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.Total != 2 || stats.Active != 1 || stats.Draft != 1 || stats.Completed != 0 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.AvgNodes != 2 || stats.AvgEdges != 1 {
		t.Errorf("averages = nodes %v, edges %v; want 2/1", stats.AvgNodes, stats.AvgEdges)
	}
	if stats.LastCreated == nil || stats.LastUpdated == nil {
		t.Error("expected timestamps for a non-empty organization")
	}

	empty, err := s.Statistics(ctx, "org-ghost")
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if empty.Total != 0 || empty.LastCreated != nil {
		t.Errorf("empty organization stats = %+v", empty)
	}
}
