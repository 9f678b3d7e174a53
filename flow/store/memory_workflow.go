package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow"
)

// MemoryWorkflowStore is an in-memory flow.WorkflowRepository.
//
// Workflows are held by reference; the repository never copies the
// aggregate, which carries its own locking. Finder results are returned in
// insertion order, search results in the requested sort order.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[flow.WorkflowID]*flow.Workflow
	order     []flow.WorkflowID
}

// NewMemoryWorkflowStore creates an empty in-memory workflow repository.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[flow.WorkflowID]*flow.Workflow)}
}

// Save stores or replaces a workflow by id.
func (s *MemoryWorkflowStore) Save(_ context.Context, w *flow.Workflow) error {
	if w == nil {
		return fmt.Errorf("%w: workflow cannot be nil", flow.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[w.ID()]; !exists {
		s.order = append(s.order, w.ID())
	}
	s.workflows[w.ID()] = w
	return nil
}

// FindByID returns the workflow with the given id, or flow.ErrNotFound.
func (s *MemoryWorkflowStore) FindByID(_ context.Context, id flow.WorkflowID) (*flow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", flow.ErrNotFound, id)
	}
	return w, nil
}

// Delete removes a workflow. Deleting an unknown id returns
// flow.ErrNotFound.
func (s *MemoryWorkflowStore) Delete(_ context.Context, id flow.WorkflowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("%w: workflow %s", flow.ErrNotFound, id)
	}
	delete(s.workflows, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Exists reports whether a workflow with the given id is stored.
func (s *MemoryWorkflowStore) Exists(_ context.Context, id flow.WorkflowID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workflows[id]
	return ok, nil
}

// FindByOrganization returns the organization's workflows in insertion
// order.
func (s *MemoryWorkflowStore) FindByOrganization(_ context.Context, orgID string) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		return w.OrganizationID() == orgID
	}), nil
}

// FindByStatus returns every workflow with the given status.
func (s *MemoryWorkflowStore) FindByStatus(_ context.Context, status flow.WorkflowStatus) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		return w.Status() == status
	}), nil
}

// FindByOrganizationAndStatus combines the organization and status filters.
func (s *MemoryWorkflowStore) FindByOrganizationAndStatus(_ context.Context, orgID string, status flow.WorkflowStatus) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		return w.OrganizationID() == orgID && w.Status() == status
	}), nil
}

// FindByNameContaining returns workflows whose name contains the fragment,
// case-insensitively.
func (s *MemoryWorkflowStore) FindByNameContaining(_ context.Context, fragment string) ([]*flow.Workflow, error) {
	needle := strings.ToLower(fragment)
	return s.filter(func(w *flow.Workflow) bool {
		return strings.Contains(strings.ToLower(w.Name()), needle)
	}), nil
}

// FindCreatedBetween returns workflows created in [from, to].
func (s *MemoryWorkflowStore) FindCreatedBetween(_ context.Context, from, to time.Time) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		created := w.CreatedAt()
		return !created.Before(from) && !created.After(to)
	}), nil
}

// FindUpdatedAfter returns workflows updated strictly after t.
func (s *MemoryWorkflowStore) FindUpdatedAfter(_ context.Context, t time.Time) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		return w.UpdatedAt().After(t)
	}), nil
}

// FindByNodeType returns workflows containing at least one node of the
// given type.
func (s *MemoryWorkflowStore) FindByNodeType(_ context.Context, nodeType flow.NodeType) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		for _, n := range w.Nodes() {
			if n.Type == nodeType {
				return true
			}
		}
		return false
	}), nil
}

// FindByNodeID returns workflows containing a node with the given id.
func (s *MemoryWorkflowStore) FindByNodeID(_ context.Context, nodeID flow.NodeID) ([]*flow.Workflow, error) {
	return s.filter(func(w *flow.Workflow) bool {
		_, ok := w.FindNode(nodeID)
		return ok
	}), nil
}

// Search filters, sorts, and pages workflows. TotalCount reflects the
// filtered set before paging; an offset beyond it yields an empty page.
func (s *MemoryWorkflowStore) Search(_ context.Context, q flow.WorkflowSearchQuery) (*flow.WorkflowSearchResult, error) {
	needle := strings.ToLower(q.NameContains)
	matched := s.filter(func(w *flow.Workflow) bool {
		if q.OrganizationID != "" && w.OrganizationID() != q.OrganizationID {
			return false
		}
		if needle != "" && !strings.Contains(strings.ToLower(w.Name()), needle) {
			return false
		}
		if q.Status != nil && w.Status() != *q.Status {
			return false
		}
		return true
	})

	sortWorkflows(matched, q.SortBy, q.SortDirection)

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	page := matched[offset:]
	if q.Limit > 0 && q.Limit < len(page) {
		page = page[:q.Limit]
	}

	return &flow.WorkflowSearchResult{
		Workflows:  page,
		TotalCount: total,
		Offset:     offset,
		Limit:      q.Limit,
	}, nil
}

// Statistics summarizes one organization's workflows.
func (s *MemoryWorkflowStore) Statistics(_ context.Context, orgID string) (*flow.WorkflowStatistics, error) {
	workflows := s.filter(func(w *flow.Workflow) bool {
		return w.OrganizationID() == orgID
	})

	stats := &flow.WorkflowStatistics{Total: len(workflows)}
	if len(workflows) == 0 {
		return stats, nil
	}

	var nodeSum, edgeSum int
	for _, w := range workflows {
		switch w.Status() {
		case flow.StatusActive:
			stats.Active++
		case flow.StatusCompleted:
			stats.Completed++
		case flow.StatusDraft:
			stats.Draft++
		}
		nodeSum += w.NodeCount()
		edgeSum += w.EdgeCount()

		created := w.CreatedAt()
		if stats.LastCreated == nil || created.After(*stats.LastCreated) {
			c := created
			stats.LastCreated = &c
		}
		updated := w.UpdatedAt()
		if stats.LastUpdated == nil || updated.After(*stats.LastUpdated) {
			u := updated
			stats.LastUpdated = &u
		}
	}
	stats.AvgNodes = float64(nodeSum) / float64(len(workflows))
	stats.AvgEdges = float64(edgeSum) / float64(len(workflows))
	return stats, nil
}

// filter returns matching workflows in insertion order.
func (s *MemoryWorkflowStore) filter(match func(*flow.Workflow) bool) []*flow.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*flow.Workflow
	for _, id := range s.order {
		if w := s.workflows[id]; w != nil && match(w) {
			out = append(out, w)
		}
	}
	return out
}

func sortWorkflows(workflows []*flow.Workflow, field flow.SortField, dir flow.SortDirection) {
	var less func(a, b *flow.Workflow) bool
	switch field {
	case flow.SortByName:
		less = func(a, b *flow.Workflow) bool { return a.Name() < b.Name() }
	case flow.SortByUpdatedAt:
		less = func(a, b *flow.Workflow) bool { return a.UpdatedAt().Before(b.UpdatedAt()) }
	case flow.SortByStatus:
		less = func(a, b *flow.Workflow) bool { return a.Status() < b.Status() }
	case flow.SortByNodeCount:
		less = func(a, b *flow.Workflow) bool { return a.NodeCount() < b.NodeCount() }
	case flow.SortByCreatedAt:
		fallthrough
	default:
		less = func(a, b *flow.Workflow) bool { return a.CreatedAt().Before(b.CreatedAt()) }
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if dir == flow.SortDesc {
			return less(workflows[j], workflows[i])
		}
		return less(workflows[i], workflows[j])
	})
}
