package engine

import (
	"context"
	"errors"
	"testing"
)

// stubSource serves canned remote state keyed by type name and records which
// types were listed.
type stubSource struct {
	remote map[string][]RemoteResource
	err    error
	listed []string
}

func (s *stubSource) List(_ context.Context, rt ResourceType) ([]RemoteResource, error) {
	s.listed = append(s.listed, rt.Name())
	if s.err != nil {
		return nil, s.err
	}
	return s.remote[rt.Name()], nil
}

func newTestPlanner(source RemoteSource, opts PlannerOptions) *Planner {
	return NewPlanner(DefaultRegistry(), source, opts)
}

func keyStrings(keys []ResourceKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func TestPlanner_Plan_CreatesMissingResource(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{"owner": "data-eng"}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "database", ID: "analytics"})
	if item == nil {
		t.Fatal("Expected a plan item for database/analytics")
	}
	if item.Operation != OperationCreate {
		t.Errorf("Expected create, got %s", item.Operation)
	}
	if plan.Summary.Create != 1 {
		t.Errorf("Expected create count 1, got %d", plan.Summary.Create)
	}
	if len(plan.Levels) != 1 || len(plan.Levels[0]) != 1 {
		t.Fatalf("Expected one wave with one resource, got %v", plan.Levels)
	}
}

func TestPlanner_Plan_NoopWhenConverged(t *testing.T) {
	source := &stubSource{remote: map[string][]RemoteResource{
		"database": {{ID: "analytics", State: map[string]any{"owner": "data-eng"}}},
	}}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{"owner": "data-eng"}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "database", ID: "analytics"})
	if item.Operation != OperationNoop {
		t.Errorf("Expected noop, got %s", item.Operation)
	}
	if len(plan.Levels) != 0 {
		t.Errorf("Expected no waves for a converged plan, got %v", plan.Levels)
	}
	if plan.HasChanges() {
		t.Error("Expected HasChanges false for a converged plan")
	}
}

func TestPlanner_Plan_UpdateOnDrift(t *testing.T) {
	source := &stubSource{remote: map[string][]RemoteResource{
		"database": {{ID: "analytics", State: map[string]any{"owner": "legacy"}}},
	}}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{"owner": "data-eng"}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "database", ID: "analytics"})
	if item.Operation != OperationUpdate {
		t.Fatalf("Expected update, got %s", item.Operation)
	}
	if len(item.Changes) != 1 {
		t.Fatalf("Expected 1 change, got %d", len(item.Changes))
	}
	if item.Changes[0].Path != ".owner" {
		t.Errorf("Expected change at .owner, got %s", item.Changes[0].Path)
	}
}

func TestPlanner_Plan_ColumnReorderIsNotDrift(t *testing.T) {
	spec := map[string]any{
		"database": "analytics",
		"columns": []any{
			map[string]any{"name": "id", "type": "bigint"},
			map[string]any{"name": "ts", "type": "timestamp"},
		},
	}
	observed := map[string]any{
		"database": "analytics",
		"columns": []any{
			map[string]any{"name": "ts", "type": "timestamp"},
			map[string]any{"name": "id", "type": "bigint"},
		},
	}
	source := &stubSource{remote: map[string][]RemoteResource{
		"table": {{ID: "events", State: observed}},
	}}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "table", ID: "events", Spec: spec},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "table", ID: "events"})
	if item.Operation != OperationNoop {
		t.Errorf("Expected noop for a column reorder, got %s with changes %v",
			item.Operation, item.Changes)
	}
}

func TestPlanner_Plan_WavesFollowDependencies(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "table", ID: "events", Spec: map[string]any{"database": "analytics"}},
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.Levels) != 2 {
		t.Fatalf("Expected 2 waves, got %v", plan.Levels)
	}
	if got := keyStrings(plan.Levels[0]); len(got) != 1 || got[0] != "database/analytics" {
		t.Errorf("Expected database wave first, got %v", got)
	}
	if got := keyStrings(plan.Levels[1]); len(got) != 1 || got[0] != "table/events" {
		t.Errorf("Expected table wave second, got %v", got)
	}
}

func TestPlanner_Plan_UndeclaredReferenceIsIgnored(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{})

	// The referenced database has no definition: it is expected to already
	// exist remotely and must not affect ordering.
	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "table", ID: "events", Spec: map[string]any{"database": "preexisting"}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Levels) != 1 {
		t.Fatalf("Expected 1 wave, got %v", plan.Levels)
	}
}

func TestPlanner_Plan_PruneDeletesUndeclared(t *testing.T) {
	source := &stubSource{remote: map[string][]RemoteResource{
		"database": {
			{ID: "analytics", State: map[string]any{}},
			{ID: "stray", State: map[string]any{}},
		},
	}}
	p := newTestPlanner(source, PlannerOptions{Prune: true})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "database", ID: "stray"})
	if item == nil || item.Operation != OperationDelete {
		t.Fatalf("Expected a delete for database/stray, got %+v", item)
	}
	if plan.Summary.Delete != 1 {
		t.Errorf("Expected delete count 1, got %d", plan.Summary.Delete)
	}

	last := plan.Levels[len(plan.Levels)-1]
	if got := keyStrings(last); len(got) != 1 || got[0] != "database/stray" {
		t.Errorf("Expected delete in the final wave, got %v", got)
	}
}

func TestPlanner_Plan_NoPruneLeavesStrays(t *testing.T) {
	source := &stubSource{remote: map[string][]RemoteResource{
		"database": {{ID: "stray", State: map[string]any{}}},
	}}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Summary.Delete != 0 {
		t.Errorf("Expected no deletes without pruning, got %d", plan.Summary.Delete)
	}
	if plan.ItemFor(ResourceKey{Type: "database", ID: "stray"}) != nil {
		t.Error("Expected no plan item for the stray resource")
	}
}

func TestPlanner_Plan_OnlyDeclaredTypesListed(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{Prune: true})

	_, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(source.listed) != 1 || source.listed[0] != "database" {
		t.Errorf("Expected only the database type to be listed, got %v", source.listed)
	}
}

func TestPlanner_Plan_CycleFails(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{})

	_, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "a", Spec: map[string]any{"depends_on": []any{"database/b"}}},
		{Type: "database", ID: "b", Spec: map[string]any{"depends_on": []any{"database/a"}}},
	})
	if err == nil {
		t.Fatal("Expected a cycle error")
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected an EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeCycle {
		t.Errorf("Expected code %s, got %s", ErrCodeCycle, engErr.Code)
	}
}

func TestPlanner_Plan_BestEffortReportsUnordered(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{BestEffortOrdering: true})

	plan, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "a", Spec: map[string]any{"depends_on": []any{"database/b"}}},
		{Type: "database", ID: "b", Spec: map[string]any{"depends_on": []any{"database/a"}}},
		{Type: "database", ID: "clean", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.Unordered) != 2 {
		t.Fatalf("Expected 2 unordered resources, got %v", plan.Unordered)
	}
	for _, key := range plan.Unordered {
		if key.ID != "a" && key.ID != "b" {
			t.Errorf("Expected unordered resources from the cycle, got %s", key)
		}
	}
	if len(plan.Levels) != 1 || plan.Levels[0][0].ID != "clean" {
		t.Errorf("Expected the clean resource in a wave, got %v", plan.Levels)
	}
	if plan.Summary.Unordered != 2 {
		t.Errorf("Expected unordered count 2, got %d", plan.Summary.Unordered)
	}
}

func TestPlanner_Plan_RejectsMissingID(t *testing.T) {
	p := newTestPlanner(&stubSource{}, PlannerOptions{})

	_, err := p.Plan(context.Background(), []Resource{{Type: "database", Spec: map[string]any{}}})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeValidation {
		t.Fatalf("Expected a validation error, got %v", err)
	}
}

func TestPlanner_Plan_RejectsUnknownType(t *testing.T) {
	p := newTestPlanner(&stubSource{}, PlannerOptions{})

	_, err := p.Plan(context.Background(), []Resource{{Type: "warehouse", ID: "x"}})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeUnknownType {
		t.Fatalf("Expected an unknown type error, got %v", err)
	}
}

func TestPlanner_Plan_RejectsDuplicateKey(t *testing.T) {
	p := newTestPlanner(&stubSource{}, PlannerOptions{})

	_, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeDuplicateKey {
		t.Fatalf("Expected a duplicate key error, got %v", err)
	}
}

func TestPlanner_Plan_ListErrorPropagates(t *testing.T) {
	listErr := NewTransientError("listing failed", nil).WithCode(ErrCodeListFailed)
	p := newTestPlanner(&stubSource{err: listErr}, PlannerOptions{})

	_, err := p.Plan(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if !errors.Is(err, listErr) {
		t.Fatalf("Expected the list error to propagate, got %v", err)
	}
}

func TestPlanner_PlanDestroy_ReversesOrder(t *testing.T) {
	source := &stubSource{remote: map[string][]RemoteResource{
		"database": {{ID: "analytics", State: map[string]any{}}},
		"table":    {{ID: "events", State: map[string]any{}}},
	}}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.PlanDestroy(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
		{Type: "table", ID: "events", Spec: map[string]any{"database": "analytics"}},
	})
	if err != nil {
		t.Fatalf("PlanDestroy failed: %v", err)
	}

	if plan.Summary.Delete != 2 {
		t.Fatalf("Expected 2 deletes, got %d", plan.Summary.Delete)
	}
	if len(plan.Levels) != 2 {
		t.Fatalf("Expected 2 waves, got %v", plan.Levels)
	}
	if got := keyStrings(plan.Levels[0]); got[0] != "table/events" {
		t.Errorf("Expected the dependent deleted first, got %v", got)
	}
	if got := keyStrings(plan.Levels[1]); got[0] != "database/analytics" {
		t.Errorf("Expected the dependency deleted last, got %v", got)
	}
}

func TestPlanner_PlanDestroy_SkipsAbsentResources(t *testing.T) {
	source := &stubSource{}
	p := newTestPlanner(source, PlannerOptions{})

	plan, err := p.PlanDestroy(context.Background(), []Resource{
		{Type: "database", ID: "analytics", Spec: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("PlanDestroy failed: %v", err)
	}

	item := plan.ItemFor(ResourceKey{Type: "database", ID: "analytics"})
	if item.Operation != OperationNoop {
		t.Errorf("Expected noop for an absent resource, got %s", item.Operation)
	}
	if plan.HasChanges() {
		t.Error("Expected no changes when nothing exists remotely")
	}
}
