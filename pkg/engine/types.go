package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/marbledata/marble/pkg/diff"
	"github.com/marbledata/marble/pkg/transport"
)

// Operation represents the kind of change applied to a single resource.
type Operation string

const (
	// OperationCreate creates a resource that does not exist remotely.
	OperationCreate Operation = "create"

	// OperationUpdate modifies an existing resource whose observed state
	// diverged from its definition.
	OperationUpdate Operation = "update"

	// OperationDelete removes a remote resource with no matching definition.
	OperationDelete Operation = "delete"

	// OperationNoop records a resource whose observed state already matches.
	OperationNoop Operation = "noop"
)

// ResourceKey uniquely identifies a resource instance across all types.
type ResourceKey struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String renders the key in "type/id" form. Keys in this form tag batch
// items on the wire, so IDs from different types never collide.
func (k ResourceKey) String() string {
	return k.Type + "/" + k.ID
}

// ParseResourceKey parses a "type/id" string back into a ResourceKey.
func ParseResourceKey(s string) (ResourceKey, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return ResourceKey{}, fmt.Errorf("invalid resource key %q", s)
	}
	return ResourceKey{Type: typ, ID: id}, nil
}

// Resource is a declared resource instance: a typed identifier plus the
// desired state as a nested document.
type Resource struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Spec map[string]any `json:"spec"`
}

// Key returns the resource's unique key.
func (r Resource) Key() ResourceKey {
	return ResourceKey{Type: r.Type, ID: r.ID}
}

// RemoteResource is one observed resource instance as reported by the
// platform API.
type RemoteResource struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// PlanItem is one planned operation on one resource instance.
type PlanItem struct {
	Key       ResourceKey    `json:"key"`
	Operation Operation      `json:"operation"`
	Desired   map[string]any `json:"desired,omitempty"`
	Observed  map[string]any `json:"observed,omitempty"`
	Changes   []diff.Change  `json:"changes,omitempty"`
}

// PlanSummary aggregates the operations in a plan.
type PlanSummary struct {
	Create    int `json:"create"`
	Update    int `json:"update"`
	Delete    int `json:"delete"`
	Noop      int `json:"noop"`
	Unordered int `json:"unordered"`
}

// Plan is an ordered set of operations produced by comparing declared
// resources against observed remote state.
type Plan struct {
	// ID is a unique identifier for this plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Items holds every planned operation, keyed lookup via ItemFor.
	Items []PlanItem `json:"items"`

	// Levels are the deployment waves. Every resource in level n depends
	// only on resources in levels < n. A wave must fully terminate before
	// the next wave starts.
	Levels [][]ResourceKey `json:"levels"`

	// Unordered lists resources excluded from Levels because they sit on
	// or downstream of a dependency cycle. They are reported, not applied.
	Unordered []ResourceKey `json:"unordered,omitempty"`

	// Summary aggregates the plan by operation.
	Summary PlanSummary `json:"summary"`

	items map[ResourceKey]*PlanItem
}

// ItemFor returns the planned operation for a resource key, or nil.
func (p *Plan) ItemFor(key ResourceKey) *PlanItem {
	return p.items[key]
}

// HasChanges reports whether the plan contains any non-noop operation.
func (p *Plan) HasChanges() bool {
	return p.Summary.Create > 0 || p.Summary.Update > 0 || p.Summary.Delete > 0
}

func (p *Plan) index() {
	p.items = make(map[ResourceKey]*PlanItem, len(p.Items))
	for i := range p.Items {
		p.items[p.Items[i].Key] = &p.Items[i]
	}
}

// ItemResult is the terminal outcome of one planned operation.
type ItemResult struct {
	Key       ResourceKey      `json:"key"`
	Operation Operation        `json:"operation"`
	Result    transport.Result `json:"-"`
}

// RunSummary aggregates the outcomes of an apply run.
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Missing   int `json:"missing"`
	Skipped   int `json:"skipped"`
	Unordered int `json:"unordered"`
}

// Run records the execution of a plan.
type Run struct {
	// ID is a unique identifier for this run.
	ID string `json:"id"`

	// PlanID is the plan this run executed.
	PlanID string `json:"plan_id"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Results holds the terminal outcome of every attempted operation.
	Results []ItemResult `json:"results"`

	// Summary aggregates the run.
	Summary RunSummary `json:"summary"`
}

// Duration returns the wall-clock time the run took.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Failed reports whether any operation failed or the run was cut short.
func (r *Run) Failed() bool {
	return r.Summary.Failed > 0 || r.Summary.Skipped > 0
}
