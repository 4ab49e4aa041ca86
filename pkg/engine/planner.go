package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marbledata/marble/pkg/depgraph"
	"github.com/marbledata/marble/pkg/diff"
	"github.com/marbledata/marble/pkg/telemetry"
)

// PlannerOptions configures plan computation.
type PlannerOptions struct {
	// BestEffortOrdering prunes dependency cycles instead of failing the
	// plan. Pruned resources are reported in Plan.Unordered.
	BestEffortOrdering bool

	// Prune plans deletion of remote resources that have no definition.
	// When false, stray remote resources are left alone.
	Prune bool

	Logger *telemetry.Logger
}

// Planner computes plans by comparing declared resources with the observed
// remote state.
type Planner struct {
	registry *Registry
	source   RemoteSource
	opts     PlannerOptions
	logger   *telemetry.Logger
}

// NewPlanner creates a planner over the given registry and remote source.
func NewPlanner(registry *Registry, source RemoteSource, opts PlannerOptions) *Planner {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Planner{
		registry: registry,
		source:   source,
		opts:     opts,
		logger:   logger.NewComponentLogger("planner"),
	}
}

// Plan validates the declared resources, observes remote state for every
// declared type, and produces the ordered set of operations that would
// bring the platform in line with the definitions.
//
// Only types that appear in the definitions are observed. Deletions are
// planned, when pruning is enabled, for remote instances of those types
// that have no matching definition. Types with no definitions at all are
// out of scope and never touched.
func (p *Planner) Plan(ctx context.Context, resources []Resource) (*Plan, error) {
	byType, err := p.groupResources(resources)
	if err != nil {
		return nil, err
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	local := make(map[ResourceKey]Resource, len(resources))
	for _, r := range resources {
		local[r.Key()] = r
	}

	var deletes []PlanItem
	for _, name := range typeNames {
		rt, _ := p.registry.Get(name)

		remote, err := p.source.List(ctx, rt)
		if err != nil {
			return nil, err
		}
		remoteByID := make(map[string]RemoteResource, len(remote))
		for _, obs := range remote {
			remoteByID[obs.ID] = obs
		}

		for _, r := range byType[name] {
			plan.Items = append(plan.Items, p.planResource(rt, r, remoteByID))
		}

		if !p.opts.Prune {
			continue
		}
		declared := make(map[string]bool, len(byType[name]))
		for _, r := range byType[name] {
			declared[r.ID] = true
		}
		ids := make([]string, 0, len(remoteByID))
		for id := range remoteByID {
			if !declared[id] {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			deletes = append(deletes, PlanItem{
				Key:       ResourceKey{Type: name, ID: id},
				Operation: OperationDelete,
				Observed:  remoteByID[id].State,
			})
		}
	}
	plan.Items = append(plan.Items, deletes...)
	plan.index()

	if err := p.order(plan, local); err != nil {
		return nil, err
	}

	for _, item := range plan.Items {
		switch item.Operation {
		case OperationCreate:
			plan.Summary.Create++
		case OperationUpdate:
			plan.Summary.Update++
		case OperationDelete:
			plan.Summary.Delete++
		case OperationNoop:
			plan.Summary.Noop++
		}
	}
	plan.Summary.Unordered = len(plan.Unordered)

	p.logger.Zerolog().Info().
		Str("plan_id", plan.ID).
		Int("create", plan.Summary.Create).
		Int("update", plan.Summary.Update).
		Int("delete", plan.Summary.Delete).
		Int("noop", plan.Summary.Noop).
		Int("unordered", plan.Summary.Unordered).
		Msg("plan computed")
	return plan, nil
}

// PlanDestroy plans the removal of every declared resource that exists
// remotely. Waves run in reverse dependency order so dependents are
// deleted before the resources they reference.
func (p *Planner) PlanDestroy(ctx context.Context, resources []Resource) (*Plan, error) {
	byType, err := p.groupResources(resources)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	local := make(map[ResourceKey]Resource, len(resources))
	for _, r := range resources {
		local[r.Key()] = r
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	exists := make(map[ResourceKey]bool)
	for _, name := range typeNames {
		rt, _ := p.registry.Get(name)
		remote, err := p.source.List(ctx, rt)
		if err != nil {
			return nil, err
		}
		remoteByID := make(map[string]bool, len(remote))
		for _, obs := range remote {
			remoteByID[obs.ID] = true
		}
		for _, r := range byType[name] {
			if remoteByID[r.ID] {
				exists[r.Key()] = true
				plan.Items = append(plan.Items, PlanItem{
					Key:       r.Key(),
					Operation: OperationDelete,
				})
			} else {
				plan.Items = append(plan.Items, PlanItem{
					Key:       r.Key(),
					Operation: OperationNoop,
				})
			}
		}
	}
	plan.index()

	if err := p.order(plan, local); err != nil {
		return nil, err
	}

	// Deletion order is deployment order reversed.
	for i, j := 0, len(plan.Levels)-1; i < j; i, j = i+1, j-1 {
		plan.Levels[i], plan.Levels[j] = plan.Levels[j], plan.Levels[i]
	}

	for _, item := range plan.Items {
		if item.Operation == OperationDelete {
			plan.Summary.Delete++
		} else {
			plan.Summary.Noop++
		}
	}
	plan.Summary.Unordered = len(plan.Unordered)
	return plan, nil
}

// planResource decides the operation for one declared resource.
func (p *Planner) planResource(rt ResourceType, r Resource, remoteByID map[string]RemoteResource) PlanItem {
	obs, exists := remoteByID[r.ID]
	if !exists {
		return PlanItem{Key: r.Key(), Operation: OperationCreate, Desired: r.Spec}
	}

	changes := diff.Diff(r.Spec, obs.State, diff.Options{Identities: rt.Identities()})
	if len(changes) == 0 {
		return PlanItem{Key: r.Key(), Operation: OperationNoop, Desired: r.Spec, Observed: obs.State}
	}
	return PlanItem{
		Key:       r.Key(),
		Operation: OperationUpdate,
		Desired:   r.Spec,
		Observed:  obs.State,
		Changes:   changes,
	}
}

// groupResources validates the definitions and groups them by type.
func (p *Planner) groupResources(resources []Resource) (map[string][]Resource, error) {
	byType := make(map[string][]Resource)
	seen := make(map[ResourceKey]bool, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			return nil, NewPermanentError("resource definition has no id", nil).
				WithCode(ErrCodeValidation).WithResource(r.Type + "/?")
		}
		if _, ok := p.registry.Get(r.Type); !ok {
			return nil, NewPermanentError(
				fmt.Sprintf("unknown resource type %q", r.Type), nil).
				WithCode(ErrCodeUnknownType).WithResource(r.Key().String())
		}
		if seen[r.Key()] {
			return nil, NewPermanentError("duplicate resource definition", nil).
				WithCode(ErrCodeDuplicateKey).WithResource(r.Key().String())
		}
		seen[r.Key()] = true
		byType[r.Type] = append(byType[r.Type], r)
	}
	return byType, nil
}

// order computes the deployment waves over the declared resources. Deletes
// target resources with no definition, so no dependency information exists
// for them; they run in one final wave after everything else.
func (p *Planner) order(plan *Plan, local map[ResourceKey]Resource) error {
	g := depgraph.New()
	for key := range local {
		g.AddNode(key.String())
	}
	for key, r := range local {
		rt, _ := p.registry.Get(key.Type)
		for _, dep := range rt.Dependencies(r) {
			if _, declared := local[dep]; !declared {
				// References to undeclared resources are satisfied, or not,
				// by whatever already exists remotely.
				p.logger.Zerolog().Debug().
					Str("resource", key.String()).
					Str("reference", dep.String()).
					Msg("reference outside declared scope")
				continue
			}
			g.AddEdge(key.String(), dep.String())
		}
	}

	var levels [][]string
	if p.opts.BestEffortOrdering {
		ordered, unorderable := g.OrderBestEffort()
		for _, id := range unorderable {
			key, err := ParseResourceKey(id)
			if err != nil {
				continue
			}
			plan.Unordered = append(plan.Unordered, key)
		}
		pruned := depgraph.New()
		kept := make(map[string]bool, len(ordered))
		for _, id := range ordered {
			pruned.AddNode(id)
			kept[id] = true
		}
		for key, r := range local {
			if !kept[key.String()] {
				continue
			}
			rt, _ := p.registry.Get(key.Type)
			for _, dep := range rt.Dependencies(r) {
				if kept[dep.String()] {
					pruned.AddEdge(key.String(), dep.String())
				}
			}
		}
		levels, _ = pruned.Levels()
	} else {
		var err error
		levels, err = g.Levels()
		if err != nil {
			return NewPermanentError("resource definitions contain a dependency cycle", err).
				WithCode(ErrCodeCycle)
		}
	}

	// Waves carry only actionable operations. Resources already in the
	// desired state terminate trivially and never block dependents.
	placed := make(map[ResourceKey]bool)
	for _, level := range levels {
		var wave []ResourceKey
		for _, id := range level {
			key, err := ParseResourceKey(id)
			if err != nil {
				continue
			}
			item := plan.ItemFor(key)
			if item == nil || item.Operation == OperationNoop {
				continue
			}
			wave = append(wave, key)
			placed[key] = true
		}
		if len(wave) > 0 {
			plan.Levels = append(plan.Levels, wave)
		}
	}

	// Deletes target undeclared remote resources, so they carry no
	// dependency information and run in one final wave.
	var deleteWave []ResourceKey
	for _, item := range plan.Items {
		if item.Operation == OperationDelete && !placed[item.Key] {
			deleteWave = append(deleteWave, item.Key)
		}
	}
	if len(deleteWave) > 0 {
		sort.Slice(deleteWave, func(i, j int) bool {
			return deleteWave[i].String() < deleteWave[j].String()
		})
		plan.Levels = append(plan.Levels, deleteWave)
	}
	return nil
}
