package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marbledata/marble/pkg/depgraph"
	"github.com/marbledata/marble/pkg/telemetry"
	"github.com/marbledata/marble/pkg/transport"
)

// ReconcilerOptions configures plan execution.
type ReconcilerOptions struct {
	// Workers is the transport pool size. Zero uses the pool default.
	Workers int

	// QueueSize bounds the pending batch queue. Zero uses the pool default.
	QueueSize int

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Reconciler executes plans against the platform API. It owns sequencing
// and result accounting; retries, splits, and backoff live in the
// transport.
type Reconciler struct {
	registry *Registry
	client   *transport.Client
	opts     ReconcilerOptions
	logger   *telemetry.Logger
}

// NewReconciler creates a reconciler executing batches through the given
// transport client.
func NewReconciler(registry *Registry, client *transport.Client, opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Reconciler{
		registry: registry,
		client:   client,
		opts:     opts,
		logger:   logger.NewComponentLogger("reconciler"),
	}
}

// methodFor maps operations to HTTP methods on the type's collection
// endpoint.
func methodFor(op Operation) string {
	switch op {
	case OperationCreate:
		return "POST"
	case OperationUpdate:
		return "PUT"
	case OperationDelete:
		return "DELETE"
	default:
		return ""
	}
}

// Apply executes a plan wave by wave. A wave must fully terminate before
// the next one starts, so no resource is ever shipped before its
// dependencies have resolved one way or the other.
//
// Cancelling the context stops new waves from being submitted; batches
// already in flight drain to terminal results. Resources transitively
// depending on a failed resource are skipped, not attempted.
func (r *Reconciler) Apply(ctx context.Context, plan *Plan) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.WithRunID(run.ID)
	ctx, span := r.startRunSpan(ctx, run.ID)

	deps := r.transitiveDeps(plan)
	pool := transport.NewPool(r.client, r.opts.Workers, r.opts.QueueSize)
	stopStats := r.monitorStats(logger)
	defer stopStats()

	failed := make(map[ResourceKey]bool)
	for i, wave := range plan.Levels {
		waveLogger := logger.WithField("wave", i)

		if ctx.Err() != nil {
			for _, key := range wave {
				run.Results = append(run.Results, ItemResult{
					Key:       key,
					Operation: plan.ItemFor(key).Operation,
				})
				run.Summary.Skipped++
			}
			continue
		}

		pending, batches := r.prepareWave(plan, wave, deps, failed, run)

		// Submission must not wait for collection: with a bounded queue and
		// a bounded results channel, submitting a whole wave before reading
		// any result can deadlock against the pool's workers. The refusals
		// channel carries batches the pool would not accept.
		refused := make(chan *transport.Batch, len(batches))
		go func() {
			defer close(refused)
			for _, b := range batches {
				if err := pool.Submit(ctx, b); err != nil {
					refused <- b
				}
			}
		}()
		r.collectWave(pool, plan, pending, failed, run, refused, waveLogger)
	}
	pool.Shutdown()

	run.CompletedAt = time.Now().UTC()
	run.Summary.Total = len(run.Results)
	run.Summary.Unordered = len(plan.Unordered)

	r.record(run, span)
	snap := r.client.Stats().Snapshot()
	logger.Zerolog().Info().
		Int("succeeded", run.Summary.Succeeded).
		Int("failed", run.Summary.Failed).
		Int("missing", run.Summary.Missing).
		Int("skipped", run.Summary.Skipped).
		Int("unordered", run.Summary.Unordered).
		Int64("attempts", snap.Attempts).
		Int64("retries", snap.Retries).
		Dur("avg_latency", snap.AvgLatency).
		Dur("duration", run.Duration()).
		Msg("run complete")
	return run, nil
}

// prepareWave decides which resources of the wave ship, groups them into
// one batch per (type, operation) pair, and returns the set of keys whose
// results are expected back from the pool alongside the batches to submit.
func (r *Reconciler) prepareWave(
	plan *Plan,
	wave []ResourceKey,
	deps map[string]map[string]bool,
	failed map[ResourceKey]bool,
	run *Run,
) (map[string]ResourceKey, []*transport.Batch) {
	type group struct {
		typ string
		op  Operation
	}
	groups := make(map[group][]transport.Item)
	pending := make(map[string]ResourceKey, len(wave))

	for _, key := range wave {
		item := plan.ItemFor(key)
		if r.blockedByFailure(key, deps, failed) {
			run.Results = append(run.Results, ItemResult{Key: key, Operation: item.Operation})
			run.Summary.Skipped++
			continue
		}
		g := group{typ: key.Type, op: item.Operation}
		groups[g] = append(groups[g], transport.Item{
			ID:      key.String(),
			Payload: itemPayload(item),
		})
		pending[key.String()] = key
	}

	keys := make([]group, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ < keys[j].typ
		}
		return keys[i].op < keys[j].op
	})

	batches := make([]*transport.Batch, 0, len(keys))
	for _, g := range keys {
		rt, _ := r.registry.Get(g.typ)
		batches = append(batches, r.client.NewBatch(methodFor(g.op), rt.Endpoint(), groups[g]))
	}
	return pending, batches
}

// collectWave drains the pool's result stream until every pending key of
// the wave has resolved, either to a terminal result or to a submission
// refusal on the refused channel (cancellation arrived while the wave was
// being queued; those items never left and are marked skipped). Results
// for unknown items are logged and dropped.
func (r *Reconciler) collectWave(
	pool *transport.Pool,
	plan *Plan,
	pending map[string]ResourceKey,
	failed map[ResourceKey]bool,
	run *Run,
	refused <-chan *transport.Batch,
	logger *telemetry.Logger,
) {
	for len(pending) > 0 {
		select {
		case res, ok := <-pool.Results():
			if !ok {
				return
			}
			key, expected := pending[res.Item()]
			if !expected {
				logger.Zerolog().Warn().
					Str("item", res.Item()).
					Msg("result for unknown item")
				continue
			}
			delete(pending, res.Item())

			item := plan.ItemFor(key)
			run.Results = append(run.Results, ItemResult{
				Key:       key,
				Operation: item.Operation,
				Result:    res,
			})
			switch res.(type) {
			case transport.Success:
				run.Summary.Succeeded++
			case transport.MissingItem:
				run.Summary.Missing++
				failed[key] = true
			default:
				run.Summary.Failed++
				failed[key] = true
			}
			if r.opts.Metrics != nil {
				r.opts.Metrics.RecordResourceOperation(key.Type, string(item.Operation))
			}
			if !res.OK() {
				logger.Zerolog().Warn().
					Str("resource", key.String()).
					Str("operation", string(item.Operation)).
					Str("outcome", outcomeName(res)).
					Msg("operation failed")
			}

		case b, ok := <-refused:
			if !ok {
				// Receiving from a nil channel blocks, which is exactly
				// what we want once every batch has been submitted.
				refused = nil
				continue
			}
			for _, it := range b.Items {
				key, expected := pending[it.ID]
				if !expected {
					continue
				}
				delete(pending, it.ID)
				run.Results = append(run.Results, ItemResult{
					Key:       key,
					Operation: plan.ItemFor(key).Operation,
				})
				run.Summary.Skipped++
			}
		}
	}
}

// blockedByFailure reports whether any transitive dependency of key has
// already failed.
func (r *Reconciler) blockedByFailure(key ResourceKey, deps map[string]map[string]bool, failed map[ResourceKey]bool) bool {
	set := deps[key.String()]
	for f := range failed {
		if set[f.String()] {
			return true
		}
	}
	return false
}

// transitiveDeps computes, for each actionable resource, the full set of
// resources it transitively depends on within the plan.
func (r *Reconciler) transitiveDeps(plan *Plan) map[string]map[string]bool {
	planned := make(map[ResourceKey]bool)
	for _, wave := range plan.Levels {
		for _, key := range wave {
			planned[key] = true
		}
	}

	direct := make(map[string][]string, len(planned))
	for key := range planned {
		item := plan.ItemFor(key)
		if item == nil || item.Desired == nil {
			direct[key.String()] = nil
			continue
		}
		rt, _ := r.registry.Get(key.Type)
		var ids []string
		for _, dep := range rt.Dependencies(Resource{Type: key.Type, ID: key.ID, Spec: item.Desired}) {
			if planned[dep] {
				ids = append(ids, dep.String())
			}
		}
		direct[key.String()] = ids
	}
	return depgraph.Transitive(direct)
}

// itemPayload renders a plan item as a batch item payload. Deletes carry
// only the identifier.
func itemPayload(item *PlanItem) map[string]any {
	payload := map[string]any{"id": item.Key.ID}
	if item.Operation == OperationDelete {
		return payload
	}
	for k, v := range item.Desired {
		payload[k] = v
	}
	return payload
}

func outcomeName(res transport.Result) string {
	switch res.(type) {
	case transport.Success:
		return "success"
	case transport.FailedResponse:
		return "failed_response"
	case transport.FailedRequest:
		return "failed_request"
	case transport.MissingItem:
		return "missing"
	default:
		return "unknown"
	}
}

func (r *Reconciler) record(run *Run, span trace.Span) {
	if span != nil {
		if run.Failed() {
			span.SetStatus(codes.Error, "run had failures")
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
	if r.opts.Metrics == nil {
		return
	}
	status := "success"
	if run.Failed() {
		status = "failure"
	}
	r.opts.Metrics.RecordRun(status, run.Duration())
	if run.Summary.Unordered > 0 {
		r.opts.Metrics.RecordUnorderedResources(run.Summary.Unordered)
	}
}

// statsLogInterval is how often the in-flight throughput line is emitted.
const statsLogInterval = 10 * time.Second

// monitorStats periodically logs the transport's rolling statistics until
// the returned stop function is called.
func (r *Reconciler) monitorStats(logger *telemetry.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap := r.client.Stats().Snapshot()
				logger.Zerolog().Info().
					Int64("attempts", snap.Attempts).
					Int64("failures", snap.Failures).
					Int64("retries", snap.Retries).
					Dur("avg_latency", snap.AvgLatency).
					Msg("transport throughput")
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// startRunSpan opens the run-level trace span when tracing is configured.
func (r *Reconciler) startRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	if r.opts.Tracer == nil {
		return ctx, nil
	}
	return r.opts.Tracer.StartRunSpan(ctx, runID)
}
