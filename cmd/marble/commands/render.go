package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/marbledata/marble/pkg/engine"
	"github.com/marbledata/marble/pkg/transport"
)

const runDurationUnit = 10 * time.Millisecond

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var opSigils = map[engine.Operation]string{
	engine.OperationCreate: "+",
	engine.OperationUpdate: "~",
	engine.OperationDelete: "-",
}

// renderPlan writes a human-readable plan listing in wave order.
func renderPlan(w io.Writer, plan *engine.Plan) {
	fmt.Fprintf(w, "Plan: %d to create, %d to update, %d to delete, %d unchanged\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete, plan.Summary.Noop)

	for i, wave := range plan.Levels {
		fmt.Fprintf(w, "\nWave %d:\n", i+1)
		for _, key := range wave {
			item := plan.ItemFor(key)
			fmt.Fprintf(w, "  %s %s\n", opSigils[item.Operation], key)
			for _, change := range item.Changes {
				fmt.Fprintf(w, "      %s: %s -> %s\n",
					change.Path, renderValue(change.Before), renderValue(change.After))
			}
		}
	}

	if len(plan.Unordered) > 0 {
		fmt.Fprintf(w, "\nNot ordered (dependency cycle):\n")
		for _, key := range plan.Unordered {
			fmt.Fprintf(w, "  ! %s\n", key)
		}
	}
}

func renderValue(v any) string {
	if v == nil {
		return "(absent)"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// renderRun writes a human-readable run summary, failures first.
func renderRun(w io.Writer, run *engine.Run) {
	for _, res := range run.Results {
		if res.Result == nil || res.Result.OK() {
			continue
		}
		fmt.Fprintf(w, "  failed: %s %s: %s\n",
			res.Operation, res.Key, failureReason(res.Result))
	}
	fmt.Fprintf(w, "Run %s: %d succeeded, %d failed, %d missing, %d skipped (%s)\n",
		run.ID, run.Summary.Succeeded, run.Summary.Failed,
		run.Summary.Missing, run.Summary.Skipped, run.Duration().Round(runDurationUnit))
}

func failureReason(res transport.Result) string {
	switch r := res.(type) {
	case transport.FailedResponse:
		return r.Error()
	case transport.FailedRequest:
		return r.Error()
	case transport.MissingItem:
		return fmt.Sprintf("no result echoed (status %d)", r.StatusCode)
	default:
		return "unknown failure"
	}
}
