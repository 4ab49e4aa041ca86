package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/marbledata/marble/pkg/engine"
	"github.com/marbledata/marble/pkg/manifest"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce time.Duration
		apply    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch manifests and replan on every change",
		Long: `Watch the manifest path and recompute the plan after each change.

By default only the plan is printed. With --apply each change is deployed
immediately, which is meant for development environments, not production.`,
		Example: `  # Replan on change
  marble watch

  # Continuously deploy a development environment
  marble watch --apply`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Root().Version)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			out := cmd.OutOrStdout()
			sync := func(ctx context.Context) {
				resources, err := rt.loadManifests()
				if err != nil {
					rt.logger.WithError(err).Error("loading manifests failed")
					return
				}
				plan, err := rt.planner.Plan(ctx, resources)
				if err != nil {
					// Throttling or a conflicting concurrent change resolves
					// itself; the next change triggers a fresh plan. A
					// permanent failure needs the operator.
					if engine.IsRetryable(err) {
						rt.logger.WithError(err).Warn("planning failed, retrying on next change")
					} else {
						rt.logger.WithError(err).Error("planning failed")
					}
					return
				}
				renderPlan(out, plan)
				if !apply || !plan.HasChanges() {
					return
				}
				run, err := rt.reconciler.Apply(ctx, plan)
				if err != nil {
					rt.logger.WithError(err).Error("apply failed")
					return
				}
				renderRun(out, run)
			}

			// One pass up front so the current state is visible immediately.
			sync(cmd.Context())

			err = manifest.Watch(cmd.Context(), manifestPath, debounce, rt.logger, sync)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", manifest.DefaultDebounce, "quiet period before replanning")
	cmd.Flags().BoolVar(&apply, "apply", false, "deploy after each change instead of planning only")
	return cmd
}
