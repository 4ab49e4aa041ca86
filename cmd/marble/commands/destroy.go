package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDestroyCommand(version string) *cobra.Command {
	var autoYes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every resource declared in the manifests",
		Long: `Delete the declared resources from the platform.

Deletion runs in reverse dependency order: dependents go first, the
resources they reference last. Resources that do not exist remotely are
skipped.`,
		Example: `  # Destroy after confirming
  marble destroy

  # Destroy without confirmation
  marble destroy --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(version)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			resources, err := rt.loadManifests()
			if err != nil {
				return err
			}

			plan, err := rt.planner.PlanDestroy(cmd.Context(), resources)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderPlan(out, plan)
			if !plan.HasChanges() {
				fmt.Fprintln(out, "Nothing to destroy.")
				return nil
			}
			if !autoYes && !confirm(cmd, "Destroy these resources?") {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			run, err := rt.reconciler.Apply(cmd.Context(), plan)
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := renderJSON(out, run); err != nil {
					return err
				}
			} else {
				renderRun(out, run)
			}
			if run.Failed() {
				return fmt.Errorf("destroy finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
