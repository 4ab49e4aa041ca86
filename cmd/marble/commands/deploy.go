package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeployCommand(version string) *cobra.Command {
	var (
		dryRun  bool
		autoYes bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy manifests to the platform",
		Long: `Deploy resource manifests: plan the changes and apply them.

Operations are grouped into batches and shipped wave by wave; a wave only
starts once every resource it depends on has terminally resolved. Partial
batch failures are isolated by splitting, so one bad resource never blocks
its siblings. Interrupting a deploy stops new work; in-flight batches
drain to a terminal result before exit.`,
		Example: `  # Deploy after confirming the plan
  marble deploy

  # Deploy without confirmation
  marble deploy --yes

  # Plan only, identical to 'marble plan'
  marble deploy --dry-run`,
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

			plan, err := rt.planner.Plan(cmd.Context(), resources)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderPlan(out, plan)
			if !plan.HasChanges() {
				fmt.Fprintln(out, "Nothing to deploy.")
				return nil
			}
			if dryRun {
				return nil
			}
			if !autoYes && !confirm(cmd, "Deploy these changes?") {
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
				return fmt.Errorf("deploy finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only, apply nothing")
	cmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// confirm asks for interactive approval on stdin.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	var answer string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}
