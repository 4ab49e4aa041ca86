package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the operations a deploy would perform",
		Long: `Compute a plan by comparing manifests with the platform's observed state.

The plan lists every create, update, and delete in deployment order, with
the field-level changes behind each update. Nothing is modified.`,
		Example: `  # Show the plan
  marble plan

  # Save the plan as JSON
  marble plan --json -o plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Root().Version)
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
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if jsonOutput {
				return renderJSON(out, plan)
			}
			renderPlan(out, plan)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan to a file instead of stdout")
	return cmd
}
