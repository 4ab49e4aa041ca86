package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marbledata/marble/pkg/depgraph"
	"github.com/marbledata/marble/pkg/engine"
	"github.com/marbledata/marble/pkg/manifest"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate manifests without contacting the platform",
		Long: `Validate resource manifests offline.

Checks that every definition has a known type and a unique identifier,
and that the declared dependencies form no cycle. References to resources
outside the manifests are not checked; they resolve against the platform
at plan time.`,
		Example: `  # Validate the default manifest directory
  marble validate

  # Validate a single file
  marble validate -m resources.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := manifest.NewLoader().Load(manifestPath)
			if err != nil {
				return err
			}

			registry := engine.DefaultRegistry()
			local := make(map[engine.ResourceKey]bool, len(resources))
			for _, r := range resources {
				if _, ok := registry.Get(r.Type); !ok {
					return fmt.Errorf("resource %s/%s: unknown type %q", r.Type, r.ID, r.Type)
				}
				local[r.Key()] = true
			}

			g := depgraph.New()
			for _, r := range resources {
				g.AddNode(r.Key().String())
			}
			for _, r := range resources {
				rt, _ := registry.Get(r.Type)
				for _, dep := range rt.Dependencies(r) {
					if local[dep] {
						g.AddEdge(r.Key().String(), dep.String())
					}
				}
			}
			if _, err := g.Order(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d resources valid\n", len(resources))
			return nil
		},
	}
	return cmd
}
