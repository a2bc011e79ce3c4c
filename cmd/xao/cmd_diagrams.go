package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xao-fun/xao-go/internal/diagram"
)

var (
	diagramsOut  string
	diagramsOnly []string
	diagramsDOT  bool
)

var diagramsCmd = &cobra.Command{
	Use:   "diagrams",
	Short: "Render the platform flow diagrams to SVG",
	Long: `Render the deployment, event creation, ticket sales, revenue and
arbitration flows to SVG with Graphviz (the dot binary must be on PATH).

Use --dot to print DOT source instead of rendering.`,
	Args: cobra.NoArgs,
	RunE: runDiagrams,
}

func init() {
	diagramsCmd.Flags().StringVar(&diagramsOut, "out", "", "Output directory (default assets.dir)")
	diagramsCmd.Flags().StringSliceVar(&diagramsOnly, "only", nil, "Render only these flows (deployment, event_creation, ticket_sales, revenue, arbitration)")
	diagramsCmd.Flags().BoolVar(&diagramsDOT, "dot", false, "Print DOT source instead of rendering")
}

func selectFlows(names []string) ([]diagram.Flow, error) {
	if len(names) == 0 {
		return diagram.Flows(), nil
	}
	flows := make([]diagram.Flow, 0, len(names))
	for _, name := range names {
		f, ok := diagram.Lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown flow %q", name)
		}
		flows = append(flows, f)
	}
	return flows, nil
}

func runDiagrams(cmd *cobra.Command, _ []string) error {
	flows, err := selectFlows(diagramsOnly)
	if err != nil {
		return err
	}

	if diagramsDOT {
		for _, f := range flows {
			src, err := f.DOT()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), src)
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := diagramsOut
	if dir == "" {
		dir = cfg.Assets.Dir
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	paths, err := diagram.RenderAll(ctx, flows, dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
