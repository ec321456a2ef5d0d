package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/config"
	"github.com/dd0wney/echoaid/pkg/routing"
)

const defaultBuilding = "data/science-hall.yaml"

// loadGraph reads a local or s3:// dataset. S3 access uses the default
// AWS credential chain.
func loadGraph(ctx context.Context, source, region string) (*building.Graph, error) {
	loader := &building.Loader{}
	if strings.HasPrefix(source, "s3://") {
		fetcher, err := building.NewS3Fetcher(ctx, building.S3Options{Region: region})
		if err != nil {
			return nil, err
		}
		loader.Fetcher = fetcher
	}
	return loader.Load(ctx, source)
}

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		region     string
		strict     bool
		top        int
	)
	cmd := &cobra.Command{
		Use:   "validate <dataset>",
		Short: "Check a building dataset and optionally a server config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if configPath != "" {
				if _, err := config.Load(configPath, ""); err != nil {
					return err
				}
				fmt.Fprintf(out, "Config %s: OK\n", configPath)
			}

			g, err := loadGraph(cmd.Context(), args[0], region)
			if err != nil {
				return err
			}
			unreachable := algorithms.Unreachable(g, nil)
			printSummary(out, g, unreachable)
			printChokePoints(out, algorithms.ChokePoints(g, nil, top))
			if strict && len(unreachable) > 0 {
				return fmt.Errorf("%d nodes cannot reach an exit", len(unreachable))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "also validate this server config file")
	cmd.Flags().StringVar(&region, "s3-region", "", "AWS region for s3:// datasets")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any node cannot reach an exit")
	cmd.Flags().IntVar(&top, "choke-points", 3, "number of busiest evacuation edges to list")
	return cmd
}

func printSummary(out io.Writer, g *building.Graph, unreachable []building.NodeID) {
	exits := make([]string, 0, len(g.Exits()))
	for _, id := range g.Exits() {
		exits = append(exits, string(id))
	}
	fmt.Fprintf(out, "Building: %s\n", g.Name())
	fmt.Fprintf(out, "  nodes: %d, edges: %d, rooms: %d, walls: %d\n", g.NodeCount(), g.EdgeCount(), len(g.Rooms()), len(g.Walls()))
	fmt.Fprintf(out, "  exits: %s\n", strings.Join(exits, ", "))
	if len(unreachable) == 0 {
		fmt.Fprintln(out, "  every node reaches an exit")
		return
	}
	ids := make([]string, 0, len(unreachable))
	for _, id := range unreachable {
		ids = append(ids, string(id))
	}
	fmt.Fprintf(out, "  WARNING: no exit reachable from %s\n", strings.Join(ids, ", "))
}

func printChokePoints(out io.Writer, top []algorithms.RankedEdge) {
	if len(top) == 0 {
		return
	}
	fmt.Fprintln(out, "  choke points:")
	for _, e := range top {
		line := fmt.Sprintf("    %-12s %3.0f%% of rooms", e.Edge, e.Score*100)
		if e.Bridge {
			line += ", only way out"
		}
		fmt.Fprintln(out, line)
	}
}

type routeOutput struct {
	From       building.NodeID   `json:"from"`
	Mode       routing.Mode      `json:"mode"`
	Route      routing.Route     `json:"route"`
	Directions []algorithms.Step `json:"directions"`
}

func newRouteCmd() *cobra.Command {
	var (
		source string
		region string
		from   string
		mode   string
		blocks []string
		weight float64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Preview the evacuation route from a node",
		Example: `  echoaid route --from r105
  echoaid route --from r105 --block h5-h6 --mode local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := routing.Mode(mode)
			if m != routing.ModeGlobal && m != routing.ModeLocal {
				return fmt.Errorf("mode must be %s or %s, got %q", routing.ModeGlobal, routing.ModeLocal, mode)
			}
			g, err := loadGraph(cmd.Context(), source, region)
			if err != nil {
				return err
			}
			start := building.NodeID(from)
			if !g.HasNode(start) {
				return fmt.Errorf("%w: %q", routing.ErrUnknownNode, from)
			}

			coord := routing.NewCoordinator(g, routing.Config{CongestionWeight: weight})
			for _, b := range blocks {
				edge, err := building.ParseEdgeKey(b)
				if err != nil {
					return err
				}
				if _, err := coord.AddBlockade(edge, "cli"); err != nil {
					return fmt.Errorf("block %s: %w", b, err)
				}
			}

			var (
				route routing.Route
				ok    bool
			)
			if m == routing.ModeGlobal {
				route, ok = coord.RouteGlobal(start, "cli")
			} else {
				route, ok = coord.RouteLocal(start)
			}
			if !ok {
				return fmt.Errorf("no exit is reachable from %s", from)
			}

			steps := algorithms.Directions(g, route.Path)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(routeOutput{From: start, Mode: m, Route: route, Directions: steps})
			}

			exit, _ := g.Node(route.Exit)
			fmt.Fprintf(out, "Route from %s to %s (%s mode)\n", from, exit.DisplayName(), m)
			fmt.Fprintf(out, "  distance: %.1f\n", route.Distance)
			for i, s := range steps {
				fmt.Fprintf(out, "  %2d. %s\n", i+1, s.Instruction)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "building", "b", defaultBuilding, "building dataset path or s3://bucket/key")
	cmd.Flags().StringVar(&region, "s3-region", "", "AWS region for s3:// datasets")
	cmd.Flags().StringVar(&from, "from", "", "start node id")
	cmd.Flags().StringVar(&mode, "mode", string(routing.ModeGlobal), "routing mode: global or local")
	cmd.Flags().StringSliceVar(&blocks, "block", nil, "blocked edge, e.g. h5-h6 (repeatable)")
	cmd.Flags().Float64Var(&weight, "congestion-weight", 0, "congestion weight; 0 selects the default")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newCellsCmd() *cobra.Command {
	var (
		cellSize  float64
		width     float64
		height    float64
		direction string
		list      bool
	)
	cmd := &cobra.Command{
		Use:   "cells [id]",
		Short: "Describe the cell grid or one cell",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := cells.NewGrid(cellSize, width, height)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				all := grid.AllCells()
				fmt.Fprintf(out, "Grid: %d x %d cells of %g units (%d total)\n", grid.Columns(), grid.Rows(), grid.CellSize, len(all))
				if list {
					for _, id := range all {
						fmt.Fprintln(out, id)
					}
				}
				return nil
			}

			c, err := grid.Parse(args[0])
			if err != nil {
				return err
			}
			dir, err := cells.ParseDirection(direction)
			if err != nil {
				return err
			}
			neighbors, err := grid.Neighbors(c.ID, dir)
			if err != nil {
				return err
			}
			center := c.Bound.Center()
			fmt.Fprintf(out, "%s\n", c.ID)
			fmt.Fprintf(out, "  bounds: (%g, %g) - (%g, %g)\n", c.Bound.Min.X(), c.Bound.Min.Y(), c.Bound.Max.X(), c.Bound.Max.Y())
			fmt.Fprintf(out, "  center: (%g, %g)\n", center.X(), center.Y())
			fmt.Fprintf(out, "  neighbors: %s\n", strings.Join(neighbors, ", "))
			return nil
		},
	}
	cmd.Flags().Float64Var(&cellSize, "cell-size", cells.DefaultCellSize, "cell edge length")
	cmd.Flags().Float64Var(&width, "width", cells.DefaultWidth, "floor plan width")
	cmd.Flags().Float64Var(&height, "height", cells.DefaultHeight, "floor plan height")
	cmd.Flags().StringVar(&direction, "direction", "", "only the neighbor in this direction (north, southeast...)")
	cmd.Flags().BoolVar(&list, "list", false, "list every cell id")
	return cmd
}
