package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/divyanshwrite/worldflow/internal/di"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"

	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Load a workspace and print its graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Workspace == "" {
				return errors.New("a workspace is required (--workspace or WORKSPACE_ID)")
			}

			c, cleanup, err := di.InitializeContainer(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer cleanup()

			sess, err := c.Sessions.Open(cmd.Context(), graph.WorkspaceID(cfg.Workspace))
			if err != nil {
				return err
			}
			defer sess.Close()

			snap := c.Store.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(cmd.OutOrStdout(), sess.Workspace(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func printSnapshot(w io.Writer, ws graph.Workspace, snap graph.Snapshot) {
	nodes, edges := snap.Len()
	name := ws.Name
	if name == "" {
		name = string(ws.ID)
	}
	fmt.Fprintf(w, "%s: %d nodes, %d edges (%d renderable)\n", name, nodes, edges, len(snap.Renderable()))
	for _, n := range snap.Nodes {
		fmt.Fprintf(w, "  node %s  %q  (%g, %g, %g)\n", n.ID, n.Data.Label, n.Position.X, n.Position.Y, n.Position.Z)
	}
	for _, e := range snap.Edges {
		fmt.Fprintf(w, "  edge %s  %s -> %s  [%s]\n", e.ID, e.SourceNodeID, e.TargetNodeID, e.Data.Kind)
	}
}
