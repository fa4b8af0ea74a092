package main

import (
	"github.com/divyanshwrite/worldflow/internal/config"
	"github.com/divyanshwrite/worldflow/internal/di"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	workspace  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "worldflow",
		Short: "Keep a local graph in step with a shared workspace",
		Long: `worldflow loads a workspace's nodes and edges from the backend, follows
the change feed, and serves the reconciled graph to a renderer over HTTP
and websocket.`,
		Version:       di.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (default $WORLDFLOW_CONFIG)")
	cmd.PersistentFlags().StringVarP(&opts.workspace, "workspace", "w", "", "workspace to open (overrides the config file)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSnapshotCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and applies the flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.workspace != "" {
		cfg.Workspace = o.workspace
	}
	return cfg, nil
}
