package main

import (
	"github.com/spf13/cobra"

	mcpTransport "github.com/kailas-cloud/vaultctx/internal/transport/mcp"
	"github.com/kailas-cloud/vaultctx/internal/version"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server on stdio exposing the vault tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("Starting MCP server on stdio")
			return mcpTransport.ServeStdio(mcpTransport.NewServer(a.tools, version.Version, a.logger))
		},
	}
}
