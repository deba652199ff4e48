package commands

import (
	"op-insight/internal/mcp"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		return mcp.NewServer(a.svc, a.pipeline, cfg.SyncFile).Serve(cmd.Context())
	},
}
