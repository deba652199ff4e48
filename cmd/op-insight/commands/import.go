package commands

import (
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a work package export and its status history",
	Long: `Reads a work package export (a JSON array or a single object), stores its projects,
users and work packages, then fetches every package's activity history from OpenProject.
The file defaults to SYNC_FILE. The import report is printed as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := cfg.SyncFile
		if len(args) == 1 {
			file = args[0]
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		rep, err := a.pipeline.ImportLocked(cmd.Context(), file)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}
