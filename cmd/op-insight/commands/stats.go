package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	statsProject    int64
	statsMember     int64
	statsGoalPeriod string
	statsPeriods    bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print project statistics as JSON",
	Long: `Prints per-member statistics for a project. With --member, prints that member's
task breakdown instead. With --periods, lists the project's goal periods.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsProject <= 0 {
			return errors.New("--project must be a positive project id")
		}
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		switch {
		case statsPeriods:
			periods, err := a.svc.AvailableGoalPeriods(ctx, statsProject)
			if err != nil {
				return err
			}
			return printJSON(periods)
		case cmd.Flags().Changed("member"):
			if statsMember <= 0 {
				return errors.New("--member must be a positive user id")
			}
			details, err := a.svc.MemberTaskDetails(ctx, statsProject, statsMember, statsGoalPeriod)
			if err != nil {
				return err
			}
			return printJSON(details)
		default:
			stats, err := a.svc.ProjectStatistics(ctx, statsProject, statsGoalPeriod)
			if err != nil {
				return err
			}
			return printJSON(stats)
		}
	},
}

func init() {
	statsCmd.Flags().Int64Var(&statsProject, "project", 0, "project id (required)")
	statsCmd.Flags().Int64Var(&statsMember, "member", 0, "member id for a per-task breakdown")
	statsCmd.Flags().StringVar(&statsGoalPeriod, "goal-period", "", "restrict to one goal period")
	statsCmd.Flags().BoolVar(&statsPeriods, "periods", false, "list the project's goal periods")
	_ = statsCmd.MarkFlagRequired("project")
}
