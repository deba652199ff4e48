package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type NoInput struct{}

type ProjectInput struct {
	ProjectID int64 `json:"project_id" jsonschema:"The OpenProject project id"`
}

type ProjectStatisticsInput struct {
	ProjectID  int64  `json:"project_id" jsonschema:"The OpenProject project id"`
	GoalPeriod string `json:"goal_period,omitempty" jsonschema:"Optional goal period tag (e.g. 2025-H1). Empty means all periods."`
}

type MemberTaskDetailsInput struct {
	ProjectID  int64  `json:"project_id" jsonschema:"The OpenProject project id"`
	MemberID   int64  `json:"member_id" jsonschema:"The assignee's OpenProject user id"`
	GoalPeriod string `json:"goal_period,omitempty" jsonschema:"Optional goal period tag. Empty means all periods."`
}

type RunImportInput struct {
	File string `json:"file,omitempty" jsonschema:"Optional path of a work package export. Defaults to the configured SYNC_FILE."`
}

// inputSchema derives the tool input schema from the Go type.
func inputSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	return schema
}

func (s *Server) registerTools(server *sdk.Server) {
	sdk.AddTool(server, &sdk.Tool{
		Name:        "list_projects",
		Description: "List every imported OpenProject project with its id and name. Use the id with the statistics tools.",
		InputSchema: inputSchema[NoInput](),
	}, textTool("list_projects", s.handleListProjects))

	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_dashboard_counts",
		Description: "Return the number of imported users, projects, work packages and status-change activities.",
		InputSchema: inputSchema[NoInput](),
	}, textTool("get_dashboard_counts", s.handleDashboardCounts))

	sdk.AddTool(server, &sdk.Tool{
		Name: "get_project_statistics",
		Description: "Per-member productivity statistics for a project: user story and issue counts, completed tasks, " +
			"average In Progress to Done duration in days, rework loops and a productivity score between 0 and 100. " +
			"Call 'get_available_goal_periods' first to pick a goal period.",
		InputSchema: inputSchema[ProjectStatisticsInput](),
	}, textTool("get_project_statistics", s.handleProjectStatistics))

	sdk.AddTool(server, &sdk.Tool{
		Name: "get_member_task_details",
		Description: "Per-task breakdown for one member of a project: start and end of work, duration in days, " +
			"the full status history and detected rework loops.",
		InputSchema: inputSchema[MemberTaskDetailsInput](),
	}, textTool("get_member_task_details", s.handleMemberTaskDetails))

	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_available_goal_periods",
		Description: "List the distinct goal periods used by a project's work packages, sorted ascending.",
		InputSchema: inputSchema[ProjectInput](),
	}, textTool("get_available_goal_periods", s.handleGoalPeriods))

	sdk.AddTool(server, &sdk.Tool{
		Name: "run_import",
		Description: "Import a work package export and fetch each package's status history from OpenProject. " +
			"Returns the import report. Fails if another import is running.",
		InputSchema: inputSchema[RunImportInput](),
	}, textTool("run_import", s.handleRunImport))
}
