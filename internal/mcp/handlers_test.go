package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"op-insight/internal/analytics"
	"op-insight/internal/etl"
	"op-insight/internal/openproject"
	"op-insight/internal/store"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type emptyHistory struct{}

func (emptyHistory) WorkPackageActivities(context.Context, int64) (*openproject.ActivityCollection, error) {
	return &openproject.ActivityCollection{}, nil
}

func ptr[T any](v T) *T { return &v }

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore("")

	if err := s.InsertProjects(ctx, []store.Project{{ID: 1, Name: "Storefront"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertUsers(ctx, []store.User{{ID: 42, Name: "Dana"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertWorkItems(ctx, nil, []store.WorkItem{
		{ID: 10, ProjectID: 1, AssigneeID: ptr(int64(42)), Type: "User story", Status: "Done", GoalPeriod: ptr("2025-H1")},
		{ID: 11, ProjectID: 1, Type: "Issue", Status: "New", GoalPeriod: ptr("2024-H2")},
	}); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.InsertActivities(ctx, []store.Activity{
		{WorkItemID: 10, ToStatus: ptr("In Progress"), Timestamp: base},
		{WorkItemID: 10, ToStatus: ptr("Done"), Timestamp: base.Add(72 * time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}

	svc := analytics.NewService(s, analytics.PolicyFirst)
	return NewServer(svc, etl.NewPipeline(s, emptyHistory{}), ""), s
}

func TestHandleProjectStatistics(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := srv.handleProjectStatistics(context.Background(), ProjectStatisticsInput{ProjectID: 1, GoalPeriod: "2025-H1"})
	if err != nil {
		t.Fatal(err)
	}
	members := res.(map[string]any)["members"].([]analytics.MemberStatistic)
	if len(members) != 1 || members[0].MemberName != "Dana" || members[0].AvgDurationDays != 3 {
		t.Errorf("unexpected members: %+v", members)
	}
}

func TestHandleMemberTaskDetails_RejectsInvalidMember(t *testing.T) {
	srv, _ := newTestServer(t)

	if _, err := srv.handleMemberTaskDetails(context.Background(), MemberTaskDetailsInput{ProjectID: 1, MemberID: 0}); err == nil {
		t.Error("expected an error for member_id 0")
	}
}

func TestHandleRunImport(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	if _, err := srv.handleRunImport(ctx, RunImportInput{}); err == nil {
		t.Error("expected an error without a file and without SYNC_FILE")
	}

	path := filepath.Join(t.TempDir(), "export.json")
	doc := `{"id": 12, "_links": {"project": {"href": "/api/v3/projects/1", "title": "Storefront"}}}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := srv.handleRunImport(ctx, RunImportInput{File: path})
	if err != nil {
		t.Fatalf("run_import failed: %v", err)
	}
	if rep := res.(*etl.Report); rep.ItemsInserted != 1 {
		t.Errorf("ItemsInserted = %d, want 1", rep.ItemsInserted)
	}

	_, _ = s.TryLock(ctx)
	if _, err := srv.handleRunImport(ctx, RunImportInput{File: path}); !errors.Is(err, etl.ErrImportRunning) {
		t.Errorf("expected ErrImportRunning while locked, got %v", err)
	}
}

func TestInputSchemas(t *testing.T) {
	schema, err := jsonschema.For[MemberTaskDetailsInput](nil)
	if err != nil {
		t.Fatal(err)
	}
	required := strings.Join(schema.Required, ",")
	if !strings.Contains(required, "project_id") || !strings.Contains(required, "member_id") {
		t.Errorf("project_id and member_id must be required, got %v", schema.Required)
	}
	if strings.Contains(required, "goal_period") {
		t.Errorf("goal_period must be optional, got %v", schema.Required)
	}
	if schema.Properties["member_id"].Description == "" {
		t.Error("expected a description on member_id")
	}
}

func TestServer_ToolsOverSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	serverSession, err := srv.build().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer serverSession.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools.Tools) != 6 {
		t.Errorf("expected 6 tools, got %d", len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      "get_available_goal_periods",
		Arguments: map[string]any{"project_id": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	var periods []string
	if err := json.Unmarshal([]byte(res.Content[0].(*sdk.TextContent).Text), &periods); err != nil {
		t.Fatal(err)
	}
	if len(periods) != 2 || periods[0] != "2024-H2" || periods[1] != "2025-H1" {
		t.Errorf("periods = %v", periods)
	}

	res, err = session.CallTool(ctx, &sdk.CallToolParams{
		Name:      "get_member_task_details",
		Arguments: map[string]any{"project_id": 1, "member_id": -1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("an invalid member id should produce a tool error")
	}
}
