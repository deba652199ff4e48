package mcp

import (
	"context"
	"errors"
	"fmt"
)

func (s *Server) handleListProjects(ctx context.Context, _ NoInput) (any, error) {
	return s.svc.Projects(ctx)
}

func (s *Server) handleDashboardCounts(ctx context.Context, _ NoInput) (any, error) {
	return s.svc.DashboardCounts(ctx)
}

func (s *Server) handleProjectStatistics(ctx context.Context, in ProjectStatisticsInput) (any, error) {
	stats, err := s.svc.ProjectStatistics(ctx, in.ProjectID, in.GoalPeriod)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"project_id":  in.ProjectID,
		"goal_period": in.GoalPeriod,
		"members":     stats,
	}, nil
}

func (s *Server) handleMemberTaskDetails(ctx context.Context, in MemberTaskDetailsInput) (any, error) {
	if in.MemberID <= 0 {
		return nil, fmt.Errorf("member_id must be a positive user id, got %d", in.MemberID)
	}
	return s.svc.MemberTaskDetails(ctx, in.ProjectID, in.MemberID, in.GoalPeriod)
}

func (s *Server) handleGoalPeriods(ctx context.Context, in ProjectInput) (any, error) {
	return s.svc.AvailableGoalPeriods(ctx, in.ProjectID)
}

func (s *Server) handleRunImport(ctx context.Context, in RunImportInput) (any, error) {
	file := in.File
	if file == "" {
		file = s.syncFile
	}
	if file == "" {
		return nil, errors.New("no export file given and SYNC_FILE is not configured")
	}
	return s.pipeline.ImportLocked(ctx, file)
}
