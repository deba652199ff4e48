package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"op-insight/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	UnassignedMemberName = "Unassigned User"
	UnknownMemberName    = "Unknown"
)

// MemberStatistic aggregates one member's work items in a project.
type MemberStatistic struct {
	MemberID          *int64  `json:"memberId"`
	MemberName        string  `json:"memberName"`
	TotalUserStories  int     `json:"totalUserStories"`
	TotalIssues       int     `json:"totalIssues"`
	CompletedTasks    int     `json:"completedTasks"`
	AvgDurationDays   float64 `json:"avgDurationDays"`
	ReworkCount       int     `json:"reworkCount"`
	ProductivityScore float64 `json:"productivityScore"`
}

// MemberTaskDetail describes one work item of a member.
type MemberTaskDetail struct {
	WorkPackageID int64      `json:"workPackageId"`
	Type          string     `json:"type"`
	Subject       string     `json:"subject"`
	Start         *time.Time `json:"start"`
	End           *time.Time `json:"end"`
	DurationDays  *float64   `json:"durationDays"`
	StatusHistory string     `json:"statusHistory"`
	ReworkCount   int        `json:"reworkCount"`
	Notes         string     `json:"notes"`
}

// MemberTaskDetails is the per-item breakdown of one member.
type MemberTaskDetails struct {
	MemberID   int64              `json:"memberId"`
	MemberName string             `json:"memberName"`
	Tasks      []MemberTaskDetail `json:"tasks"`
}

// Service answers statistics queries straight from the store. It keeps no
// state between calls and is safe for concurrent use.
type Service struct {
	store  store.Store
	policy Policy
}

// NewService creates a service that reduces durations with policy.
func NewService(s store.Store, policy Policy) *Service {
	return &Service{store: s, policy: policy}
}

type memberGroup struct {
	id    *int64
	items []store.WorkItem
}

// ProjectStatistics returns one statistic per assignee of the project's
// work items in goalPeriod (empty means all periods). Members are ordered
// by id with the unassigned group last.
func (s *Service) ProjectStatistics(ctx context.Context, projectID int64, goalPeriod string) ([]MemberStatistic, error) {
	items, err := s.store.WorkItems(ctx, store.WorkItemFilter{ProjectID: projectID, GoalPeriod: goalPeriod})
	if err != nil {
		return nil, fmt.Errorf("failed to load work items: %w", err)
	}
	timelines, err := s.store.ActivitiesByWorkItem(ctx, workItemIDs(items))
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}

	groups := groupByAssignee(items)
	var memberIDs []int64
	for _, g := range groups {
		if g.id != nil {
			memberIDs = append(memberIDs, *g.id)
		}
	}
	users, err := s.store.UsersByID(ctx, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	stats := make([]MemberStatistic, 0, len(groups))
	for _, g := range groups {
		st := MemberStatistic{MemberID: g.id, MemberName: UnassignedMemberName}
		if g.id != nil {
			st.MemberName = UnknownMemberName
			if u, ok := users[*g.id]; ok {
				st.MemberName = u.Name
			}
		}

		var durations []float64
		for _, w := range g.items {
			acts := timelines[w.ID]
			switch {
			case strings.EqualFold(w.Type, "User story"):
				st.TotalUserStories++
			case strings.EqualFold(w.Type, "Issue"):
				st.TotalIssues++
			}
			if IsDone(w.Status) {
				st.CompletedTasks++
				if d, ok := Duration(acts, s.policy); ok {
					durations = append(durations, d)
				}
			}
			st.ReworkCount += ReworkCount(acts)
		}

		avg := mean(durations)
		st.AvgDurationDays = round2(avg)
		st.ProductivityScore = Score(st.CompletedTasks, avg, st.ReworkCount)
		stats = append(stats, st)

		log.Debug().
			Int64("project", projectID).
			Str("member", st.MemberName).
			Int("items", len(g.items)).
			Float64("score", st.ProductivityScore).
			Msg("Member statistic computed")
	}
	return stats, nil
}

// MemberTaskDetails lists the member's work items in the project and
// goalPeriod, ordered by work item id. The member name is "Unknown" when the
// user is not stored.
func (s *Service) MemberTaskDetails(ctx context.Context, projectID, memberID int64, goalPeriod string) (*MemberTaskDetails, error) {
	items, err := s.store.WorkItems(ctx, store.WorkItemFilter{
		ProjectID:  projectID,
		AssigneeID: &memberID,
		GoalPeriod: goalPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load work items: %w", err)
	}
	timelines, err := s.store.ActivitiesByWorkItem(ctx, workItemIDs(items))
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	users, err := s.store.UsersByID(ctx, []int64{memberID})
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	out := &MemberTaskDetails{MemberID: memberID, MemberName: UnknownMemberName, Tasks: []MemberTaskDetail{}}
	if u, ok := users[memberID]; ok {
		out.MemberName = u.Name
	}

	for _, w := range items {
		acts := timelines[w.ID]
		start, end := Bounds(acts)
		rework := ReworkCount(acts)

		detail := MemberTaskDetail{
			WorkPackageID: w.ID,
			Type:          w.Type,
			Subject:       w.Subject,
			Start:         start,
			End:           end,
			StatusHistory: StatusHistory(acts),
			ReworkCount:   rework,
			Notes:         "No rework",
		}
		if start != nil && end != nil {
			d := round2(days(end.Sub(*start)))
			detail.DurationDays = &d
		}
		if rework > 0 {
			detail.Notes = fmt.Sprintf("Rework detected (%d loop(s))", rework)
		}
		out.Tasks = append(out.Tasks, detail)
	}
	return out, nil
}

// AvailableGoalPeriods returns the project's distinct goal periods, ascending.
func (s *Service) AvailableGoalPeriods(ctx context.Context, projectID int64) ([]string, error) {
	return s.store.GoalPeriods(ctx, projectID)
}

func (s *Service) Projects(ctx context.Context) ([]store.Project, error) {
	return s.store.Projects(ctx)
}

// Project returns store.ErrNotFound (wrapped) for an unknown id.
func (s *Service) Project(ctx context.Context, id int64) (store.Project, error) {
	return s.store.Project(ctx, id)
}

func (s *Service) DashboardCounts(ctx context.Context) (store.Counts, error) {
	return s.store.Counts(ctx)
}

func groupByAssignee(items []store.WorkItem) []memberGroup {
	byID := make(map[int64]*memberGroup)
	var unassigned *memberGroup
	for _, w := range items {
		if w.AssigneeID == nil {
			if unassigned == nil {
				unassigned = &memberGroup{}
			}
			unassigned.items = append(unassigned.items, w)
			continue
		}
		g, ok := byID[*w.AssigneeID]
		if !ok {
			id := *w.AssigneeID
			g = &memberGroup{id: &id}
			byID[id] = g
		}
		g.items = append(g.items, w)
	}

	groups := make([]memberGroup, 0, len(byID)+1)
	for _, g := range byID {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return *groups[i].id < *groups[j].id })
	if unassigned != nil {
		groups = append(groups, *unassigned)
	}
	return groups
}

func workItemIDs(items []store.WorkItem) []int64 {
	ids := make([]int64, len(items))
	for i, w := range items {
		ids[i] = w.ID
	}
	return ids
}
