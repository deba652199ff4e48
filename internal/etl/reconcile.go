package etl

import (
	"fmt"

	"op-insight/internal/openproject"
	"op-insight/internal/store"
)

// Plan is the outcome of reconciling one export against the store. Nothing
// in it has been written yet.
type Plan struct {
	// MissingProjects and MissingUsers hold entities referenced by the
	// export but not stored, in first-seen order.
	MissingProjects []store.Project
	MissingUsers    []store.User
	// Items holds one work item per external id, in first-seen order. A
	// later record with the same id replaces the earlier field values.
	Items []store.WorkItem
}

// Reconcile diffs the extracted records against the known project and user
// ids. The first title seen for an id wins. Duplicate work package ids keep
// the last record's values.
func Reconcile(records []openproject.Record, knownProjects, knownUsers map[int64]bool) Plan {
	var plan Plan
	stagedProjects := make(map[int64]bool)
	stagedUsers := make(map[int64]bool)
	itemIndex := make(map[int64]int)

	for _, rec := range records {
		if !knownProjects[rec.ProjectID] && !stagedProjects[rec.ProjectID] {
			stagedProjects[rec.ProjectID] = true
			plan.MissingProjects = append(plan.MissingProjects, store.Project{ID: rec.ProjectID, Name: rec.ProjectTitle})
		}

		if rec.AssigneeID != nil {
			id := *rec.AssigneeID
			if !knownUsers[id] && !stagedUsers[id] {
				stagedUsers[id] = true
				name := fmt.Sprintf("User %d", id)
				if rec.AssigneeName != nil {
					name = *rec.AssigneeName
				}
				plan.MissingUsers = append(plan.MissingUsers, store.User{ID: id, Name: name})
			}
		}

		item := toWorkItem(rec)
		if i, ok := itemIndex[rec.ID]; ok {
			plan.Items[i] = item
			continue
		}
		itemIndex[rec.ID] = len(plan.Items)
		plan.Items = append(plan.Items, item)
	}
	return plan
}

// KnownUsers merges the staged users into known, returning the lookup used
// to attach activity actors. known is not modified.
func (p Plan) KnownUsers(known map[int64]bool) map[int64]bool {
	out := make(map[int64]bool, len(known)+len(p.MissingUsers))
	for id := range known {
		out[id] = true
	}
	for _, u := range p.MissingUsers {
		out[u.ID] = true
	}
	return out
}

// ItemIDs returns the ids of the planned work items in order.
func (p Plan) ItemIDs() []int64 {
	ids := make([]int64, len(p.Items))
	for i, w := range p.Items {
		ids[i] = w.ID
	}
	return ids
}

func toWorkItem(rec openproject.Record) store.WorkItem {
	return store.WorkItem{
		ID:             rec.ID,
		ProjectID:      rec.ProjectID,
		AssigneeID:     rec.AssigneeID,
		Subject:        rec.Subject,
		Description:    rec.Description,
		Type:           rec.Type,
		Status:         rec.Status,
		StartDate:      rec.StartDate,
		DueDate:        rec.DueDate,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		PercentageDone: rec.PercentageDone,
		GoalPeriod:     rec.GoalPeriod,
	}
}
