package openproject

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// UnknownProjectTitle is used when a record carries no usable project link.
const UnknownProjectTitle = "Unknown Project"

// GoalPeriodField is the custom field that carries the goal-period tag.
const GoalPeriodField = "customField26"

// ErrMissingID reports a record without a usable numeric id.
var ErrMissingID = errors.New("work package record has no numeric id")

// Record is the flattened form of one exported work package.
type Record struct {
	ID int64

	ProjectID    int64
	ProjectTitle string

	AssigneeID   *int64
	AssigneeName *string

	Subject        string
	Description    string
	Type           string
	Status         string
	StartDate      *time.Time
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PercentageDone int
	GoalPeriod     *string
}

// ExtractRecord flattens one loosely-typed work package. Every nested field
// degrades to a default when missing or malformed; only a missing id is an
// error.
func ExtractRecord(raw map[string]any) (Record, error) {
	id, ok := toInt64(raw["id"])
	if !ok || id <= 0 {
		return Record{}, fmt.Errorf("%w (id=%v)", ErrMissingID, raw["id"])
	}

	rec := Record{ID: id}
	rec.ProjectID, rec.ProjectTitle = ExtractProject(raw)
	rec.AssigneeID, rec.AssigneeName = ExtractAssignee(raw)
	rec.GoalPeriod = ExtractGoalPeriod(raw)

	rec.Subject, _ = raw["subject"].(string)
	if desc, ok := raw["description"].(map[string]any); ok {
		rec.Description, _ = desc["raw"].(string)
	}
	if pct, ok := toInt64(raw["percentageDone"]); ok {
		rec.PercentageDone = int(pct)
	}

	if s, ok := raw["createdAt"].(string); ok {
		if t, err := ParseTime(s); err == nil {
			rec.CreatedAt = t
		}
	}
	if s, ok := raw["updatedAt"].(string); ok {
		if t, err := ParseTime(s); err == nil {
			rec.UpdatedAt = t
		}
	}
	rec.StartDate = optionalDate(raw["startDate"])
	rec.DueDate = optionalDate(raw["dueDate"])

	rec.Type = linkTitle(raw, "type")
	rec.Status = linkTitle(raw, "status")

	return rec, nil
}

// ExtractProject returns the owning project's id and title, or
// (0, "Unknown Project") when the link is missing or malformed.
func ExtractProject(raw map[string]any) (int64, string) {
	link, ok := links(raw)["project"].(map[string]any)
	if !ok {
		return 0, UnknownProjectTitle
	}
	href, _ := link["href"].(string)
	id, ok := IDFromHref(href)
	if !ok {
		return 0, UnknownProjectTitle
	}
	if _, present := link["title"]; !present {
		return 0, UnknownProjectTitle
	}
	title, ok := link["title"].(string)
	if !ok {
		title = fmt.Sprintf("Project %d", id)
	}
	return id, title
}

// ExtractAssignee returns the assignee's id and name. Both are nil for an
// unassigned or malformed link; the name alone is nil when the link has a
// null title.
func ExtractAssignee(raw map[string]any) (*int64, *string) {
	link, ok := links(raw)["assignee"].(map[string]any)
	if !ok {
		return nil, nil
	}
	href, _ := link["href"].(string)
	id, ok := IDFromHref(href)
	if !ok {
		return nil, nil
	}
	if _, present := link["title"]; !present {
		return nil, nil
	}
	if name, ok := link["title"].(string); ok {
		return &id, &name
	}
	return &id, nil
}

// ExtractGoalPeriod returns the title of the first goal-period option, if any.
func ExtractGoalPeriod(raw map[string]any) *string {
	options, ok := links(raw)[GoalPeriodField].([]any)
	if !ok || len(options) == 0 {
		return nil
	}
	first, ok := options[0].(map[string]any)
	if !ok {
		return nil
	}
	title, ok := first["title"].(string)
	if !ok {
		return nil
	}
	return &title
}

func links(raw map[string]any) map[string]any {
	l, _ := raw["_links"].(map[string]any)
	return l
}

func linkTitle(raw map[string]any, name string) string {
	link, ok := links(raw)[name].(map[string]any)
	if !ok {
		return ""
	}
	title, _ := link["title"].(string)
	return title
}

func optionalDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

// toInt64 accepts the numeric forms encoding/json produces.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
