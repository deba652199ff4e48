package openproject

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func decodeRecord(t *testing.T, doc string) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return raw
}

const fullRecord = `{
	"id": 1234,
	"subject": "Checkout flow",
	"description": {"format": "markdown", "raw": "Build the checkout"},
	"percentageDone": 40,
	"createdAt": "2025-01-10T08:00:00.000Z",
	"updatedAt": "2025-02-01T17:30:00Z",
	"startDate": "2025-01-12",
	"dueDate": null,
	"_links": {
		"project": {"href": "/api/v3/projects/7", "title": "Storefront"},
		"assignee": {"href": "/api/v3/users/42", "title": "Dana Reyes"},
		"type": {"href": "/api/v3/types/6", "title": "User story"},
		"status": {"href": "/api/v3/statuses/7", "title": "In Progress"},
		"customField26": [{"href": "/api/v3/custom_options/3", "title": "2025-H1"}]
	}
}`

func TestExtractRecord_Full(t *testing.T) {
	rec, err := ExtractRecord(decodeRecord(t, fullRecord))
	if err != nil {
		t.Fatalf("ExtractRecord failed: %v", err)
	}

	if rec.ID != 1234 {
		t.Errorf("ID = %d, want 1234", rec.ID)
	}
	if rec.ProjectID != 7 || rec.ProjectTitle != "Storefront" {
		t.Errorf("project = (%d, %q), want (7, Storefront)", rec.ProjectID, rec.ProjectTitle)
	}
	if rec.AssigneeID == nil || *rec.AssigneeID != 42 {
		t.Errorf("AssigneeID = %v, want 42", rec.AssigneeID)
	}
	if rec.AssigneeName == nil || *rec.AssigneeName != "Dana Reyes" {
		t.Errorf("AssigneeName = %v, want Dana Reyes", rec.AssigneeName)
	}
	if rec.GoalPeriod == nil || *rec.GoalPeriod != "2025-H1" {
		t.Errorf("GoalPeriod = %v, want 2025-H1", rec.GoalPeriod)
	}
	if rec.Subject != "Checkout flow" || rec.Description != "Build the checkout" {
		t.Errorf("unexpected text fields: %q / %q", rec.Subject, rec.Description)
	}
	if rec.Type != "User story" || rec.Status != "In Progress" {
		t.Errorf("unexpected type/status: %q / %q", rec.Type, rec.Status)
	}
	if rec.PercentageDone != 40 {
		t.Errorf("PercentageDone = %d, want 40", rec.PercentageDone)
	}
	if !rec.CreatedAt.Equal(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if rec.StartDate == nil || !rec.StartDate.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", rec.StartDate)
	}
	if rec.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", rec.DueDate)
	}
}

func TestExtractRecord_Defaults(t *testing.T) {
	rec, err := ExtractRecord(decodeRecord(t, `{"id": 9, "_links": {"project": {"href": 12}}}`))
	if err != nil {
		t.Fatalf("ExtractRecord failed: %v", err)
	}
	if rec.ProjectID != 0 || rec.ProjectTitle != UnknownProjectTitle {
		t.Errorf("project = (%d, %q), want (0, %q)", rec.ProjectID, rec.ProjectTitle, UnknownProjectTitle)
	}
	if rec.AssigneeID != nil || rec.AssigneeName != nil {
		t.Errorf("expected unassigned, got %v / %v", rec.AssigneeID, rec.AssigneeName)
	}
	if rec.GoalPeriod != nil {
		t.Errorf("GoalPeriod = %v, want nil", *rec.GoalPeriod)
	}
	if !rec.CreatedAt.IsZero() || rec.Subject != "" || rec.PercentageDone != 0 {
		t.Errorf("expected zero scalars, got %+v", rec)
	}
}

func TestExtractRecord_MissingID(t *testing.T) {
	for _, doc := range []string{`{}`, `{"id": "12"}`, `{"id": 1.5}`, `{"id": -3}`} {
		_, err := ExtractRecord(decodeRecord(t, doc))
		if !errors.Is(err, ErrMissingID) {
			t.Errorf("ExtractRecord(%s) error = %v, want ErrMissingID", doc, err)
		}
	}
}

func TestExtractProject(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantID    int64
		wantTitle string
	}{
		{"Present", `{"_links": {"project": {"href": "/api/v3/projects/3", "title": "Ops"}}}`, 3, "Ops"},
		{"NullTitle", `{"_links": {"project": {"href": "/api/v3/projects/3", "title": null}}}`, 3, "Project 3"},
		{"MissingTitle", `{"_links": {"project": {"href": "/api/v3/projects/3"}}}`, 0, UnknownProjectTitle},
		{"NonNumericHref", `{"_links": {"project": {"href": "/api/v3/projects/ops", "title": "Ops"}}}`, 0, UnknownProjectTitle},
		{"NoLinks", `{}`, 0, UnknownProjectTitle},
		{"LinksNotObject", `{"_links": []}`, 0, UnknownProjectTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, title := ExtractProject(decodeRecord(t, tt.doc))
			if id != tt.wantID || title != tt.wantTitle {
				t.Errorf("ExtractProject() = (%d, %q), want (%d, %q)", id, title, tt.wantID, tt.wantTitle)
			}
		})
	}
}

func TestExtractAssignee_NullTitle(t *testing.T) {
	id, name := ExtractAssignee(decodeRecord(t, `{"_links": {"assignee": {"href": "/api/v3/users/5", "title": null}}}`))
	if id == nil || *id != 5 {
		t.Fatalf("id = %v, want 5", id)
	}
	if name != nil {
		t.Errorf("name = %q, want nil", *name)
	}
}

func TestExtractAssignee_UnassignedLink(t *testing.T) {
	// OpenProject renders an unassigned work package with a null href.
	id, name := ExtractAssignee(decodeRecord(t, `{"_links": {"assignee": {"href": null}}}`))
	if id != nil || name != nil {
		t.Errorf("expected unassigned, got %v / %v", id, name)
	}
}

func TestExtractGoalPeriod(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
		nil_ bool
	}{
		{"FirstOption", `{"_links": {"customField26": [{"title": "2025-H2"}, {"title": "2026-H1"}]}}`, "2025-H2", false},
		{"EmptyArray", `{"_links": {"customField26": []}}`, "", true},
		{"NotArray", `{"_links": {"customField26": {"title": "2025-H2"}}}`, "", true},
		{"TitleNotString", `{"_links": {"customField26": [{"title": 2025}]}}`, "", true},
		{"Absent", `{"_links": {}}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractGoalPeriod(decodeRecord(t, tt.doc))
			if tt.nil_ {
				if got != nil {
					t.Errorf("ExtractGoalPeriod() = %q, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ExtractGoalPeriod() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		want int64
		ok   bool
	}{
		{"/api/v3/users/42", 42, true},
		{"/api/v3/users/42/", 42, true},
		{"17", 17, true},
		{"/api/v3/users/me", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := IDFromHref(tt.href)
		if got != tt.want || ok != tt.ok {
			t.Errorf("IDFromHref(%q) = (%d, %v), want (%d, %v)", tt.href, got, ok, tt.want, tt.ok)
		}
	}
}
