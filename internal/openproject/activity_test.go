package openproject

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseStatusChange(t *testing.T) {
	tests := []struct {
		raw      string
		wantFrom string
		wantTo   string
		wantOK   bool
	}{
		{"Status changed from New to In Progress", "New", "In Progress", true},
		{"Status changed from In Progress to Done", "In Progress", "Done", true},
		{"Status changed from  Developed  to  Solved ", "Developed", "Solved", true},
		{"Status changed from Ready to go to Done", "", "", false},
		{"Status changed from New", "", "", false},
		{"Status changed to Done", "", "", false},
		{"Subject changed from A to B", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		from, to, ok := ParseStatusChange(tt.raw)
		if from != tt.wantFrom || to != tt.wantTo || ok != tt.wantOK {
			t.Errorf("ParseStatusChange(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.raw, from, to, ok, tt.wantFrom, tt.wantTo, tt.wantOK)
		}
	}
}

func FuzzParseStatusChange(f *testing.F) {
	f.Add("Status changed from New to Done")
	f.Add("Status changed from a to b to c")
	f.Add("Status changed")
	f.Add("")

	f.Fuzz(func(t *testing.T, raw string) {
		from, to, ok := ParseStatusChange(raw)
		if !ok {
			if from != "" || to != "" {
				t.Fatalf("rejected input returned values (%q, %q)", from, to)
			}
			return
		}
		if !strings.HasPrefix(raw, statusFromPrefix) {
			t.Fatalf("accepted input without prefix: %q", raw)
		}
		if strings.Count(strings.TrimPrefix(raw, statusFromPrefix), statusToInfix) != 1 {
			t.Fatalf("accepted input without exactly one infix: %q", raw)
		}
	})
}

const activitiesFixture = `{
	"_type": "Collection",
	"_embedded": {
		"elements": [
			{
				"id": 1,
				"createdAt": "2025-03-01T09:00:00Z",
				"_links": {"user": {"href": "/api/v3/users/42"}},
				"details": []
			},
			{
				"id": 2,
				"createdAt": "2025-03-02T09:00:00Z",
				"_links": {"user": {"href": "/api/v3/users/42"}},
				"details": [
					{"format": "custom", "raw": "Subject changed from A to B"},
					{"format": "custom", "raw": "Status changed from New to In Progress"}
				]
			},
			{
				"id": 3,
				"createdAt": "not a time",
				"_links": {},
				"details": [
					{"raw": "Status changed from In Progress to Done"},
					{"raw": "Status changed from a to b to c"}
				]
			}
		]
	}
}`

func TestStatusChanges(t *testing.T) {
	var col ActivityCollection
	if err := json.Unmarshal([]byte(activitiesFixture), &col); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	changes, rejected := StatusChanges(&col, now)

	if len(changes) != 2 {
		t.Fatalf("expected 2 status changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].From != "New" || changes[0].To != "In Progress" {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[0].UserID == nil || *changes[0].UserID != 42 {
		t.Errorf("first change user = %v, want 42", changes[0].UserID)
	}
	if !changes[0].Timestamp.Equal(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first change timestamp = %v", changes[0].Timestamp)
	}
	if changes[1].UserID != nil {
		t.Errorf("second change user = %v, want nil", *changes[1].UserID)
	}
	if !changes[1].Timestamp.Equal(now) {
		t.Errorf("unparsable createdAt should fall back to now, got %v", changes[1].Timestamp)
	}
	if len(rejected) != 1 || rejected[0] != "Status changed from a to b to c" {
		t.Errorf("rejected = %v", rejected)
	}
}

func TestStatusChanges_Nil(t *testing.T) {
	changes, rejected := StatusChanges(nil, time.Now())
	if changes != nil || rejected != nil {
		t.Errorf("expected nothing for a nil collection")
	}
}
