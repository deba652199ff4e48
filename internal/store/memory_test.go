package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, m *MemoryStore) {
	t.Helper()
	ctx := context.Background()

	if err := m.InsertProjects(ctx, []Project{{ID: 1, Name: "Storefront"}, {ID: 2, Name: "Ops"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertUsers(ctx, []User{{ID: 10, Name: "Dana"}}); err != nil {
		t.Fatal(err)
	}
	items := []WorkItem{
		{ID: 100, ProjectID: 1, AssigneeID: ptr(int64(10)), Type: "User story", GoalPeriod: ptr("2025-H2")},
		{ID: 101, ProjectID: 1, GoalPeriod: ptr("2025-H1")},
		{ID: 102, ProjectID: 1, GoalPeriod: ptr("2025-H2")},
		{ID: 103, ProjectID: 1},
		{ID: 200, ProjectID: 2, GoalPeriod: ptr("2024-H2")},
	}
	if err := m.UpsertWorkItems(ctx, nil, items); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStore_GoalPeriods(t *testing.T) {
	m := NewMemoryStore("")
	seed(t, m)

	got, err := m.GoalPeriods(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2025-H1", "2025-H2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("GoalPeriods() = %v, want %v", got, want)
	}

	empty, _ := m.GoalPeriods(context.Background(), 99)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", empty)
	}
}

func TestMemoryStore_WorkItemsFilter(t *testing.T) {
	m := NewMemoryStore("")
	seed(t, m)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter WorkItemFilter
		want   []int64
	}{
		{"Project", WorkItemFilter{ProjectID: 1}, []int64{100, 101, 102, 103}},
		{"GoalPeriod", WorkItemFilter{ProjectID: 1, GoalPeriod: "2025-H2"}, []int64{100, 102}},
		{"Assignee", WorkItemFilter{ProjectID: 1, AssigneeID: ptr(int64(10))}, []int64{100}},
		{"NoMatch", WorkItemFilter{ProjectID: 2, GoalPeriod: "2025-H2"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.WorkItems(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for i, w := range got {
				if w.ID != tt.want[i] {
					t.Errorf("item %d = %d, want %d", i, w.ID, tt.want[i])
				}
			}
		})
	}
}

func TestMemoryStore_UpsertRejectsUnknownReferences(t *testing.T) {
	m := NewMemoryStore("")
	seed(t, m)
	ctx := context.Background()

	err := m.UpsertWorkItems(ctx, nil, []WorkItem{{ID: 300, ProjectID: 1}, {ID: 301, ProjectID: 42}})
	if err == nil {
		t.Fatal("expected an error for an unknown project")
	}
	existing, _ := m.ExistingWorkItemIDs(ctx, []int64{300, 301})
	if len(existing) != 0 {
		t.Errorf("rejected batch must not be applied, found %v", existing)
	}

	if err := m.UpsertWorkItems(ctx, []WorkItem{{ID: 999, ProjectID: 1}}, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating a missing item should return ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateKeepsActivities(t *testing.T) {
	m := NewMemoryStore("")
	seed(t, m)
	ctx := context.Background()

	if err := m.InsertActivities(ctx, []Activity{{WorkItemID: 100, ToStatus: ptr("Done"), Timestamp: time.Now()}}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertWorkItems(ctx, []WorkItem{{ID: 100, ProjectID: 2, Subject: "moved"}}, nil); err != nil {
		t.Fatal(err)
	}

	acts, _ := m.ActivitiesByWorkItem(ctx, []int64{100})
	if len(acts[100]) != 1 {
		t.Errorf("expected the activity to survive the update, got %d", len(acts[100]))
	}
	items, _ := m.WorkItems(ctx, WorkItemFilter{ProjectID: 2})
	if len(items) != 2 || items[0].Subject != "moved" {
		t.Errorf("expected item 100 moved to project 2, got %+v", items)
	}
}

func TestMemoryStore_ActivityOrdering(t *testing.T) {
	m := NewMemoryStore("")
	seed(t, m)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	acts := []Activity{
		{WorkItemID: 101, ToStatus: ptr("Done"), Timestamp: base.Add(48 * time.Hour)},
		{WorkItemID: 101, ToStatus: ptr("New"), Timestamp: base},
		{WorkItemID: 101, ToStatus: ptr("In Progress"), Timestamp: base.Add(24 * time.Hour)},
		{WorkItemID: 101, ToStatus: ptr("Developed"), Timestamp: base.Add(24 * time.Hour)},
	}
	if err := m.InsertActivities(ctx, acts); err != nil {
		t.Fatal(err)
	}

	got, _ := m.ActivitiesByWorkItem(ctx, []int64{101, 102})
	if _, ok := got[102]; ok {
		t.Error("items without activities should be absent")
	}
	order := []string{"New", "In Progress", "Developed", "Done"}
	for i, a := range got[101] {
		if *a.ToStatus != order[i] {
			t.Errorf("activity %d = %s, want %s", i, *a.ToStatus, order[i])
		}
		if a.ID == 0 {
			t.Errorf("activity %d has no id", i)
		}
	}
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "store.jsonl")
	ctx := context.Background()

	m := NewMemoryStore(path)
	seed(t, m)
	if err := m.InsertActivities(ctx, []Activity{
		{WorkItemID: 100, FromStatus: ptr("New"), ToStatus: ptr("In Progress"), Timestamp: time.Unix(1000, 0).UTC(), UserID: ptr(int64(10))},
		{WorkItemID: 100, ToStatus: ptr("Done"), Timestamp: time.Unix(2000, 0).UTC()},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reloaded := NewMemoryStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	before, _ := m.Counts(ctx)
	after, _ := reloaded.Counts(ctx)
	if before != after {
		t.Errorf("counts differ after reload: %+v vs %+v", before, after)
	}

	// Ids continue after the highest loaded activity id.
	if err := reloaded.InsertActivities(ctx, []Activity{{WorkItemID: 100, Timestamp: time.Unix(3000, 0)}}); err != nil {
		t.Fatal(err)
	}
	acts, _ := reloaded.ActivitiesByWorkItem(ctx, []int64{100})
	if n := len(acts[100]); n != 3 || acts[100][2].ID != 3 {
		t.Errorf("unexpected activity ids after reload: %+v", acts[100])
	}
}

func TestMemoryStore_LoadMissingFile(t *testing.T) {
	m := NewMemoryStore(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err := m.Load(); err != nil {
		t.Errorf("a missing snapshot should not be an error: %v", err)
	}
}

func TestMemoryStore_TryLock(t *testing.T) {
	m := NewMemoryStore("")
	ctx := context.Background()

	if ok, _ := m.TryLock(ctx); !ok {
		t.Fatal("first TryLock should succeed")
	}
	if ok, _ := m.TryLock(ctx); ok {
		t.Fatal("second TryLock should fail while held")
	}
	_ = m.Unlock(ctx)
	if ok, _ := m.TryLock(ctx); !ok {
		t.Fatal("TryLock should succeed after Unlock")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "sqlite"}); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}
