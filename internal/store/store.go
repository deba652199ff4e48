package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Project is a tracked OpenProject project, keyed by its external id.
type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is an OpenProject user, keyed by its external id.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// WorkItem is an imported work package.
type WorkItem struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"projectId"`
	AssigneeID     *int64     `json:"assigneeId,omitempty"`
	Subject        string     `json:"subject"`
	Description    string     `json:"description"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	PercentageDone int        `json:"percentageDone"`
	GoalPeriod     *string    `json:"goalPeriod,omitempty"`
}

// Activity is one recorded status transition of a work item. IDs are
// assigned by the store on insert.
type Activity struct {
	ID         int64     `json:"id"`
	WorkItemID int64     `json:"workItemId"`
	FromStatus *string   `json:"fromStatus,omitempty"`
	ToStatus   *string   `json:"toStatus,omitempty"`
	Comment    *string   `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     *int64    `json:"userId,omitempty"`
}

// Counts holds the row count of every relation.
type Counts struct {
	Users      int64 `json:"totalUsers"`
	Projects   int64 `json:"totalProjects"`
	WorkItems  int64 `json:"totalWorkPackages"`
	Activities int64 `json:"totalActivities"`
}

// WorkItemFilter selects work items of one project. A nil AssigneeID and an
// empty GoalPeriod do not filter.
type WorkItemFilter struct {
	ProjectID  int64
	AssigneeID *int64
	GoalPeriod string
}

func (f WorkItemFilter) matches(w WorkItem) bool {
	if w.ProjectID != f.ProjectID {
		return false
	}
	if f.AssigneeID != nil && (w.AssigneeID == nil || *w.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.GoalPeriod != "" && (w.GoalPeriod == nil || *w.GoalPeriod != f.GoalPeriod) {
		return false
	}
	return true
}

// Store is the persistence boundary shared by the import pipeline and the
// analytics engine. Every call is self-contained: plain values go in and
// come out, nothing is tracked between calls.
type Store interface {
	// ProjectIDs and UserIDs return the full set of known ids.
	ProjectIDs(ctx context.Context) (map[int64]bool, error)
	UserIDs(ctx context.Context) (map[int64]bool, error)

	InsertProjects(ctx context.Context, projects []Project) error
	InsertUsers(ctx context.Context, users []User) error

	// ExistingWorkItemIDs reports which of ids are already stored.
	ExistingWorkItemIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	// UpsertWorkItems overwrites updates in place and inserts inserts, as one unit.
	UpsertWorkItems(ctx context.Context, updates, inserts []WorkItem) error
	InsertActivities(ctx context.Context, activities []Activity) error

	Projects(ctx context.Context) ([]Project, error)
	Project(ctx context.Context, id int64) (Project, error)
	UsersByID(ctx context.Context, ids []int64) (map[int64]User, error)
	WorkItems(ctx context.Context, filter WorkItemFilter) ([]WorkItem, error)
	// ActivitiesByWorkItem returns each item's activities ordered by
	// timestamp, ties kept in insertion order.
	ActivitiesByWorkItem(ctx context.Context, ids []int64) (map[int64][]Activity, error)
	GoalPeriods(ctx context.Context, projectID int64) ([]string, error)
	Counts(ctx context.Context) (Counts, error)

	// TryLock takes the import lock without waiting. It returns false when
	// another import holds it.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error

	// Flush persists any buffered state.
	Flush(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config selects and configures a store driver.
type Config struct {
	Driver string
	// DSN is the PostgreSQL connection string.
	DSN string
	// SnapshotPath is the JSONL file backing the memory driver. Empty keeps
	// the memory store purely in-process.
	SnapshotPath string
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		m := NewMemoryStore(cfg.SnapshotPath)
		if err := m.Load(); err != nil {
			return nil, err
		}
		return m, nil
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
