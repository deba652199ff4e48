package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore keeps every relation in maps guarded by a single RWMutex.
// It can be persisted to a JSONL snapshot (see snapshot.go).
type MemoryStore struct {
	mu             sync.RWMutex
	projects       map[int64]Project
	users          map[int64]User
	items          map[int64]WorkItem
	activities     map[int64][]Activity // Partitioned by work item id, insertion order
	activityCount  int64
	nextActivityID int64

	path   string
	locked atomic.Bool
}

// NewMemoryStore creates an empty store. path is the snapshot file used by
// Load and Flush; empty disables persistence.
func NewMemoryStore(path string) *MemoryStore {
	return &MemoryStore{
		projects:       make(map[int64]Project),
		users:          make(map[int64]User),
		items:          make(map[int64]WorkItem),
		activities:     make(map[int64][]Activity),
		nextActivityID: 1,
		path:           path,
	}
}

func (m *MemoryStore) ProjectIDs(_ context.Context) (map[int64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]bool, len(m.projects))
	for id := range m.projects {
		out[id] = true
	}
	return out, nil
}

func (m *MemoryStore) UserIDs(_ context.Context) (map[int64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]bool, len(m.users))
	for id := range m.users {
		out[id] = true
	}
	return out, nil
}

// InsertProjects adds projects whose id is not yet stored; existing rows are
// left untouched.
func (m *MemoryStore) InsertProjects(_ context.Context, projects []Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range projects {
		if _, ok := m.projects[p.ID]; !ok {
			m.projects[p.ID] = p
		}
	}
	return nil
}

// InsertUsers adds users whose id is not yet stored.
func (m *MemoryStore) InsertUsers(_ context.Context, users []User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range users {
		if _, ok := m.users[u.ID]; !ok {
			m.users[u.ID] = u
		}
	}
	return nil
}

func (m *MemoryStore) ExistingWorkItemIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]bool)
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// UpsertWorkItems validates the whole batch before applying any of it, so a
// rejected batch leaves the store unchanged.
func (m *MemoryStore) UpsertWorkItems(_ context.Context, updates, inserts []WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, batch := range [][]WorkItem{updates, inserts} {
		for _, w := range batch {
			if err := m.checkRefs(w); err != nil {
				return err
			}
		}
	}
	for _, w := range updates {
		if _, ok := m.items[w.ID]; !ok {
			return fmt.Errorf("work item %d: %w", w.ID, ErrNotFound)
		}
	}

	for _, w := range updates {
		m.items[w.ID] = w
	}
	for _, w := range inserts {
		m.items[w.ID] = w
	}
	return nil
}

func (m *MemoryStore) checkRefs(w WorkItem) error {
	if _, ok := m.projects[w.ProjectID]; !ok {
		return fmt.Errorf("work item %d references unknown project %d", w.ID, w.ProjectID)
	}
	if w.AssigneeID != nil {
		if _, ok := m.users[*w.AssigneeID]; !ok {
			return fmt.Errorf("work item %d references unknown user %d", w.ID, *w.AssigneeID)
		}
	}
	return nil
}

// InsertActivities appends activities and assigns their ids. Duplicates are
// kept.
func (m *MemoryStore) InsertActivities(_ context.Context, activities []Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range activities {
		if _, ok := m.items[a.WorkItemID]; !ok {
			return fmt.Errorf("activity references unknown work item %d", a.WorkItemID)
		}
	}
	for _, a := range activities {
		m.appendActivity(a)
	}
	return nil
}

// appendActivity must be called with mu held.
func (m *MemoryStore) appendActivity(a Activity) {
	if a.ID == 0 {
		a.ID = m.nextActivityID
	}
	if a.ID >= m.nextActivityID {
		m.nextActivityID = a.ID + 1
	}
	m.activities[a.WorkItemID] = append(m.activities[a.WorkItemID], a)
	m.activityCount++
}

func (m *MemoryStore) Projects(_ context.Context) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Project(_ context.Context, id int64) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) UsersByID(_ context.Context, ids []int64) (map[int64]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]User)
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// WorkItems returns the matching items ordered by id.
func (m *MemoryStore) WorkItems(_ context.Context, filter WorkItemFilter) ([]WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []WorkItem
	for _, w := range m.items {
		if filter.matches(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ActivitiesByWorkItem(_ context.Context, ids []int64) (map[int64][]Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64][]Activity, len(ids))
	for _, id := range ids {
		src := m.activities[id]
		if len(src) == 0 {
			continue
		}
		acts := make([]Activity, len(src))
		copy(acts, src)
		sort.SliceStable(acts, func(i, j int) bool { return acts[i].Timestamp.Before(acts[j].Timestamp) })
		out[id] = acts
	}
	return out, nil
}

// GoalPeriods returns the distinct goal periods of a project, ascending.
func (m *MemoryStore) GoalPeriods(_ context.Context, projectID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, w := range m.items {
		if w.ProjectID != projectID || w.GoalPeriod == nil || seen[*w.GoalPeriod] {
			continue
		}
		seen[*w.GoalPeriod] = true
		out = append(out, *w.GoalPeriod)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Counts{
		Users:      int64(len(m.users)),
		Projects:   int64(len(m.projects)),
		WorkItems:  int64(len(m.items)),
		Activities: m.activityCount,
	}, nil
}

// TryLock is an in-process flag; it does not coordinate separate processes.
func (m *MemoryStore) TryLock(_ context.Context) (bool, error) {
	return m.locked.CompareAndSwap(false, true), nil
}

func (m *MemoryStore) Unlock(_ context.Context) error {
	m.locked.Store(false)
	return nil
}

func (m *MemoryStore) Flush(_ context.Context) error {
	return m.Save()
}

func (m *MemoryStore) Close() error {
	return m.Save()
}
