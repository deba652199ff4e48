package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// snapshotLine is one JSONL record of a memory store snapshot. Exactly one
// payload field is set, matching Kind.
type snapshotLine struct {
	Kind     string    `json:"kind"`
	Project  *Project  `json:"project,omitempty"`
	User     *User     `json:"user,omitempty"`
	WorkItem *WorkItem `json:"workItem,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
}

const (
	kindProject  = "project"
	kindUser     = "user"
	kindWorkItem = "workItem"
	kindActivity = "activity"
)

// Load reads the snapshot file into the store. A missing file is not an
// error. Lines are applied in file order, so parents precede children.
func (m *MemoryStore) Load() error {
	if m.path == "" {
		return nil
	}
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No snapshot yet
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	lines := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var l snapshotLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			log.Warn().Err(err).Str("path", m.path).Msg("Skipping invalid JSON line in snapshot")
			continue
		}
		switch {
		case l.Kind == kindProject && l.Project != nil:
			m.projects[l.Project.ID] = *l.Project
		case l.Kind == kindUser && l.User != nil:
			m.users[l.User.ID] = *l.User
		case l.Kind == kindWorkItem && l.WorkItem != nil:
			m.items[l.WorkItem.ID] = *l.WorkItem
		case l.Kind == kindActivity && l.Activity != nil:
			m.appendActivity(*l.Activity)
		default:
			log.Warn().Str("kind", l.Kind).Msg("Skipping unknown snapshot record")
			continue
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading snapshot: %w", err)
	}

	log.Info().Str("path", m.path).Int("records", lines).Msg("Loaded store snapshot")
	return nil
}

// Save writes the whole store to the snapshot file via a temp file and an
// atomic rename.
func (m *MemoryStore) Save() error {
	if m.path == "" {
		return nil
	}

	m.mu.RLock()
	lines := m.snapshotLines()
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmpPath := m.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, l := range lines {
		if err := encoder.Encode(l); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode snapshot record: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	log.Info().Str("path", m.path).Int("records", len(lines)).Msg("Store snapshot saved")
	return nil
}

// snapshotLines must be called with mu held. Output is deterministic:
// relations in dependency order, each sorted by id.
func (m *MemoryStore) snapshotLines() []snapshotLine {
	var lines []snapshotLine

	for _, id := range sortedKeys(m.projects) {
		p := m.projects[id]
		lines = append(lines, snapshotLine{Kind: kindProject, Project: &p})
	}
	for _, id := range sortedKeys(m.users) {
		u := m.users[id]
		lines = append(lines, snapshotLine{Kind: kindUser, User: &u})
	}
	for _, id := range sortedKeys(m.items) {
		w := m.items[id]
		lines = append(lines, snapshotLine{Kind: kindWorkItem, WorkItem: &w})
	}
	for _, id := range sortedKeys(m.activities) {
		for _, a := range m.activities[id] {
			lines = append(lines, snapshotLine{Kind: kindActivity, Activity: &a})
		}
	}
	return lines
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
