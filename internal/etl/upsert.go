package etl

import (
	"context"
	"fmt"

	"op-insight/internal/store"

	"github.com/rs/zerolog/log"
)

// BatchSize is the number of rows written per store call.
const BatchSize = 500

// applyEntities creates the staged projects, then the staged users.
func applyEntities(ctx context.Context, s store.Store, plan Plan, size int) error {
	for _, batch := range chunk(plan.MissingProjects, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.InsertProjects(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert projects: %w", err)
		}
	}
	for _, batch := range chunk(plan.MissingUsers, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.InsertUsers(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert users: %w", err)
		}
	}
	return nil
}

// upsertWorkItems writes items batch by batch. Each batch asks the store
// once which ids already exist and splits the batch into updates and
// inserts accordingly.
func upsertWorkItems(ctx context.Context, s store.Store, items []store.WorkItem, size int) (inserted, updated int, err error) {
	for n, batch := range chunk(items, size) {
		if err := ctx.Err(); err != nil {
			return inserted, updated, err
		}

		ids := make([]int64, len(batch))
		for i, w := range batch {
			ids[i] = w.ID
		}
		existing, err := s.ExistingWorkItemIDs(ctx, ids)
		if err != nil {
			return inserted, updated, fmt.Errorf("failed to look up work items: %w", err)
		}

		var updates, inserts []store.WorkItem
		for _, w := range batch {
			if existing[w.ID] {
				updates = append(updates, w)
			} else {
				inserts = append(inserts, w)
			}
		}
		if err := s.UpsertWorkItems(ctx, updates, inserts); err != nil {
			return inserted, updated, fmt.Errorf("failed to upsert work item batch %d: %w", n, err)
		}
		inserted += len(inserts)
		updated += len(updates)

		log.Debug().Int("batch", n).Int("inserted", len(inserts)).Int("updated", len(updates)).Msg("Work item batch written")
	}
	return inserted, updated, nil
}

func insertActivities(ctx context.Context, s store.Store, acts []store.Activity, size int) (int, error) {
	written := 0
	for n, batch := range chunk(acts, size) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := s.InsertActivities(ctx, batch); err != nil {
			return written, fmt.Errorf("failed to insert activity batch %d: %w", n, err)
		}
		written += len(batch)
	}
	return written, nil
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = BatchSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
