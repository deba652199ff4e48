package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"op-insight/internal/openproject"
	"op-insight/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrImportRunning is returned by ImportLocked when another import holds
// the store lock.
var ErrImportRunning = errors.New("an import is already running")

// Report summarises one import pass.
type Report struct {
	RunID              string    `json:"runId"`
	Source             string    `json:"source"`
	RecordsRead        int       `json:"recordsRead"`
	SkippedMalformed   int       `json:"skippedMalformed"`
	ProjectsCreated    int       `json:"projectsCreated"`
	UsersCreated       int       `json:"usersCreated"`
	ItemsInserted      int       `json:"itemsInserted"`
	ItemsUpdated       int       `json:"itemsUpdated"`
	ItemsFetched       int       `json:"itemsFetched"`
	FetchFailures      int       `json:"fetchFailures"`
	ParseMismatches    int       `json:"parseMismatches"`
	ActivitiesInserted int       `json:"activitiesInserted"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
}

// Pipeline imports a bulk work package export plus the per-item activity
// history into a store.
type Pipeline struct {
	store     store.Store
	fetcher   *Fetcher
	batchSize int
}

// NewPipeline wires a pipeline to its store and remote API client.
func NewPipeline(s store.Store, client openproject.Client) *Pipeline {
	return &Pipeline{store: s, fetcher: NewFetcher(client), batchSize: BatchSize}
}

// ImportLocked runs Import under the store's import lock. It returns
// ErrImportRunning without doing anything when the lock is taken.
func (p *Pipeline) ImportLocked(ctx context.Context, path string) (*Report, error) {
	ok, err := p.store.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take import lock: %w", err)
	}
	if !ok {
		return nil, ErrImportRunning
	}
	defer func() {
		if err := p.store.Unlock(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release import lock")
		}
	}()
	return p.Import(ctx, path)
}

// Import runs one pass: read and reconcile the export, create missing
// projects and users, upsert work items, fetch their activities and
// append them. An unusable input file aborts before any write.
func (p *Pipeline) Import(ctx context.Context, path string) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Source: path, StartedAt: time.Now()}
	runLog := log.With().Str("run", rep.RunID).Logger()
	runLog.Info().Str("file", path).Msg("Import started")

	records, err := readExport(path, rep)
	if err != nil {
		return nil, err
	}

	knownProjects, err := p.store.ProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known projects: %w", err)
	}
	knownUsers, err := p.store.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known users: %w", err)
	}

	plan := Reconcile(records, knownProjects, knownUsers)
	runLog.Info().
		Int("records", rep.RecordsRead).
		Int("new_projects", len(plan.MissingProjects)).
		Int("new_users", len(plan.MissingUsers)).
		Int("items", len(plan.Items)).
		Msg("Export reconciled")

	if err := applyEntities(ctx, p.store, plan, p.batchSize); err != nil {
		return nil, err
	}
	rep.ProjectsCreated = len(plan.MissingProjects)
	rep.UsersCreated = len(plan.MissingUsers)

	rep.ItemsInserted, rep.ItemsUpdated, err = upsertWorkItems(ctx, p.store, plan.Items, p.batchSize)
	if err != nil {
		return nil, err
	}

	sum, err := p.fetcher.Fetch(ctx, plan.ItemIDs(), plan.KnownUsers(knownUsers))
	if err != nil {
		return nil, fmt.Errorf("activity fetch interrupted: %w", err)
	}
	rep.ItemsFetched = sum.Fetched
	rep.FetchFailures = sum.Failures
	rep.ParseMismatches = sum.Mismatches

	rep.ActivitiesInserted, err = insertActivities(ctx, p.store, sum.Activities, p.batchSize)
	if err != nil {
		return nil, err
	}

	if err := p.store.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush store: %w", err)
	}

	rep.FinishedAt = time.Now()
	runLog.Info().
		Int("inserted", rep.ItemsInserted).
		Int("updated", rep.ItemsUpdated).
		Int("activities", rep.ActivitiesInserted).
		Int("fetch_failures", rep.FetchFailures).
		Int("parse_mismatches", rep.ParseMismatches).
		Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("Import finished")
	return rep, nil
}

// readExport decodes and extracts every record of the export. Malformed
// records are logged, counted in rep and skipped.
func readExport(path string, rep *Report) ([]openproject.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	var records []openproject.Record
	nonObjects, err := openproject.DecodeExport(f, func(index int, item map[string]any) {
		rep.RecordsRead++
		rec, err := openproject.ExtractRecord(item)
		if err != nil {
			rep.SkippedMalformed++
			log.Warn().Err(&MalformedRecordError{Index: index, Err: err}).Msg("Skipping record")
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	if nonObjects > 0 {
		rep.RecordsRead += nonObjects
		rep.SkippedMalformed += nonObjects
		log.Warn().Int("count", nonObjects).Msg("Skipped export elements that are not objects")
	}
	return records, nil
}
