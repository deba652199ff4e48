package etl

import (
	"context"
	"time"

	"op-insight/internal/openproject"
	"op-insight/internal/store"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxConcurrentRequests caps the activity requests in flight at once.
const MaxConcurrentRequests = 5

// FetchSummary aggregates one fetch phase.
type FetchSummary struct {
	Activities []store.Activity
	Fetched    int
	Failures   int
	Mismatches int
}

// Fetcher loads the status history of work packages from the remote API.
type Fetcher struct {
	client openproject.Client
	limit  int64
	now    func() time.Time
}

// NewFetcher returns a fetcher limited to MaxConcurrentRequests.
func NewFetcher(client openproject.Client) *Fetcher {
	return &Fetcher{client: client, limit: MaxConcurrentRequests, now: time.Now}
}

type itemResult struct {
	activities []store.Activity
	failed     bool
	mismatches int
}

// Fetch issues one activities request per id. A failed request gives that
// item no activities and is counted, it never fails the phase. Actors are
// attached only when their id is in knownUsers. The returned activities are
// grouped by id in the order of ids.
//
// Cancellation is checked before each request is started. Requests already
// in flight run to completion; the context error is then returned.
func (f *Fetcher) Fetch(ctx context.Context, ids []int64, knownUsers map[int64]bool) (FetchSummary, error) {
	results := make([]itemResult, len(ids))
	sem := semaphore.NewWeighted(f.limit)
	reqCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	var acquireErr error
	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = f.fetchOne(reqCtx, id, knownUsers)
			return nil
		})
	}
	_ = g.Wait()

	if acquireErr != nil {
		return FetchSummary{}, acquireErr
	}

	var sum FetchSummary
	for _, r := range results {
		if r.failed {
			sum.Failures++
		} else {
			sum.Fetched++
		}
		sum.Mismatches += r.mismatches
		sum.Activities = append(sum.Activities, r.activities...)
	}
	return sum, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, id int64, knownUsers map[int64]bool) itemResult {
	col, err := f.client.WorkPackageActivities(ctx, id)
	if err != nil {
		log.Warn().Err(&RemoteFetchFailure{WorkItemID: id, Err: err}).Int64("work_item", id).Msg("Importing work package without activities")
		return itemResult{failed: true}
	}

	changes, rejected := openproject.StatusChanges(col, f.now())
	for _, raw := range rejected {
		log.Debug().Err(&ParseMismatch{WorkItemID: id, Raw: raw}).Msg("Dropping activity")
	}

	acts := make([]store.Activity, 0, len(changes))
	for _, c := range changes {
		a := store.Activity{
			WorkItemID: id,
			FromStatus: &c.From,
			ToStatus:   &c.To,
			Timestamp:  c.Timestamp,
		}
		if c.UserID != nil && knownUsers[*c.UserID] {
			a.UserID = c.UserID
		}
		acts = append(acts, a)
	}
	return itemResult{activities: acts, mismatches: len(rejected)}
}
