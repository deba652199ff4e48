package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"op-insight/internal/etl"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// importTimeout bounds one scheduled run.
const importTimeout = 30 * time.Minute

type importer interface {
	ImportLocked(ctx context.Context, path string) (*etl.Report, error)
}

// Cron re-imports the sync file on a schedule.
type Cron struct {
	c    *cron.Cron
	imp  importer
	file string
}

// NewCron schedules imports of file with a standard 5-field spec. An empty
// spec returns nil: scheduling is disabled.
func NewCron(spec, file string, imp importer) (*Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	cr := &Cron{c: c, imp: imp, file: file}
	if _, err := c.AddFunc(spec, cr.run); err != nil {
		return nil, fmt.Errorf("invalid SYNC_CRON %q: %w", spec, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts scheduling and waits for a running import to finish.
func (cr *Cron) Stop() { <-cr.c.Stop().Done() }

func (cr *Cron) run() {
	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	log.Info().Str("file", cr.file).Msg("cron: scheduled import")
	rep, err := cr.imp.ImportLocked(ctx, cr.file)
	if errors.Is(err, etl.ErrImportRunning) {
		log.Info().Msg("cron: import already running")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("cron: import failed")
		return
	}
	log.Info().
		Str("run", rep.RunID).
		Int("inserted", rep.ItemsInserted).
		Int("updated", rep.ItemsUpdated).
		Int("activities", rep.ActivitiesInserted).
		Msg("cron: import finished")
}
