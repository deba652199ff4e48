package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"op-insight/internal/analytics"
	"op-insight/internal/etl"
	"op-insight/internal/openproject"
	"op-insight/internal/store"

	"github.com/rs/zerolog/log"
)

// app bundles the components every command shares.
type app struct {
	store    store.Store
	svc      *analytics.Service
	pipeline *etl.Pipeline
}

func openApp(ctx context.Context) (*app, error) {
	policy, err := analytics.ParsePolicy(cfg.DurationPolicy)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if cfg.OpenProject.BaseURL == "" {
		log.Warn().Msg("OPENPROJECT_URL is not set, activity fetches will fail")
	}
	client := openproject.NewClient(cfg.OpenProject)

	return &app{
		store:    s,
		svc:      analytics.NewService(s, policy),
		pipeline: etl.NewPipeline(s, client),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
