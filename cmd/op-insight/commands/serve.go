package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"op-insight/internal/httpapi"
	"op-insight/internal/jobs"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var openBrowser bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API and run scheduled imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		scheduler, err := jobs.NewCron(cfg.SyncCron, cfg.SyncFile, a.pipeline)
		if err != nil {
			return err
		}
		if scheduler != nil {
			scheduler.Start()
			defer scheduler.Stop()
			log.Info().Str("cron", cfg.SyncCron).Str("file", cfg.SyncFile).Msg("Scheduled import enabled")
		}

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(httpapi.Options{AppEnv: cfg.AppEnv, SyncFile: cfg.SyncFile}, a.svc, a.pipeline),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		if openBrowser {
			url := "http://" + localAddr(cfg.HTTPAddr) + "/api/dashboard"
			if err := browser.OpenURL(url); err != nil {
				log.Warn().Err(err).Str("url", url).Msg("Failed to open browser")
			}
		}

		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// localAddr turns a listen address such as ":8080" into a dialable host.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func init() {
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "open the dashboard endpoint in a browser")
}
