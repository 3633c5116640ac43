package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/setup"
	"github.com/airenas/tflow/internal/pkg/utils"
	"github.com/airenas/tflow/internal/pkg/watcher"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config
	setup.SetDefaults(cfg)

	printBanner()

	ctx, cf := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cf()
	go utils.RunPerfEndpoint(ctx, cfg.GetInt("debug.port"))

	app, err := setup.New(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init")
	}
	go func() {
		if err := app.StartStatus(); err != nil {
			goapp.Log.Error().Err(err).Msg("can't start status service")
		}
	}()

	outDir := cfg.GetString("watch.out")
	w, err := watcher.New(cfg.GetString("watch.dir"), cfg.GetDuration("watch.settle"),
		func(ctx context.Context, files []string) error {
			return processGroup(ctx, app, files, outDir)
		})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init watcher")
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		goapp.Log.Error().Err(err).Msg("watcher failed")
	}
	goapp.Log.Info().Msg("Bye")
}

// processGroup runs settled files in batches of at most validator.maxFiles
func processGroup(ctx context.Context, app *setup.App, files []string, outDir string) error {
	for len(files) > 0 {
		n := app.Policy.MaxFiles
		if n > len(files) {
			n = len(files)
		}
		part := files[:n]
		files = files[n:]
		reqs, vr, err := app.Requests(part, "")
		if err != nil {
			return err
		}
		for _, rj := range vr.Rejected {
			app.Monitor.Log(events.New(fmt.Sprintf("Rejected %s", rj.Error()), events.Warning))
		}
		if len(reqs) == 0 {
			continue
		}
		s, _ := app.Process(ctx, reqs)
		if err := setup.SaveResults(outDir, s); err != nil {
			goapp.Log.Error().Err(err).Msg("can't save results")
		}
		goapp.Log.Info().Int("succeeded", s.Succeeded).Int("failed", s.Failed).Msg("group done")
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
   __  ______ 
  / /_/ __/ /___ _      __
 / __/ /_/ / __ \ | /| / /
/ /_/ __/ / /_/ / |/ |/ / 
\__/_/ /_/\____/|__/|__/    watch

  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/tflow"))
}
