package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/setup"
	"github.com/airenas/tflow/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	manifestFile := flag.String("m", "", "Batch manifest yml file")
	outDir := flag.String("o", "", "Dir to save results")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	goapp.StartWithDefault()
	if !flag.Parsed() {
		flag.Parse()
	}
	cfg := goapp.Config
	setup.SetDefaults(cfg)

	printBanner()

	ctx, cf := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go utils.RunPerfEndpoint(ctx, cfg.GetInt("debug.port"))

	app, err := setup.New(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init")
	}
	console := setup.NewConsole(os.Stdout, !*noColor)
	app.Monitor.Subscribe(console)
	go func() {
		if err := app.StartStatus(); err != nil {
			goapp.Log.Error().Err(err).Msg("can't start status service")
		}
	}()

	reqs, vr, err := app.Requests(flag.Args(), *manifestFile)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't prepare files")
	}
	for _, rj := range vr.Rejected {
		app.Monitor.Log(events.New(fmt.Sprintf("Rejected %s", rj.Error()), events.Warning))
	}
	if vr.HasTooMany() {
		app.Monitor.Log(events.New(fmt.Sprintf("Maximum %d files per batch", app.Policy.MaxFiles), events.Warning))
	}
	if len(reqs) == 0 {
		cf()
		goapp.Log.Fatal().Msg("no valid files")
	}

	s, err := app.Process(ctx, reqs)
	if err != nil {
		goapp.Log.Debug().Err(err).Msg("process")
	}
	console.Summary(s)
	if err := setup.SaveResults(*outDir, s); err != nil {
		goapp.Log.Error().Err(err).Msg("can't save results")
	}
	cf()
	if s.Failed > 0 {
		os.Exit(1)
	}
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
\__/_/ /_/\____/|__/|__/    upload

  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/tflow"))
}
