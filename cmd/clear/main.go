package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/setup"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	if !flag.Parsed() {
		flag.Parse()
	}
	cfg := goapp.Config
	setup.SetDefaults(cfg)

	printBanner()

	ctx, cf := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cf()

	app, err := setup.New(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init")
	}
	IDs := flag.Args()
	goapp.Log.Info().Strs("IDs", IDs).Msg("clear")
	if err := app.Client.Clear(ctx, IDs...); err != nil {
		cf()
		goapp.Log.Fatal().Err(err).Msg("server clear failed")
	}
	goapp.Log.Info().Msg("cleared")
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
\__/_/ /_/\____/|__/|__/    clear

  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/tflow"))
}
