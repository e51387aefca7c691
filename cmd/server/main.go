package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"covid-parser/internal/cli"
)

type Application struct {
	configPath string
	debug      bool
}

func main() {
	app := &Application{}

	flag.StringVar(&app.configPath, "config", "", "Configuration file path")
	flag.BoolVar(&app.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := app.Run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []cli.Option
	if app.debug {
		opts = append(opts, cli.WithLogLevel("debug"))
	}

	wired, err := cli.Bootstrap(app.configPath, opts...)
	if err != nil {
		return err
	}
	return cli.RunServer(ctx, wired)
}
