package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/calmerge/calmerge-server/app"
	"github.com/calmerge/calmerge-server/config"
	"github.com/calmerge/calmerge-server/errors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()
	appConfig, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config:\n%s", errors.Prettify(err))
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := app.NewApp(appConfig)
	if err := server.Boot(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "boot:\n%s", errors.Prettify(err))
		os.Exit(1)
	}
}
