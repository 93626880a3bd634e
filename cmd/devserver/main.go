package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/apiclient/internal/buildinfo"
	"github.com/dmitrijs2005/apiclient/internal/devserver"
	"github.com/dmitrijs2005/apiclient/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := devserver.LoadConfig()
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	if err := devserver.New(cfg, logger).Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
