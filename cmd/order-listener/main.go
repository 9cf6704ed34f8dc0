package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picklist/internal/app"
	"picklist/internal/config"
	imapconnector "picklist/internal/connectors/imap"
	"picklist/internal/listener"
	"picklist/internal/logging"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	must(err)
	defer a.Close()

	conn, err := imapconnector.NewConnector(cfg, logger.Named("imap"))
	must(err)

	svc := listener.NewService(conn, a.Processing, a.DB, listener.Options{
		Mailbox:   cfg.ListenerMailbox,
		FetchMax:  cfg.ListenerFetchMax,
		Interval:  time.Duration(cfg.ListenerIntervalSec) * time.Second,
		UserID:    cfg.ListenerUserID,
		OutputDir: cfg.OutputDir,
	}, logger.Named("listener"))

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
