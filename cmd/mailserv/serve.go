package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/infodancer/mailserv/internal/config"
	"github.com/infodancer/mailserv/internal/dispatch"
	"github.com/infodancer/mailserv/internal/logging"
	"github.com/infodancer/mailserv/internal/mailbox"
	"github.com/infodancer/mailserv/internal/metrics"
	"github.com/infodancer/mailserv/internal/pop3"
	"github.com/infodancer/mailserv/internal/server"
	"github.com/infodancer/mailserv/internal/smtp"
	"github.com/infodancer/mailserv/internal/status"
)

func runServe() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	if cfg.LogFile != "" {
		fileLogger, closer, err := logging.NewFileLogger(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer closer.Close()
		logger = fileLogger
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.SpoolDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "error creating spool directory: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	})
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	entries := make([]mailbox.DomainEntry, len(cfg.Domains))
	for i, d := range cfg.Domains {
		entries[i] = mailbox.DomainEntry{Domain: d.Name, Root: d.Mailboxes}
	}
	registry := mailbox.NewRegistry(entries)
	locks := mailbox.NewLockRegistry()

	dispatcher := dispatch.New(dispatch.Config{
		Hostname:     cfg.Hostname,
		SpoolDir:     cfg.SpoolDir,
		Mailboxes:    registry,
		Workers:      cfg.SenderThreads,
		ScanInterval: cfg.ScanIntervalDuration(),
		Collector:    collector,
		Logger:       logger,
	})
	dispatcher.Start(ctx)

	smtpListener := server.NewListener(server.ListenerConfig{
		Address:        cfg.SMTP.Address,
		Protocol:       "smtp",
		IdleTimeout:    cfg.Timeouts.ConnectionTimeout(),
		CommandTimeout: cfg.Timeouts.CommandTimeout(),
		Logger:         logger,
		Handler: smtp.Handler(smtp.HandlerConfig{
			Hostname:  cfg.Hostname,
			SpoolDir:  cfg.SpoolDir,
			Mailboxes: registry,
			Collector: collector,
			Spooled:   dispatcher.Kick,
		}),
	})

	pop3Listener := server.NewListener(server.ListenerConfig{
		Address:        cfg.POP3.Address,
		Protocol:       "pop3",
		IdleTimeout:    cfg.Timeouts.ConnectionTimeout(),
		CommandTimeout: cfg.Timeouts.CommandTimeout(),
		Logger:         logger,
		Handler: pop3.Handler(pop3.HandlerConfig{
			Hostname:  cfg.Hostname,
			Mailboxes: registry,
			Locks:     locks,
			Collector: collector,
		}),
	})

	if cfg.Status.Enabled {
		statusServer := status.NewServer(cfg.Status.Address, status.Info{
			Hostname:    cfg.Hostname,
			SMTPAddress: cfg.SMTP.Address,
			POP3Address: cfg.POP3.Address,
			Domains:     registry.Domains(),
		}, cfg.SpoolDir)
		go func() {
			if err := statusServer.Start(ctx); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	logger.Info("starting mailserv",
		"hostname", cfg.Hostname,
		"smtp", cfg.SMTP.Address,
		"pop3", cfg.POP3.Address,
		"spool", cfg.SpoolDir,
		"domains", len(cfg.Domains),
		"workers", cfg.SenderThreads,
	)

	errCh := make(chan error, 2)
	go func() { errCh <- smtpListener.Start(ctx) }()
	go func() { errCh <- pop3Listener.Start(ctx) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && err != context.Canceled {
			logger.Error("listener error", "error", err)
			cancel()
		}
	}

	// Let in-flight deliveries finish before exiting.
	dispatcher.Wait()
	logger.Info("mailserv stopped")
}
