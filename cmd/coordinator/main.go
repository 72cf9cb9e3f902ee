// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingrobots/jobcoordinator/internal/api"
	"github.com/flyingrobots/jobcoordinator/internal/audit"
	"github.com/flyingrobots/jobcoordinator/internal/bots"
	"github.com/flyingrobots/jobcoordinator/internal/config"
	"github.com/flyingrobots/jobcoordinator/internal/datalake"
	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/monitor"
	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/registry"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML config (optional; env vars always apply)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogEncoding, cfg.Observability.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Store.DatabaseURL, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
	if err != nil {
		logger.Fatal("failed to open store", obs.Err(err))
	}
	defer st.Close()

	reg, err := registry.Load(cfg.Registry.Dir, cfg.Registry.IncludeGlobs, cfg.Registry.ExcludeGlobs)
	if err != nil {
		logger.Fatal("failed to load operation registry", obs.Err(err))
	}

	if err := st.EnsureSchema(context.Background(), reg.Names()); err != nil {
		logger.Fatal("failed to apply schema", obs.Err(err))
	}

	sink, err := datalake.New(cfg.Datalake.Dir, func(appendErr error) {
		obs.DatalakeAppendsDropped.Inc()
		logger.Warn("datalake append dropped", obs.Err(appendErr))
	})
	if err != nil {
		logger.Fatal("failed to open datalake sink", obs.Err(err))
	}
	defer sink.Close()

	auditLog, err := audit.New(cfg.Audit.Dir)
	if err != nil {
		logger.Fatal("failed to open audit log", obs.Err(err))
	}
	defer auditLog.Close()

	jobsSvc := jobs.New(st, reg, sink, logger)
	botsSvc := bots.New(st, cfg.Monitors.BotDownThreshold, logger)

	populator := monitor.NewPopulator(jobsSvc, reg, cfg.Populator.BatchSize, cfg.Populator.PendingCeiling, logger, cfg.Monitors.HistorySize)
	claimedMon := monitor.NewClaimedJobMonitor(st, jobsSvc, cfg.Monitors.ClaimedJobTimeout, cfg.Monitors.MaxRecoveriesPerCycle, logger, cfg.Monitors.HistorySize)
	processingMon := monitor.NewProcessingJobMonitor(st, jobsSvc, cfg.Monitors.ProcessingJobTimeout, cfg.Monitors.MaxRecoveriesPerCycle, logger, cfg.Monitors.HistorySize)
	retention := monitor.NewRetentionCleaner(st, cfg.Monitors.BotRetention, logger, cfg.Monitors.HistorySize)
	scheduler := monitor.NewScheduler(logger, populator, claimedMon, processingMon, retention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx,
		time.Duration(cfg.Populator.IntervalMS)*time.Millisecond,
		cfg.Monitors.ClaimedCheckInterval,
		cfg.Monitors.ProcessingCheckInterval,
		cfg.Monitors.CleanupInterval,
	); err != nil {
		logger.Fatal("failed to start monitor scheduler", obs.Err(err))
	}
	defer scheduler.Stop()

	apiServer := api.NewServer(cfg.API, logger, jobsSvc, botsSvc, reg, populator, retention, scheduler, auditLog)
	apiErrCh := apiServer.Start()

	metricsServer := obs.StartMetricsServer(cfg)
	defer func() { _ = metricsServer.Shutdown(context.Background()) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startupFailed := false
	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
	case err := <-apiErrCh:
		logger.Error("http server failed to start", obs.Err(err))
		startupFailed = true
	}

	go func() {
		sig2 := <-sigCh
		logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", obs.Err(err))
		os.Exit(1)
	}
	if startupFailed {
		os.Exit(1)
	}
}
