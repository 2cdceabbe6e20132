package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/refledger/internal/config"
	"github.com/punchamoorthee/refledger/internal/reconcile"
	"github.com/punchamoorthee/refledger/internal/store"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit non-zero on findings")
	window := flag.Duration("window", 24*time.Hour, "commission minted look-back window")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ledgerStore, err := store.NewStore(context.Background(), cfg.DBSource, 4)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer ledgerStore.Close()

	auditor := reconcile.NewAuditor(ledgerStore.Queries, *window, logger)

	if *once {
		report, err := auditor.Run(context.Background())
		if err != nil {
			logger.Fatal("reconciliation failed", zap.Error(err))
		}
		if !report.Clean() {
			logger.Error("reconciliation found inconsistencies", zap.Int("findings", report.FindingCount()))
			os.Exit(1)
		}
		logger.Info("reconciliation clean")
		return
	}

	scheduler := reconcile.NewScheduler(auditor, cfg.ReconcileSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	go auditor.RunAndLog()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server starting", zap.String("port", cfg.MetricsPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down reconciler")

	<-scheduler.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
