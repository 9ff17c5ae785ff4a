package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hcobbs/xoe/internal/cliconfig"
	"github.com/hcobbs/xoe/internal/fsm"
	"github.com/hcobbs/xoe/internal/telemetry"
	"github.com/hcobbs/xoe/internal/xoelog"
)

func main() {
	os.Exit(run())
}

func run() int {
	boot := cliconfig.NewBuilder().Build(os.Args[1:])

	if boot.Help {
		fmt.Print(boot.HelpText)
		return 0
	}

	if err := xoelog.Init(xoelog.Config{Level: "INFO", Format: "text"}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logger, using defaults: %v\n", err)
	}

	if boot.Configuration.MetricsEnabled && boot.Configuration.MetricsPort != 0 {
		startMetricsServer(boot.Configuration.MetricsPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, "xoebridge")
	if err != nil {
		xoelog.Warn("failed to initialize telemetry, spans will not be recorded", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				xoelog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	machine := fsm.New(ctx, boot)
	return machine.Run()
}

// startMetricsServer serves Prometheus metrics on its own plain HTTP
// listener, independent of the loopback-only Management Interface. A
// failure here is logged, never fatal: metrics are ambient observability,
// not a role the bridge depends on to function.
func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			xoelog.Warn("metrics server stopped", "error", err)
		}
	}()
	xoelog.Info("metrics server listening", "port", port)
}
