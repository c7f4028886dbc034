// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/jinterlante1206/AureaControl/pkg/logging"
	"github.com/jinterlante1206/AureaControl/services/controller/arbiter"
	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/config"
	"github.com/jinterlante1206/AureaControl/services/controller/escalation"
	"github.com/jinterlante1206/AureaControl/services/controller/feed"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
	"github.com/jinterlante1206/AureaControl/services/controller/observability"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
	"github.com/jinterlante1206/AureaControl/services/controller/routes"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aurea-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("pressure-controller")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := logging.New(os.Stdout)
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("FATAL: could not load the controller config: %v", err)
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	// --- Audit trail, optionally persisted ---
	var archive *audit.Archive
	if cfg.Audit.ArchivePath != "" {
		archive, err = audit.OpenArchive(cfg.Audit.ArchivePath, logger)
		if err != nil {
			log.Fatalf("FATAL: could not open the audit archive: %v", err)
		}
		defer archive.Close()
	}
	var sink audit.Sink
	if archive != nil {
		sink = archive
	}
	auditLog := audit.NewLog(sink, logger)

	// --- Core state ---
	eventBus := bus.New(cfg.Bus.QueueBound, logger)
	reg := registry.New(cfg.Valves.ElevatedRatio, cfg.Valves.CriticalRatio, cfg.Valves.CascadeThreshold)
	lockTable := lockstate.NewTable(lockstate.NewSystemClock(), cfg.Locks.DefaultTTL, logger)
	lockTable.OnDenied = metrics.RecordLockDenial
	quarantine := ledger.New(cfg.Quarantine.CapacityUnits)
	broadcaster := feed.NewBroadcaster(logger)

	engine := arbiter.New(lockTable, quarantine, arbiter.Config{
		ClusterActionable: cfg.Valves.ClusterCritical,
		QuarantineAlarm:   cfg.Valves.CriticalRatio,
	})

	// --- Escalation delivery ---
	var notifier escalation.Notifier
	if cfg.Escalation.WebhookURL != "" {
		notifier = escalation.NewWebhookNotifier(cfg.Escalation.WebhookURL, nil)
		slog.Info("escalations deliver by webhook", "url", cfg.Escalation.WebhookURL)
	} else {
		notifier = escalation.NewLogNotifier(logger)
		slog.Info("escalations deliver to the structured log")
	}
	escalationSink := escalation.NewSink(notifier, auditLog, escalation.Config{
		QueueBound:    cfg.Escalation.QueueBound,
		MaxAttempts:   cfg.Escalation.MaxAttempts,
		BaseBackoff:   cfg.Escalation.BaseBackoff,
		RatePerSecond: cfg.Escalation.RatePerSecond,
	}, logger)

	controller := NewController(eventBus, engine, reg, lockTable, quarantine,
		auditLog, escalationSink, broadcaster, metrics, logger)
	sweeper := lockstate.NewSweeper(lockTable, cfg.Locks.SweepInterval,
		controller.HandleLockExpiry, logger)

	// --- HTTP surface ---
	router := gin.Default()
	router.Use(otelgin.Middleware("pressure-controller"))
	routes.SetupRoutes(router, routes.Deps{
		Bus:         eventBus,
		Registry:    reg,
		Locks:       lockTable,
		Ledger:      quarantine,
		AuditLog:    auditLog,
		Broadcaster: broadcaster,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := escalationSink.Start(ctx); err != nil {
		log.Fatalf("FATAL: could not start the escalation sink: %v", err)
	}
	defer escalationSink.Stop()
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("FATAL: could not start the lock sweeper: %v", err)
	}
	defer sweeper.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return controller.Run(groupCtx)
	})
	group.Go(func() error {
		slog.Info("starting the controller server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("controller exited with error: %v", err)
	}
	slog.Info("controller shut down cleanly")
}

// loadConfig reads the YAML config named by CONTROLLER_CONFIG_PATH, or
// runs on defaults plus environment overrides when unset.
func loadConfig() (config.Config, error) {
	if path := os.Getenv("CONTROLLER_CONFIG_PATH"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}
