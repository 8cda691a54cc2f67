// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentinel starts the Aleutian Sentinel API server.
//
// Aleutian Sentinel investigates business issues in a commerce database:
//   - LLM-planned SQL with fail-closed read-only validation
//   - Tolerant batch execution, issue analysis, and fix proposals
//   - Outbound-safe notification dispatch (placebo routing by default)
//   - Linear pipeline and a tool-calling conversational agent
//
// Usage:
//
//	go run ./cmd/sentinel
//	go run ./cmd/sentinel -port 9090
//
// With Ollama (the default provider):
//
//	SENTINEL_LLM_BASE_URL=http://localhost:11434 SENTINEL_LLM_MODEL=glm-4.7-flash go run ./cmd/sentinel
//
// With a cloud provider:
//
//	SENTINEL_LLM_PROVIDER=anthropic ANTHROPIC_API_KEY=... go run ./cmd/sentinel
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/sentinel/health
//
//	# List the agent's tools
//	curl http://localhost:8080/v1/sentinel/tools | jq
//
//	# Run a full investigation in one call
//	curl -X POST http://localhost:8080/v1/sentinel/sessions/$(uuidgen)/investigate \
//	  -H "Content-Type: application/json" \
//	  -d '{"focus_areas": ["inventory"], "propose_issue": 1}'
//
//	# Chat with the agent
//	curl -X POST http://localhost:8080/v1/sentinel/sessions/$(uuidgen)/chat \
//	  -H "Content-Type: application/json" \
//	  -d '{"message": "Check the store for problems"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianSentinel/services/archive"
	"github.com/AleutianAI/AleutianSentinel/services/datastore"
	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/mailer"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/agent"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/api"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/tools"

	// SQL drivers for datastore.Open.
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// initTracer configures the global tracer provider.
//
// Description:
//
//	With OTEL_EXPORTER_OTLP_ENDPOINT set, spans export over gRPC to the
//	collector. With SENTINEL_TRACE_STDOUT=true they pretty-print to
//	stdout instead (local debugging). With neither, only the W3C
//	propagator is installed and spans stay no-op.
//
// Outputs:
//   - func(context.Context): shutdown hook flushing pending spans.
//   - error: non-nil when the configured exporter cannot be built.
func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var exporter sdktrace.SpanExporter
	switch {
	case os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "":
		conn, err := grpc.NewClient(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("connecting OTLP collector: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
	case os.Getenv("SENTINEL_TRACE_STDOUT") == "true":
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
	default:
		return func(context.Context) {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("aleutian-sentinel")))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", slog.String("error", err.Error()))
		}
	}, nil
}

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := initTracer()
	if err != nil {
		slog.Error("Failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	cfg := sentinel.LoadConfig()

	client, err := llm.NewClient(llm.LoadConfig())
	if err != nil {
		slog.Error("Failed to create completion client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Completion client ready",
		slog.String("provider", client.Name()),
		slog.String("model", client.Model()))

	data, err := datastore.Open(datastore.LoadConfig())
	if err != nil {
		slog.Error("Failed to open data store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := data.Close(); err != nil {
			slog.Warn("Data store close failed", slog.String("error", err.Error()))
		}
	}()

	sender := mailer.NewRelaySender(mailer.LoadConfig())
	mailerStatus := sender.Status()
	slog.Info("Mailer configured",
		slog.Bool("configured", mailerStatus.Configured),
		slog.Bool("placebo_mode", mailerStatus.Placebo),
		slog.String("transport_inbox", mailerStatus.TransportInbox))

	sessions, closeSessions := openSessionStore(cfg)
	defer closeSessions()

	archiver, err := archive.NewFromConfig(context.Background(), archive.LoadConfig())
	if err != nil {
		slog.Warn("Archiver unavailable, investigation artifacts will not be archived",
			slog.String("error", err.Error()))
		archiver = archive.NoopArchiver{}
	}

	events := sentinel.NewEventSink(sentinel.LoadEventSinkConfig())
	defer events.Close()

	schema, err := sentinel.LoadSchema(cfg.SchemaFile)
	if err != nil {
		slog.Error("Failed to load schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	templates, err := sentinel.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		slog.Error("Failed to load notification templates", slog.String("error", err.Error()))
		os.Exit(1)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go templates.Watch(watchCtx)

	svc, err := sentinel.NewService(sentinel.ServiceDeps{
		Config:    cfg,
		LLM:       client,
		Sessions:  sessions,
		Data:      data,
		Sender:    sender,
		Archiver:  archiver,
		Events:    events,
		Templates: templates,
		Schema:    schema,
	})
	if err != nil {
		slog.Error("Failed to build investigation service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := tools.NewInvestigationRegistry(svc)
	executor := tools.NewExecutor(registry, nil)
	ag := agent.New(svc, client, executor, cfg)
	handlers := api.NewHandlers(svc, sentinel.NewPipeline(svc), ag, registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-sentinel"))
	if *debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	api.RegisterRoutes(v1, handlers)

	printBanner(*port, svc.StoreName(), mailerStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Sentinel server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting Aleutian Sentinel server", slog.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openSessionStore picks BadgerDB persistence when a session directory is
// configured, in-memory otherwise.
func openSessionStore(cfg sentinel.Config) (sentinel.Store, func()) {
	if cfg.SessionDir == "" {
		slog.Info("Session persistence disabled (set SENTINEL_SESSION_DIR to enable)")
		return sentinel.NewMemoryStore(), func() {}
	}
	store, err := sentinel.OpenBadgerStore(sentinel.BadgerStoreConfig{
		Dir: cfg.SessionDir,
		TTL: cfg.SessionTTL,
	})
	if err != nil {
		slog.Warn("Session database unavailable, falling back to in-memory sessions",
			slog.String("dir", cfg.SessionDir),
			slog.String("error", err.Error()))
		return sentinel.NewMemoryStore(), func() {}
	}
	slog.Info("Session database opened", slog.String("dir", cfg.SessionDir))
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Session database close failed", slog.String("error", err.Error()))
		}
	}
}

func printBanner(port int, storeName string, status mailer.Status) {
	mode := "PLACEBO (outbound mail rerouted)"
	if !status.Placebo {
		mode = "LIVE (outbound mail enabled)"
	}
	if !status.Configured {
		mode = "DISABLED (set EMAILJS_* to enable)"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    ALEUTIAN SENTINEL SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  LLM-driven business issue investigation for %-20s ║
║  Mail dispatch: %-47s   ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/sentinel/health           │  ║
║  │                                                             │  ║
║  │ # List the agent's investigation tools                      │  ║
║  │ curl http://localhost:%d/v1/sentinel/tools | jq       │  ║
║  │                                                             │  ║
║  │ # Full investigation in one call                            │  ║
║  │ curl -X POST http://localhost:%d/v1/sentinel\         │  ║
║  │   /sessions/$(uuidgen)/investigate                          │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Stages: /plan, /execute, /analyze, /propose, /dispatch      ║
║  ├── Lookups: /issues, /issues/:num, /state, /mailer/status      ║
║  ├── Drafts: POST /emails, PATCH /emails/:index                  ║
║  └── Agent: /chat, /ws, /investigate, /reset                     ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, storeName, mode, port, port, port)
}
