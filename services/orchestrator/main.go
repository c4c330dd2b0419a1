// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/agentpool"
	"github.com/tteon/seocho/services/orchestrator/config"
	"github.com/tteon/seocho/services/orchestrator/debate"
	"github.com/tteon/seocho/services/orchestrator/middleware"
	"github.com/tteon/seocho/services/orchestrator/observability"
	"github.com/tteon/seocho/services/orchestrator/platform"
	"github.com/tteon/seocho/services/orchestrator/registry"
	"github.com/tteon/seocho/services/orchestrator/routes"
	"github.com/tteon/seocho/services/orchestrator/runtime"
	"github.com/tteon/seocho/services/orchestrator/semantic"
	"github.com/tteon/seocho/services/orchestrator/session"
	"github.com/tteon/seocho/services/orchestrator/supervisor"
	"github.com/tteon/seocho/services/policy_engine"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	if endpoint == "" {
		endpoint = "seocho-otel-collector:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("seocho-orchestrator")))
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer(cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	policyEngine, err := policy_engine.NewPolicyEngine()
	if err != nil {
		log.Fatalf("FATAL: could not initialize the policy engine: %v", err)
	}

	if cfg.Neo4jURI == "" {
		log.Fatal("NEO4J_URI is required")
	}
	gateway, err := graph.NewNeo4jGateway(graph.Config{
		URI:          cfg.Neo4jURI,
		User:         cfg.Neo4jUser,
		Password:     cfg.Neo4jPassword,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect to the graph backend: %v", err)
	}

	var llmClient llm.LLMClient
	if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			log.Fatalf("failed to initialize the LLM client: %v", err)
		}
		slog.Info("using OpenAI LLM backend", "model", cfg.OpenAIModel)
	} else {
		slog.Warn("OPENAI_API_KEY not set, running without model-backed flows; " +
			"debate and single modes will fail, semantic answers stay deterministic")
	}

	reg := registry.New()
	for _, db := range cfg.Databases {
		if err := reg.Register(db); err != nil {
			log.Fatalf("invalid configured database %q: %v", db, err)
		}
	}

	var hints *semantic.HintStore
	if cfg.HintsPath != "" {
		hints = semantic.NewHintStore(cfg.HintsPath, logger)
		if stop, err := hints.Watch(); err != nil {
			slog.Warn("hint hot-reload disabled", "error", err)
		} else {
			defer stop()
		}
	}

	pool := agentpool.NewPool(gateway, cfg.ProbeTTL, logger)
	runner := runtime.NewRunner(llmClient)
	resolver := semantic.NewResolver(gateway, hints, logger)
	flow := semantic.NewFlow(gateway, resolver, semantic.NewRouter(llmClient, logger), llmClient, logger)
	deb := debate.New(pool, runner, debate.Config{
		AgentTimeout: cfg.AgentTimeout,
		Grace:        cfg.Grace,
		Parallelism:  cfg.Parallelism,
	}, logger)
	sup := supervisor.New(reg, policyEngine, pool, runner, flow, deb, supervisor.Config{
		RequestTimeout: cfg.RequestTimeout,
		CacheCapacity:  cfg.CacheCapacity,
	}, logger)

	sessions, err := session.Open(cfg.SessionPath, logger)
	if err != nil {
		log.Fatalf("failed to open the session store: %v", err)
	}
	defer sessions.Close()
	coordinator := platform.NewCoordinator(sup, sessions, logger)

	metrics := observability.InitMetrics()

	router := gin.Default()
	router.Use(otelgin.Middleware("seocho-orchestrator"))
	router.Use(middleware.RequestIDMiddleware(logger))
	router.Use(middleware.ConcurrencyLimit(cfg.MaxInFlight))

	routes.SetupRoutes(router, routes.Deps{
		Supervisor:       sup,
		Coordinator:      coordinator,
		Registry:         reg,
		Pool:             pool,
		Gateway:          gateway,
		PolicyEngine:     policyEngine,
		Metrics:          metrics,
		DefaultWorkspace: cfg.WorkspaceID,
	})

	slog.Info("starting the orchestrator server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
