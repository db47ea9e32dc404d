// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator is the composition root: it wires C1-C9 behind the
// `/chatbot/*` HTTP surface (§6) and owns the lifetime of every
// process-wide singleton (§9 "Global singletons").
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/agent"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/safety"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/routes"
)

// Service is the running orchestrator: a configured gin.Engine plus the
// background processes (TTL sweeper, tracer) that must be torn down
// together.
type Service interface {
	// Run blocks, serving HTTP until the process is terminated.
	Run() error
	// Router exposes the underlying gin.Engine, primarily for tests.
	Router() *gin.Engine
}

// Config configures a Service (§6 "Environment configuration").
type Config struct {
	Port string

	SessionTTL time.Duration
	CacheDir   string

	EnableMetrics bool
	EnableTracing bool

	GinMode string
}

// applyConfigDefaults fills in the §6-specified defaults for any zero-value
// field of cfg.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = "8001"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	return cfg
}

// ConfigFromEnv reads PORT, SESSION_TTL_SECONDS, and CACHE_DIR (§6).
func ConfigFromEnv() Config {
	cfg := Config{
		Port:          strings.TrimSpace(os.Getenv("PORT")),
		CacheDir:      strings.TrimSpace(os.Getenv("CACHE_DIR")),
		EnableMetrics: true,
		EnableTracing: true,
	}
	if raw := strings.TrimSpace(os.Getenv("SESSION_TTL_SECONDS")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.SessionTTL = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

type service struct {
	cfg    Config
	logger *logging.Logger

	router *gin.Engine

	registry    *session.Registry
	docIndex    *docs.Index
	llmClient   *llm.Client
	metrics     *observability.ChatbotMetrics
	cleanupFns  []func(context.Context)
}

var _ Service = (*service)(nil)

// New constructs a Service: it initializes tracing, metrics, the LLM
// Gateway, Doc Index, Session Registry, Safety Gate, and Agent Controller,
// in that order, then builds the router (§9 init-order note: the Gateway
// must exist before anything that calls it).
func New(cfg Config, logger *logging.Logger) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if logger == nil {
		logger = logging.Default()
	}
	s := &service{cfg: cfg, logger: logger}

	if cfg.EnableTracing {
		if err := s.initTracer(); err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
	}
	if cfg.EnableMetrics {
		s.metrics = observability.InitMetrics()
	}
	if err := s.initLLMClient(); err != nil {
		return nil, fmt.Errorf("init LLM gateway: %w", err)
	}
	if err := s.initDocIndex(); err != nil {
		return nil, fmt.Errorf("init doc index: %w", err)
	}
	s.initSessionRegistry()
	controller := s.initAgentController()
	s.initRouter(controller)

	return s, nil
}

// initTracer wires an OpenTelemetry stdout trace exporter (no external
// collector is specified by the HTTP surface; see DESIGN.md for the
// dropped OTLP/gRPC dependency).
func (s *service) initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String("aleutian-orchestrator")))
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return err
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(60*time.Second))))
	otel.SetMeterProvider(mp)

	s.cleanupFns = append(s.cleanupFns, func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown failed", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			s.logger.Error("meter provider shutdown failed", "error", err)
		}
	})
	return nil
}

func (s *service) initLLMClient() error {
	client, err := llm.NewFromEnv(s.logger)
	if err != nil {
		return err
	}
	s.llmClient = client
	s.cleanupFns = append(s.cleanupFns, func(context.Context) {
		if err := s.llmClient.Close(); err != nil {
			s.logger.Error("LLM gateway close failed", "error", err)
		}
	})
	return nil
}

func (s *service) initDocIndex() error {
	idx, err := docs.New(docs.Config{CacheDir: s.cfg.CacheDir}, s.llmClient, s.logger)
	if err != nil {
		return err
	}
	if err := idx.Init(context.Background()); err != nil {
		return err
	}
	s.docIndex = idx
	s.cleanupFns = append(s.cleanupFns, func(context.Context) {
		if err := s.docIndex.Close(); err != nil {
			s.logger.Error("doc index close failed", "error", err)
		}
	})
	return nil
}

func (s *service) initSessionRegistry() {
	reg := session.NewRegistry(s.cfg.SessionTTL, s.logger)
	reg.StartSweeper(s.cfg.SessionTTL / 4)
	s.registry = reg
	s.cleanupFns = append(s.cleanupFns, func(context.Context) {
		s.registry.Stop()
	})
}

func (s *service) initAgentController() *agent.Controller {
	gate := safety.New(s.llmClient)
	return agent.New(s.llmClient, gate, s.docIndex, s.logger)
}

func (s *service) initRouter(controller *agent.Controller) {
	gin.SetMode(s.cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-orchestrator"))
	routes.SetupRoutes(router, s.registry, controller, s.docIndex, s.logger, s.metrics)
	s.router = router
}

// Router returns the underlying gin.Engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it exits.
func (s *service) Run() error {
	defer s.cleanup()
	addr := ":" + s.cfg.Port
	s.logger.Info("starting orchestrator", "addr", addr)
	return s.router.Run(addr)
}

func (s *service) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range s.cleanupFns {
		fn(ctx)
	}
}
