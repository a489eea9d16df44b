package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/indexing"
	"mailpulse/internal/logger"
	"mailpulse/pkg/bootstrap"
	"mailpulse/pkg/health"
	"mailpulse/pkg/logging"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/middleware"
	"mailpulse/pkg/tracing"
)

// Worker consumes documents published by a serve process in kafka
// indexing mode and runs them through chunking, embedding and storage.
type Worker struct {
	*bootstrap.Base
	pipeline       *indexing.Pipeline
	health         *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewWorker(cfg *config.Config, log logger.Logger) *Worker {
	return &Worker{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (w *Worker) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(w.Config.Tracing, constants.IndexWorkerName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	w.tracerProvider = tp

	metrics.RegisterIndexingMetrics()
	metrics.RegisterBrokerMetrics()
	if w.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	db, err := w.Connector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}
	w.Conns.Postgres = db

	w.pipeline = newIndexingPipeline(w.Config, w.Conns, w.Logger)

	if err := w.InitConsumer(constants.IndexWorkerName); err != nil {
		return err
	}

	w.health = health.NewCheckerRegistry()
	w.health.Register(health.NewSQLChecker("postgresql", db))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(w.Logger))
	router.GET("/health", func(c *gin.Context) {
		h := w.health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	w.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", w.Config.Server.Port),
		Handler: router,
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.IndexWorkerName)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Logger.InfowCtx(gCtx, "HTTP server starting", "port", w.Config.Server.Port)
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return w.Consumer.Consume(gCtx, w.Config.Indexing.Topic, indexing.EnvelopeHandler(w.pipeline))
	})

	runErr := g.Wait()
	if err := w.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (w *Worker) Shutdown(ctx context.Context) error {
	return w.Base.Shutdown(context.Background(), func(ctx context.Context) []error {
		if w.tracerProvider == nil {
			return nil
		}
		if err := w.tracerProvider.Shutdown(ctx); err != nil {
			return []error{fmt.Errorf("tracer provider shutdown error: %w", err)}
		}
		return nil
	})
}
