package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"mailpulse/internal/admin"
	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/graph"
	"mailpulse/internal/indexing"
	"mailpulse/internal/ingestion"
	"mailpulse/internal/ledger"
	"mailpulse/internal/logger"
	"mailpulse/internal/scheduler"
	"mailpulse/internal/subscription"
	"mailpulse/pkg/bootstrap"
	"mailpulse/pkg/cel"
	"mailpulse/pkg/clock"
	"mailpulse/pkg/health"
	"mailpulse/pkg/logging"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/middleware"
	"mailpulse/pkg/ratelimit"
	"mailpulse/pkg/retry"
	"mailpulse/pkg/tracing"
)

const (
	ledgerJanitorInterval = time.Minute
	ledgerMetricsInterval = 30 * time.Second
)

// App runs the webhook, the renewal scheduler, the worker pool and the
// admin API in one process.
type App struct {
	*bootstrap.Base
	graph          *graph.Client
	manager        *subscription.Manager
	renewer        *scheduler.Renewer
	ledger         *ledger.Service
	memoryLedger   *ledger.MemoryRepository
	pool           *ingestion.Pool
	pipeline       *ingestion.Pipeline
	indexer        indexing.Indexer
	limiter        *ratelimit.Limiter
	health         *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterSubscriptionMetrics()
	metrics.RegisterIngestionMetrics()
	metrics.RegisterIndexingMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitDatabases(ctx); err != nil {
		return err
	}

	if err := a.initSubscription(ctx); err != nil {
		return fmt.Errorf("failed to initialize subscription manager: %w", err)
	}

	if err := a.initIngestion(); err != nil {
		return fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	a.initHealth()

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

// newManager builds the lifecycle manager over the configured store, and
// the provider client it drives.
func newManager(cfg *config.Config, conns *bootstrap.Connections, log logger.Logger) (*subscription.Manager, *graph.Client, error) {
	store, err := subscription.NewStore(cfg, conns)
	if err != nil {
		return nil, nil, err
	}

	client := graph.NewClient(cfg.Graph, cfg.CircuitBreaker, log)
	opts := subscription.OptionsFromConfig(cfg.Graph, cfg.Subscription)
	return subscription.NewManager(client, store, opts, log), client, nil
}

func (a *App) initSubscription(ctx context.Context) error {
	manager, client, err := newManager(a.Config, a.Conns, a.Logger)
	if err != nil {
		return err
	}
	a.manager = manager
	a.graph = client

	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	sub := a.Config.Subscription
	retryPolicy := retry.PolicyFromConfig(config.RetryConfig{
		InitialInterval: sub.RetryInterval,
		MaxInterval:     sub.RetryMaxInterval,
	})
	a.renewer = scheduler.NewRenewer(a.manager, sub.Tick(), retryPolicy, a.Logger)
	return nil
}

func (a *App) initLedger() {
	var repo ledger.Repository
	switch a.Config.Ingestion.Ledger {
	case constants.LedgerRedis:
		repo = ledger.NewRedisRepository(a.Conns.Redis)
		if a.Config.CircuitBreaker.Enabled {
			repo = ledger.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
			a.Logger.Info("Circuit breaker enabled for ledger repository")
		}
	default:
		a.memoryLedger = ledger.NewMemoryRepository()
		repo = a.memoryLedger
	}
	a.ledger = ledger.NewService(repo, a.Config.Ingestion, a.Logger)
}

func (a *App) initIndexer() (indexing.Indexer, error) {
	if a.indexer != nil {
		return a.indexer, nil
	}
	switch a.Config.Indexing.Mode {
	case constants.IndexingModeKafka:
		if err := a.InitProducer(); err != nil {
			return nil, err
		}
		metrics.RegisterBrokerMetrics()
		return indexing.NewBrokerIndexer(a.Producer, a.Config.Indexing.Topic, a.Logger), nil
	default:
		return newIndexingPipeline(a.Config, a.Conns, a.Logger), nil
	}
}

func newIndexingPipeline(cfg *config.Config, conns *bootstrap.Connections, log logger.Logger) *indexing.Pipeline {
	return indexing.NewPipeline(
		indexing.NewChunker(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap),
		indexing.NewHTTPEmbedder(cfg.Indexing.Embedding, cfg.CircuitBreaker),
		indexing.NewPostgresVectorStore(conns.Postgres),
		log,
	)
}

func (a *App) initIngestion() error {
	a.initLedger()

	indexer, err := a.initIndexer()
	if err != nil {
		return err
	}

	var filter *cel.Filter
	if expr := a.Config.Ingestion.FilterExpression; expr != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return err
		}
		filter, err = evaluator.CompileFilter(expr)
		if err != nil {
			return fmt.Errorf("invalid ingestion.filter_expression: %w", err)
		}
		a.Logger.Infow("Message filter enabled", "expression", expr)
	}

	ic := a.Config.Ingestion
	a.pool = ingestion.NewPool(ic.Workers, ic.QueueSize, ic.DrainTimeout, a.Logger)
	a.pipeline = ingestion.NewPipeline(ingestion.Dependencies{
		ClientState: a.manager,
		Ledger:      a.ledger,
		Fetcher:     a.graph,
		Indexer:     indexer,
		Pool:        a.pool,
		Filter:      filter,
		Clock:       clock.Real(),
	}, ic, a.Logger)
	return nil
}

func (a *App) initHealth() {
	a.health = health.NewCheckerRegistry()
	a.health.Register(health.NewSubscriptionChecker(a.manager, clock.Real()))
	if a.Conns.Redis != nil {
		a.health.Register(health.NewRedisChecker(a.Conns.Redis))
	}
	if a.Conns.Postgres != nil {
		a.health.Register(health.NewSQLChecker("postgresql", a.Conns.Postgres))
	}
	if a.Conns.SQLite != nil {
		a.health.Register(health.NewSQLChecker("sqlite", a.Conns.SQLite))
	}
	if a.Conns.Mongo != nil {
		a.health.Register(health.NewMongoDBChecker(a.Conns.Mongo))
	}
}

func (a *App) initServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger, a.Config.Ingestion.WebhookPath))

	ingestion.NewHandler(a.pipeline, a.Logger).RegisterRoutes(router, a.Config.Ingestion.WebhookPath)

	if a.Config.Admin.Enabled {
		api := router.Group("")
		if a.Config.Admin.RateLimit.Enabled {
			metrics.RegisterAdminMetrics()
			rl := ratelimit.FromSettings(a.Config.Admin.RateLimit)
			a.limiter = ratelimit.NewLimiter(rl)
			api.Use(a.limiter.Middleware())
			a.Logger.Infow("Rate limiting enabled for admin API", "rps", rl.RPS, "burst", rl.Burst)
		}
		admin.NewHandler(a.manager, clock.Real(), a.Logger).RegisterRoutes(api)
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/health", func(c *gin.Context) {
		h := a.health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

// Run blocks until ctx is cancelled or a component fails. The scheduler
// returning an authentication error stops the whole process.
func (a *App) Run(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.renewer.Run(gCtx)
	})

	g.Go(func() error {
		return a.pool.Run(gCtx)
	})

	g.Go(func() error {
		return a.ledger.RunCacheMetrics(gCtx, ledgerMetricsInterval)
	})

	if a.memoryLedger != nil {
		g.Go(func() error {
			return a.memoryLedger.RunJanitor(gCtx, ledgerJanitorInterval)
		})
	}

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gCtx)
			return nil
		})
	}

	runErr := g.Wait()
	if err := a.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) Shutdown(ctx context.Context) error {
	additional := func(ctx context.Context) []error {
		var errs []error

		if a.manager != nil && a.Config.Subscription.DeleteOnShutdown {
			teardownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			if err := a.manager.Teardown(teardownCtx); err != nil {
				errs = append(errs, fmt.Errorf("subscription teardown error: %w", err))
			}
			cancel()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(context.Background()); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return errs
	}

	return a.Base.Shutdown(context.Background(), additional)
}
