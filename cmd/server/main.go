package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"certify/internal/platform/config"
	"certify/internal/platform/database"
	"certify/internal/platform/health"
	"certify/internal/platform/issuer"
	"certify/internal/platform/kafka/producer"
	"certify/internal/platform/logger"
	"certify/internal/platform/outbox"
	"certify/internal/platform/redis"
	"certify/internal/platform/telemetry"
	registryhandler "certify/internal/registry/handler"
	registrymetrics "certify/internal/registry/metrics"
	registryservice "certify/internal/registry/service"
	registrystore "certify/internal/registry/store"
	"certify/internal/registry/stream"
	"certify/internal/registry/tracer"
	"certify/pkg/digest"
	"certify/pkg/platform/circuit"
	"certify/pkg/platform/middleware/request"
	"certify/pkg/validation"
)

// outboxRetention is how long published outbox entries are kept.
const outboxRetention = 24 * time.Hour

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// infra holds the optional backing services. Nil fields are not configured.
type infra struct {
	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

func (i *infra) close(log *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Error("failed to close kafka producer", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing certify",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"network_id", cfg.Registry.NetworkID,
		"backend", cfg.Registry.Backend,
	)

	algorithm, err := digest.ParseAlgorithm(cfg.Registry.DigestAlgorithm)
	if err != nil {
		return err
	}

	traces, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traces.Shutdown(flushCtx); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	st, tx, err := buildStore(cfg, deps)
	if err != nil {
		return err
	}

	healthHandler := health.New(cfg.Environment, cfg.Registry.NetworkID)
	hub := stream.NewHub(stream.WithBuffer(cfg.Stream.Buffer), stream.WithHubLogger(log))
	serviceOpts := []registryservice.Option{
		registryservice.WithTx(tx),
		registryservice.WithMetrics(registrymetrics.New()),
		registryservice.WithTracer(tracer.NewOTel(nil)),
		registryservice.WithLogger(log),
		registryservice.WithObserver(registryservice.NewLogObserver(log), hub),
	}

	g, gctx := errgroup.WithContext(ctx)

	if deps.producer != nil {
		var box outbox.Store = outbox.NewMemoryStore()
		if deps.db != nil {
			box = outbox.NewPostgres(deps.db.DB())
		}
		serviceOpts = append(serviceOpts, registryservice.WithObserver(registryservice.NewOutboxObserver(box)))

		worker := outbox.NewWorker(box, deps.producer,
			outbox.WithTopic(cfg.Kafka.Topic),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
			outbox.WithPollInterval(cfg.Kafka.PollInterval),
			outbox.WithMetrics(outbox.NewMetrics()),
			outbox.WithBreaker(circuit.New("kafka",
				circuit.WithOnStateChange(func(name string, from, to circuit.State) {
					log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				}),
			)),
			outbox.WithLogger(log),
		)
		g.Go(func() error { return worker.Run(gctx) })
		g.Go(func() error { return outboxJanitor(gctx, box, worker, log) })
		healthHandler.RegisterOptional("kafka", deps.producer.Health)
	}
	if deps.db != nil {
		healthHandler.RegisterCheck("database", deps.db.Health)
	}
	if deps.redis != nil {
		healthHandler.RegisterCheck("redis", deps.redis.Health)
		g.Go(func() error { return recordRedisStats(gctx, deps.redis) })
	}

	registry := registryservice.New(st, serviceOpts...)
	tokens := issuer.NewService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	if cfg.Auth.SigningKey == config.DevSigningKey && !cfg.IsLocal() {
		log.Warn("using the development issuer signing key outside a local environment")
	}

	router := newRouter(log)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Method(http.MethodGet, "/events", stream.NewHandler(hub, log,
		stream.WithOriginPatterns(cfg.Stream.AllowedOrigins...),
		stream.WithPingInterval(cfg.Stream.PingInterval),
	))
	registryhandler.New(registry, issuer.RequireIssuer(tokens, log), log,
		registryhandler.WithNetworkID(cfg.Registry.NetworkID),
		registryhandler.WithDigestAlgorithm(algorithm),
		registryhandler.WithMaxDocumentSize(cfg.Registry.MaxDocumentSize),
	).Register(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	var err error

	if cfg.Registry.Backend == config.BackendPostgres {
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return nil, err
			}
			log.Info("database migrations applied")
		}
		if deps.db, err = database.New(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}
	if cfg.Registry.Backend == config.BackendRedis {
		if deps.redis, err = redis.New(ctx, cfg.Redis); err != nil {
			deps.close(log)
			return nil, err
		}
	}
	if cfg.Kafka.Brokers != "" {
		if deps.producer, err = producer.New(cfg.Kafka, log); err != nil {
			deps.close(log)
			return nil, err
		}
	}
	return deps, nil
}

func buildStore(cfg config.Server, deps *infra) (registryservice.Store, registryservice.LedgerTx, error) {
	if err := cfg.Registry.Validate(); err != nil {
		return nil, nil, err
	}
	var st registryservice.Store
	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		if deps.db == nil {
			return nil, nil, errors.New("postgres backend selected but DATABASE_URL is empty")
		}
		// Commits write through the transaction-scoped store, so the cache is
		// invalidated by the tx after commit rather than refreshed in place.
		st = registrystore.NewPostgres(deps.db.DB())
		var cache *registrystore.CachedStore
		if cfg.Registry.CacheTTL > 0 {
			cache = registrystore.NewCached(st, cfg.Registry.CacheTTL)
			st = cache
		}
		return st, newRegistryPostgresTx(deps.db.DB(), cfg.Registry.TxTimeout, cache), nil
	case config.BackendRedis:
		if deps.redis == nil {
			return nil, nil, errors.New("redis backend selected but REDIS_URL is empty")
		}
		st = registrystore.NewRedis(deps.redis.Client)
	case config.BackendMemory:
		st = registrystore.NewInMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}
	if cfg.Registry.CacheTTL > 0 {
		st = registrystore.NewCached(st, cfg.Registry.CacheTTL)
	}
	return st, registryservice.NewLocalTx(st, cfg.Registry.TxTimeout), nil
}

func newRouter(log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.ClientIP)
	r.Use(request.Logger(log))
	r.Use(request.Latency(request.NewMetrics()))
	r.Use(request.BodyLimit(validation.MaxDocumentSize + validation.MaxBodySize))
	return r
}

func outboxJanitor(ctx context.Context, box outbox.Store, worker *outbox.Worker, log *slog.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := worker.UpdateMetrics(ctx); err != nil && ctx.Err() == nil {
				log.WarnContext(ctx, "failed to count pending outbox entries", "error", err)
			}
			n, err := box.DeleteProcessedBefore(ctx, time.Now().Add(-outboxRetention))
			if err != nil && ctx.Err() == nil {
				log.WarnContext(ctx, "failed to prune outbox", "error", err)
			} else if n > 0 {
				log.InfoContext(ctx, "pruned outbox", "deleted", n)
			}
		}
	}
}

func recordRedisStats(ctx context.Context, client *redis.Client) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			client.RecordPoolStats()
		}
	}
}
