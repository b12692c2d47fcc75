package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cataloghandler "regwatch/internal/catalog/handler"
	catalogmetrics "regwatch/internal/catalog/metrics"
	catalogservice "regwatch/internal/catalog/service"
	domainstore "regwatch/internal/catalog/store/domain"
	flagstore "regwatch/internal/catalog/store/flag"
	httpapi "regwatch/internal/http"
	lifecyclehandler "regwatch/internal/lifecycle/handler"
	lifecyclemetrics "regwatch/internal/lifecycle/metrics"
	lifecycleservice "regwatch/internal/lifecycle/service"
	lifecyclestore "regwatch/internal/lifecycle/store"
	listinghandler "regwatch/internal/listing/handler"
	listingmetrics "regwatch/internal/listing/metrics"
	listingservice "regwatch/internal/listing/service"
	"regwatch/internal/listing/snapshot"
	outboxmetrics "regwatch/internal/outbox/metrics"
	outboxstore "regwatch/internal/outbox/store"
	"regwatch/internal/outbox/worker"
	"regwatch/internal/platform/config"
	"regwatch/internal/platform/httpserver"
	"regwatch/internal/platform/kafka"
	"regwatch/internal/platform/logger"
	"regwatch/internal/platform/metrics"
	"regwatch/internal/platform/postgres"
	"regwatch/internal/platform/redis"
	ratelimitmetrics "regwatch/internal/ratelimit/metrics"
	ratelimitmw "regwatch/internal/ratelimit/middleware"
	ratelimitmodels "regwatch/internal/ratelimit/models"
	"regwatch/internal/ratelimit/store/bucket"
	"regwatch/internal/seed"
	audit "regwatch/pkg/platform/audit"
	"regwatch/pkg/platform/audit/publisher"
	auditmemory "regwatch/pkg/platform/audit/store/memory"
	auditpostgres "regwatch/pkg/platform/audit/store/postgres"
	"regwatch/pkg/platform/circuit"
	"regwatch/pkg/platform/middleware/metadata"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

type storage struct {
	db         *sql.DB
	domains    catalogservice.DomainStore
	flags      catalogservice.FlagStore
	lifecycle  lifecycleservice.Store
	tx         lifecycleservice.RegistrationTx
	auditStore audit.Store
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	trustedProxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Audit events share the write transaction when PostgreSQL backs the log,
	// so the publisher must stay synchronous there.
	var auditOpts []publisher.Option
	auditOpts = append(auditOpts, publisher.WithLogger(log))
	if st.db == nil {
		auditOpts = append(auditOpts, publisher.WithAsyncBuffer(1024))
	}
	auditPublisher := publisher.NewPublisher(st.auditStore, auditOpts...)
	defer auditPublisher.Close()

	healthChecks := map[string]httpapi.HealthCheck{}
	if st.db != nil {
		healthChecks["postgres"] = st.db.PingContext
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var (
		backend snapshot.Backend
		buckets ratelimitmw.BucketStore
	)
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = redisClient.Health
		backend = snapshot.NewRedisBackend(redisClient.Client)
		buckets = bucket.NewRedisBucketStore(redisClient.Client)
	} else {
		log.Info("REDIS_URL not set, caching snapshot and rate limits in process")
		backend = snapshot.NewMemoryBackend(cfg.Snapshot.TTL)
		buckets = bucket.NewInMemoryBucketStore()
	}

	listingMetrics := listingmetrics.New()
	catalogSvc := catalogservice.New(st.domains, st.flags,
		catalogservice.WithLogger(log),
		catalogservice.WithAuditPublisher(auditPublisher),
		catalogservice.WithMetrics(catalogmetrics.New()),
	)
	cache := snapshot.New(backend, catalogSvc,
		snapshot.WithTTL(cfg.Snapshot.TTL),
		snapshot.WithLogger(log),
		snapshot.WithMetrics(listingMetrics),
	)
	// The cache lists through the catalog, so it is attached after both exist.
	catalogservice.WithSnapshotInvalidator(cache)(catalogSvc)

	lifecycleSvc := lifecycleservice.New(st.lifecycle, catalogSvc,
		lifecycleservice.WithLogger(log),
		lifecycleservice.WithAuditPublisher(auditPublisher),
		lifecycleservice.WithMetrics(lifecyclemetrics.New()),
		lifecycleservice.WithTx(st.tx),
	)
	listingSvc := listingservice.New(catalogSvc, lifecycleSvc, cache,
		listingservice.WithLogger(log),
		listingservice.WithMetrics(listingMetrics),
	)

	if _, err := catalogSvc.EnsureFlags(ctx); err != nil {
		return fmt.Errorf("install flag catalog: %w", err)
	}
	if cfg.Seed.Enabled {
		if err := seed.Load(ctx, catalogSvc, lifecycleSvc, log); err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
	}

	relayDone, err := startRelay(ctx, cfg, log, st.db, healthChecks)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.New(),
		AdminToken:     cfg.Server.AdminToken,
		AdminTokenHash: cfg.Server.AdminTokenHash,
		RequestTimeout: cfg.Server.RequestTimeout,
		TrustedProxies: trustedProxies,
		HealthChecks:   healthChecks,
		RateLimiter: ratelimitmw.New(buckets, log,
			ratelimitmw.WithLimit(ratelimitmodels.ClassRead, ratelimitmodels.Limit{Requests: cfg.RateLimit.ReadsPerWindow, Window: cfg.RateLimit.Window}),
			ratelimitmw.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: cfg.RateLimit.WritesPerWindow, Window: cfg.RateLimit.Window}),
			ratelimitmw.WithMetrics(ratelimitmetrics.New()),
		),
	},
		cataloghandler.New(catalogSvc, log),
		lifecyclehandler.New(lifecycleSvc, log),
		listinghandler.New(listingSvc, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting regwatch", "addr", cfg.Server.Addr, "postgres", st.db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if relayDone != nil {
		<-relayDone
	}
	return nil
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	if !cfg.Postgres.Enabled() {
		log.Info("DATABASE_URL not set, using in-memory stores")
		return &storage{
			domains:    domainstore.NewInMemory(),
			flags:      flagstore.NewInMemory(),
			lifecycle:  lifecyclestore.NewInMemory(),
			tx:         lifecycleservice.NewShardedTx(cfg.Server.RegistrationLockTimeout),
			auditStore: auditmemory.NewInMemoryStore(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &storage{
		db:         db,
		domains:    domainstore.NewPostgres(db),
		flags:      flagstore.NewPostgres(db),
		lifecycle:  lifecyclestore.NewPostgres(db),
		tx:         lifecyclestore.NewAdvisoryLockTx(db, cfg.Server.RegistrationLockTimeout),
		auditStore: auditpostgres.New(db),
	}, nil
}

// startRelay runs the outbox worker when both PostgreSQL and Kafka are
// configured. The returned channel closes once the worker has stopped.
func startRelay(ctx context.Context, cfg config.Config, log *slog.Logger, db *sql.DB, checks map[string]httpapi.HealthCheck) (<-chan struct{}, error) {
	if !cfg.Kafka.Enabled() {
		log.Info("KAFKA_BROKERS not set, outbox relay disabled")
		return nil, nil
	}
	if db == nil {
		log.Warn("outbox relay needs DATABASE_URL, audit events stay in memory")
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := producer.EnsureTopic(topicCtx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		log.Warn("failed to ensure audit topic", "topic", producer.Topic(), "error", err)
	}
	checks["kafka"] = producer.Health

	relay := worker.New(outboxstore.NewPostgres(db), producer,
		worker.WithPollInterval(cfg.Outbox.PollInterval),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithBreaker(circuit.New("outbox",
			circuit.WithFailureThreshold(cfg.Outbox.FailureThreshold),
			circuit.WithCooldown(cfg.Outbox.Cooldown),
		)),
		worker.WithLogger(log),
		worker.WithMetrics(outboxmetrics.New()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer producer.Close()
		if err := relay.Run(ctx); err != nil {
			log.Error("outbox relay stopped", "error", err)
		}
	}()
	return done, nil
}
