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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"adpulse/internal/optimization"
	"adpulse/internal/platform/config"
	"adpulse/internal/platform/httpserver"
	"adpulse/internal/platform/kafka"
	"adpulse/internal/platform/logger"
	"adpulse/internal/platform/metrics"
	"adpulse/internal/platform/postgres"
	"adpulse/internal/platform/redis"
	ratelimitMetrics "adpulse/internal/ratelimit/metrics"
	ratelimitMiddleware "adpulse/internal/ratelimit/middleware"
	"adpulse/internal/ratelimit/service/requestlimit"
	"adpulse/internal/ratelimit/store/bucket"
	"adpulse/internal/realtime"
	"adpulse/internal/tracking/aggregator"
	"adpulse/internal/tracking/device"
	"adpulse/internal/tracking/ingest"
	trackingMetrics "adpulse/internal/tracking/metrics"
	"adpulse/internal/tracking/session"
	eventstore "adpulse/internal/tracking/store/event"
	sessionstore "adpulse/internal/tracking/store/session"
	httptransport "adpulse/internal/transport/http"
	"adpulse/pkg/platform/circuit"
	"adpulse/pkg/platform/middleware/metadata"
)

const shutdownTimeout = 10 * time.Second

// main wires the tracking pipeline and keeps the process lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	trackMetrics := trackingMetrics.New(reg)
	rtMetrics := realtime.NewMetrics(reg)

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}
	events, sessions := buildStores(db, log)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	limiter, err := buildLimiter(ctx, g, cfg.RateLimit, rdb, ratelimitMetrics.New(reg), log)
	if err != nil {
		return err
	}

	devices := device.NewService()
	resolver, err := session.NewResolver(sessions, devices,
		session.WithLogger(log),
		session.WithMetrics(trackMetrics),
		session.WithGeoLookup(session.HeaderGeoLookup{}),
		session.WithStoreTimeout(cfg.Ingest.StoreTimeout),
	)
	if err != nil {
		return err
	}

	agg := aggregator.New(aggregator.WithMetrics(trackMetrics))
	hub := realtime.NewHub(agg,
		realtime.WithBuffer(cfg.Realtime.SubscriberBuffer),
		realtime.WithLogger(log),
		realtime.WithMetrics(rtMetrics),
	)

	trigger, err := buildRevenueTrigger(cfg.Optimization, reg, log)
	if err != nil {
		return err
	}

	ingestSvc, err := ingest.New(events, resolver, agg,
		ingest.WithLogger(log),
		ingest.WithMetrics(trackMetrics),
		ingest.WithPublisher(hub),
		ingest.WithRevenueTrigger(trigger),
		ingest.WithStoreTimeout(cfg.Ingest.StoreTimeout),
		ingest.WithTriggerTimeout(cfg.Ingest.TriggerTimeout),
		ingest.WithMaxBatchSize(cfg.Ingest.MaxBatchSize),
	)
	if err != nil {
		return err
	}

	producer, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		sink, err := realtime.NewKafkaSink(hub, producer, cfg.Kafka.Topic,
			realtime.WithSinkLogger(log),
			realtime.WithSinkMetrics(rtMetrics),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return sink.Run(ctx) })
		log.Info("analytics sink enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	ws := realtime.NewWSHandler(hub,
		realtime.WithWriteTimeout(cfg.Realtime.WriteTimeout),
		realtime.WithPingInterval(cfg.Realtime.PingInterval),
		realtime.WithAllowedOrigin(cfg.CORSOrigin),
		realtime.WithWSLogger(log),
	)

	handlerOpts := []httptransport.Option{
		httptransport.WithPixelLimiter(limiter),
		httptransport.WithRealtime(ws),
	}
	if tracker, ok := trigger.(*optimization.Tracker); ok {
		handlerOpts = append(handlerOpts, httptransport.WithRecommendations(tracker))
	}
	if db != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("database", db.PingContext))
	}
	if rdb != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("redis", rdb.Health))
	}
	handler := httptransport.New(ingestSvc, agg, log, handlerOpts...)

	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Logger:         log,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		RateLimit:      ratelimitMiddleware.New(limiter, log).RateLimit(),
		CORSOrigin:     cfg.CORSOrigin,
		TrustedProxies: trusted,
	})
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting adpulse", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not closed by Shutdown; closing
		// the hub ends their write pumps with a close frame.
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, kafka.Close(shutdownCtx, producer))
	})

	return g.Wait()
}

func buildStores(db *sql.DB, log *slog.Logger) (ingest.EventStore, session.Store) {
	if db == nil {
		log.Warn("DATABASE_URL not set, tracking events are kept in memory")
		return eventstore.NewInMemory(), sessionstore.NewInMemory()
	}
	return eventstore.NewPostgres(db), sessionstore.NewPostgres(db)
}

// buildLimiter prefers Redis so every instance shares one window per client.
// The in-memory store serves as fallback while Redis is failing.
func buildLimiter(ctx context.Context, g *errgroup.Group, cfg config.RateLimitConfig, rdb *redis.Client, m *ratelimitMetrics.Metrics, log *slog.Logger) (*requestlimit.Service, error) {
	memory := bucket.New()
	g.Go(func() error {
		return memory.StartCleanup(ctx, cfg.CleanupInterval, m.SetTrackedClients)
	})

	opts := []requestlimit.Option{
		requestlimit.WithLimit(cfg.Limit, cfg.Window),
		requestlimit.WithLogger(log),
		requestlimit.WithMetrics(m),
	}
	if rdb == nil {
		return requestlimit.New(memory, opts...)
	}
	opts = append(opts, requestlimit.WithFallback(memory, circuit.New("redis-ratelimit")))
	return requestlimit.New(bucket.NewRedisBucketStore(rdb.Client), opts...)
}

func buildRevenueTrigger(cfg config.OptimizationConfig, reg prometheus.Registerer, log *slog.Logger) (ingest.RevenueTrigger, error) {
	if !cfg.Enabled {
		return optimization.Noop{}, nil
	}
	reference, err := decimal.NewFromString(cfg.ReferenceCPM)
	if err != nil {
		return nil, fmt.Errorf("parse reference CPM: %w", err)
	}
	tracker, err := optimization.NewTracker(reference,
		optimization.WithLogger(log),
		optimization.WithMetrics(optimization.NewMetrics(reg)),
		optimization.WithMinEvents(cfg.MinEvents),
	)
	if err != nil {
		return nil, err
	}
	log.Info("revenue optimization enabled", "reference_cpm", reference.StringFixed(2))
	return tracker, nil
}
