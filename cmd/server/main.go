package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"truconn/internal/access"
	compliancecache "truconn/internal/compliance/cache"
	"truconn/internal/compliance/evaluator"
	compliancemetrics "truconn/internal/compliance/metrics"
	"truconn/internal/compliance/scheduler"
	complianceservice "truconn/internal/compliance/service"
	compliancestore "truconn/internal/compliance/store"
	"truconn/internal/organization"
	"truconn/internal/platform/config"
	"truconn/internal/platform/httpserver"
	"truconn/internal/platform/logger"
	"truconn/internal/platform/metrics"
	"truconn/internal/platform/postgres"
	platformredis "truconn/internal/platform/redis"
	ratelimitmetrics "truconn/internal/ratelimit/metrics"
	ratelimit "truconn/internal/ratelimit/middleware"
	ratelimitmodels "truconn/internal/ratelimit/models"
	"truconn/internal/ratelimit/store/bucket"
	"truconn/pkg/platform/audit/outbox"
	compliancepublisher "truconn/pkg/platform/audit/publishers/compliance"
	auditpostgres "truconn/pkg/platform/audit/store/postgres"
	"truconn/pkg/platform/audit/worker"
	"truconn/pkg/platform/circuit"
	authmw "truconn/pkg/platform/middleware/auth"
)

const orgCacheTTL = 5 * time.Minute

// main loads configuration and hands off to run. Business logic lives in
// internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	httpMetrics := metrics.New(reg)
	complianceMetrics := compliancemetrics.New(reg)

	orgStore := organization.NewPostgres(db)
	orgs := organization.NewCachedReader(orgStore, cfg.Compliance.OrgCacheSize, orgCacheTTL)

	eval, err := evaluator.New(access.NewPostgres(db),
		evaluator.WithLogger(log),
		evaluator.WithMetrics(complianceMetrics),
	)
	if err != nil {
		return fmt.Errorf("build evaluator: %w", err)
	}

	store := compliancestore.NewPostgres(db, cfg.Compliance.DedupWindow)
	outboxStore := auditpostgres.New(db)
	publisher := compliancepublisher.New(outboxStore,
		compliancepublisher.WithLogger(log),
		compliancepublisher.WithMetrics(compliancepublisher.NewMetrics(reg)),
	)

	serviceOpts := []complianceservice.Option{
		complianceservice.WithLogger(log),
		complianceservice.WithMetrics(complianceMetrics),
		complianceservice.WithPublisher(publisher),
		complianceservice.WithDedupWindow(cfg.Compliance.DedupWindow),
	}

	readiness := []httpserver.Dependency{{Name: "postgres", Check: db.PingContext}}
	var limiterPrimary ratelimit.BucketStore

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		reportCache := compliancecache.NewGuarded(
			compliancecache.NewRedisReportCache(redisClient.Client, compliancecache.WithTTL(cfg.Compliance.ReportCacheTTL)),
			circuit.New("report-cache"),
			log,
		)
		serviceOpts = append(serviceOpts, complianceservice.WithReportCache(reportCache))
		readiness = append(readiness, httpserver.Dependency{Name: "redis", Check: redisClient.Health, Optional: true})
		limiterPrimary = bucket.NewRedisBucketStore(redisClient.Client)
	}

	svc, err := complianceservice.New(eval, newCompliancePostgresTx(db, store, cfg.Compliance.TxTimeout), store, orgs, serviceOpts...)
	if err != nil {
		return fmt.Errorf("build compliance service: %w", err)
	}

	validator, err := authmw.NewHMACValidator(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("build token validator: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = newRateLimiter(cfg.RateLimit, limiterPrimary, reg, log)
	}

	router := newRouter(routerDeps{
		service:       svc,
		validator:     validator,
		operatorToken: cfg.Auth.OperatorToken,
		registry:      reg,
		httpMetrics:   httpMetrics,
		rateLimiter:   limiter,
		readiness:     readiness,
		logger:        log,
	})

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		if err := startOutboxRelay(gctx, g, cfg.Kafka, outboxStore, reg, log); err != nil {
			return err
		}
	} else {
		log.Warn("kafka brokers not configured; compliance events stay in the outbox")
	}

	if cfg.Compliance.ScanSchedule != "" {
		sched, err := scheduler.New(orgStore, svc,
			scheduler.WithLogger(log),
			scheduler.WithConcurrency(cfg.Compliance.ScanConcurrency),
			scheduler.WithScanTimeout(2*cfg.Compliance.TxTimeout),
		)
		if err != nil {
			return err
		}
		if err := sched.Start(gctx, cfg.Compliance.ScanSchedule); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	srv := httpserver.New(cfg.Server, router)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	return g.Wait()
}

// startOutboxRelay connects to Kafka, ensures the topic and runs the outbox
// worker until ctx is cancelled.
func startOutboxRelay(ctx context.Context, g *errgroup.Group, cfg config.Kafka, store *auditpostgres.Store, reg prometheus.Registerer, log *slog.Logger) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID("truconn"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	if err := outbox.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		client.Close()
		return err
	}

	relay, err := outbox.NewRelay(store, client, cfg.Topic,
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
		outbox.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		client.Close()
		return err
	}
	w := worker.NewWorker(relay, cfg.PollInterval, cfg.BatchSize, log)
	g.Go(func() error {
		defer client.Close()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	log.Info("outbox relay started", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return nil
}

func newRateLimiter(cfg config.RateLimit, primary ratelimit.BucketStore, reg prometheus.Registerer, log *slog.Logger) *ratelimit.Limiter {
	limit := func(n int) ratelimitmodels.Limit {
		return ratelimitmodels.Limit{RequestsPerWindow: n, Window: cfg.Window}
	}
	return ratelimit.New(primary, bucket.NewInMemoryBucketStore(),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimit.WithBreaker(circuit.New("ratelimit-store")),
		ratelimit.WithLimit(ratelimitmodels.ClassScan, limit(cfg.ScanPerUser)),
		ratelimit.WithLimit(ratelimitmodels.ClassWrite, limit(cfg.WritePerUser)),
		ratelimit.WithLimit(ratelimitmodels.ClassRead, limit(cfg.ReadPerUser)),
	)
}

var _ complianceservice.ComplianceStoreTx = (*compliancePostgresTx)(nil)
