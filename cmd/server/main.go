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

	"comply/internal/alerts"
	"comply/internal/dedup"
	filinghandler "comply/internal/filing/handler"
	filingservice "comply/internal/filing/service"
	filingstore "comply/internal/filing/store"
	jwttoken "comply/internal/jwt_token"
	"comply/internal/platform/config"
	"comply/internal/platform/httpserver"
	"comply/internal/platform/kafka/admin"
	"comply/internal/platform/kafka/consumer"
	"comply/internal/platform/kafka/producer"
	"comply/internal/platform/logger"
	"comply/internal/platform/metrics"
	platformredis "comply/internal/platform/redis"
	"comply/internal/resilience"
	"comply/internal/router"
	"comply/internal/screening"
	screeninghandler "comply/internal/screening/handler"
	screeningmetrics "comply/internal/screening/metrics"
	screeningstore "comply/internal/screening/store"
	httptransport "comply/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("CRITICAL: server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Filing store: postgres when configured, in-memory otherwise.
	var filings filingservice.Store
	var deposits router.DepositLedger
	readyCheck := func() error { return nil }
	if cfg.Postgres.DSN != "" {
		db, err := filingstore.Open(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open filing store: %w", err)
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, filingstore.Schema); err != nil {
			return fmt.Errorf("apply filing schema: %w", err)
		}
		pg := filingstore.NewPostgresStore(db)
		filings, deposits = pg, pg
		readyCheck = func() error { return db.Ping() }
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory filing store")
		mem := filingstore.NewMemoryStore()
		filings, deposits = mem, mem
	}

	// Screening cache: redis when configured, in-memory otherwise.
	var cache screening.ResultCache
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		cache = screening.NewRedisCache(rdb.Client)
	} else {
		log.Warn("REDIS_URL not set, using in-memory screening cache")
		cache = screening.NewMemoryCache()
	}

	// Kafka: topics first so a fresh broker works out of the box. Outbound
	// topics set to the empty string are disabled and skipped.
	topics := cfg.Kafka.Inbound()
	for _, t := range []string{cfg.Kafka.DeadLetterTopic, cfg.Kafka.AlertTopic,
		cfg.Kafka.StatusTopic, cfg.Kafka.ManualReviewTopic} {
		if t != "" {
			topics = append(topics, t)
		}
	}
	if err := admin.EnsureTopics(ctx, cfg.Kafka.Brokers, log, topics...); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	prod, err := producer.New(cfg.Kafka.Brokers, log)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer prod.Close()

	// Alerts: kafka when the alert topic is configured, logs otherwise.
	var notifier alerts.Notifier
	if cfg.Kafka.AlertTopic != "" {
		notifier = alerts.NewKafkaNotifier(prod, cfg.Kafka.AlertTopic, log)
	} else {
		log.Warn("KAFKA_ALERT_TOPIC empty, escalations will only be logged")
		notifier = alerts.NewLogNotifier(log)
	}
	statusPublisher := router.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, log)

	var filingOpts []filingservice.Option
	if cfg.Filing.NotifyFailureEscalation {
		filingOpts = append(filingOpts, filingservice.WithNotifyFailureEscalation())
	}
	filingSvc := filingservice.New(filings, notifier, statusPublisher, log, filingOpts...)

	screener, screenings, err := buildScreener(ctx, cfg, cache, log)
	if err != nil {
		return err
	}

	// Event routing: dedup in front, retry/breaker/dead-letter around every
	// handler, one registration per inbound topic. Open circuits park events
	// on the manual-review topic instead of dead-lettering them.
	pipe := resilience.NewPipeline(
		router.NewKafkaDeadLetterer(prod, cfg.Kafka.DeadLetterTopic),
		notifier, log)
	reviewQueue := router.NewManualReviewQueue(prod, cfg.Kafka.ManualReviewTopic, log)
	for _, op := range []string{"fraud-alert", "cash-deposit", "screening-request", "filing-failure"} {
		pipe.RegisterFallback(op, reviewQueue.Fallback(op))
	}
	rt := router.New(dedup.New(), pipe, m, log)
	rt.Register(cfg.Kafka.FraudAlertsTopic, "fraud-alert",
		router.NewFraudAlertHandler(filingSvc, log))
	rt.Register(cfg.Kafka.CashDepositsTopic, "cash-deposit",
		router.NewCashDepositHandler(filingSvc, deposits, log))
	rt.Register(cfg.Kafka.ScreeningRequestsTopic, "screening-request",
		router.NewScreeningRequestHandler(screener, filingSvc, notifier, log))
	rt.Register(cfg.Kafka.FilingFailuresTopic, "filing-failure",
		router.NewFilingFailureHandler(filingSvc, log))

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Inbound(), log)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer cons.Close()

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "comply", "comply-operators")
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(httptransport.Dependencies{
		Filing:     filinghandler.New(filingSvc, log),
		Screening:  screeninghandler.New(screener, screenings, log),
		Validator:  jwttoken.NewJWTServiceAdapter(jwtService),
		ReadyCheck: readyCheck,
	}, log))

	errCh := make(chan error, 3)
	go func() {
		errCh <- cons.Run(ctx, rt)
	}()
	go func() {
		errCh <- filingSvc.RunOverdueSweeper(ctx, cfg.Filing.OverdueSweepInterval)
	}()
	go func() {
		log.Info("starting comply server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			stop()
			shutdownHTTP(srv, log)
			return err
		}
	}

	shutdownHTTP(srv, log)
	return nil
}

func shutdownHTTP(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildScreener assembles the screening consolidator from configured HTTP
// sources, falling back to empty in-memory lists for development. The second
// return is the persisted audit trail for the read endpoints, nil when no
// store is configured.
func buildScreener(ctx context.Context, cfg config.Config, cache screening.ResultCache, log *slog.Logger) (*screening.Service, screeninghandler.ResultFinder, error) {
	var sources []screening.Source
	for _, src := range cfg.Screening.Sources {
		sources = append(sources,
			screening.NewHTTPSource(src.Name, src.URL, cfg.Screening.APIKey, cfg.Screening.PerSourceTimeout))
	}
	if len(sources) == 0 {
		log.Warn("SCREENING_SOURCES not set, using empty in-memory lists")
		for _, name := range []string{"OFAC", "EU", "UN"} {
			sources = append(sources, screening.NewListSource(name, nil))
		}
	}

	opts := []screening.ServiceOption{
		screening.WithMetrics(screeningmetrics.New()),
	}
	if len(cfg.Screening.DomesticSources) > 0 {
		opts = append(opts, screening.WithSourcePolicy(
			screening.DefaultSourcePolicy(cfg.Screening.DomesticSources...)))
	}
	var results screeninghandler.ResultFinder
	if cfg.Postgres.DSN != "" {
		pool, err := screeningstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open screening store: %w", err)
		}
		if _, err := pool.Exec(ctx, screeningstore.Schema); err != nil {
			return nil, nil, fmt.Errorf("apply screening schema: %w", err)
		}
		st := screeningstore.NewPostgresStore(pool)
		opts = append(opts, screening.WithStore(st))
		results = st
	} else {
		log.Warn("POSTGRES_DSN not set, screening results will not be persisted")
	}

	return screening.NewService(sources, cache, screening.Config{
		OverallTimeout:   cfg.Screening.OverallTimeout,
		PerSourceTimeout: cfg.Screening.PerSourceTimeout,
		MaxConcurrent:    cfg.Screening.MaxConcurrent,
		CacheTTL:         cfg.Screening.CacheTTL,
	}, log, opts...), results, nil
}
