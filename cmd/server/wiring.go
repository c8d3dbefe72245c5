package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kycgate/internal/audit"
	"kycgate/internal/capability"
	"kycgate/internal/capability/llm"
	"kycgate/internal/capability/stub"
	"kycgate/internal/cases/handler"
	"kycgate/internal/cases/service"
	casestore "kycgate/internal/cases/store/cases"
	discrepancystore "kycgate/internal/cases/store/discrepancy"
	evidencestore "kycgate/internal/cases/store/evidence"
	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/objectstore"
	"kycgate/internal/platform/config"
	"kycgate/internal/platform/metrics"
	"kycgate/internal/platform/postgres"
	"kycgate/internal/platform/redis"
	"kycgate/internal/policy"
	"kycgate/internal/profile"
	profilecache "kycgate/internal/profile/cache"
	"kycgate/internal/scheduler"
	"kycgate/internal/validation"
	"kycgate/pkg/platform/circuit"
	"kycgate/pkg/platform/tx"
)

const defaultTokenKey = "dev-secret-key-change-in-production"

type stores struct {
	cases interface {
		service.CaseStore
		validation.CaseStore
	}
	evidence interface {
		service.EvidenceStore
		validation.EvidenceStore
	}
	discrepancies interface {
		service.DiscrepancyStore
		validation.DiscrepancyStore
	}
	audit audit.Store
	tx    interface {
		service.TxRunner
		validation.TxRunner
	}
}

type app struct {
	router        http.Handler
	schedulerKind string
	runWorkers    func(ctx context.Context) error
	closers       []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}
	if !cfg.Server.IsLocal() && cfg.Server.ServiceTokenKey == defaultTokenKey {
		return nil, errors.New("SERVICE_TOKEN_KEY must be set outside local")
	}

	st, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
			return fail(err)
		}
	}

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	profiles, err := profileProvider(cfg, rdb, log)
	if err != nil {
		return fail(err)
	}
	caps, err := capabilities(ctx, cfg.LLM, log)
	if err != nil {
		return fail(err)
	}

	publisher := audit.NewPublisher(st.audit, audit.WithLogger(log), audit.WithAsyncBuffer(1024))
	a.closers = append(a.closers, publisher.Close)

	var locker validation.Locker = validation.NewShardedLocker()
	if rdb != nil {
		locker = validation.ChainLocker{locker, validation.NewRedisLease(rdb.Client, cfg.Validation.LeaseTTL)}
	}
	resolver := policy.NewResolver(policy.WithUnknownCategoryMode(policy.ParseUnknownCategoryMode(cfg.Policy.UnknownCategory)))

	orchestrator, err := validation.New(validation.Dependencies{
		Cases:         st.cases,
		Evidence:      st.evidence,
		Discrepancies: st.discrepancies,
		Policy:        resolver,
		Profiles:      profiles,
		Objects:       objects,
		Capabilities:  caps,
		Tx:            st.tx,
	},
		validation.WithLogger(log),
		validation.WithAuditPublisher(publisher),
		validation.WithLocker(locker),
		validation.WithTargetLanguage(cfg.Validation.TargetLanguage),
		validation.WithCallTimeout(cfg.Validation.CallTimeout),
		validation.WithLockTimeout(cfg.Validation.LockTimeout),
		validation.WithDeterministicFallback(cfg.Validation.DeterministicFallback),
		validation.WithContextDefaults(cfg.Validation.DefaultCountry, cfg.Validation.DefaultRiskTier),
	)
	if err != nil {
		return fail(err)
	}

	sched, err := a.wireScheduler(ctx, cfg, orchestrator, log)
	if err != nil {
		return fail(err)
	}

	m := metrics.New()
	svc, err := service.New(service.Dependencies{
		Cases:         st.cases,
		Evidence:      st.evidence,
		Discrepancies: st.discrepancies,
		Policy:        resolver,
		Objects:       objects,
		Scheduler:     sched,
		Locker:        locker,
		Tx:            st.tx,
	},
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(m),
	)
	if err != nil {
		return fail(err)
	}

	tokens := jwttoken.NewJWTService(cfg.Server.ServiceTokenKey, cfg.Server.TokenIssuer, cfg.Server.TokenAudience)
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readiness(db, rdb))
	r.Handle("/metrics", promhttp.Handler())
	handler.New(svc, resolver, publisher, log, m, tokens).Register(r)
	a.router = r
	return a, nil
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, *sql.DB, error) {
	if cfg.Postgres.URL == "" {
		if !cfg.Server.IsLocal() {
			return stores{}, nil, errors.New("DATABASE_URL is required outside local")
		}
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		return stores{
			cases:         casestore.NewInMemory(),
			evidence:      evidencestore.NewInMemory(),
			discrepancies: discrepancystore.NewInMemory(),
			audit:         audit.NewInMemoryStore(),
			tx:            &tx.Local{},
		}, nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return stores{}, nil, err
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, nil, err
		}
	}
	return stores{
		cases:         casestore.NewPostgres(db),
		evidence:      evidencestore.NewPostgres(db),
		discrepancies: discrepancystore.NewPostgres(db),
		audit:         audit.NewPostgresStore(db),
		tx:            tx.NewRunner(db),
	}, db, nil
}

func openObjectStore(ctx context.Context, cfg config.Config) (objectstore.Store, error) {
	if cfg.Server.IsLocal() && cfg.S3.Endpoint == "" {
		return objectstore.NewInMemory(), nil
	}
	return objectstore.NewS3Store(ctx, cfg.S3)
}

func profileProvider(cfg config.Config, rdb *redis.Client, log *slog.Logger) (profile.Provider, error) {
	var provider profile.Provider
	switch {
	case cfg.Profile.BaseURL != "":
		provider = profile.NewHTTPProvider(cfg.Profile.BaseURL, cfg.Profile.Timeout,
			profile.WithLogger(log),
			profile.WithBreaker(circuit.New("customer-master",
				circuit.WithFailureThreshold(cfg.Profile.BreakerFailures),
				circuit.WithCooldown(cfg.Profile.BreakerCooldown),
			)),
		)
	case cfg.Server.IsLocal():
		provider = profile.NewFixtureProvider()
	default:
		return nil, errors.New("CUSTOMER_MASTER_BASE_URL is required outside local")
	}
	if rdb == nil {
		return provider, nil
	}
	return profilecache.New(provider, rdb.Client,
		profilecache.WithTTL(cfg.Profile.CacheTTL),
		profilecache.WithLogger(log),
	), nil
}

func capabilities(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (capability.Set, error) {
	opts := []llm.Option{
		llm.WithLogger(log),
		llm.WithRetryPolicy(llm.RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}),
		llm.WithRedaction(llm.RedactionConfig{
			Emails:     cfg.RedactEmails,
			Phones:     cfg.RedactPhones,
			TaxIDs:     cfg.RedactTaxIDs,
			DocNumbers: cfg.RedactDocNumbers,
		}),
	}
	client := llm.ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
	switch cfg.Provider {
	case "stub", "":
		return stub.NewSet(), nil
	case "gemini":
		gen, err := llm.NewGeminiClient(ctx, client)
		if err != nil {
			return capability.Set{}, err
		}
		return llm.NewSet("gemini", gen, opts...), nil
	case "openai":
		return llm.NewSet("openai", llm.NewOpenAIClient(client), opts...), nil
	default:
		return capability.Set{}, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
}

// wireScheduler picks Kafka when brokers are configured and the in-process
// queue otherwise.
func (a *app) wireScheduler(ctx context.Context, cfg config.Config, runner scheduler.Runner, log *slog.Logger) (scheduler.Scheduler, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		local := scheduler.NewLocal(runner,
			scheduler.WithLogger(log),
			scheduler.WithWorkers(cfg.Validation.Workers),
		)
		a.schedulerKind = "local"
		a.runWorkers = local.Start
		return local, nil
	}

	if err := scheduler.EnsureTopic(ctx, cfg.Kafka); err != nil {
		return nil, err
	}
	producer, err := scheduler.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, producer.Close)
	consumer, err := scheduler.NewKafkaConsumer(cfg.Kafka, runner, log)
	if err != nil {
		return nil, err
	}
	a.schedulerKind = "kafka"
	a.runWorkers = consumer.Run
	return producer, nil
}

func readiness(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
