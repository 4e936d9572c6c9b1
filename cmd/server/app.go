package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/admin/executor"
	"zkbadge/internal/audit"
	"zkbadge/internal/auth/handshake"
	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/auth/session"
	"zkbadge/internal/auth/store/pending"
	sessionstore "zkbadge/internal/auth/store/session"
	jwttoken "zkbadge/internal/jwt_token"
	"zkbadge/internal/ledger"
	"zkbadge/internal/ledger/gateway"
	"zkbadge/internal/ledger/memledger"
	"zkbadge/internal/membership/authority"
	"zkbadge/internal/membership/reconcile"
	"zkbadge/internal/membership/registry"
	credstore "zkbadge/internal/membership/store/credential"
	domainstore "zkbadge/internal/membership/store/domain"
	"zkbadge/internal/oidc"
	"zkbadge/internal/platform/config"
	"zkbadge/internal/platform/httpserver"
	"zkbadge/internal/platform/metrics"
	"zkbadge/internal/platform/postgres"
	"zkbadge/internal/platform/redis"
	"zkbadge/internal/platform/tracing"
	httptransport "zkbadge/internal/transport/http"
	"zkbadge/pkg/platform/circuit"
	"zkbadge/pkg/requestcontext"
)

const (
	shutdownGrace    = 10 * time.Second
	auditBuffer      = 1024
	purgeInterval    = time.Minute
	reconcileTimeout = 2 * time.Minute
)

type app struct {
	cfg       config.Config
	readiness map[string]httptransport.ReadinessCheck
	log       *slog.Logger
	server    httpRunner
	scheduler *reconcile.Scheduler
	pending   *pending.InMemoryStore
	auditJob  *audit.Worker
	closers   []func(context.Context) error
}

type httpRunner func(ctx context.Context) error

// newApp builds every service from cfg. Redis and Postgres are optional; an
// empty URL keeps the corresponding state in process memory.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, readiness: map[string]httptransport.ReadinessCheck{}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, version, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	m := metrics.New()
	auditor, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, err
	}

	pendingStore, sessionStore, err := a.authStores(ctx)
	if err != nil {
		return nil, err
	}
	credentials, domainRows, err := a.membershipStores(ctx)
	if err != nil {
		return nil, err
	}

	client, adminCap, err := a.ledgerClient(m)
	if err != nil {
		return nil, err
	}

	engineOpts := []handshake.Option{
		handshake.WithLogger(log),
		handshake.WithMetrics(m),
		handshake.WithAuditPublisher(auditor),
	}
	if cfg.OAuth.ClientID == "" {
		// The engine refuses every handshake until a client ID is configured.
		log.Warn("OAUTH_CLIENT_ID not set; logins are disabled")
	} else {
		provider, err := oidc.NewProvider(ctx, oidc.Config{
			ClientID:    cfg.OAuth.ClientID,
			IssuerURL:   cfg.OAuth.IssuerURL,
			AuthURL:     cfg.OAuth.AuthURL,
			RedirectURI: cfg.OAuth.RedirectURI,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		engineOpts = append(engineOpts, handshake.WithProvider(authModel.ProviderGoogle, provider))
	}
	engine := handshake.New(handshake.Config{
		ClientID:    cfg.OAuth.ClientID,
		Salt:        []byte(cfg.OAuth.Salt),
		TTL:         cfg.OAuth.HandshakeTTL,
		KeyLifetime: cfg.Session.TTL,
	}, pendingStore, engineOpts...)
	sessions := session.NewManager(sessionStore,
		jwttoken.NewJWTService(cfg.Session.SigningKey, "zkbadge", "zkbadge"),
		pendingStore,
		session.NewAdminPolicy(cfg.Admin.Emails, cfg.Admin.Subjects),
		session.WithTTL(cfg.Session.TTL),
		session.WithLogger(log),
		session.WithAuditPublisher(auditor),
	)

	keeper := capability.NewKeeper(adminCap)
	domains := authority.New(domainRows, keeper, authority.WithLogger(log))
	if err := domains.Seed(requestcontext.WithTime(ctx, time.Now()), cfg.SeedDomains); err != nil {
		return nil, fmt.Errorf("seed whitelist: %w", err)
	}
	members := registry.New(registry.Config{
		RegistryRef:  a.cfg.Ledger.RegistryRef,
		Organization: a.cfg.Ledger.Organization,
	}, credentials, domains, client, keeper,
		registry.WithLogger(log),
		registry.WithMetrics(m),
		registry.WithAuditPublisher(auditor),
	)
	exec := executor.New(keeper, client, domains, members,
		executor.WithRetryPolicy(executor.RetryPolicy{
			MaxAttempts:     cfg.Ledger.MaxAttempts,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		}),
		executor.WithLogger(log),
		executor.WithMetrics(m),
		executor.WithAuditPublisher(auditor),
	)
	reconciler := reconcile.New(members, client, cfg.Reconcile.Staleness,
		reconcile.WithConcurrency(cfg.Reconcile.Concurrency),
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithAuditPublisher(auditor),
	)
	checker := reconcile.NewBadgeChecker(members, reconciler, client, log)

	if cfg.Reconcile.Schedule != "" {
		a.scheduler, err = reconcile.NewScheduler(cfg.Reconcile.Schedule, reconciler, reconcileTimeout, log)
		if err != nil {
			return nil, fmt.Errorf("reconcile schedule %q: %w", cfg.Reconcile.Schedule, err)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		SecureCookies:  cfg.Session.SecureCookie,
		RequestTimeout: cfg.Ledger.Timeout + 5*time.Second,
		MetricsHandler: promhttp.Handler(),
		Readiness:      a.readiness,
	}, sessions, log, m,
		httptransport.NewAuthHandler(engine, sessions, log),
		httptransport.NewMemberHandler(members, checker, domains, log),
		httptransport.NewAdminHandler(keeper, exec, members, reconciler, log),
	)
	srv := httpserver.New(cfg.Addr, router)
	a.server = func(ctx context.Context) error {
		return httpserver.Run(ctx, srv, shutdownGrace, log)
	}
	return a, nil
}

// auditPublisher forwards events to Kafka through a buffered worker when
// brokers are configured, and to the structured log otherwise.
func (a *app) auditPublisher(ctx context.Context) (*audit.Publisher, error) {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return audit.NewPublisher(audit.NewSlogSink(a.log), a.log), nil
	}
	client, err := audit.NewKafkaClient(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		client.Close()
		return nil
	})
	if err := audit.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, 3, 1); err != nil {
		return nil, fmt.Errorf("audit topic: %w", err)
	}
	events := make(chan audit.Event, auditBuffer)
	a.auditJob = audit.NewWorker(audit.NewKafkaSink(client, a.cfg.Kafka.Topic), events, a.log)
	a.log.Info("audit events go to kafka", "topic", a.cfg.Kafka.Topic)
	return audit.NewPublisher(audit.NewChannelSink(events), a.log), nil
}

func (a *app) authStores(ctx context.Context) (handshake.PendingStore, session.Store, error) {
	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rc == nil {
		a.log.Warn("REDIS_URL not set; handshakes and sessions are kept in memory")
		a.pending = pending.NewInMemory()
		return a.pending, sessionstore.NewInMemorySessionStore(), nil
	}
	a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	a.readiness["redis"] = rc.Health
	return pending.NewRedis(rc.Client), sessionstore.NewRedis(rc.Client), nil
}

func (a *app) membershipStores(ctx context.Context) (registry.Store, authority.Store, error) {
	db, err := postgres.Open(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		a.log.Warn("DATABASE_URL not set; credentials and whitelist are kept in memory")
		return credstore.NewInMemory(), domainstore.NewInMemory(), nil
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	a.readiness["postgres"] = db.PingContext
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, nil, err
	}
	return credstore.NewPostgres(db), domainstore.NewPostgres(db), nil
}

// ledgerClient returns the resilient ledger client and the admin capability
// the keeper guards.
func (a *app) ledgerClient(m *metrics.Metrics) (ledger.Client, ledger.AdminCap, error) {
	var (
		inner    ledger.Client
		adminCap ledger.AdminCap
	)
	switch a.cfg.Ledger.Mode {
	case config.LedgerModeMemory:
		ref := a.cfg.Ledger.RegistryRef
		if ref == "" {
			ref = "0xregistry"
			a.cfg.Ledger.RegistryRef = ref
		}
		mem := memledger.New(ref, "0xadmincap")
		for _, pattern := range a.cfg.SeedDomains {
			mem.SeedDomain(pattern)
		}
		a.log.Warn("using the in-memory ledger; state is lost on restart")
		inner, adminCap = mem, mem.AdminCap()
	case config.LedgerModeGateway:
		inner = gateway.New(a.cfg.Ledger.URL, a.cfg.Ledger.RegistryRef, a.cfg.Ledger.Timeout)
		adminCap = ledger.AdminCap{ObjectID: a.cfg.Ledger.AdminCapID}
	default:
		return nil, ledger.AdminCap{}, fmt.Errorf("unknown ledger mode %q", a.cfg.Ledger.Mode)
	}

	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(5),
		circuit.WithCooldown(30*time.Second),
	)
	return ledger.NewResilient(inner,
		ledger.WithTimeout(a.cfg.Ledger.Timeout),
		ledger.WithBreaker(breaker),
		ledger.WithMetrics(m),
		ledger.WithLogger(a.log),
	), adminCap, nil
}

// run serves HTTP and the background jobs until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server(gctx) })
	if a.auditJob != nil {
		g.Go(func() error {
			if err := a.auditJob.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.pending != nil {
		g.Go(func() error {
			a.purgeHandshakes(gctx)
			return nil
		})
	}
	if a.scheduler != nil {
		a.scheduler.Start()
		defer a.scheduler.Stop(context.Background())
	}
	return g.Wait()
}

// purgeHandshakes drops abandoned in-memory handshakes; Redis expires them
// itself.
func (a *app) purgeHandshakes(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.pending.PurgeExpired(now); n > 0 {
				a.log.Debug("purged expired handshakes", "count", n)
			}
		}
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}
