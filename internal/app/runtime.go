package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Guizzs26/go-meta-sync/internal/auth"
	"github.com/Guizzs26/go-meta-sync/internal/broker"
	"github.com/Guizzs26/go-meta-sync/internal/config"
	"github.com/Guizzs26/go-meta-sync/internal/integration"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/internal/processor"
	"github.com/Guizzs26/go-meta-sync/internal/service"
	"github.com/Guizzs26/go-meta-sync/internal/session"
	"github.com/redis/go-redis/v9"
)

// Domain bundles the connection, client and reconciler of one remote domain
type Domain[R models.MetaRecord] struct {
	Manager    *broker.Manager
	Gateway    *broker.Gateway
	Client     *integration.Client[R]
	Reconciler *service.Reconciler[R]
	transport  broker.Transport
}

func newDomain[R models.MetaRecord](name, plural, queue string, cfg *config.Config, store processor.Store, transport broker.Transport, logger *slog.Logger) *Domain[R] {
	ep := broker.NewEndpoint(name, plural, cfg.RabbitMQURL, queue)
	if transport == nil {
		transport = broker.NewRabbitMQTransport(ep.URL, ep.Queue, logger.With("domain", name))
	}

	m := broker.NewManager(ep, transport, logger)
	g := broker.NewGateway(m, logger)
	c := integration.NewClient[R](g, integration.Timeouts{
		Bulk:       cfg.BulkTimeout,
		Lookup:     cfg.LookupTimeout,
		LookupCold: cfg.LookupColdTimeout,
		Cache:      cfg.CacheTimeout,
	}, logger)

	return &Domain[R]{
		Manager:    m,
		Gateway:    g,
		Client:     c,
		Reconciler: service.NewReconciler[R](c, processor.NewMerger(store, name, logger), cfg.SyncConcurrency, logger),
		transport:  transport,
	}
}

// Runtime holds the three meta domains wired against one store
type Runtime struct {
	Branch   *Domain[models.MetaBranch]
	Customer *Domain[models.MetaCustomer]
	Region   *Domain[models.MetaRegion]
	logger   *slog.Logger
}

// TransportFactory lets callers replace the RabbitMQ transport, e.g. in tests. Nil means RabbitMQ
type TransportFactory func(ep broker.Endpoint) broker.Transport

func NewRuntime(cfg *config.Config, store processor.Store, logger *slog.Logger, factory TransportFactory) *Runtime {
	transport := func(name, plural, queue string) broker.Transport {
		if factory == nil {
			return nil
		}
		return factory(broker.NewEndpoint(name, plural, cfg.RabbitMQURL, queue))
	}

	return &Runtime{
		Branch:   newDomain[models.MetaBranch]("branch", "branches", cfg.BranchQueue, cfg, store, transport("branch", "branches", cfg.BranchQueue), logger),
		Customer: newDomain[models.MetaCustomer]("customer", "customers", cfg.CustomerQueue, cfg, store, transport("customer", "customers", cfg.CustomerQueue), logger),
		Region:   newDomain[models.MetaRegion]("region", "regions", cfg.RegionQueue, cfg, store, transport("region", "regions", cfg.RegionQueue), logger),
		logger:   logger,
	}
}

func (rt *Runtime) Syncers() []service.Syncer {
	return []service.Syncer{rt.Branch.Reconciler, rt.Customer.Reconciler, rt.Region.Reconciler}
}

func (rt *Runtime) Syncer(domain string) (service.Syncer, error) {
	for _, s := range rt.Syncers() {
		if s.Domain() == domain {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown domain %q (expected one of %v)", domain, rt.DomainNames())
}

func (rt *Runtime) DomainNames() []string {
	return []string{"branch", "customer", "region"}
}

func (rt *Runtime) managers() []*broker.Manager {
	return []*broker.Manager{rt.Branch.Manager, rt.Customer.Manager, rt.Region.Manager}
}

// Warmup pre-establishes every endpoint connection in parallel. Failures are not fatal:
// the first call on a disconnected endpoint retries
func (rt *Runtime) Warmup(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range rt.managers() {
		wg.Add(1)
		go func(m *broker.Manager) {
			defer wg.Done()
			s := m.EnsureConnection(ctx)
			rt.logger.Info("Integration service initialization completed", "domain", m.Endpoint().Domain, "status", s.Status.String())
		}(m)
	}
	wg.Wait()
}

// States reports the connection status of every endpoint
func (rt *Runtime) States() map[string]broker.ConnectionState {
	out := make(map[string]broker.ConnectionState, 3)
	for _, m := range rt.managers() {
		out[m.Endpoint().Domain] = m.State()
	}
	return out
}

func (rt *Runtime) Close() {
	for _, d := range []broker.Transport{rt.Branch.transport, rt.Customer.transport, rt.Region.transport} {
		if err := d.Close(); err != nil {
			rt.logger.Warn("Failed to close transport", "error", err)
		}
	}
}

// NewRedisClient builds the shared session cache client
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewAuthService wires tokens, sessions and users
func NewAuthService(cfg *config.Config, users auth.UserRepository, client *redis.Client, logger *slog.Logger) *auth.Service {
	store := session.NewStore(session.NewRedisCache(client), cfg.SessionTTL, logger)
	issuer := auth.NewIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExp, cfg.RefreshTokenExp)
	return auth.NewService(users, store, issuer, logger)
}
