package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/botrelay/internal/api"
	"github.com/vietddude/botrelay/internal/core/config"
	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/core/worker"
	redisclient "github.com/vietddude/botrelay/internal/infra/redis"
	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/infra/storage/media"
	"github.com/vietddude/botrelay/internal/infra/storage/memory"
	"github.com/vietddude/botrelay/internal/infra/storage/postgres"
	"github.com/vietddude/botrelay/internal/infra/transport"
	"github.com/vietddude/botrelay/internal/infra/transport/ws"
	"github.com/vietddude/botrelay/internal/relay/aggregate"
	"github.com/vietddude/botrelay/internal/relay/breaker"
	"github.com/vietddude/botrelay/internal/relay/classify"
	"github.com/vietddude/botrelay/internal/relay/collector"
	"github.com/vietddude/botrelay/internal/relay/dispatch"
	"github.com/vietddude/botrelay/internal/relay/engine"
	"github.com/vietddude/botrelay/internal/relay/health"
	"github.com/vietddude/botrelay/internal/relay/materialize"
	"github.com/vietddude/botrelay/internal/relay/metrics"
	"github.com/vietddude/botrelay/internal/relay/normalize"
)

// Relay is the main application struct that manages the relay lifecycle.
type Relay struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	orchestrator *dispatch.Orchestrator
	breaker      *breaker.CircuitBreaker
	healthMon    *health.Monitor
	httpServer   *api.Server
	grpcServer   *health.GRPCServer
	janitor      *worker.Pruner
	history      storage.HistoryRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
	cancel       context.CancelFunc
}

// Options overrides collaborators, mostly for tests and one-shot commands.
type Options struct {
	Transports transport.Factory // nil = websocket bridge from config
	Logger     *slog.Logger
}

// NewRelay creates a new Relay instance with all dependencies initialized.
func NewRelay(cfg *config.AppConfig, opts Options) (*Relay, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Relay{cfg: cfg, log: log}

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		r.db = db
		r.history = postgres.NewHistoryRepo(db)
		log.Info("Using PostgreSQL dispatch history")
	} else {
		r.history = memory.NewHistoryRepo(0)
		log.Info("Using memory dispatch history")
	}

	var cache storage.ResultCache
	if cfg.Cache.Enabled {
		if cfg.Redis.URL != "" {
			client, err := redisclient.NewClient(cfg.Redis)
			if err != nil {
				r.closeStores()
				return nil, fmt.Errorf("failed to init redis: %w", err)
			}
			r.redisClient = client
			cache = redisclient.NewResultCache(client, cfg.Cache.TTL)
			log.Info("Using Redis result cache", "ttl", cfg.Cache.TTL)
		} else {
			cache = memory.NewResultCache(cfg.Cache.TTL)
			log.Info("Using memory result cache", "ttl", cfg.Cache.TTL)
		}
	}

	store, err := media.NewDiskStore(cfg.Media.Dir, cfg.Media.PublicURL)
	if err != nil {
		r.closeStores()
		return nil, err
	}
	r.janitor = worker.NewPruner("media", cfg.Media.Retention, store)

	// 2. Initialize Relay Components
	r.breaker = breaker.New(cfg.Dispatch.BlockDuration,
		breaker.WithLogger(log),
		breaker.WithStateCallback(func(actor domain.ActorID, blocked bool) {
			v := 0.0
			if blocked {
				v = 1
			}
			metrics.ActorBlocked.WithLabelValues(string(actor)).Set(v)
		}),
	)

	classifier := classify.New(cfg.Dispatch.FormatMarkers)
	actors := make([]dispatch.ActorProfile, 0, len(cfg.Actors))
	ids := make([]domain.ActorID, 0, len(cfg.Actors))
	for i, a := range cfg.Actors {
		classifier.SetRateLimitMarkers(a.ID, a.RateLimitMarkers)
		actors = append(actors, ActorProfile(a, i))
		ids = append(ids, a.ID)
	}

	coll := collector.New(normalize.NewRegexNormalizer(cfg.Dispatch.Brand), classifier.IsControlReply, log)
	r.orchestrator = dispatch.NewOrchestrator(
		dispatch.Config{Actors: actors, RateLimitCooldown: cfg.Dispatch.RateLimitCooldown},
		r.breaker,
		classifier,
		coll,
		aggregate.New(cfg.Dispatch.PromotedFields),
		materialize.New(store, log),
		log,
	)

	transports := opts.Transports
	if transports == nil {
		transports = ws.NewFactory(ws.Config{
			URL:              cfg.Transport.URL,
			Token:            cfg.Transport.Token,
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			RequestTimeout:   cfg.Transport.RequestTimeout,
		}, log)
	}

	engineOpts := []engine.Option{engine.WithHistory(r.history), engine.WithLogger(log)}
	if cache != nil {
		engineOpts = append(engineOpts, engine.WithCache(cache), engine.WithMediaCheck(store))
	}
	r.engine = engine.New(transports, r.orchestrator, engineOpts...)

	// 3. Initialize Health and Servers
	if cfg.Server.GRPCPort > 0 {
		r.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
		r.healthMon = health.NewMonitor(ids, r.breaker, r.grpcServer.Health())
	} else {
		r.healthMon = health.NewMonitor(ids, r.breaker, nil)
	}
	r.httpServer = api.NewServer(r.engine, r.healthMon, store.Dir(), cfg.Server.Port, log)

	return r, nil
}

// ActorProfile converts an actor's configuration into its dispatch profile.
// Configuration order is priority order.
func ActorProfile(a config.ActorConfig, priority int) dispatch.ActorProfile {
	return dispatch.ActorProfile{
		Actor: domain.Actor{ID: a.ID, Priority: priority},
		Standard: collector.Profile{
			TotalTimeout:  a.TotalTimeout,
			IdleThreshold: a.IdleThreshold,
			MaxMessages:   a.MaxMessages,
		},
		NameSearch: collector.Profile{
			TotalTimeout:  a.NameSearchTimeout,
			IdleThreshold: a.IdleThreshold,
			MaxMessages:   a.MaxMessages,
		},
	}
}

// Engine returns the query engine.
func (r *Relay) Engine() *engine.Engine {
	return r.engine
}

// History returns the dispatch history repository.
func (r *Relay) History() storage.HistoryRepository {
	return r.history
}

// Start starts the relay and all its components.
func (r *Relay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	// Start HTTP Server
	go func() {
		if err := r.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start gRPC Health Server
	if r.grpcServer != nil {
		go func() {
			if err := r.grpcServer.Start(); err != nil {
				r.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start Health Refresher
	go r.healthMon.Run(ctx, 30*time.Second)

	// Start Media Janitor
	go r.janitor.Start(ctx)

	r.log.Info("Relay started",
		"port", r.cfg.Server.Port,
		"grpc_port", r.cfg.Server.GRPCPort,
		"actors", r.orchestrator.Actors(),
	)
	return nil
}

// Stop gracefully stops the relay.
func (r *Relay) Stop(ctx context.Context) error {
	r.log.Info("Stopping relay...")
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	if r.httpServer != nil {
		if err := r.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if r.grpcServer != nil {
		r.grpcServer.Stop()
	}
	if err := r.closeStores(); err != nil {
		errs = append(errs, err)
	}

	r.log.Info("Relay stopped")
	return errors.Join(errs...)
}

// Close releases storage connections without starting servers.
func (r *Relay) Close() error {
	return r.closeStores()
}

func (r *Relay) closeStores() error {
	var errs []error
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		r.redisClient = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		r.db = nil
	}
	return errors.Join(errs...)
}
