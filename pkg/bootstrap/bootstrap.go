// Package bootstrap wires configuration into the running components shared by
// the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/commutealarm/commutealarm/pkg/alarm"
	"github.com/commutealarm/commutealarm/pkg/apiserver"
	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/config"
	"github.com/commutealarm/commutealarm/pkg/eventbus"
	"github.com/commutealarm/commutealarm/pkg/outbox"
	"github.com/commutealarm/commutealarm/pkg/quota"
	"github.com/commutealarm/commutealarm/pkg/route"
	"github.com/commutealarm/commutealarm/pkg/schedule"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
	redisclient "github.com/commutealarm/commutealarm/pkg/store/redis"
	"github.com/commutealarm/commutealarm/pkg/wake"
)

// App holds the assembled components of one process.
type App struct {
	Store      *postgres.Store
	Redis      *redisclient.Client
	Signal     wake.Signal
	Messages   *postgres.OutboxRepository
	Schedules  *schedule.Service
	Dispatcher *outbox.Dispatcher
	Zone       clock.Zone

	cfg    *config.Config
	logger *zap.Logger
}

// Deps are the externally owned resources App is assembled from. Redis and
// Routes are optional.
type Deps struct {
	Store  *postgres.Store
	Redis  *redisclient.Client
	Routes schedule.RouteEstimator
	Clock  clock.Clock
}

// New opens the database and, when needed, redis, then assembles the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		return nil, err
	}

	var redis *redisclient.Client
	if needsRedis(cfg) {
		redis, err = redisclient.NewClient(ctx, &cfg.Redis)
		switch {
		case err != nil && cfg.Outbox.WakeDriver == wake.DriverRedis:
			_ = store.Close()
			return nil, err
		case err != nil:
			logger.Warn("redis unavailable, route cache disabled", zap.Error(err))
			redis = nil
		}
	}

	app, err := Assemble(cfg, Deps{Store: store, Redis: redis}, logger)
	if err != nil {
		_ = store.Close()
		if redis != nil {
			_ = redis.Close()
		}
		return nil, err
	}
	return app, nil
}

// Assemble builds every component on top of deps without opening connections.
func Assemble(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	zone, err := clock.LoadZone(cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}

	db := deps.Store.DB()
	signal, err := NewSignal(cfg, db, deps.Redis, logger)
	if err != nil {
		return nil, err
	}

	routes := deps.Routes
	if routes == nil {
		var cache route.Cache
		if deps.Redis != nil && cfg.Route.CacheTTL > 0 {
			cache = route.NewRedisCache(deps.Redis.Client(), cfg.Route.CacheTTL)
		}
		routes = route.New(cfg.Route, cache, logger)
	}

	members := postgres.NewMemberRepository(db)
	places := postgres.NewPlaceRepository(db)
	schedules := postgres.NewScheduleRepository(db)
	messages := postgres.NewOutboxRepository(db)
	tx := postgres.NewTransactor(db)
	engine := alarm.NewEngine(zone)

	handler := schedule.NewQuickScheduleHandler(members, places, routes, schedules,
		quota.NewManager(schedules, cfg.Schedule.MaxPerMember), engine, clk, logger)
	router := outbox.NewRouter()
	handler.Register(router)

	policy := outbox.RetryPolicy{MaxAttempts: cfg.Outbox.MaxAttempts, Step: cfg.Outbox.BackoffStep}
	processor := outbox.NewProcessor(messages, tx, router, policy, clk, logger)
	dispatcher := outbox.NewDispatcher(messages, processor, clk, logger, outbox.DispatcherConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		Workers:      cfg.Outbox.Workers,
	})

	publisher := outbox.NewPublisher(outbox.NewRecorder(messages, clk), tx, signal, logger)
	service := schedule.NewService(tx, members, places, schedules, publisher, engine, clk, logger)

	return &App{
		Store:      deps.Store,
		Redis:      deps.Redis,
		Signal:     signal,
		Messages:   messages,
		Schedules:  service,
		Dispatcher: dispatcher,
		Zone:       zone,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// NewSignal returns the wake signal selected by outbox.wake_driver.
func NewSignal(cfg *config.Config, db *gorm.DB, redis *redisclient.Client, logger *zap.Logger) (wake.Signal, error) {
	switch cfg.Outbox.WakeDriver {
	case "", wake.DriverLocal:
		return wake.NewLocal(), nil
	case wake.DriverRedis:
		if redis == nil {
			return nil, errors.New("redis wake driver requires a redis connection")
		}
		return wake.NewRedis(eventbus.NewBus(redis.Client()), cfg.Outbox.WakeChannel, logger), nil
	case wake.DriverPostgres:
		if cfg.Database.Driver == "sqlite" {
			return nil, errors.New("postgres wake driver requires the postgres database driver")
		}
		return wake.NewPostgres(db, cfg.Database.DSN(), cfg.Outbox.WakeChannel, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", wake.ErrUnknownDriver, cfg.Outbox.WakeDriver)
	}
}

// APIServer builds the HTTP server over the App's services.
func (a *App) APIServer() *apiserver.Server {
	return apiserver.NewServer(apiserver.Services{
		Schedules: a.Schedules,
		Outbox:    a.Messages,
		Zone:      a.Zone,
	}, a.cfg, a.logger)
}

// RunDispatcher runs the dispatcher until ctx is done, woken by the
// configured signal between ticks.
func (a *App) RunDispatcher(ctx context.Context) error {
	return a.Dispatcher.Run(ctx, a.Signal.Subscribe(ctx))
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Outbox.WakeDriver == wake.DriverRedis || cfg.Route.CacheTTL > 0
}
