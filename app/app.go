// Package app assembles a board service from configuration: the storage
// backend, its cache and change feed, authentication and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/api"
	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/config"
	"github.com/azzy787/task-board-mvp/identity"
	"github.com/azzy787/task-board-mvp/storage"
	"github.com/azzy787/task-board-mvp/subscription"
)

const feedRetryDelay = 5 * time.Second

// App holds the wired components of one board.
type App struct {
	Config  config.Config
	Service *board.Service
	Hub     *subscription.Hub
	Auth    *api.Auth
	// Local is nil unless AUTH_MODE=local.
	Local *identity.Local
	// Redis is nil when REDIS_CONNECTION_STRING is unset.
	Redis *redis.Client
	// Mongo is set for the mongo backend.
	Mongo *storage.Mongo

	source subscription.Source
	relay  *subscription.Relay
	jwks   *keyfunc.JWKS
}

// New wires the board and its authentication. reg receives the board
// counters; nil skips them.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	a, err := OpenBoard(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	if err := a.openAuth(); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// OpenBoard wires storage and the board service without authentication,
// for tools that act on the board directly.
func OpenBoard(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg}
	if cfg.RedisConnStr != "" {
		opts, err := config.RedisOptions(cfg.RedisConnStr)
		if err != nil {
			return nil, err
		}
		a.Redis = redis.NewClient(opts)
	}

	base, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	var store board.Store = base
	if a.Redis != nil && cfg.CacheTTL > 0 {
		store = storage.NewCache(base, cfg.BoardID, a.Redis, cfg.CacheTTL)
	}
	var metrics *board.Metrics
	if reg != nil {
		metrics = board.NewMetrics(reg)
	}
	a.Service = board.NewService(store, base, metrics)
	a.Hub = subscription.NewHub(base, a.source)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (board.Store, error) {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendMemory:
		m := storage.NewMemory(cfg.BoardID, nil)
		a.source = m
		return m, nil

	case config.BackendTables:
		var notify storage.Notifier
		if a.Redis != nil {
			pub := subscription.NewRedisPublisher(a.Redis, cfg.UpdatesChannel)
			notify = pub
			a.source = subscription.NewRedisSource(a.Redis, cfg.UpdatesChannel, cfg.BoardID)
		}
		if cfg.ChangeQueue != "" {
			q, err := storage.NewChangeQueue(cfg.StorageConnStr, cfg.ChangeQueue)
			if err != nil {
				return nil, fmt.Errorf("change queue: %w", err)
			}
			if notify != nil {
				a.relay = subscription.NewRelay(q, notify)
			}
			notify = q
		}
		if a.source == nil {
			log.Warn("no REDIS_CONNECTION_STRING; live updates limited to initial snapshots")
		}
		return storage.NewTables(cfg.StorageConnStr, cfg.BoardID, cfg.TasksTable, cfg.MetaTable, notify)

	case config.BackendMongo:
		m, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.BoardID, nil)
		if err != nil {
			return nil, err
		}
		a.Mongo = m
		a.source = m
		return m, nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

func (a *App) openAuth() error {
	cfg := a.Config
	switch cfg.AuthMode {
	case config.AuthLocal:
		if a.Redis == nil {
			return errors.New("local auth requires redis")
		}
		a.Local = identity.NewLocal(a.Redis, identity.Config{
			Secret:            []byte(cfg.AuthSecret),
			Issuer:            cfg.AuthIssuer,
			SessionTTL:        cfg.SessionTTL,
			AttemptsPerMinute: cfg.AttemptsPerMinute,
		})
		a.Auth = api.NewAuth(api.AuthOptions{
			Secret:      a.Local.Secret(),
			Issuer:      cfg.AuthIssuer,
			Revocations: a.Local,
		})
	case config.AuthJWKS:
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.AuthDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				log.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		a.jwks = jwks
		a.Auth = api.NewAuth(api.AuthOptions{
			JWKS:        jwks,
			Audience:    cfg.AuthAudience,
			Issuer:      "https://" + cfg.AuthDomain + "/",
			KeyCacheTTL: cfg.JWKSCacheTTL,
		})
	default:
		return fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
	return nil
}

// Deps returns the HTTP collaborators.
func (a *App) Deps() api.Deps {
	deps := api.Deps{Board: a.Service, Auth: a.Auth, Live: a.Hub}
	if a.Local != nil {
		deps.Sessions = a.Local
	}
	if a.Redis != nil && a.Config.IdempotencyTTL > 0 {
		deps.Idempotency = api.NewRedisDeduper(a.Redis, a.Config.IdempotencyTTL)
	}
	return deps
}

// Run starts the change feed, the queue relay and scheduled reconciliation,
// and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.relay != nil {
		go a.relay.Run(ctx)
	}
	if a.Config.RefreshSchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(a.Config.RefreshSchedule, func() {
			rep, err := a.Service.Refresh(ctx)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{"updated": rep.Updated, "unchanged": rep.Unchanged}).Error("scheduled refresh failed")
				return
			}
			log.WithFields(log.Fields{"updated": rep.Updated, "unchanged": rep.Unchanged}).Info("scheduled refresh done")
		})
		if err != nil {
			return fmt.Errorf("invalid REFRESH_SCHEDULE: %w", err)
		}
		c.Start()
		defer c.Stop()
	}
	if a.source == nil {
		<-ctx.Done()
		return nil
	}
	for {
		if err := a.Hub.Run(ctx); err != nil {
			log.WithError(err).Error("change feed failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(feedRetryDelay):
		}
	}
}

// Close releases connections.
func (a *App) Close(ctx context.Context) {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
	if a.Mongo != nil {
		if err := a.Mongo.Close(ctx); err != nil {
			log.WithError(err).Warn("close mongo")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
