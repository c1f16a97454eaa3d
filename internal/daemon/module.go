package daemon

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/swaply/exchat/internal/auth"
	"github.com/swaply/exchat/internal/cache"
	"github.com/swaply/exchat/internal/chat"
	"github.com/swaply/exchat/internal/config"
	"github.com/swaply/exchat/internal/conn"
	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/logging"
	"github.com/swaply/exchat/internal/outbox"
	"github.com/swaply/exchat/internal/presence"
	"github.com/swaply/exchat/internal/rest"
	"github.com/swaply/exchat/internal/status"
	"github.com/swaply/exchat/internal/store"
	"github.com/swaply/exchat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("exchat",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDispatcher,
			provideStateMachine,
			provideTokenSource,
			provideTransport,
			provideManager,
			provideStore,
			provideCache,
			provideQueue,
			provideTypingTracker,
			provideOnlineTracker,
			provideRESTClient,
			provideClient,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	return p.Config
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Storage.DataDir, cfg.Auth.UserID)
}

func provideDispatcher(logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(logger)
}

func provideStateMachine(d *dispatch.Dispatcher) *status.Machine {
	return status.NewMachine(d)
}

func provideTokenSource(cfg *config.Config) auth.TokenSource {
	return auth.StaticTokenSource(cfg.Auth.Token)
}

func provideTransport(cfg *config.Config, logger *zap.Logger) transport.Conn {
	return transport.NewWebSocket(cfg.Server.SocketURL, cfg.Connection.PingInterval.Duration, logger)
}

func provideManager(tr transport.Conn, tokens auth.TokenSource, machine *status.Machine, d *dispatch.Dispatcher, cfg *config.Config, logger *zap.Logger) *conn.Manager {
	backoff := conn.NewBackoff(cfg.Connection.BackoffBase.Duration, cfg.Connection.BackoffCap.Duration)
	return conn.NewManager(tr, tokens, machine, d, backoff, cfg.Connection.MaxAttempts, logger)
}

func provideStore() *store.Store {
	return store.New()
}

func provideCache(cfg *config.Config, logger *zap.Logger) (*cache.DB, error) {
	dbPath := filepath.Join(cfg.Storage.DataDir, "exchat.db")
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideQueue(logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(logger)
}

func provideTypingTracker(cfg *config.Config, d *dispatch.Dispatcher, logger *zap.Logger) *presence.TypingTracker {
	return presence.NewTypingTracker(cfg.Presence.TypingExpiry.Duration, d, logger)
}

func provideOnlineTracker(st *store.Store, d *dispatch.Dispatcher, logger *zap.Logger) *presence.OnlineTracker {
	return presence.NewOnlineTracker(st, d, logger)
}

func provideRESTClient(cfg *config.Config, tokens auth.TokenSource, logger *zap.Logger) *rest.Client {
	return rest.New(cfg.Server.RESTURL, tokens, logger)
}

func provideClient(cfg *config.Config, mgr *conn.Manager, tr transport.Conn, st *store.Store, db *cache.DB, q *outbox.Queue, typing *presence.TypingTracker, online *presence.OnlineTracker, restClient *rest.Client, d *dispatch.Dispatcher, logger *zap.Logger) *chat.Client {
	return chat.New(chat.Params{
		SelfID:  cfg.Auth.UserID,
		Manager: mgr,
		Conn:    tr,
		Store:   st,
		Cache:   db,
		Queue:   q,
		Typing:  typing,
		Online:  online,
		REST:    restClient,
		Disp:    d,
		Logger:  logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, client *chat.Client, mgr *conn.Manager, db *cache.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Ingestion and flusher run for the life of the process.
			client.Start(context.Background())

			go func() {
				ctx := context.Background()
				if err := client.Hydrate(ctx); err != nil {
					logger.Warn("hydration failed", zap.Error(err))
				}
				if err := client.Connect(ctx); err != nil {
					if errors.Is(err, auth.ErrUnauthenticated) {
						logger.Warn("no credentials, staying offline")
						return
					}
					logger.Error("connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			client.Stop()
			mgr.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
