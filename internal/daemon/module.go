package daemon

import (
	"context"
	"errors"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/deskbase/chatd/internal/api"
	"github.com/deskbase/chatd/internal/archive"
	"github.com/deskbase/chatd/internal/config"
	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/lock"
	"github.com/deskbase/chatd/internal/logging"
	"github.com/deskbase/chatd/internal/profile"
	"github.com/deskbase/chatd/internal/relay"
	"github.com/deskbase/chatd/internal/rest"
	"github.com/deskbase/chatd/internal/session"
	"github.com/deskbase/chatd/internal/store"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ProfileName string
	UserID      string // optional override for config user_id
	UserName    string
	Token       string
	ListenAddr  string // optional override for testing; empty = use config
}

// runtimeConfig is the effective configuration after file, env and flag
// precedence is applied.
type runtimeConfig struct {
	UserID   string
	UserName string
	Token    string
	RelayURL string
	APIURL   string
	Listen   string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideDispatcher,
			provideLock,
			provideStore,
			provideRelay,
			provideRest,
			provideSession,
			provideArchiver,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(p Params, logger *zap.Logger) (*runtimeConfig, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("config load failed, using env and flags", zap.Error(err))
		}
		cfg = &config.Config{}
	}
	cfg.ApplyEnv()

	rc := &runtimeConfig{
		UserID:   cfg.UserID,
		UserName: cfg.UserName,
		Token:    cfg.Token,
		RelayURL: cfg.RelayURL,
		APIURL:   cfg.APIURL,
		Listen:   cfg.Listen,
	}
	if p.UserID != "" {
		rc.UserID = p.UserID
	}
	if p.UserName != "" {
		rc.UserName = p.UserName
	}
	if p.Token != "" {
		rc.Token = p.Token
	}
	if rc.Listen == "" {
		rc.Listen = config.DefaultListen
	}

	if rc.UserID == "" {
		return nil, errors.New("no identity configured: set user_id in config.toml, CHATD_USER_ID, or --user")
	}
	if rc.RelayURL == "" {
		return nil, errors.New("relay_url is not configured")
	}
	if rc.APIURL == "" {
		return nil, errors.New("api_url is not configured")
	}
	return rc, nil
}

func provideDispatcher() *dispatch.Dispatcher {
	return dispatch.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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
	logger.Info("history cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRelay(cfg *runtimeConfig, d *dispatch.Dispatcher, logger *zap.Logger) *relay.Manager {
	return relay.NewManager(cfg.RelayURL, cfg.UserID, cfg.Token, d, logger)
}

func provideRest(cfg *runtimeConfig) *rest.Client {
	return rest.NewClient(cfg.APIURL)
}

func provideSession(cfg *runtimeConfig, mgr *relay.Manager, client *rest.Client, d *dispatch.Dispatcher, logger *zap.Logger) *session.Store {
	return session.New(cfg.UserID, cfg.UserName, mgr, client, d, logger)
}

func provideArchiver(db *store.DB, d *dispatch.Dispatcher, cfg *runtimeConfig, logger *zap.Logger) *archive.Archiver {
	return archive.New(db, d, cfg.UserID, logger)
}

func provideHandler(s *session.Store, db *store.DB, mgr *relay.Manager, p Params, logger *zap.Logger) *api.Handler {
	return api.NewHandler(s, db, mgr, p.ProfileName, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, mgr *relay.Manager, sess *session.Store, arch *archive.Archiver, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Archive before activate so no pushed message slips past the cache.
			arch.Start()
			sess.Activate(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			go func() {
				if err := mgr.Connect(context.Background()); err != nil {
					// The reconnection loop keeps trying in the background.
					logger.Warn("initial relay connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Manual close first: suppresses reconnection, stops heartbeat
			// and any pending retry timer.
			mgr.Disconnect()
			sess.Close()
			arch.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing history cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
