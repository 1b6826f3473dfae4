package commands

import (
	"context"
	"fmt"
	"log/slog"

	"bookchain/internal/app"
	"bookchain/internal/config"
	"bookchain/internal/util"
	"bookchain/pkg/ledger"
	"bookchain/pkg/session"
	"bookchain/pkg/store"
	"bookchain/pkg/wallet"
)

type runtime struct {
	cfg    config.FileConfig
	app    *app.App
	logger *slog.Logger
	close  []func()
}

func (r *runtime) Close() {
	for i := len(r.close) - 1; i >= 0; i-- {
		r.close[i]()
	}
}

// openRuntime loads config and builds a started App.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := util.InitLogger(cfg.LogLevel)
	rt := &runtime{cfg: cfg, logger: logger}

	requestTimeout, err := config.ParseDuration("requestTimeout", cfg.RequestTimeout, 0)
	if err != nil {
		return nil, err
	}
	retryDelay, err := config.ParseDuration("queryRetryDelay", cfg.QueryRetryDelay, 0)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL, wallet.DefaultTTL)
	if err != nil {
		return nil, err
	}

	var client ledger.Client = ledger.NewHTTPClient(cfg.NodeURL, cfg.BlockchainRID, requestTimeout)
	if cfg.QueryRetries > 0 {
		client = ledger.NewRetryingClient(client, cfg.QueryRetries, retryDelay, logger)
	}

	pointers, err := openPointers(rt)
	if err != nil {
		return nil, err
	}
	var codec session.PointerCodec = session.JSONCodec{}
	if cfg.PointerSecret != "" {
		jwtCodec, err := session.NewJWTCodec(cfg.PointerSecret)
		if err != nil {
			rt.Close()
			return nil, err
		}
		codec = jwtCodec
	}
	cache, err := openCache(rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	accounts := make([]wallet.Account, 0, len(cfg.Accounts))
	for _, id := range cfg.Accounts {
		accounts = append(accounts, wallet.Account{ID: id})
	}
	var provider wallet.Provider
	if len(accounts) > 0 {
		provider = &wallet.StaticProvider{Accounts: accounts}
	}

	core, err := app.New(app.Config{
		Ledger:         client,
		Wallet:         provider,
		Pointers:       pointers,
		Codec:          codec,
		Cache:          cache,
		SessionTTL:     sessionTTL,
		SessionFlags:   cfg.SessionFlags,
		MaxPasses:      cfg.ReconcileMaxPasses,
		RefreshTimeout: requestTimeout,
		Logger:         logger,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init app: %w", err)
	}
	rt.app = core
	rt.close = append(rt.close, core.Close)
	if err := core.Start(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func openPointers(rt *runtime) (session.PointerStore, error) {
	switch rt.cfg.PointerBackend {
	case config.PointerRedis:
		p := session.NewRedisPointerStore(rt.cfg.RedisAddr, rt.cfg.RedisPassword, 0)
		rt.close = append(rt.close, func() { _ = p.Close() })
		return p, nil
	case config.PointerMemory:
		return session.NewMemoryPointerStore(), nil
	default:
		return session.NewFilePointerStore(rt.cfg.PointerPath)
	}
}

func openCache(rt *runtime) (store.SnapshotCache, error) {
	switch rt.cfg.SnapshotCache {
	case config.CacheRedis:
		c := store.NewRedisSnapshotCache(rt.cfg.RedisAddr, rt.cfg.RedisPassword, 0)
		rt.close = append(rt.close, func() { _ = c.Close() })
		return c, nil
	case config.CachePostgres:
		c, err := store.NewGormSnapshotCache(rt.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres snapshot cache: %w", err)
		}
		rt.close = append(rt.close, func() { _ = c.Close() })
		return c, nil
	default:
		return nil, nil
	}
}
