package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/signal"
	"ict-signals/internal/store"
)

// marketStack is a provider with its resilience and cache layers.
type marketStack struct {
	Provider  marketdata.Provider
	Resilient *marketdata.ResilientProvider
	closers   []func() error
}

// Close releases the cache and store connections behind the stack.
func (m *marketStack) Close() {
	for _, c := range m.closers {
		_ = c()
	}
}

// baseProvider builds the raw provider named kind.
func (a *App) baseProvider(kind string) (marketdata.Provider, func() error, error) {
	cfg := a.Config
	switch strings.ToLower(kind) {
	case "csv":
		return marketdata.NewCSVProvider(cfg.Market.CSVDir), nil, nil
	case "kite":
		p, err := marketdata.NewKiteProvider(marketdata.KiteConfig{
			APIKey:      cfg.Credentials.Kite.APIKey,
			AccessToken: cfg.Credentials.Kite.AccessToken,
			Exchange:    cfg.Market.Exchange,
			Lookback:    cfg.Market.Lookback,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case "store":
		st, err := a.openBarStore()
		if err != nil {
			return nil, nil, err
		}
		return st.WithBarLimit(cfg.Market.Lookback), st.Close, nil
	default:
		return nil, nil, apperrors.NewValidationError("market.provider", kind, "must be csv, kite or store", apperrors.ErrConfigInvalid)
	}
}

// buildMarket wraps the configured provider with rate limiting, the circuit
// breaker and the bar cache.
func (a *App) buildMarket(kind string) (*marketStack, error) {
	base, closeBase, err := a.baseProvider(kind)
	if err != nil {
		return nil, err
	}
	stack := &marketStack{}
	if closeBase != nil {
		stack.closers = append(stack.closers, closeBase)
	}

	res := a.Config.Resilience()
	res.Name = kind
	stack.Resilient = marketdata.NewResilientProvider(base, res)

	var cache marketdata.Cache = marketdata.NewMemoryCache()
	if url := a.Config.Market.RedisURL; url != "" {
		rc, err := marketdata.NewRedisCacheFromURL(url)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("connecting bar cache: %w", err)
		}
		stack.closers = append(stack.closers, rc.Close)
		cache = rc
	}
	stack.Provider = marketdata.NewCachedProvider(stack.Resilient, cache, a.Config.Market.CacheTTL).WithLogger(a.Logger)

	a.Logger.Debug().Str("provider", kind).Str("cache", cacheKind(a.Config)).Msg("market data ready")
	return stack, nil
}

// newService creates the signal service for symbol over provider.
func (a *App) newService(symbol string, provider marketdata.Provider) *signal.Service {
	engine := signal.NewEngine(symbol, a.Config.Engine).WithLogger(a.Logger)
	return signal.NewService(engine, provider, a.Logger)
}

// symbolFlag returns --symbol or the configured symbol.
func (a *App) symbolFlag(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.Config.Market.Symbol
}

// openStore opens the configured signal store.
func (a *App) openStore(ctx context.Context) (store.SignalStore, error) {
	cfg := a.Config.Store
	if cfg.Driver == "" || strings.HasPrefix(cfg.Driver, "sqlite") {
		if cfg.Path == "" {
			cfg.Path = a.defaultStorePath()
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return store.Open(ctx, cfg)
}

// openBarStore opens the sqlite database holding synced bars. Bars live in
// sqlite even when signals go to postgres.
func (a *App) openBarStore() (*store.SQLiteStore, error) {
	path := a.Config.Store.Path
	if a.Config.Store.Driver == "postgres" || path == "" {
		path = a.defaultStorePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.NewSQLiteStore(path)
}
