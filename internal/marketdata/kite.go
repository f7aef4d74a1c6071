package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// KiteConfig holds Kite Connect credentials and the instrument exchange.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Exchange    string
	Lookback    int
}

// kiteClient is the subset of the Kite client the provider calls.
type kiteClient interface {
	GetInstruments() (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// KiteProvider fetches historical bars from Kite Connect.
type KiteProvider struct {
	client   kiteClient
	exchange string
	lookback int
	now      func() time.Time

	mu     sync.RWMutex
	tokens map[string]int
}

// NewKiteProvider creates an authenticated provider.
func NewKiteProvider(cfg KiteConfig) (*KiteProvider, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, apperrors.Wrap(apperrors.ErrNotAuthenticated, "kite api key and access token are required")
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return newKiteProvider(client, cfg), nil
}

func newKiteProvider(client kiteClient, cfg KiteConfig) *KiteProvider {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 300
	}
	return &KiteProvider{
		client:   client,
		exchange: cfg.Exchange,
		lookback: cfg.Lookback,
		now:      time.Now,
		tokens:   make(map[string]int),
	}
}

// Bars fetches the last lookback bars of tf. 4h has no Kite interval and is
// reported absent so FetchSet resamples it from 1h.
func (k *KiteProvider) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	interval, ok := kiteInterval(tf)
	if !ok {
		return models.BarSeries{Timeframe: tf}, apperrors.NewDataError(symbol, tf, "no kite interval", apperrors.ErrDataNotFound)
	}

	token, err := k.instrumentToken(symbol)
	if err != nil {
		return models.BarSeries{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.BarSeries{}, err
	}

	to := k.now()
	from := to.Add(-lookbackWindow(tf, k.lookback))
	data, err := k.client.GetHistoricalData(token, interval, from, to, false, false)
	if err != nil {
		return models.BarSeries{}, apperrors.NewProviderError("kite", "historical "+interval, err)
	}

	bars := make([]models.Bar, len(data))
	for i, d := range data {
		bars[i] = models.Bar{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    float64(d.Volume),
		}
	}
	return models.NewBarSeries(tf, bars).Tail(k.lookback), nil
}

// instrumentToken resolves EXCHANGE:SYMBOL, loading the instrument dump once.
func (k *KiteProvider) instrumentToken(symbol string) (int, error) {
	key := fmt.Sprintf("%s:%s", k.exchange, strings.ToUpper(symbol))

	k.mu.RLock()
	token, ok := k.tokens[key]
	loaded := len(k.tokens) > 0
	k.mu.RUnlock()
	if ok {
		return token, nil
	}
	if loaded {
		return 0, apperrors.NewDataError(symbol, "", "instrument not found on "+k.exchange, apperrors.ErrDataNotFound)
	}

	instruments, err := k.client.GetInstruments()
	if err != nil {
		return 0, apperrors.NewProviderError("kite", "instruments", err)
	}

	k.mu.Lock()
	for _, inst := range instruments {
		k.tokens[fmt.Sprintf("%s:%s", inst.Exchange, inst.Tradingsymbol)] = inst.InstrumentToken
	}
	token, ok = k.tokens[key]
	k.mu.Unlock()

	if !ok {
		return 0, apperrors.NewDataError(symbol, "", "instrument not found on "+k.exchange, apperrors.ErrDataNotFound)
	}
	return token, nil
}

func kiteInterval(tf models.Timeframe) (string, bool) {
	switch tf {
	case models.TF1m:
		return "minute", true
	case models.TF5m:
		return "5minute", true
	case models.TF15m:
		return "15minute", true
	case models.TF1h:
		return "60minute", true
	case models.TF1d:
		return "day", true
	default:
		return "", false
	}
}

// lookbackWindow covers n bars of tf, doubled for sessions the market is closed.
func lookbackWindow(tf models.Timeframe, n int) time.Duration {
	window := time.Duration(n) * tf.Duration() * 2
	if tf == models.TF1d {
		window = time.Duration(n) * tf.Duration() * 3 / 2
	}
	return window
}
