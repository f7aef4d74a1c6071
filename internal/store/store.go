// Package store persists generated signals and bar history.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// SignalStore keeps the history of generated signals. Signals are keyed by
// ID, so saving the same signal twice stores it once.
type SignalStore interface {
	// SaveSignal stores sig. A known ID yields ErrDuplicateSignal.
	SaveSignal(ctx context.Context, sig models.TradeSignal) error
	GetSignals(ctx context.Context, filter SignalFilter) ([]models.TradeSignal, error)
	GetSignal(ctx context.Context, id string) (*models.TradeSignal, error)
	Close() error
}

// BarStore keeps bar history for offline analysis.
type BarStore interface {
	SaveBars(ctx context.Context, symbol string, series models.BarSeries) error
	Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error)
	GetLastSync(key string) time.Time
	SetLastSync(key string, t time.Time) error
}

// SignalFilter narrows GetSignals. Zero fields match everything.
type SignalFilter struct {
	Symbol      string
	Direction   models.Direction
	Quality     models.SignalQuality
	DataQuality models.DataQuality
	Since       time.Time
	Limit       int
}

// Config selects and configures the backend.
type Config struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// Open returns the configured signal store.
func Open(ctx context.Context, cfg Config) (SignalStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.Path)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, apperrors.NewValidationError("store.driver", cfg.Driver, "must be sqlite or postgres", apperrors.ErrConfigInvalid)
	}
}

// signalQuery builds the history query with ? placeholders, newest first.
func signalQuery(filter SignalFilter) (string, []interface{}) {
	query := "SELECT payload FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Direction != "" {
		query += " AND direction = ?"
		args = append(args, string(filter.Direction))
	}
	if filter.Quality != "" {
		query += " AND quality = ?"
		args = append(args, string(filter.Quality))
	}
	if filter.DataQuality != "" {
		query += " AND data_quality = ?"
		args = append(args, string(filter.DataQuality))
	}
	if !filter.Since.IsZero() {
		query += " AND generated_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY generated_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

func encodeSignal(sig models.TradeSignal) ([]byte, error) {
	payload, err := json.Marshal(sig)
	return payload, apperrors.Wrap(err, "encode signal")
}

func decodeSignals(payloads [][]byte) ([]models.TradeSignal, error) {
	out := make([]models.TradeSignal, 0, len(payloads))
	for _, p := range payloads {
		var sig models.TradeSignal
		if err := json.Unmarshal(p, &sig); err != nil {
			return nil, apperrors.Wrap(err, "decode signal")
		}
		out = append(out, sig)
	}
	return out, nil
}
