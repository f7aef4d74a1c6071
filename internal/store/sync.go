package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

// SyncStatus reports the freshness of one symbol and timeframe.
type SyncStatus struct {
	Symbol    string
	Timeframe models.Timeframe
	LastSync  time.Time
	Bars      int
	IsStale   bool
	Error     error
}

// BarSync copies bars from an upstream provider into a BarStore so the
// engine can run offline against stored history.
type BarSync struct {
	store    BarStore
	provider marketdata.Provider
	stale    time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBarSync creates a syncer. History older than stale is refetched.
func NewBarSync(store BarStore, provider marketdata.Provider, stale time.Duration, logger zerolog.Logger) *BarSync {
	if stale <= 0 {
		stale = time.Hour
	}
	return &BarSync{store: store, provider: provider, stale: stale, logger: logger, now: time.Now}
}

func syncKey(symbol string, tf models.Timeframe) string {
	return fmt.Sprintf("bars:%s:%s", strings.ToUpper(symbol), tf)
}

// IsStale reports whether the stored bars of tf need refreshing.
func (s *BarSync) IsStale(symbol string, tf models.Timeframe) bool {
	last := s.store.GetLastSync(syncKey(symbol, tf))
	return last.IsZero() || s.now().Sub(last) > s.stale
}

// Sync refreshes every stale timeframe. Unless force is set, fresh
// timeframes are skipped. One failing timeframe does not stop the others.
func (s *BarSync) Sync(ctx context.Context, symbol string, tfs []models.Timeframe, force bool) []SyncStatus {
	var pending []models.Timeframe
	statuses := make(map[models.Timeframe]*SyncStatus, len(tfs))
	for _, tf := range tfs {
		st := &SyncStatus{Symbol: symbol, Timeframe: tf, LastSync: s.store.GetLastSync(syncKey(symbol, tf))}
		statuses[tf] = st
		if force || s.IsStale(symbol, tf) {
			pending = append(pending, tf)
		}
	}

	if len(pending) > 0 {
		set, err := marketdata.FetchSet(ctx, s.provider, symbol, pending, marketdata.FetchOptions{Logger: &s.logger})
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("bar sync incomplete")
		}

		for _, tf := range pending {
			st := statuses[tf]
			series, ok := set[tf]
			if !ok {
				st.IsStale = true
				st.Error = fmt.Errorf("no bars fetched for %s", tf)
				continue
			}
			if err := s.store.SaveBars(ctx, symbol, series); err != nil {
				st.IsStale = true
				st.Error = err
				continue
			}
			now := s.now()
			if err := s.store.SetLastSync(syncKey(symbol, tf), now); err != nil {
				st.Error = err
			}
			st.LastSync = now
			st.Bars = series.Len()
		}
	}

	out := make([]SyncStatus, 0, len(tfs))
	for _, tf := range tfs {
		out = append(out, *statuses[tf])
	}
	return out
}

// FormatSyncStatus renders one status line.
func FormatSyncStatus(st SyncStatus) string {
	switch {
	case st.Error != nil:
		return fmt.Sprintf("%s %s: error: %v", st.Symbol, st.Timeframe, st.Error)
	case st.LastSync.IsZero():
		return fmt.Sprintf("%s %s: never synced", st.Symbol, st.Timeframe)
	case st.Bars > 0:
		return fmt.Sprintf("%s %s: %d bars synced at %s", st.Symbol, st.Timeframe, st.Bars, st.LastSync.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s %s: fresh since %s", st.Symbol, st.Timeframe, st.LastSync.Format(time.RFC3339))
	}
}
