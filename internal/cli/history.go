package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ict-signals/internal/models"
	"ict-signals/internal/signal"
	"ict-signals/internal/store"
)

// addHistoryCommands adds the commands over stored signals and bars.
func addHistoryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newQueueCmd(app))
	rootCmd.AddCommand(newSyncCmd(app))
}

func newHistoryCmd(app *App) *cobra.Command {
	var symbol, direction, quality, dataQuality, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored signals",
		Example: `  ictsignal history --limit 20
  ictsignal history --direction BUY --quality EXCELLENT --since 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			filter, err := historyFilter(symbol, direction, quality, dataQuality, since, limit, time.Now())
			if err != nil {
				return err
			}

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			signals, err := st.GetSignals(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(signals)
			}
			RenderSignalTable(output, signals)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only this symbol")
	cmd.Flags().StringVar(&direction, "direction", "", "only BUY, SELL or HOLD")
	cmd.Flags().StringVar(&quality, "quality", "", "only this signal quality")
	cmd.Flags().StringVar(&dataQuality, "data", "", "only REAL or FALLBACK")
	cmd.Flags().StringVar(&since, "since", "", "only newer signals: a duration (24h) or RFC3339 time")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of signals")
	return cmd
}

// historyFilter validates the history flags.
func historyFilter(symbol, direction, quality, dataQuality, since string, limit int, now time.Time) (store.SignalFilter, error) {
	filter := store.SignalFilter{Symbol: symbol, Limit: limit}

	if direction != "" {
		d := models.Direction(strings.ToUpper(direction))
		if d != models.DirectionBuy && d != models.DirectionSell && d != models.DirectionHold {
			return filter, fmt.Errorf("invalid direction %q: must be BUY, SELL or HOLD", direction)
		}
		filter.Direction = d
	}
	if quality != "" {
		q, ok := models.ParseSignalQuality(strings.ToUpper(quality))
		if !ok {
			return filter, fmt.Errorf("invalid quality %q", quality)
		}
		filter.Quality = q
	}
	if dataQuality != "" {
		dq := models.DataQuality(strings.ToUpper(dataQuality))
		if dq != models.DataReal && dq != models.DataFallback {
			return filter, fmt.Errorf("invalid data quality %q: must be REAL or FALLBACK", dataQuality)
		}
		filter.DataQuality = dq
	}
	if since != "" {
		if d, err := time.ParseDuration(since); err == nil {
			filter.Since = now.Add(-d)
		} else if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		} else {
			return filter, fmt.Errorf("invalid --since %q: use a duration or RFC3339 time", since)
		}
	}
	return filter, nil
}

func newQueueCmd(app *App) *cobra.Command {
	var symbol string
	var limit int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the high-quality signal queue",
		Long: `Rebuild the queue of EXCELLENT real signals from the stored history.

The live queue of a running server is served at GET /v1/queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			signals, err := st.GetSignals(ctx, store.SignalFilter{
				Symbol:      symbol,
				Quality:     models.QualityExcellent,
				DataQuality: models.DataReal,
				Limit:       app.Config.Scheduler.QueueSize,
			})
			if err != nil {
				return err
			}

			queue := signal.NewQueue(app.Config.Scheduler.QueueSize)
			// History is newest first; the queue keeps arrival order.
			for i := len(signals) - 1; i >= 0; i-- {
				queue.Offer(signals[i])
			}
			queued := queue.Peek(limit)

			if output.IsJSON() {
				return output.JSON(queued)
			}
			output.Bold("Queue (%d of %d)", len(queued), queue.Len())
			RenderSignalTable(output, queued)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of signals shown")
	return cmd
}

func newSyncCmd(app *App) *cobra.Command {
	var symbol, from string
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy bars into the local store for offline analysis",
		Long: `Fetch every timeframe the engine weighs from an upstream provider and
save the bars in the local sqlite store. Timeframes synced within
market.sync_stale are skipped unless --force is given.

Run with market.provider = "store" afterwards to generate signals offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			if from == "" {
				from = app.Config.Market.Provider
			}
			if from == "store" {
				return fmt.Errorf("sync needs an upstream provider: use --from csv or --from kite")
			}

			market, err := app.buildMarket(from)
			if err != nil {
				return err
			}
			defer market.Close()

			bars, err := app.openBarStore()
			if err != nil {
				return err
			}
			defer bars.Close()

			sync := store.NewBarSync(bars, market.Provider, app.Config.Market.SyncStale, app.Logger)
			statuses := sync.Sync(ctx, app.symbolFlag(symbol), signal.RequiredTimeframes(app.Config.Engine), force)

			if output.IsJSON() {
				return output.JSON(syncReport(statuses))
			}
			RenderSyncStatus(output, statuses)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "instrument symbol (default: market.symbol)")
	cmd.Flags().StringVar(&from, "from", "", "upstream provider: csv or kite (default: market.provider)")
	cmd.Flags().BoolVar(&force, "force", false, "sync fresh timeframes too")
	return cmd
}

type syncEntry struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Bars      int       `json:"bars"`
	LastSync  time.Time `json:"last_sync"`
	Error     string    `json:"error,omitempty"`
}

func syncReport(statuses []store.SyncStatus) []syncEntry {
	out := make([]syncEntry, len(statuses))
	for i, st := range statuses {
		out[i] = syncEntry{Symbol: st.Symbol, Timeframe: string(st.Timeframe), Bars: st.Bars, LastSync: st.LastSync}
		if st.Error != nil {
			out[i].Error = st.Error.Error()
		}
	}
	return out
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
