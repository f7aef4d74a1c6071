package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ict-signals/internal/analysis/indicators"
	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
	"ict-signals/internal/signal"
)

// addSignalCommands adds the commands that produce signals.
func addSignalCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSignalCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newIndicatorsCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
}

func newSignalCmd(app *App) *cobra.Command {
	var symbol, provider string
	var save bool

	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Generate the current signal",
		Long: `Fetch bars for every timeframe the engine weighs and print the signal.

A HOLD with data_quality FALLBACK means no usable market data was available.`,
		Example: `  ictsignal signal
  ictsignal signal --symbol BANKNIFTY --provider kite --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			if provider == "" {
				provider = app.Config.Market.Provider
			}
			market, err := app.buildMarket(provider)
			if err != nil {
				return err
			}
			defer market.Close()

			sig := app.newService(app.symbolFlag(symbol), market.Provider).Generate(ctx)

			if save {
				if err := app.saveSignal(ctx, sig); err != nil {
					output.Warning("Signal not saved: %v", err)
				}
			}

			if output.IsJSON() {
				return output.JSON(sig)
			}
			RenderSignal(output, sig)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "instrument symbol (default: market.symbol)")
	cmd.Flags().StringVar(&provider, "provider", "", "bar source: csv, kite or store (default: market.provider)")
	cmd.Flags().BoolVar(&save, "save", false, "store the signal in the history")
	return cmd
}

func newAnalyzeCmd(app *App) *cobra.Command {
	var symbol, timeframe string
	var files []string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate a signal from CSV files",
		Long: `Score bars loaded from CSV files instead of a provider.

Each file holds one timeframe. The timeframe is read from a name like
NIFTY_15m.csv unless --timeframe is given. Higher timeframes the engine
weighs are resampled from the finest file.`,
		Example: `  ictsignal analyze --file NIFTY_15m.csv
  ictsignal analyze --file NIFTY_15m.csv --file NIFTY_1d.csv --symbol NIFTY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			if timeframe != "" && len(files) > 1 {
				return fmt.Errorf("--timeframe applies to a single --file")
			}

			loaded, err := loadCSVSet(files, timeframe)
			if err != nil {
				return err
			}
			if symbol == "" {
				symbol = symbolFromFile(files[0])
			}

			sig := app.newService(symbol, setProvider(loaded)).Generate(ctx)
			if output.IsJSON() {
				return output.JSON(sig)
			}
			RenderSignal(output, sig)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "CSV file of bars (repeatable)")
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "timeframe of a single file (default: from file name)")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "instrument symbol (default: from file name)")
	return cmd
}

func newIndicatorsCmd(app *App) *cobra.Command {
	var symbol, timeframe, file string
	var names []string

	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Calculate technical indicators",
		Long:  "Run the indicator engine over one series and print the latest value of each indicator.",
		Example: `  ictsignal indicators --file NIFTY_15m.csv
  ictsignal indicators --timeframe 1h --only RSI_14,ATR_14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			name, series, err := app.loadSeries(ctx, file, app.symbolFlag(symbol), timeframe)
			if err != nil {
				return err
			}

			engine := indicators.NewDefaultEngine(4)
			values := make(map[string]string)

			if len(names) > 0 {
				selected, err := engine.CalculateSelected(ctx, series.Bars, names)
				if err != nil {
					return err
				}
				for name, v := range selected {
					values[name] = formatSeriesValue(v)
				}
			} else {
				res, err := engine.CalculateAll(ctx, series.Bars)
				if err != nil {
					return err
				}
				for name, v := range res.Single {
					values[name] = formatSeriesValue(v)
				}
				for name, outputs := range res.Multi {
					for key, v := range outputs {
						values[name+"."+key] = formatSeriesValue(v)
					}
				}
				for name, err := range res.Errors {
					app.Logger.Debug().Err(err).Str("indicator", name).Msg("indicator skipped")
				}
			}

			if output.IsJSON() {
				return output.JSON(values)
			}

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			output.Bold("%s %s (%d bars)", name, series.Timeframe, series.Len())
			table := NewTable(output, "INDICATOR", "VALUE")
			for _, k := range keys {
				table.AddRow(k, values[k])
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file of bars (default: fetch from the provider)")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "instrument symbol (default: market.symbol)")
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "timeframe (default: engine primary or from file name)")
	cmd.Flags().StringSliceVar(&names, "only", nil, "calculate only these indicators")
	return cmd
}

func newScanCmd(app *App) *cobra.Command {
	var symbols, filterArgs []string
	var all bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Screen several symbols and rank their signals",
		Long: `Generate a signal per symbol and keep those passing every filter.

Filters compare confidence, rr, confluence or quality, for example
"confidence>=70", "rr>2" or "quality>=VERY_GOOD". Fallback signals never pass.`,
		Example: `  ictsignal scan --symbols NIFTY,BANKNIFTY,FINNIFTY --filter "quality>=GOOD"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			output := NewOutput(cmd)

			if len(symbols) == 0 {
				symbols = []string{app.Config.Market.Symbol}
			}
			filters := make([]signal.Filter, 0, len(filterArgs))
			for _, raw := range filterArgs {
				f, err := signal.ParseFilter(raw)
				if err != nil {
					return err
				}
				filters = append(filters, f)
			}

			market, err := app.buildMarket(app.Config.Market.Provider)
			if err != nil {
				return err
			}
			defer market.Close()

			results, err := signal.NewScreener(app.Config.Engine, market.Provider, app.Logger, 4).Scan(ctx, symbols, filters)
			if err != nil {
				return err
			}

			var signals []models.TradeSignal
			for _, r := range results {
				if r.Passed || all {
					signals = append(signals, r.Signal)
				}
			}

			if output.IsJSON() {
				if all {
					return output.JSON(results)
				}
				return output.JSON(signals)
			}
			output.Bold("%d of %d symbols passed", countPassed(results), len(results))
			RenderSignalTable(output, signals)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to screen (default: market.symbol)")
	cmd.Flags().StringArrayVar(&filterArgs, "filter", nil, "filter such as confidence>=70 (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "include symbols that did not pass")
	return cmd
}

func countPassed(results []signal.ScreenerResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

// loadSeries reads one series from file, or from the configured provider,
// and returns it with its symbol.
func (a *App) loadSeries(ctx context.Context, file, symbol, timeframe string) (string, models.BarSeries, error) {
	if file != "" {
		set, err := loadCSVSet([]string{file}, timeframe)
		if err != nil {
			return "", models.BarSeries{}, err
		}
		for _, s := range set {
			return symbolFromFile(file), s, nil
		}
	}

	tf := a.Config.Engine.Primary
	if timeframe != "" {
		parsed, err := models.ParseTimeframe(timeframe)
		if err != nil {
			return "", models.BarSeries{}, err
		}
		tf = parsed
	}

	market, err := a.buildMarket(a.Config.Market.Provider)
	if err != nil {
		return "", models.BarSeries{}, err
	}
	defer market.Close()

	series, err := market.Provider.Bars(ctx, symbol, tf)
	if err != nil {
		return "", models.BarSeries{}, err
	}
	return symbol, series, nil
}

// loadCSVSet reads each file into the set under its timeframe.
func loadCSVSet(files []string, timeframe string) (models.BarSet, error) {
	set := make(models.BarSet, len(files))
	for _, path := range files {
		tfName := timeframe
		if tfName == "" {
			tfName = timeframeFromFile(path)
		}
		tf, err := models.ParseTimeframe(tfName)
		if err != nil {
			return nil, fmt.Errorf("cannot derive timeframe for %s (use --timeframe): %w", path, err)
		}
		series, err := marketdata.LoadCSVFile(path, tf)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		set[tf] = series
	}
	return set, nil
}

// setProvider serves a loaded set. Timeframes missing from the set are
// resampled from the finest loaded series below them.
func setProvider(set models.BarSet) marketdata.Provider {
	return marketdata.ProviderFunc(func(_ context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
		if s, ok := set[tf]; ok {
			return s, nil
		}
		for _, lower := range models.AllTimeframes() {
			if lower.Rank() >= tf.Rank() {
				break
			}
			if s, ok := set[lower]; ok && !s.Empty() {
				return marketdata.Resample(s, tf), nil
			}
		}
		return models.BarSeries{}, apperrors.NewDataError(symbol, tf, "not in loaded files", apperrors.ErrDataNotFound)
	})
}

// timeframeFromFile extracts "15m" from ".../NIFTY_15m.csv".
func timeframeFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return ""
}

// symbolFromFile extracts "NIFTY" from ".../NIFTY_15m.csv".
func symbolFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// saveSignal stores sig; an already stored signal is not an error.
func (a *App) saveSignal(ctx context.Context, sig models.TradeSignal) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveSignal(ctx, sig); err != nil && !errors.Is(err, apperrors.ErrDuplicateSignal) {
		return err
	}
	return nil
}
