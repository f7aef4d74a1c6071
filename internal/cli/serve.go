package cli

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ict-signals/internal/api"
	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
	"ict-signals/internal/notify"
	"ict-signals/internal/performance"
	"ict-signals/internal/resilience"
	"ict-signals/internal/scheduler"
	"ict-signals/internal/store"
	"ict-signals/internal/stream"
)

// addServeCommands adds the long-running server and its token helper.
func addServeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newTokenCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	var addr, symbol string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresher and the signal API",
		Long: `Refresh the signal on the configured schedule, store and queue it, push it to
WebSocket subscribers and notify on high-quality direction changes.

Routes: /healthz, /metrics, /v1/signal, /v1/signals, /v1/signals/{id},
/v1/queue (GET, DELETE) and /v1/ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			output := NewOutput(cmd)
			cfg := app.Config
			logger := app.Logger

			market, err := app.buildMarket(cfg.Market.Provider)
			if err != nil {
				return err
			}
			defer market.Close()

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			sym := app.symbolFlag(symbol)
			service := app.newService(sym, market.Provider)
			metrics := performance.NewMetrics(logger)

			hub := stream.NewHubWithConfig(cfg.Hub)
			hub.Start(ctx)
			defer hub.Stop()

			notifier := notify.NewMultiNotifier(cfg.Notify)
			if !quiet && !output.IsJSON() {
				notifier.AddChannel(notify.NewTerminalNotifierTo(cmd.OutOrStdout()))
			}
			alerts := stream.NewAlertMonitor(cfg.Alerts, notifier, logger, sym)
			alerts.SetOnTrigger(func(sig models.TradeSignal) {
				logger.Info().Str("signal_id", sig.ID).Str("direction", string(sig.Direction)).Msg("alert sent")
			})
			hub.RegisterConsumer(alerts)
			hub.RegisterConsumer(fallbackReporter(notifier, sym))

			refresher := scheduler.NewRefresher(cfg.Scheduler, service, st, hub, nil, metrics, logger)

			health := resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig())
			health.RegisterComponent("provider", resilience.BreakerCheck(market.Resilient.State))
			health.RegisterComponent("store", resilience.PingCheck(func(ctx context.Context) error {
				_, err := st.GetSignals(ctx, store.SignalFilter{Limit: 1})
				return err
			}))

			serverCfg := cfg.Server
			if addr != "" {
				serverCfg.Addr = addr
			}
			server := api.NewServer(serverCfg, api.Deps{
				Generator: service,
				Store:     st,
				Queue:     refresher.Queue(),
				Hub:       hub,
				Metrics:   metrics,
				Health:    health,
				Logger:    logger,
			})

			if cfg.Scheduler.Enabled {
				if err := refresher.Start(ctx); err != nil {
					return err
				}
				defer refresher.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			output.Info("Serving %s on %s (timeframes %s, refresh %s)",
				sym, serverCfg.Addr, joinTimeframes(service.Timeframes()), refreshLabel(cfg.Scheduler))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			start := time.Now()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("server shutdown")
			}
			runs, skipped := refresher.Stats()
			output.Dim("Stopped after %d refreshes (%d skipped), shutdown took %s", runs, skipped, FormatDuration(time.Since(start)))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "instrument symbol (default: market.symbol)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print alerts to the terminal")
	return cmd
}

// fallbackReporter notifies when a refresh had no usable market data.
func fallbackReporter(notifier notify.Notifier, symbol string) stream.Consumer {
	return stream.NewConsumerFunc([]string{symbol}, func(sig models.TradeSignal) {
		if sig.DataQuality != models.DataFallback {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = notifier.SendError(ctx, apperrors.NewDataError(sig.Symbol, "", "no usable bars", apperrors.ErrDataNotFound), "refresh "+sig.Symbol)
	})
}

func refreshLabel(cfg scheduler.Config) string {
	if !cfg.Enabled {
		return "off"
	}
	return cfg.Spec
}

func newTokenCmd(app *App) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long:  "Sign a bearer token for the /v1 routes with server.jwt_secret (or JWT_SECRET).",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			token, err := api.IssueToken(app.Config.Server.JWTSecret, subject, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"token":      token,
					"subject":    subject,
					"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
				})
			}
			output.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
