// Package cli provides the command-line interface for the signal engine.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ict-signals/internal/config"
	"ict-signals/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command. Configuration is loaded from the
// --config directory before any subcommand runs.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{Logger: zerolog.Nop()})
}

// NewRootCmdWithConfig creates the root command around an already loaded
// configuration.
func NewRootCmdWithConfig(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Config: cfg, Logger: logger})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ictsignal",
		Short: "ICT signal engine - BUY/SELL/HOLD calls from market structure",
		Long: `ictsignal turns OHLCV bars into a directional trade signal.

It combines ICT market structure (order blocks, fair value gaps, liquidity,
kill zones, OTE) with classic indicators and a multi-timeframe bias, and
reports a confidence, trade levels and the reasons behind the call.

Use 'ictsignal signal' for a one-off signal and 'ictsignal serve' to run the
refresher with its HTTP and WebSocket API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(cmd); err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/ict-signals)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addSignalCommands(rootCmd, app)
	addHistoryCommands(rootCmd, app)
	addServeCommands(rootCmd, app)

	return rootCmd
}

// load reads the configuration once. A freshly written template is reported
// and the defaults are used.
func (a *App) load(cmd *cobra.Command) error {
	if a.Config != nil {
		return nil
	}

	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	a.ConfigDir = dir

	cfg, err := config.Load(dir)
	switch {
	case errors.Is(err, config.ErrTemplateCreated):
		fmt.Fprintf(cmd.ErrOrStderr(), "Created config template in %s, using defaults\n", dir)
		def := config.Default()
		cfg = &def
	case err != nil:
		return err
	}

	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("ictsignal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config.Redacted())
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := app.configDir()
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.Config.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}

func (a *App) configDir() string {
	if a.ConfigDir != "" {
		return a.ConfigDir
	}
	return config.DefaultConfigDir()
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Market")
	output.Printf("  Symbol:          %s\n", cfg.Market.Symbol)
	output.Printf("  Provider:        %s\n", cfg.Market.Provider)
	if cfg.Market.Provider == "csv" {
		output.Printf("  CSV Dir:         %s\n", cfg.Market.CSVDir)
	}
	output.Printf("  Cache:           %s (%s)\n", cacheKind(cfg), cfg.Market.CacheTTL)
	output.Printf("  Rate Limit:      %.1f/s burst %d\n", cfg.Market.RatePerSecond, cfg.Market.Burst)
	output.Println()

	output.Bold("Engine")
	output.Printf("  Primary TF:      %s\n", cfg.Engine.Primary)
	output.Printf("  Max Confidence:  %.0f%%\n", cfg.Engine.Scoring.MaxConfidence)
	output.Printf("  Min Risk/Reward: %.2f\n", cfg.Engine.Scoring.MinRiskReward)
	output.Println()

	output.Bold("Store")
	output.Printf("  Driver:          %s\n", cfg.Store.Driver)
	if cfg.Store.Driver == "postgres" {
		output.Printf("  DSN:             %s\n", cfg.Redacted().Store.DSN)
	} else {
		output.Printf("  Path:            %s\n", cfg.Store.Path)
	}
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Auth:            %v\n", cfg.Server.JWTSecret != "")
	output.Printf("  Refresh:         %s (enabled %v)\n", cfg.Scheduler.Spec, cfg.Scheduler.Enabled)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notify.Level)
	output.Printf("  Min Quality:     %s\n", cfg.Alerts.MinQuality)
	output.Printf("  Webhook:         %v\n", cfg.Notify.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notify.Telegram.Enabled)
}

func cacheKind(cfg *config.Config) string {
	if cfg.Market.RedisURL != "" {
		return "redis"
	}
	return "memory"
}

// defaultStorePath places the sqlite database next to the config.
func (a *App) defaultStorePath() string {
	return filepath.Join(a.configDir(), "signals.db")
}
