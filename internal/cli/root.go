// Package cli provides the command-line interface for the signal engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"market-twin/internal/config"
	"market-twin/internal/engine"
	"market-twin/internal/logging"
	"market-twin/internal/metrics"
	"market-twin/internal/store"
	"market-twin/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. The analyzer and the database
// are created on first use so that config commands work with a broken
// configuration or no database at all.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	analyzer *engine.Analyzer
	db       *store.SQLiteStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	rootCmd := &cobra.Command{
		Use:   "twin",
		Short: "Market Twin - technical indicator and signal engine",
		Long: `Market Twin evaluates daily OHLCV series and turns them into trading signals.

Each evaluation computes an indicator bank (moving averages, RSI, MACD,
Bollinger Bands, VWAP, TTM Squeeze and more), detects support/resistance
levels and double top/bottom patterns, runs the signal rules and aggregates
them into a seven-tier verdict from STRONG SELL to STRONG BUY.

Bars are read from a SQLite stock_prices table or from CSV files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("config") {
				dir, _ := cmd.Flags().GetString("config")
				loaded, err := config.Read(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.Logger = logging.New(loaded.Log)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			if !app.Config.UI.ColorEnabled {
				_ = cmd.Flags().Set("no-color", "true")
			}

			cmd.SetContext(logging.WithLogger(commandContext(cmd), app.Logger))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/market-twin)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("db", "", "SQLite database with a stock_prices table (default: store.db_path)")
	rootCmd.PersistentFlags().String("csv-dir", "", "read bars from SYMBOL.csv files in this directory instead of the database")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addScreenerCommands(rootCmd, app)
	addDataCommands(rootCmd, app)

	return rootCmd
}

// Analyzer returns the shared analyzer, building it on first use.
func (a *App) Analyzer() (*engine.Analyzer, error) {
	if a.analyzer == nil {
		analyzer, err := engine.NewAnalyzer(a.Config, a.Logger, a.Metrics)
		if err != nil {
			return nil, err
		}
		a.analyzer = analyzer
	}
	return a.analyzer, nil
}

// Source returns the bar source selected by the global flags.
func (a *App) Source(cmd *cobra.Command) (store.BarSource, error) {
	if dir, _ := cmd.Flags().GetString("csv-dir"); dir != "" {
		return store.NewCSVSource(dir), nil
	}
	return a.Database(cmd)
}

// Database opens the SQLite store once per run. Opening is retried while
// another process holds the database lock.
func (a *App) Database(cmd *cobra.Command) (*store.SQLiteStore, error) {
	if a.db != nil {
		return a.db, nil
	}

	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = a.Config.Store.DBPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	retry := utils.DefaultRetryConfig()
	retry.Retryable = func(err error) bool {
		msg := err.Error()
		return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
	}

	db, err := utils.RetryWithResult(commandContext(cmd), retry, func() (*store.SQLiteStore, error) {
		return store.NewSQLiteStore(path)
	})
	if err != nil {
		return nil, err
	}

	a.Logger.Debug().Str("path", path).Msg("SQLite store opened")
	a.db = db
	return db, nil
}

// Close releases the database, if one was opened. Commands that touch the
// store defer it.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close store")
	}
	a.db = nil
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
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Market Twin v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the indicator, level and signal configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				if output.IsJSON() {
					_ = output.JSON(map[string]interface{}{"valid": false, "error": err.Error()})
				} else {
					output.Error("Configuration validation failed: %v", err)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	ind := cfg.Indicators
	output.Bold("Indicators")
	output.Printf("  SMA:             %d\n", ind.SMAPeriod)
	output.Printf("  EMA stack:       %d / %d / %d\n", ind.EMAFast, ind.EMAMid, ind.EMASlow)
	output.Printf("  RSI:             %d\n", ind.RSIPeriod)
	output.Printf("  MACD:            %d / %d / %d\n", ind.MACDFast, ind.MACDSlow, ind.MACDSignal)
	output.Printf("  Bollinger:       %d x %.1f\n", ind.BBPeriod, ind.BBStdDev)
	output.Printf("  ATR:             %d\n", ind.ATRPeriod)
	output.Printf("  TTM Squeeze:     %d (KC x %.1f)\n", ind.SqueezePeriod, ind.KeltnerMult)
	output.Printf("  Stoch RSI:       %d (%d, %d)\n", ind.StochRSIPeriod, ind.StochRSISmoothK, ind.StochRSISmoothD)
	output.Printf("  Fibonacci:       %d bars\n", ind.FibWindow)
	output.Println()

	lv := cfg.Levels
	output.Bold("Levels & Patterns")
	output.Printf("  Lookback:        %d\n", lv.Lookback)
	output.Printf("  Touch threshold: %.1f%%\n", lv.TouchThreshold*100)
	output.Printf("  Min touches:     %d\n", lv.MinTouches)
	output.Printf("  Pattern window:  %d bars, %.1f%% tolerance, gap %d\n", lv.PatternLookback, lv.PatternTolerance*100, lv.PatternMinGap)
	output.Println()

	sg := cfg.Signals
	output.Bold("Signals")
	output.Printf("  RSI bands:       %.0f / %.0f (mid %.0f)\n", sg.RSIOversold, sg.RSIOverbought, sg.RSIMidline)
	output.Printf("  Cross lookback:  %d\n", sg.CrossLookback)
	output.Printf("  VWAP band:       %.1f%%\n", sg.VWAPBandPercent)
	output.Printf("  Level proximity: %.1f%%\n", sg.LevelProximity*100)
	output.Printf("  Pattern recency: %d bars\n", sg.PatternRecency)
	output.Println()

	output.Bold("Engine")
	output.Printf("  Workers:         %d\n", cfg.Engine.Workers)
	output.Printf("  Max bars:        %d\n", cfg.Engine.MaxBars)
	output.Printf("  Database:        %s\n", cfg.Store.DBPath)
	output.Printf("  Log level:       %s\n", cfg.Log.Level)
}

// commandContext returns the command context, or Background when the
// command runs outside Execute (as in tests calling RunE directly).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
