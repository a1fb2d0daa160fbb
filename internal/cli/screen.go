package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"market-twin/internal/analysis/scoring"
	"market-twin/internal/metrics"
	"market-twin/internal/models"
	"market-twin/internal/store"
)

// addScreenerCommands adds screening and serving commands.
func addScreenerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScreenCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
}

// screenerFor builds a screener over the configured source.
func (a *App) screenerFor(cmd *cobra.Command) (*scoring.Screener, scoring.SeriesProvider, store.BarSource, error) {
	analyzer, err := a.Analyzer()
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := rangeFromFlags(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	src, err := a.Source(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	minBars, _ := cmd.Flags().GetInt("min-bars")
	screener := scoring.NewScreener(analyzer, a.Config.Engine.Workers, minBars)
	provider := func(ctx context.Context, symbol string) (models.Series, error) {
		return src.LoadBars(ctx, symbol, r)
	}
	return screener, provider, src, nil
}

// resolveSymbols returns the uppercased arguments, or every symbol of the
// source when all is set.
func resolveSymbols(ctx context.Context, src store.BarSource, args []string, all bool) ([]string, error) {
	if all {
		return src.ListSymbols(ctx)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no symbols given; pass symbols or --all")
	}
	symbols := make([]string, len(args))
	for i, a := range args {
		symbols[i] = strings.ToUpper(a)
	}
	return symbols, nil
}

// collectFilters merges preset, saved query and --filter expressions.
func (a *App) collectFilters(cmd *cobra.Command) ([]scoring.Filter, error) {
	var filters []scoring.Filter

	if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
		p, err := scoring.GetPresetByName(preset)
		if err != nil {
			return nil, err
		}
		filters = append(filters, p.Filters...)
	}

	if name, _ := cmd.Flags().GetString("query"); name != "" {
		db, err := a.Database(cmd)
		if err != nil {
			return nil, err
		}
		saved, err := db.GetScreenerQuery(commandContext(cmd), name)
		if err != nil {
			return nil, err
		}
		filters = append(filters, saved...)
	}

	exprs, _ := cmd.Flags().GetStringArray("filter")
	for _, expr := range exprs {
		f, err := scoring.ParseFilter(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return filters, nil
}

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen [symbols...]",
		Short: "Rank symbols by verdict with optional filters",
		Long: `Evaluate many symbols concurrently and rank them by verdict tier, then by
signed net score. Filters combine with AND.

Filter expressions compare one field with a number:
  tier             verdict rank, -3 (STRONG SELL) to +3 (STRONG BUY)
  net_score        net score, negative when the bearish side dominates
  high_confidence  number of HIGH confidence signals
  signals          number of signals
  rsi              latest RSI (symbols without one never match)
  price            latest close`,
		Example: `  twin screen --all --preset bullish
  twin screen AAPL MSFT NVDA --filter "rsi<30"
  twin screen --all --filter "tier>=2" --filter "high_confidence>=2" --save momentum
  twin screen --all --query momentum`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)
			all, _ := cmd.Flags().GetBool("all")
			showAll, _ := cmd.Flags().GetBool("show-all")
			limit, _ := cmd.Flags().GetInt("limit")
			saveAs, _ := cmd.Flags().GetString("save")

			filters, err := app.collectFilters(cmd)
			if err != nil {
				return err
			}

			screener, provider, src, err := app.screenerFor(cmd)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			symbols, err := resolveSymbols(ctx, src, args, all)
			if err != nil {
				return err
			}

			if saveAs != "" {
				db, err := app.Database(cmd)
				if err != nil {
					return err
				}
				if err := db.SaveScreenerQuery(ctx, saveAs, filters); err != nil {
					return err
				}
				app.Logger.Info().Str("query", saveAs).Int("filters", len(filters)).Msg("Screener query saved")
			}

			var results []scoring.ScreenerResult
			if showAll {
				results = screener.ScanAll(ctx, symbols, filters, provider)
			} else {
				results, err = screener.Scan(ctx, symbols, filters, provider)
				if err != nil {
					return err
				}
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			if output.IsJSON() {
				return output.JSON(screenReport(results))
			}
			displayScreenResults(output, filters, results, len(symbols))
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "screen every symbol in the source")
	cmd.Flags().String("preset", "", "preset filter set (see 'twin screen presets')")
	cmd.Flags().StringArray("filter", nil, `filter expression such as "rsi<30" (repeatable)`)
	cmd.Flags().String("query", "", "apply a saved filter set")
	cmd.Flags().String("save", "", "save the combined filters under this name")
	cmd.Flags().Bool("show-all", false, "list every symbol, passing or not, in symbol order")
	cmd.Flags().Int("limit", 0, "show at most this many results (0 for all)")
	cmd.Flags().Int("min-bars", 30, "skip symbols with fewer bars")
	addRangeFlags(cmd)

	cmd.AddCommand(newScreenPresetsCmd())
	cmd.AddCommand(newScreenQueriesCmd(app))

	return cmd
}

type screenRow struct {
	Symbol  string             `json:"symbol"`
	Score   float64            `json:"score"`
	Tier    string             `json:"tier"`
	Net     int                `json:"netScore"`
	Passed  bool               `json:"passed"`
	Matches map[string]float64 `json:"matches,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func screenReport(results []scoring.ScreenerResult) []screenRow {
	rows := make([]screenRow, len(results))
	for i, r := range results {
		rows[i] = screenRow{
			Symbol:  r.Symbol,
			Score:   r.Score,
			Tier:    string(r.Verdict.Tier),
			Net:     r.Verdict.NetScore,
			Passed:  r.Passed,
			Matches: r.Matches,
		}
		if r.Error != nil {
			rows[i].Error = r.Error.Error()
		}
	}
	return rows
}

func displayScreenResults(output *Output, filters []scoring.Filter, results []scoring.ScreenerResult, scanned int) {
	if len(filters) > 0 {
		parts := make([]string, len(filters))
		for i, f := range filters {
			parts[i] = f.String()
		}
		output.Dim("Filters: %s", strings.Join(parts, " AND "))
	}

	if len(results) == 0 {
		output.Warning("No symbols matched (%d scanned)", scanned)
		return
	}

	table := NewTable(output, "#", "Symbol", "Verdict", "Net", "Bull", "Bear", "High", "Status")
	for i, r := range results {
		v := r.Verdict
		status := output.Green("pass")
		switch {
		case r.Error != nil:
			status = output.Red(TruncateString(r.Error.Error(), 40))
		case !r.Passed:
			status = output.DimText("filtered")
		}
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			r.Symbol,
			output.Tier(v.Tier),
			fmt.Sprintf("%d", v.NetScore),
			fmt.Sprintf("%d", v.BullishWeight),
			fmt.Sprintf("%d", v.BearishWeight),
			fmt.Sprintf("%d", v.HighConfidenceCount),
			status,
		)
	}
	table.Render()
	output.Dim("%d of %d symbols shown", len(results), scanned)
}

func newScreenPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List preset filter sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			presets := scoring.GetPresetScreeners()
			if output.IsJSON() {
				return output.JSON(presets)
			}

			table := NewTable(output, "Name", "Description", "Filters")
			for _, p := range presets {
				parts := make([]string, len(p.Filters))
				for i, f := range p.Filters {
					parts[i] = f.String()
				}
				table.AddRow(p.Name, p.Description, strings.Join(parts, " AND "))
			}
			table.Render()
			return nil
		},
	}
}

func newScreenQueriesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "List saved filter sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)

			db, err := app.Database(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			names, err := db.ListScreenerQueries(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				saved := make(map[string][]scoring.Filter, len(names))
				for _, n := range names {
					if saved[n], err = db.GetScreenerQuery(ctx, n); err != nil {
						return err
					}
				}
				return output.JSON(saved)
			}

			if len(names) == 0 {
				output.Dim("No saved queries. Use 'twin screen --save <name>' to create one.")
				return nil
			}
			for _, n := range names {
				filters, err := db.GetScreenerQuery(ctx, n)
				if err != nil {
					return err
				}
				parts := make([]string, len(filters))
				for i, f := range filters {
					parts[i] = f.String()
				}
				output.Printf("%s  %s\n", output.BoldText(n), output.DimText(strings.Join(parts, " AND ")))
			}
			return nil
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [symbols...]",
		Short: "Re-evaluate symbols periodically and expose Prometheus metrics",
		Long: `Evaluate the given symbols (or every symbol with --all) on a fixed interval
and serve the evaluation metrics on /metrics, with a liveness probe on
/healthz. Runs until interrupted.`,
		Example: `  twin serve --all --addr :9090 --interval 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			addr, _ := cmd.Flags().GetString("addr")
			interval, _ := cmd.Flags().GetDuration("interval")
			all, _ := cmd.Flags().GetBool("all")

			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			screener, provider, src, err := app.screenerFor(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := metrics.NewServer(addr, app.Metrics, app.Logger)
			srv.Start()
			NewOutput(cmd).Info("Serving metrics on %s every %s (Ctrl+C to stop)", addr, interval)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Stop(shutdownCtx)
			}()

			logger := app.Logger.With().Str("component", "serve").Logger()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				symbols, err := resolveSymbols(ctx, src, args, all)
				if err != nil {
					return err
				}

				start := time.Now()
				results := screener.ScanAll(ctx, symbols, nil, provider)
				failed := 0
				for _, r := range results {
					if r.Error != nil {
						failed++
						logger.Warn().Err(r.Error).Str("symbol", r.Symbol).Msg("Evaluation failed")
					}
				}
				logger.Info().
					Int("symbols", len(results)).
					Int("failed", failed).
					Dur("duration", time.Since(start)).
					Msg("Evaluation round complete")

				select {
				case <-ctx.Done():
					logger.Info().Msg("Shutting down")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().String("addr", ":9090", "metrics listen address")
	cmd.Flags().Duration("interval", 15*time.Minute, "time between evaluation rounds")
	cmd.Flags().Bool("all", false, "evaluate every symbol in the source")
	cmd.Flags().Int("min-bars", 30, "skip symbols with fewer bars")
	addRangeFlags(cmd)

	return cmd
}
