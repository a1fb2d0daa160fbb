package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"market-twin/internal/analysis"
	"market-twin/internal/analysis/indicators"
	"market-twin/internal/engine"
	"market-twin/internal/models"
	"market-twin/internal/store"
	"market-twin/pkg/utils"
)

// addAnalysisCommands adds analysis commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newIndicatorsCmd(app))
}

// analysisReport is the JSON form of one evaluation.
type analysisReport struct {
	Symbol      string              `json:"symbol"`
	Bars        int                 `json:"bars"`
	LastBar     models.Bar          `json:"lastBar"`
	Trend       analysis.Trend      `json:"trend"`
	Verdict     analysis.Verdict    `json:"verdict"`
	Signals     []analysis.Signal   `json:"signals"`
	Levels      []analysis.Level    `json:"levels"`
	Patterns    []analysis.Pattern  `json:"patterns"`
	Indicators  map[string]*float64 `json:"indicators"`
	Adjustments []string            `json:"adjustments,omitempty"`
}

func newReport(symbol string, res *engine.Result) analysisReport {
	report := analysisReport{
		Symbol:     symbol,
		Bars:       res.Frame.Len,
		LastBar:    res.LastBar,
		Trend:      res.Trend,
		Verdict:    res.Verdict,
		Signals:    res.Signals,
		Levels:     res.Levels,
		Patterns:   res.Patterns,
		Indicators: latestValues(res.Frame),
	}
	for _, adj := range res.Adjustments {
		report.Adjustments = append(report.Adjustments, adj.String())
	}
	return report
}

// latestValues maps each indicator name to its last value, nil while
// undefined.
func latestValues(f *indicators.Frame) map[string]*float64 {
	out := make(map[string]*float64)
	for name, v := range f.Series() {
		if x, ok := v.Last(); ok && !math.IsNaN(x) && !math.IsInf(x, 0) {
			x := x
			out[name] = &x
		} else {
			out[name] = nil
		}
	}
	return out
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol> [symbols...]",
		Short: "Evaluate signals and verdict for one or more symbols",
		Long: `Run the full evaluation for a symbol: indicator bank, support/resistance
levels, double top/bottom patterns, signal rules and the aggregated verdict.

With several symbols the series are evaluated concurrently and a summary
table is printed instead.`,
		Example: `  twin analyze AAPL
  twin analyze AAPL --detailed --from 2024-01-01
  twin analyze --csv ./AAPL.csv AAPL
  twin analyze AAPL MSFT NVDA --csv-dir ./data`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)
			detailed, _ := cmd.Flags().GetBool("detailed")
			csvFile, _ := cmd.Flags().GetString("csv")

			analyzer, err := app.Analyzer()
			if err != nil {
				return err
			}

			if len(args) > 1 {
				if csvFile != "" {
					return fmt.Errorf("--csv takes a single symbol; use --csv-dir for several")
				}
				return runBatchAnalysis(cmd, app, analyzer, args)
			}

			symbol := strings.ToUpper(args[0])
			var series models.Series
			if csvFile != "" {
				series, err = store.ReadCSVFile(csvFile)
			} else {
				series, err = app.loadSeries(cmd, symbol)
			}
			if err != nil {
				return err
			}

			res, err := analyzer.Evaluate(series)
			if err != nil {
				return fmt.Errorf("evaluating %s: %w", symbol, err)
			}

			if output.IsJSON() {
				return output.JSON(newReport(symbol, res))
			}
			displayAnalysis(output, symbol, res, app.Config.UI.DateFormat, detailed)
			return nil
		},
	}

	cmd.Flags().Bool("detailed", false, "show indicator readings and sanitised bars")
	cmd.Flags().String("csv", "", "read bars from this CSV file instead of the source")
	addRangeFlags(cmd)

	return cmd
}

func runBatchAnalysis(cmd *cobra.Command, app *App, analyzer *engine.Analyzer, args []string) error {
	output := NewOutput(cmd)

	inputs := make(map[string]models.Series, len(args))
	var loadErrs []string
	for _, arg := range args {
		symbol := strings.ToUpper(arg)
		series, err := app.loadSeries(cmd, symbol)
		if err != nil {
			app.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load bars")
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %v", symbol, err))
			continue
		}
		inputs[symbol] = series
	}

	results, err := analyzer.EvaluateAll(commandContext(cmd), inputs)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		reports := make([]interface{}, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				reports = append(reports, map[string]string{"symbol": r.Symbol, "error": r.Err.Error()})
				continue
			}
			reports = append(reports, newReport(r.Symbol, r.Result))
		}
		return output.JSON(reports)
	}

	table := NewTable(output, "Symbol", "Close", "Trend", "Verdict", "Net", "Signals", "High")
	for _, r := range results {
		if r.Err != nil {
			table.AddRow(r.Symbol, missingValue, missingValue, output.Red("ERROR"), missingValue, missingValue, missingValue)
			loadErrs = append(loadErrs, r.Err.Error())
			continue
		}
		v := r.Result.Verdict
		table.AddRow(
			r.Symbol,
			utils.FormatPrice(r.Result.LastBar.Close),
			string(r.Result.Trend),
			output.Tier(v.Tier),
			fmt.Sprintf("%d", v.NetScore),
			fmt.Sprintf("%d", v.TotalSignals),
			fmt.Sprintf("%d", v.HighConfidenceCount),
		)
	}
	table.Render()

	for _, e := range loadErrs {
		output.Dim("  %s", e)
	}
	return nil
}

func displayAnalysis(output *Output, symbol string, res *engine.Result, dateFormat string, detailed bool) {
	v := res.Verdict
	last := res.LastBar

	output.Box(fmt.Sprintf("%s Signal Report", symbol), []string{
		fmt.Sprintf("Close:    %s  (%s)", output.BoldText(utils.FormatPrice(last.Close)), FormatDate(last.Timestamp, dateFormat)),
		fmt.Sprintf("Trend:    %s", res.Trend),
		fmt.Sprintf("Verdict:  %s", output.Tier(v.Tier)),
		fmt.Sprintf("Score:    %d  (bullish %d / bearish %d, %d high confidence)", v.NetScore, v.BullishWeight, v.BearishWeight, v.HighConfidenceCount),
	})
	if v.Description != "" {
		output.Dim("  %s", v.Description)
	}
	output.Println()

	output.Bold("Signals (%d)", len(res.Signals))
	if len(res.Signals) == 0 {
		output.Dim("  No signals fired")
	} else {
		table := NewTable(output, "Signal", "Direction", "Confidence", "Value", "Description")
		for _, s := range res.Signals {
			table.AddRow(s.Type, output.Direction(s.Direction), output.Confidence(s.Confidence), s.Value, TruncateString(s.Description, 60))
		}
		table.Render()
	}
	output.Println()

	if len(res.Levels) > 0 {
		output.Bold("Key Levels")
		table := NewTable(output, "Type", "Price", "Touches", "Distance")
		for _, l := range res.Levels {
			price := utils.FormatPrice(l.Price)
			if l.Type == analysis.LevelSupport {
				price = output.Green(price)
			} else {
				price = output.Red(price)
			}
			table.AddRow(string(l.Type), price, fmt.Sprintf("%d", l.Touches), FormatDistance(l.Price, last.Close))
		}
		table.Render()
		output.Println()
	}

	if len(res.Patterns) > 0 {
		output.Bold("Patterns")
		for _, p := range res.Patterns {
			output.Printf("  %s %s at %s (bars %d-%d)\n",
				output.Direction(p.Direction), p.Type, utils.FormatPrice(p.Price), p.StartIndex, p.EndIndex)
		}
		output.Println()
	}

	if detailed {
		displayIndicatorSummary(output, res.Frame)
		if len(res.Adjustments) > 0 {
			output.Bold("Sanitised Bars (%d)", len(res.Adjustments))
			for _, adj := range res.Adjustments {
				output.Dim("  %s", adj.String())
			}
		}
	}
}

func displayIndicatorSummary(output *Output, f *indicators.Frame) {
	series := f.Series()
	cfg := f.Config()

	output.Bold("Indicators")
	output.Printf("  SMA(%d): %s  SMA(50): %s  SMA(200): %s\n",
		cfg.SMAPeriod, FormatValue(f.SMA), FormatValue(f.SMA50), FormatValue(f.SMA200))
	output.Printf("  EMA(%d/%d/%d): %s / %s / %s\n",
		cfg.EMAFast, cfg.EMAMid, cfg.EMASlow,
		FormatValue(indicators.Full(f.EMAFast)), FormatValue(indicators.Full(f.EMAMid)), FormatValue(indicators.Full(f.EMASlow)))
	output.Printf("  RSI(%d): %s  StochRSI %%K/%%D: %s / %s\n",
		cfg.RSIPeriod, FormatValue(f.RSI), FormatValue(f.StochRSI.K), FormatValue(f.StochRSI.D))
	output.Printf("  MACD: %s  Signal: %s  Histogram: %s\n",
		FormatValue(series["macd.macd"]), FormatValue(series["macd.signal"]), FormatValue(series["macd.histogram"]))
	output.Printf("  Bollinger: %s / %s / %s  %%B: %s\n",
		FormatValue(f.Bollinger.Lower), FormatValue(f.Bollinger.Middle), FormatValue(f.Bollinger.Upper), FormatValue(f.Bollinger.PercentB))
	output.Printf("  VWAP: %s  ATR: %s (%s%%)\n",
		FormatValue(series["vwap"]), FormatValue(f.ATR), FormatValue(f.ATRPercent))

	if p, ok := f.SqueezeAt(f.Len - 1); ok {
		state := output.Green("released")
		if p.InSqueeze {
			state = output.Yellow("on")
		}
		output.Printf("  TTM Squeeze: %s  Momentum: %s (%s)\n", state, utils.FormatPrice(p.Momentum), p.BarColor)
	}

	if f.Fibonacci.IsSome() {
		fib := f.Fibonacci.Unwrap()
		output.Printf("  Fibonacci %s-%s: 23.6%% %s  38.2%% %s  50%% %s  61.8%% %s  78.6%% %s\n",
			utils.FormatPrice(fib.SwingLow), utils.FormatPrice(fib.SwingHigh),
			utils.FormatPrice(fib.Level236), utils.FormatPrice(fib.Level382), utils.FormatPrice(fib.Level500),
			utils.FormatPrice(fib.Level618), utils.FormatPrice(fib.Level786))
	}
	output.Println()
}

func newIndicatorsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators <symbol>",
		Short: "Print indicator values for a symbol",
		Long: `Print the latest value of every indicator in the bank, or the last N
values of the indicators whose names start with --name.`,
		Example: `  twin indicators AAPL
  twin indicators AAPL --name macd --last 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			prefix, _ := cmd.Flags().GetString("name")
			last, _ := cmd.Flags().GetInt("last")

			analyzer, err := app.Analyzer()
			if err != nil {
				return err
			}
			series, err := app.loadSeries(cmd, symbol)
			if err != nil {
				return err
			}
			res, err := analyzer.Evaluate(series)
			if err != nil {
				return fmt.Errorf("evaluating %s: %w", symbol, err)
			}

			values := res.Frame.Series()
			names := sortedNames(values, prefix)
			if len(names) == 0 {
				return fmt.Errorf("no indicator named %q", prefix)
			}

			if output.IsJSON() {
				latest := latestValues(res.Frame)
				out := make(map[string]*float64, len(names))
				for _, n := range names {
					out[n] = latest[n]
				}
				return output.JSON(out)
			}

			if last <= 1 {
				table := NewTable(output, "Indicator", "Value")
				for _, n := range names {
					table.AddRow(n, FormatValue(values[n]))
				}
				table.Render()
				return nil
			}

			headers := append([]string{"Date"}, names...)
			table := NewTable(output, headers...)
			start := res.Frame.Len - last
			if start < 0 {
				start = 0
			}
			// The frame covers the sanitised, possibly truncated series,
			// which ends at the same bar as the input.
			offset := len(series) - res.Frame.Len
			for i := start; i < res.Frame.Len; i++ {
				row := []string{FormatDate(series[offset+i].Timestamp, app.Config.UI.DateFormat)}
				for _, n := range names {
					row = append(row, FormatValueAt(values[n], i))
				}
				table.AddRow(row...)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("name", "", "only indicators whose name starts with this prefix")
	cmd.Flags().Int("last", 1, "number of most recent bars to print")
	addRangeFlags(cmd)

	return cmd
}
