package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
	"market-twin/internal/store"
	"market-twin/pkg/utils"
)

// addDataCommands adds bar import/export commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDataCmd(app))
}

// addRangeFlags registers --from/--to on a command that loads bars.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "first bar date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last bar date (YYYY-MM-DD)")
}

func rangeFromFlags(cmd *cobra.Command) (store.DateRange, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	from, err := parseDateFlag("from", fromStr)
	if err != nil {
		return store.DateRange{}, err
	}
	to, err := parseDateFlag("to", toStr)
	if err != nil {
		return store.DateRange{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return store.DateRange{}, apperrors.NewValidationError("to", toStr, "must not precede --from")
	}
	return store.DateRange{Start: from, End: to}, nil
}

// loadSeries reads the bars of symbol from the configured source.
func (a *App) loadSeries(cmd *cobra.Command, symbol string) (models.Series, error) {
	r, err := rangeFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	src, err := a.Source(cmd)
	if err != nil {
		return nil, err
	}
	return src.LoadBars(commandContext(cmd), symbol, r)
}

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored OHLCV bars",
		Long: `Import, export and list the daily bars held in the SQLite database.

CSV files use the Date,Open,High,Low,Close,Volume header; extra columns
such as Adj Close are ignored.`,
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	cmd.AddCommand(newDataSymbolsCmd(app))
	cmd.AddCommand(newDataShowCmd(app))

	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "import <symbol> <file.csv>",
		Short:   "Import bars from a CSV file",
		Example: `  twin data import AAPL ./AAPL.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			bars, err := store.ReadCSVFile(args[1])
			if err != nil {
				return err
			}
			if err := models.Validate(bars); err != nil {
				return apperrors.Wrapf(err, "validating %s", args[1])
			}

			db, err := app.Database(cmd)
			if err != nil {
				return err
			}
			if err := db.SaveBars(commandContext(cmd), symbol, bars); err != nil {
				return err
			}

			app.Logger.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("Bars imported")

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol": symbol,
					"bars":   len(bars),
				})
			}
			output.Success("✓ Imported %d bars for %s", len(bars), symbol)
			return nil
		},
	}
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <symbol> [file.csv]",
		Short: "Export bars to CSV (stdout when no file is given)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			symbol := strings.ToUpper(args[0])

			bars, err := app.loadSeries(cmd, symbol)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return store.WriteCSV(cmd.OutOrStdout(), bars)
			}

			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[1], err)
			}
			defer f.Close()

			if err := store.WriteCSV(f, bars); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ Wrote %d bars to %s", len(bars), args[1])
			return nil
		},
	}
	addRangeFlags(cmd)
	return cmd
}

func newDataSymbolsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List symbols available in the source",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)

			src, err := app.Source(cmd)
			if err != nil {
				return err
			}
			symbols, err := src.ListSymbols(commandContext(cmd))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(symbols)
			}
			if len(symbols) == 0 {
				output.Warning("No symbols found")
				return nil
			}
			for _, s := range symbols {
				output.Println(s)
			}
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <symbol>",
		Short: "Show the most recent bars of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			limit, _ := cmd.Flags().GetInt("limit")

			bars, err := app.loadSeries(cmd, symbol)
			if err != nil {
				return err
			}
			bars = bars.Tail(limit)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol": symbol,
					"count":  len(bars),
					"bars":   bars,
				})
			}

			output.Bold("%s - %d bars", symbol, len(bars))
			table := NewTable(output, "Date", "Open", "High", "Low", "Close", "Volume")
			for _, b := range bars {
				table.AddRow(
					FormatDate(b.Timestamp, app.Config.UI.DateFormat),
					utils.FormatPrice(b.Open),
					utils.FormatPrice(b.High),
					utils.FormatPrice(b.Low),
					utils.FormatPrice(b.Close),
					utils.FormatVolume(b.Volume),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "l", 20, "number of bars to show (0 for all)")
	addRangeFlags(cmd)
	return cmd
}
