package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
)

// csvBar is one row of a Date,Open,High,Low,Close,Volume file. Extra
// columns such as Adj Close are ignored.
type csvBar struct {
	Date   string  `csv:"Date"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume float64 `csv:"Volume"`
}

// ReadCSV decodes bars from r in file order. Rows are not sorted; order
// problems surface when the series is validated.
func ReadCSV(r io.Reader) (models.Series, error) {
	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CSV: %w", err)
	}

	bars := make(models.Series, 0, len(rows))
	for i, row := range rows {
		ts, err := ParseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewDataError("csv", "", i, "bad Date column", err)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    int64(row.Volume),
		})
	}
	return bars, nil
}

// WriteCSV encodes bars to w with a header row.
func WriteCSV(w io.Writer, bars models.Series) error {
	rows := make([]*csvBar, len(bars))
	for i, b := range bars {
		rows[i] = &csvBar{
			Date:   b.Timestamp.UTC().Format(dateFormat),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to marshal CSV: %w", err)
	}
	return nil
}

// ReadCSVFile decodes the bars of one file.
func ReadCSVFile(path string) (models.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// CSVSource serves a directory of SYMBOL.csv files.
type CSVSource struct {
	Dir string
}

var _ BarSource = (*CSVSource)(nil)

// NewCSVSource creates a source over dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// LoadBars reads Dir/<symbol>.csv and keeps the bars inside r.
func (c *CSVSource) LoadBars(_ context.Context, symbol string, r DateRange) (models.Series, error) {
	path := filepath.Join(c.Dir, symbol+".csv")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s", symbol)
	}

	bars, err := ReadCSVFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading %s", path)
	}

	out := bars[:0]
	for _, b := range bars {
		if r.Contains(b.Timestamp) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListSymbols returns the base names of the *.csv files in Dir.
func (c *CSVSource) ListSymbols(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*.csv"))
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(matches))
	for _, m := range matches {
		symbols = append(symbols, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	sort.Strings(symbols)
	return symbols, nil
}
