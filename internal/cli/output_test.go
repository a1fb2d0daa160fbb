package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"market-twin/internal/analysis"
	"market-twin/internal/analysis/indicators"
)

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf, colorEnabled: true}

	table := NewTable(out, "Symbol", "Verdict")
	table.AddRow("AAPL", out.Tier(analysis.StrongBuy))
	table.AddRow("MSFT", out.Tier(analysis.Wait))
	table.Render()

	lines := strings.Split(strings.TrimRight(stripANSI(buf.String()), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "Symbol  Verdict", lines[0])
	assert.Equal(t, strings.Index(lines[2], "📈"), strings.Index(lines[3], "→"))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestPlainOutputHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf}

	out.Box("Report", []string{out.Tier(analysis.ModerateSell), out.Direction(analysis.Bullish)})
	out.Success("done")

	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "📉 MODERATE SELL")
	assert.Contains(t, buf.String(), "▲ BULLISH")
}

func TestTierLabels(t *testing.T) {
	out := &Output{}
	assert.Equal(t, "↗ WEAK BUY", out.Tier(analysis.WeakBuy))
	assert.Equal(t, "↘ WEAK SELL", out.Tier(analysis.WeakSell))
	assert.Equal(t, "→ WAIT", out.Tier(analysis.Wait))
}

func TestFormatHelpers(t *testing.T) {
	v := indicators.Values{}
	assert.Equal(t, "-", FormatValue(v))
	assert.Equal(t, "-", FormatValueAt(v, 3))
	assert.Equal(t, "1,234.50", FormatValue(indicators.Full([]float64{1, 1234.5})))

	assert.Equal(t, "+10.00%", FormatDistance(110, 100))
	assert.Equal(t, "-", FormatDistance(1, 0))
	assert.Equal(t, "abcd...", TruncateString("abcdefghij", 7))
	assert.Equal(t, "abc", TruncateString("abc", 7))

	_, err := parseDateFlag("from", "01/02/2024")
	assert.Error(t, err)
}
