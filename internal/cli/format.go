package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"market-twin/internal/analysis/indicators"
	"market-twin/pkg/utils"
)

const missingValue = "-"

// FormatValue formats the latest value of an indicator, or a dash while it
// is undefined.
func FormatValue(v indicators.Values) string {
	x, ok := v.Last()
	if !ok {
		return missingValue
	}
	return utils.FormatPrice(x)
}

// FormatValueAt formats the value at index i.
func FormatValueAt(v indicators.Values, i int) string {
	x, ok := v.At(i)
	if !ok {
		return missingValue
	}
	return utils.FormatPrice(x)
}

// FormatDate formats a bar timestamp with the configured layout.
func FormatDate(t time.Time, layout string) string {
	if layout == "" {
		layout = "2006-01-02"
	}
	return t.Format(layout)
}

// FormatDistance formats how far price sits from a reference, in percent.
func FormatDistance(price, ref float64) string {
	if ref == 0 {
		return missingValue
	}
	return utils.FormatPercent((price - ref) / ref * 100)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// sortedNames returns the keys of an indicator map in display order,
// optionally keeping only names with the given prefix.
func sortedNames(series map[string]indicators.Values, prefix string) []string {
	names := make([]string, 0, len(series))
	for name := range series {
		if prefix == "" || strings.HasPrefix(name, strings.ToLower(prefix)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// parseDateFlag parses an optional --from/--to value.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, value)
	}
	return t, nil
}
