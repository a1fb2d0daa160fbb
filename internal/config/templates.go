package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Market Twin Configuration

[indicators]
sma_period = 20
# EMA stack: fast > mid > slow
ema_fast = 9
ema_mid = 20
ema_slow = 50
rsi_period = 14
macd_fast = 12
macd_slow = 26
macd_signal = 9
bb_period = 20
bb_std_dev = 2.0
atr_period = 14
# TTM squeeze: BB(squeeze_period, bb_std_dev) inside EMA(squeeze_period) +/- keltner_mult*ATR(squeeze_period)
squeeze_period = 20
keltner_mult = 1.5
stoch_rsi_period = 14
stoch_rsi_smooth_k = 3
stoch_rsi_smooth_d = 3
fib_window = 50

[levels]
# Bars on each side for local extrema (support/resistance)
lookback = 20
# Relative distance for merging touches into one level
touch_threshold = 0.02
min_touches = 2
# Double top/bottom
pattern_lookback = 50
pattern_tolerance = 0.03
pattern_min_gap = 10

[signals]
rsi_overbought = 70.0
rsi_oversold = 30.0
rsi_midline = 50.0
# Bars searched for a recent EMA crossover
cross_lookback = 5
# Percent distance from VWAP separating the zones
vwap_band_percent = 2.0
# Relative distance from a level that counts as "at" the level
level_proximity = 0.01
strong_touches = 3
# Patterns ending within this many bars produce a signal
pattern_recency = 20

[engine]
workers = 4
# Longest series loaded from a store (0 = unlimited)
max_bars = 5000

[store]
# SQLite database with a stock_prices table
# db_path = "~/.config/market-twin/stock_data.db"

[log]
# debug, info, warn, error
level = "info"
console = true
file = false
# file_path = "~/.config/market-twin/logs/twin.log"
max_size = 100
max_backups = 7
max_age = 30

[ui]
color_enabled = true
date_format = "2006-01-02"
`

// createTemplateConfig writes a commented config.toml. Defaults apply for
// the current run either way.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
