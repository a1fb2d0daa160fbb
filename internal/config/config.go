// Package config provides configuration management for the signal engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "market-twin/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Indicators IndicatorConfig `mapstructure:"indicators"`
	Levels     LevelConfig     `mapstructure:"levels"`
	Signals    SignalConfig    `mapstructure:"signals"`
	Engine     EngineConfig    `mapstructure:"engine"`
	Store      StoreConfig     `mapstructure:"store"`
	Log        LogConfig       `mapstructure:"log"`
	UI         UIConfig        `mapstructure:"ui"`
}

// IndicatorConfig holds indicator periods and multipliers.
type IndicatorConfig struct {
	SMAPeriod       int     `mapstructure:"sma_period" validate:"gt=0"`
	EMAFast         int     `mapstructure:"ema_fast" validate:"gt=0"`
	EMAMid          int     `mapstructure:"ema_mid" validate:"gt=0"`
	EMASlow         int     `mapstructure:"ema_slow" validate:"gt=0"`
	RSIPeriod       int     `mapstructure:"rsi_period" validate:"gt=0"`
	MACDFast        int     `mapstructure:"macd_fast" validate:"gt=0"`
	MACDSlow        int     `mapstructure:"macd_slow" validate:"gt=0,gtfield=MACDFast"`
	MACDSignal      int     `mapstructure:"macd_signal" validate:"gt=0"`
	BBPeriod        int     `mapstructure:"bb_period" validate:"gt=0"`
	BBStdDev        float64 `mapstructure:"bb_std_dev" validate:"gt=0"`
	ATRPeriod       int     `mapstructure:"atr_period" validate:"gt=0"`
	SqueezePeriod   int     `mapstructure:"squeeze_period" validate:"gt=0"`
	KeltnerMult     float64 `mapstructure:"keltner_mult" validate:"gt=0"`
	StochRSIPeriod  int     `mapstructure:"stoch_rsi_period" validate:"gt=0"`
	StochRSISmoothK int     `mapstructure:"stoch_rsi_smooth_k" validate:"gt=0"`
	StochRSISmoothD int     `mapstructure:"stoch_rsi_smooth_d" validate:"gt=0"`
	FibWindow       int     `mapstructure:"fib_window" validate:"gt=0"`
}

// LevelConfig holds support/resistance and chart pattern parameters.
type LevelConfig struct {
	Lookback         int     `mapstructure:"lookback" validate:"gt=0"`
	TouchThreshold   float64 `mapstructure:"touch_threshold" validate:"gt=0,lt=1"`
	MinTouches       int     `mapstructure:"min_touches" validate:"gte=1"`
	PatternLookback  int     `mapstructure:"pattern_lookback" validate:"gt=0"`
	PatternTolerance float64 `mapstructure:"pattern_tolerance" validate:"gt=0,lt=1"`
	PatternMinGap    int     `mapstructure:"pattern_min_gap" validate:"gte=0"`
}

// SignalConfig holds the rule thresholds of the signal generator.
type SignalConfig struct {
	RSIOverbought   float64 `mapstructure:"rsi_overbought" validate:"gt=0,lte=100,gtfield=RSIOversold"`
	RSIOversold     float64 `mapstructure:"rsi_oversold" validate:"gte=0,lt=100"`
	RSIMidline      float64 `mapstructure:"rsi_midline" validate:"gte=0,lte=100"`
	CrossLookback   int     `mapstructure:"cross_lookback" validate:"gt=0"`
	VWAPBandPercent float64 `mapstructure:"vwap_band_percent" validate:"gt=0"`
	LevelProximity  float64 `mapstructure:"level_proximity" validate:"gt=0,lt=1"`
	StrongTouches   int     `mapstructure:"strong_touches" validate:"gte=1"`
	PatternRecency  int     `mapstructure:"pattern_recency" validate:"gt=0"`
}

// EngineConfig holds batch evaluation settings.
type EngineConfig struct {
	Workers int `mapstructure:"workers" validate:"gt=0"`
	MaxBars int `mapstructure:"max_bars" validate:"gte=0"`
}

// StoreConfig points at OHLCV input sources.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// UIConfig holds terminal output configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// DefaultIndicatorConfig returns the standard indicator parameters.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		SMAPeriod:       20,
		EMAFast:         9,
		EMAMid:          20,
		EMASlow:         50,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BBPeriod:        20,
		BBStdDev:        2,
		ATRPeriod:       14,
		SqueezePeriod:   20,
		KeltnerMult:     1.5,
		StochRSIPeriod:  14,
		StochRSISmoothK: 3,
		StochRSISmoothD: 3,
		FibWindow:       50,
	}
}

// DefaultLevelConfig returns the standard level/pattern parameters.
func DefaultLevelConfig() LevelConfig {
	return LevelConfig{
		Lookback:         20,
		TouchThreshold:   0.02,
		MinTouches:       2,
		PatternLookback:  50,
		PatternTolerance: 0.03,
		PatternMinGap:    10,
	}
}

// DefaultSignalConfig returns the standard rule thresholds.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		RSIOverbought:   70,
		RSIOversold:     30,
		RSIMidline:      50,
		CrossLookback:   5,
		VWAPBandPercent: 2,
		LevelProximity:  0.01,
		StrongTouches:   3,
		PatternRecency:  20,
	}
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Indicators: DefaultIndicatorConfig(),
		Levels:     DefaultLevelConfig(),
		Signals:    DefaultSignalConfig(),
		Engine: EngineConfig{
			Workers: 4,
			MaxBars: 5000,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "stock_data.db"),
		},
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			File:       false,
			FilePath:   filepath.Join(DefaultConfigDir(), "logs", "twin.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		UI: UIConfig{
			ColorEnabled: true,
			DateFormat:   "2006-01-02",
		},
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/market-twin"
	}
	return filepath.Join(home, ".config", "market-twin")
}

// Load reads and validates configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	cfg, err := Read(configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Read loads configuration without validating it. Callers validate before
// building anything from the values.
func Read(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("TWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// best effort: an unwritable config dir still runs on defaults
		_ = createTemplateConfig(configDir)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("indicators.sma_period", d.Indicators.SMAPeriod)
	v.SetDefault("indicators.ema_fast", d.Indicators.EMAFast)
	v.SetDefault("indicators.ema_mid", d.Indicators.EMAMid)
	v.SetDefault("indicators.ema_slow", d.Indicators.EMASlow)
	v.SetDefault("indicators.rsi_period", d.Indicators.RSIPeriod)
	v.SetDefault("indicators.macd_fast", d.Indicators.MACDFast)
	v.SetDefault("indicators.macd_slow", d.Indicators.MACDSlow)
	v.SetDefault("indicators.macd_signal", d.Indicators.MACDSignal)
	v.SetDefault("indicators.bb_period", d.Indicators.BBPeriod)
	v.SetDefault("indicators.bb_std_dev", d.Indicators.BBStdDev)
	v.SetDefault("indicators.atr_period", d.Indicators.ATRPeriod)
	v.SetDefault("indicators.squeeze_period", d.Indicators.SqueezePeriod)
	v.SetDefault("indicators.keltner_mult", d.Indicators.KeltnerMult)
	v.SetDefault("indicators.stoch_rsi_period", d.Indicators.StochRSIPeriod)
	v.SetDefault("indicators.stoch_rsi_smooth_k", d.Indicators.StochRSISmoothK)
	v.SetDefault("indicators.stoch_rsi_smooth_d", d.Indicators.StochRSISmoothD)
	v.SetDefault("indicators.fib_window", d.Indicators.FibWindow)

	v.SetDefault("levels.lookback", d.Levels.Lookback)
	v.SetDefault("levels.touch_threshold", d.Levels.TouchThreshold)
	v.SetDefault("levels.min_touches", d.Levels.MinTouches)
	v.SetDefault("levels.pattern_lookback", d.Levels.PatternLookback)
	v.SetDefault("levels.pattern_tolerance", d.Levels.PatternTolerance)
	v.SetDefault("levels.pattern_min_gap", d.Levels.PatternMinGap)

	v.SetDefault("signals.rsi_overbought", d.Signals.RSIOverbought)
	v.SetDefault("signals.rsi_oversold", d.Signals.RSIOversold)
	v.SetDefault("signals.rsi_midline", d.Signals.RSIMidline)
	v.SetDefault("signals.cross_lookback", d.Signals.CrossLookback)
	v.SetDefault("signals.vwap_band_percent", d.Signals.VWAPBandPercent)
	v.SetDefault("signals.level_proximity", d.Signals.LevelProximity)
	v.SetDefault("signals.strong_touches", d.Signals.StrongTouches)
	v.SetDefault("signals.pattern_recency", d.Signals.PatternRecency)

	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.max_bars", d.Engine.MaxBars)
	v.SetDefault("store.db_path", d.Store.DBPath)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)

	v.SetDefault("ui.color_enabled", d.UI.ColorEnabled)
	v.SetDefault("ui.date_format", d.UI.DateFormat)
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	return toConfigError(validate.Struct(c))
}

// Validate validates only the indicator parameters.
func (c IndicatorConfig) Validate() error {
	return toConfigError(validate.Struct(c))
}

// toConfigError reports the first failed constraint as a ConfigError.
func toConfigError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewConfigError(fe.Namespace(), fe.Value(), fmt.Sprintf("failed %q constraint", fe.Tag()))
	}
	return err
}
