// Package engine runs the full evaluation pipeline: sanitise the series,
// compute the indicator frame, detect levels and patterns, generate signals
// and aggregate them into a verdict.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"

	"market-twin/internal/analysis"
	"market-twin/internal/analysis/indicators"
	"market-twin/internal/analysis/patterns"
	"market-twin/internal/analysis/scoring"
	"market-twin/internal/config"
	apperrors "market-twin/internal/errors"
	"market-twin/internal/logging"
	"market-twin/internal/metrics"
	"market-twin/internal/models"
)

// Result is everything one evaluation produces.
type Result struct {
	Frame       *indicators.Frame   `json:"frame"`
	Levels      []analysis.Level    `json:"levels"`
	Patterns    []analysis.Pattern  `json:"patterns"`
	Signals     []analysis.Signal   `json:"signals"`
	Verdict     analysis.Verdict    `json:"verdict"`
	Adjustments []models.Adjustment `json:"adjustments,omitempty"`
	Trend       analysis.Trend      `json:"trend"`
	LastBar     models.Bar          `json:"lastBar"`
}

// Analyzer evaluates series with a fixed configuration. It holds no state
// between calls and is safe for concurrent use.
type Analyzer struct {
	cfg       *config.Config
	bank      *indicators.Bank
	detector  *patterns.Detector
	generator *scoring.Generator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewAnalyzer validates the configuration and builds an analyzer. A nil cfg
// means defaults; a nil m disables metrics.
func NewAnalyzer(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bank, err := indicators.NewBank(cfg.Indicators)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		cfg:       cfg,
		bank:      bank,
		detector:  patterns.NewDetector(cfg.Levels),
		generator: scoring.NewGenerator(cfg.Signals),
		logger:    logging.WithOperation(logger, "evaluate"),
		metrics:   m,
	}, nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() *config.Config {
	return a.cfg
}

// Evaluate runs the pipeline over one series. The input is never modified
// and identical input always yields an identical result.
func (a *Analyzer) Evaluate(series models.Series) (*Result, error) {
	return a.evaluate(series, a.logger)
}

func (a *Analyzer) evaluate(series models.Series, logger zerolog.Logger) (*Result, error) {
	start := time.Now()

	if err := models.Validate(series); err != nil {
		a.metrics.ObserveFailure()
		return nil, err
	}

	if limit := a.cfg.Engine.MaxBars; limit > 0 && len(series) > limit {
		logger.Debug().Int("bars", len(series)).Int("max_bars", limit).Msg("Truncating series to most recent bars")
		series = series.Tail(limit)
	}

	clean, adjustments, err := models.Sanitize(series)
	if err != nil {
		a.metrics.ObserveFailure()
		return nil, err
	}
	for _, adj := range adjustments {
		logging.LogAdjustment(logger, adj)
		a.metrics.ObserveAdjustment(adj.Field)
	}

	frame := a.bank.Compute(clean)
	levels := a.detector.Levels(clean)
	found := a.detector.Patterns(clean)
	signals := a.generator.Generate(clean, frame, levels, found)
	verdict := scoring.AggregateStrength(signals)

	elapsed := time.Since(start)
	a.metrics.ObserveEvaluation(len(clean), elapsed, signals, verdict)
	logging.LogVerdict(logger, len(clean), verdict, elapsed)

	return &Result{
		Frame:       frame,
		Levels:      levels,
		Patterns:    found,
		Signals:     signals,
		Verdict:     verdict,
		Adjustments: adjustments,
		Trend:       frame.LatestTrend(),
		LastBar:     clean.Last(),
	}, nil
}

// Snapshot evaluates a series and keeps only what the screener filters on.
func (a *Analyzer) Snapshot(series models.Series) (*scoring.Snapshot, error) {
	res, err := a.Evaluate(series)
	if err != nil {
		return nil, err
	}

	rsi := optional.None[float64]()
	if v, ok := res.Frame.RSI.Last(); ok {
		rsi = optional.Some(v)
	}

	return &scoring.Snapshot{
		Verdict:   res.Verdict,
		Signals:   res.Signals,
		LastClose: res.LastBar.Close,
		RSI:       rsi,
	}, nil
}

// BatchResult is the outcome of evaluating one symbol in a batch.
type BatchResult struct {
	Symbol string
	Result *Result
	Err    error
}

// EvaluateAll evaluates independent series concurrently on the configured
// number of workers. Results come back sorted by symbol; a failed series
// carries its error without stopping the batch. Cancellation is checked
// between series, never inside one.
func (a *Analyzer) EvaluateAll(ctx context.Context, inputs map[string]models.Series) ([]BatchResult, error) {
	symbols := make([]string, 0, len(inputs))
	for symbol := range inputs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]BatchResult, len(symbols))
	workChan := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < a.cfg.Engine.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workChan {
				symbol := symbols[idx]
				res, err := a.evaluate(inputs[symbol], logging.WithSymbol(a.logger, symbol))
				if err != nil {
					err = apperrors.Wrapf(err, "evaluating %s", symbol)
				}
				out[idx] = BatchResult{Symbol: symbol, Result: res, Err: err}
			}
		}()
	}

send:
	for idx := range symbols {
		select {
		case <-ctx.Done():
			break send
		case workChan <- idx:
		}
	}
	close(workChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
