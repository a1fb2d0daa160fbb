package scoring

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/moznion/go-optional"

	"market-twin/internal/analysis"
	apperrors "market-twin/internal/errors"
	"market-twin/internal/logging"
	"market-twin/internal/models"
)

// FilterType represents the type of screener filter.
type FilterType string

const (
	FilterTier           FilterType = "tier"
	FilterNetScore       FilterType = "net_score"
	FilterHighConfidence FilterType = "high_confidence"
	FilterSignals        FilterType = "signals"
	FilterRSI            FilterType = "rsi"
	FilterPrice          FilterType = "price"
)

// FilterOperator represents the comparison operator for a filter.
type FilterOperator string

const (
	OpGreaterThan      FilterOperator = ">"
	OpLessThan         FilterOperator = "<"
	OpGreaterThanEqual FilterOperator = ">="
	OpLessThanEqual    FilterOperator = "<="
	OpEqual            FilterOperator = "="
	OpNotEqual         FilterOperator = "!="
)

// Filter represents a single screener filter condition.
//
// Tier filters compare Tier.Rank (-3 for STRONG SELL up to +3 for STRONG
// BUY). Net score filters compare the signed net score, negative when the
// bearish side dominates.
type Filter struct {
	Type     FilterType     `json:"type"`
	Operator FilterOperator `json:"operator"`
	Value    float64        `json:"value"`
}

// filterOperators is ordered so that two-character operators match first.
var filterOperators = []FilterOperator{
	OpGreaterThanEqual, OpLessThanEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpEqual,
}

var filterTypes = map[FilterType]bool{
	FilterTier:           true,
	FilterNetScore:       true,
	FilterHighConfidence: true,
	FilterSignals:        true,
	FilterRSI:            true,
	FilterPrice:          true,
}

// ParseFilter parses an expression such as "rsi<30" or "tier >= 2".
func ParseFilter(expr string) (Filter, error) {
	compact := strings.ReplaceAll(expr, " ", "")
	for _, op := range filterOperators {
		idx := strings.Index(compact, string(op))
		if idx <= 0 {
			continue
		}

		ft := FilterType(strings.ToLower(compact[:idx]))
		if !filterTypes[ft] {
			return Filter{}, apperrors.NewValidationError("filter", expr, fmt.Sprintf("unknown filter type %q", ft))
		}

		value, err := strconv.ParseFloat(compact[idx+len(op):], 64)
		if err != nil {
			return Filter{}, apperrors.NewValidationError("filter", expr, "value is not a number")
		}
		return Filter{Type: ft, Operator: op, Value: value}, nil
	}
	return Filter{}, apperrors.NewValidationError("filter", expr, "missing comparison operator")
}

// String renders the filter in the form ParseFilter accepts.
func (f Filter) String() string {
	return fmt.Sprintf("%s %s %g", f.Type, f.Operator, f.Value)
}

// Snapshot is the part of one evaluation the screener filters on.
type Snapshot struct {
	Verdict   analysis.Verdict
	Signals   []analysis.Signal
	LastClose float64
	RSI       optional.Option[float64]
}

// Evaluator produces a snapshot for one series.
type Evaluator interface {
	Snapshot(series models.Series) (*Snapshot, error)
}

// SeriesProvider loads the bar series of a symbol.
type SeriesProvider func(ctx context.Context, symbol string) (models.Series, error)

// ScreenerResult represents the result of screening a single symbol.
type ScreenerResult struct {
	Symbol  string             `json:"symbol"`
	Score   float64            `json:"score"`
	Verdict analysis.Verdict   `json:"verdict"`
	Matches map[string]float64 `json:"matches,omitempty"` // Filter key -> actual value
	Passed  bool               `json:"passed"`
	Error   error              `json:"-"`
}

// Screener ranks symbols by verdict with concurrent evaluation.
type Screener struct {
	evaluator   Evaluator
	concurrency int
	minBars     int
}

// NewScreener creates a new screener. Series shorter than minBars are
// rejected before evaluation.
func NewScreener(evaluator Evaluator, concurrency, minBars int) *Screener {
	if concurrency <= 0 {
		concurrency = 4
	}
	if minBars <= 0 {
		minBars = 1
	}
	return &Screener{
		evaluator:   evaluator,
		concurrency: concurrency,
		minBars:     minBars,
	}
}

// Scan screens the given symbols. All filters are combined with AND logic.
// Only passing symbols are returned, best score first.
func (s *Screener) Scan(ctx context.Context, symbols []string, filters []Filter, provider SeriesProvider) ([]ScreenerResult, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	results := make([]ScreenerResult, 0, len(symbols))
	resultChan := make(chan ScreenerResult, len(symbols))
	workChan := make(chan string, len(symbols))

	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range workChan {
				if ctx.Err() != nil {
					return
				}
				resultChan <- s.scanSymbol(ctx, symbol, filters, provider)
			}
		}()
	}

	// Send work
	go func() {
		defer close(workChan)
		for _, symbol := range symbols {
			select {
			case <-ctx.Done():
				return
			case workChan <- symbol:
			}
		}
	}()

	// Wait for workers and close result channel
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		if result.Passed {
			results = append(results, result)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortResultsByScore(results)
	return results, nil
}

// ScanAll screens symbols and returns every result, passed or not, in
// symbol order. Failed evaluations carry their error.
func (s *Screener) ScanAll(ctx context.Context, symbols []string, filters []Filter, provider SeriesProvider) []ScreenerResult {
	out := make([]ScreenerResult, len(symbols))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = s.scanSymbol(ctx, symbol, filters, provider)
		}(i, symbol)
	}
	wg.Wait()

	return out
}

// scanSymbol evaluates a single symbol against all filters.
func (s *Screener) scanSymbol(ctx context.Context, symbol string, filters []Filter, provider SeriesProvider) ScreenerResult {
	result := ScreenerResult{
		Symbol:  symbol,
		Matches: make(map[string]float64),
	}
	logger := logging.WithSymbol(logging.FromContext(ctx), symbol)

	series, err := provider(ctx, symbol)
	if err != nil {
		logger.Debug().Err(err).Msg("Loading bars failed")
		result.Error = err
		return result
	}

	if len(series) < s.minBars {
		logger.Debug().Int("bars", len(series)).Int("min_bars", s.minBars).Msg("Too few bars to screen")
		result.Error = apperrors.Wrapf(apperrors.ErrInsufficientData, "%s: need at least %d bars, got %d", symbol, s.minBars, len(series))
		return result
	}

	snap, err := s.evaluator.Snapshot(series)
	if err != nil {
		logger.Debug().Err(err).Msg("Evaluation failed")
		result.Error = apperrors.Wrapf(err, "evaluating %s", symbol)
		return result
	}
	result.Verdict = snap.Verdict
	result.Score = verdictScore(snap.Verdict)

	for _, filter := range filters {
		passed, value, err := applyFilter(snap, filter)
		if err != nil {
			result.Error = err
			return result
		}

		filterKey := fmt.Sprintf("%s_%s_%.2f", filter.Type, filter.Operator, filter.Value)
		result.Matches[filterKey] = value

		if !passed {
			return result
		}
	}

	result.Passed = true
	logger.Debug().Float64("score", result.Score).Msg("Symbol passed screen")
	return result
}

// applyFilter applies a single filter to a snapshot.
func applyFilter(snap *Snapshot, filter Filter) (bool, float64, error) {
	var actual float64

	switch filter.Type {
	case FilterTier:
		actual = float64(snap.Verdict.Tier.Rank())
	case FilterNetScore:
		actual = float64(signedNet(snap.Verdict))
	case FilterHighConfidence:
		actual = float64(snap.Verdict.HighConfidenceCount)
	case FilterSignals:
		actual = float64(snap.Verdict.TotalSignals)
	case FilterPrice:
		actual = snap.LastClose
	case FilterRSI:
		if snap.RSI.IsNone() {
			return false, 0, nil
		}
		actual = snap.RSI.Unwrap()
	default:
		return false, 0, fmt.Errorf("unknown filter type: %s", filter.Type)
	}

	return compareValues(actual, filter.Operator, filter.Value), actual, nil
}

func signedNet(v analysis.Verdict) int {
	if v.BearishWeight > v.BullishWeight {
		return -v.NetScore
	}
	return v.NetScore
}

// verdictScore orders verdicts by tier first, then by signed net score.
func verdictScore(v analysis.Verdict) float64 {
	return float64(v.Tier.Rank())*100 + float64(signedNet(v))
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op FilterOperator, expected float64) bool {
	switch op {
	case OpGreaterThan:
		return actual > expected
	case OpLessThan:
		return actual < expected
	case OpGreaterThanEqual:
		return actual >= expected
	case OpLessThanEqual:
		return actual <= expected
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	default:
		return false
	}
}

// sortResultsByScore sorts results by score in descending order, breaking
// ties by symbol so output is stable.
func sortResultsByScore(results []ScreenerResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
}

// PresetScreener represents a pre-built screener configuration.
type PresetScreener struct {
	Name        string
	Description string
	Filters     []Filter
}

// GetPresetScreeners returns all available pre-built screeners.
func GetPresetScreeners() []PresetScreener {
	return []PresetScreener{
		{
			Name:        "strong_buy",
			Description: "Symbols with a STRONG BUY verdict",
			Filters: []Filter{
				{Type: FilterTier, Operator: OpGreaterThanEqual, Value: 3},
			},
		},
		{
			Name:        "bullish",
			Description: "Symbols with any buy verdict",
			Filters: []Filter{
				{Type: FilterTier, Operator: OpGreaterThanEqual, Value: 1},
			},
		},
		{
			Name:        "bearish",
			Description: "Symbols with any sell verdict",
			Filters: []Filter{
				{Type: FilterTier, Operator: OpLessThanEqual, Value: -1},
			},
		},
		{
			Name:        "oversold",
			Description: "Symbols with RSI below 30",
			Filters: []Filter{
				{Type: FilterRSI, Operator: OpLessThan, Value: 30},
			},
		},
		{
			Name:        "overbought",
			Description: "Symbols with RSI above 70",
			Filters: []Filter{
				{Type: FilterRSI, Operator: OpGreaterThan, Value: 70},
			},
		},
	}
}

// GetPresetByName returns a preset screener by name.
func GetPresetByName(name string) (*PresetScreener, error) {
	for _, preset := range GetPresetScreeners() {
		if preset.Name == name {
			return &preset, nil
		}
	}
	return nil, fmt.Errorf("preset screener not found: %s", name)
}
