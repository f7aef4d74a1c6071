package signal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

// FilterField is the signal value a screener filter compares.
type FilterField string

const (
	FieldConfidence FilterField = "confidence"
	FieldRiskReward FilterField = "rr"
	FieldConfluence FilterField = "confluence"
	FieldQuality    FilterField = "quality"
)

// FilterOperator is the comparison of a screener filter.
type FilterOperator string

const (
	OpGreaterThan      FilterOperator = ">"
	OpLessThan         FilterOperator = "<"
	OpGreaterThanEqual FilterOperator = ">="
	OpLessThanEqual    FilterOperator = "<="
	OpEqual            FilterOperator = "="
)

// Filter is one screener condition. Quality compares ranks.
type Filter struct {
	Field    FilterField
	Operator FilterOperator
	Value    float64
}

func (f Filter) String() string {
	return fmt.Sprintf("%s%s%g", f.Field, f.Operator, f.Value)
}

// ParseFilter parses "confidence>=70", "rr>2" or "quality>=VERY_GOOD".
func ParseFilter(s string) (Filter, error) {
	s = strings.ReplaceAll(s, " ", "")
	// Two-character operators first so ">=" is not read as ">".
	for _, op := range []FilterOperator{OpGreaterThanEqual, OpLessThanEqual, OpGreaterThan, OpLessThan, OpEqual} {
		field, raw, ok := strings.Cut(s, string(op))
		if !ok {
			continue
		}
		f := Filter{Field: FilterField(strings.ToLower(field)), Operator: op}
		switch f.Field {
		case FieldConfidence, FieldRiskReward, FieldConfluence:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Filter{}, fmt.Errorf("filter %q: %w", s, err)
			}
			f.Value = v
		case FieldQuality:
			q, ok := models.ParseSignalQuality(strings.ToUpper(raw))
			if !ok {
				return Filter{}, fmt.Errorf("filter %q: unknown quality %q", s, raw)
			}
			f.Value = float64(q.Rank())
		default:
			return Filter{}, fmt.Errorf("filter %q: unknown field %q", s, field)
		}
		return f, nil
	}
	return Filter{}, fmt.Errorf("filter %q: missing operator", s)
}

// Match reports whether sig passes f and the value compared.
func (f Filter) Match(sig models.TradeSignal) (bool, float64) {
	var v float64
	switch f.Field {
	case FieldConfidence:
		v = sig.Confidence
	case FieldRiskReward:
		v = sig.RiskReward
	case FieldConfluence:
		v = float64(sig.ConfluenceCount)
	case FieldQuality:
		v = float64(sig.Quality.Rank())
	}

	switch f.Operator {
	case OpGreaterThan:
		return v > f.Value, v
	case OpLessThan:
		return v < f.Value, v
	case OpGreaterThanEqual:
		return v >= f.Value, v
	case OpLessThanEqual:
		return v <= f.Value, v
	default:
		return v == f.Value, v
	}
}

// ScreenerResult is the signal of one screened symbol.
type ScreenerResult struct {
	Symbol  string             `json:"symbol"`
	Signal  models.TradeSignal `json:"signal"`
	Matches map[string]float64 `json:"matches,omitempty"`
	Passed  bool               `json:"passed"`
}

// Screener generates signals for many symbols concurrently and keeps those
// passing every filter.
type Screener struct {
	cfg         Config
	provider    marketdata.Provider
	logger      zerolog.Logger
	concurrency int
}

// NewScreener creates a screener sharing one provider across symbols.
func NewScreener(cfg Config, provider marketdata.Provider, logger zerolog.Logger, concurrency int) *Screener {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Screener{cfg: cfg, provider: provider, logger: logger, concurrency: concurrency}
}

// Scan screens symbols. Filters are ANDed; fallback signals never pass.
// Passing results come first, by confidence and then symbol.
func (s *Screener) Scan(ctx context.Context, symbols []string, filters []Filter) ([]ScreenerResult, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[ScreenerResult]().WithContext(ctx).WithMaxGoroutines(s.concurrency)
	for _, symbol := range symbols {
		p.Go(func(ctx context.Context) (ScreenerResult, error) {
			return s.scanSymbol(ctx, symbol, filters), nil
		})
	}
	results, _ := p.Wait()

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Passed != b.Passed {
			return a.Passed
		}
		if a.Signal.Confidence != b.Signal.Confidence {
			return a.Signal.Confidence > b.Signal.Confidence
		}
		return a.Symbol < b.Symbol
	})

	if err := ctx.Err(); err != nil {
		return results, apperrors.Wrap(err, "scan interrupted")
	}
	return results, nil
}

func (s *Screener) scanSymbol(ctx context.Context, symbol string, filters []Filter) ScreenerResult {
	engine := NewEngine(symbol, s.cfg).WithLogger(s.logger)
	sig := NewService(engine, s.provider, s.logger).Generate(ctx)

	result := ScreenerResult{
		Symbol:  symbol,
		Signal:  sig,
		Matches: make(map[string]float64, len(filters)),
		Passed:  sig.DataQuality == models.DataReal,
	}
	for _, f := range filters {
		ok, v := f.Match(sig)
		result.Matches[f.String()] = v
		if !ok {
			result.Passed = false
		}
	}
	return result
}
