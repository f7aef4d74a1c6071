package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{in: "confidence>=70", want: Filter{FieldConfidence, OpGreaterThanEqual, 70}},
		{in: "rr > 2", want: Filter{FieldRiskReward, OpGreaterThan, 2}},
		{in: "confluence<=3", want: Filter{FieldConfluence, OpLessThanEqual, 3}},
		{in: "quality>=very_good", want: Filter{FieldQuality, OpGreaterThanEqual, 3}},
		{in: "CONFIDENCE=50", want: Filter{FieldConfidence, OpEqual, 50}},
		{in: "confidence>>1", wantErr: true},
		{in: "quality>=GREAT", wantErr: true},
		{in: "volume>10", wantErr: true},
		{in: "confidence", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMatch(t *testing.T) {
	sig := models.TradeSignal{Confidence: 72, RiskReward: 2.1, ConfluenceCount: 4, Quality: models.QualityVeryGood}

	ok, v := Filter{FieldConfidence, OpGreaterThanEqual, 70}.Match(sig)
	assert.True(t, ok)
	assert.Equal(t, 72.0, v)

	ok, _ = Filter{FieldRiskReward, OpGreaterThan, 2.5}.Match(sig)
	assert.False(t, ok)

	ok, _ = Filter{FieldQuality, OpLessThan, float64(models.QualityExcellent.Rank())}.Match(sig)
	assert.True(t, ok)
}

func TestScreenerScan(t *testing.T) {
	up := zigzag(models.TF1h, 96, 12, 0.3)
	provider := marketdata.ProviderFunc(func(_ context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
		if symbol == "DEAD" || tf != models.TF1h {
			return models.BarSeries{}, errors.New("not subscribed")
		}
		return up, nil
	})

	s := NewScreener(DefaultConfig(), provider, zerolog.Nop(), 2)
	results, err := s.Scan(context.Background(), []string{"DEAD", "NIFTY", "BANKNIFTY"}, []Filter{{FieldConfidence, OpGreaterThanEqual, 0}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Same bars, same confidence: passing symbols sort by name.
	assert.Equal(t, "BANKNIFTY", results[0].Symbol)
	assert.Equal(t, "NIFTY", results[1].Symbol)
	assert.True(t, results[0].Passed)
	assert.Contains(t, results[0].Matches, "confidence>=0")

	assert.Equal(t, "DEAD", results[2].Symbol)
	assert.False(t, results[2].Passed)
	assert.Equal(t, models.DataFallback, results[2].Signal.DataQuality)

	results, err = s.Scan(context.Background(), []string{"NIFTY"}, []Filter{{FieldConfidence, OpGreaterThan, 100}})
	require.NoError(t, err)
	assert.False(t, results[0].Passed)

	results, err = s.Scan(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
