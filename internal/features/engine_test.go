package features

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

func syntheticBars(n int, trendPerBar float64) []types.Bar {
	bars := make([]types.Bar, n)
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		price += trendPerBar
		high := price + 0.5
		low := price - 0.5
		bars[i] = types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(price - 0.1),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromFloat(1000),
		}
	}
	return bars
}

func TestComputeRequiresMinBars(t *testing.T) {
	_, err := Compute("AAPL", syntheticBars(MinBars-1, 0.1))
	require.ErrorIs(t, err, tradeerr.ErrInsufficientFeatures)
}

func TestComputeSucceedsAtMinBars(t *testing.T) {
	fv, err := Compute("AAPL", syntheticBars(MinBars, 0.1))
	require.NoError(t, err)
	require.Equal(t, "AAPL", fv.Symbol)
	require.NotZero(t, fv.EMA9)
}

func TestComputeIsCausalPrefixOfBars(t *testing.T) {
	bars := syntheticBars(60, 0.2)
	full, err := Compute("AAPL", bars)
	require.NoError(t, err)
	prefix, err := Compute("AAPL", bars[:45])
	require.NoError(t, err)
	// Both succeed on their respective full history; the later one sees
	// strictly more bars and a later AsOf timestamp (causality).
	require.True(t, full.AsOf.After(prefix.AsOf))
}

func TestComputeDetectsUptrendSlope(t *testing.T) {
	fv, err := Compute("AAPL", syntheticBars(40, 0.5))
	require.NoError(t, err)
	require.Greater(t, fv.Slope, 0.0)
	require.Greater(t, fv.EMA9, fv.EMA21)
}

func TestRSIBoundedZeroToHundred(t *testing.T) {
	fv, err := Compute("AAPL", syntheticBars(40, 1.0))
	require.NoError(t, err)
	require.GreaterOrEqual(t, fv.RSI14, 0.0)
	require.LessOrEqual(t, fv.RSI14, 100.0)
}
