package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

type fakeSource struct {
	name       string
	bars       []types.Bar
	chain      []types.OptionContract
	quote      types.OptionContract
	err        error
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}
func (f *fakeSource) GetChain(ctx context.Context, symbol string, expiration *time.Time) ([]types.OptionContract, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chain, nil
}
func (f *fakeSource) GetQuote(ctx context.Context, optionSymbol string) (types.OptionContract, error) {
	if f.err != nil {
		return types.OptionContract{}, f.err
	}
	return f.quote, nil
}

func makeBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars[n-1-i] = types.Bar{ // intentionally reversed to exercise sort
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Close:     decimal.NewFromFloat(100 + float64(i)),
		}
	}
	return bars
}

func TestGetBarsUsesPrimaryWhenSufficient(t *testing.T) {
	primary := &fakeSource{name: "primary", bars: makeBars(30)}
	a := New(zap.NewNop(), DefaultConfig(), primary, nil)
	bars, err := a.GetBars(context.Background(), "AAPL", types.Timeframe5Min, time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, bars, 30)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp))
	}
}

func TestGetBarsFallsBackOnInsufficientPrimary(t *testing.T) {
	primary := &fakeSource{name: "primary", bars: makeBars(5)}
	fallback := &fakeSource{name: "fallback", bars: makeBars(30)}
	a := New(zap.NewNop(), DefaultConfig(), primary, fallback)
	bars, err := a.GetBars(context.Background(), "AAPL", types.Timeframe5Min, time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, bars, 30)
}

func TestGetBarsFailsWhenBothSourcesInsufficient(t *testing.T) {
	primary := &fakeSource{name: "primary", bars: makeBars(5)}
	fallback := &fakeSource{name: "fallback", bars: makeBars(5)}
	a := New(zap.NewNop(), DefaultConfig(), primary, fallback)
	_, err := a.GetBars(context.Background(), "AAPL", types.Timeframe5Min, time.Now(), time.Now())
	require.ErrorIs(t, err, tradeerr.ErrDataUnavailable)
}

func TestGetChainStripsVendorPrefix(t *testing.T) {
	primary := &fakeSource{name: "primary", chain: []types.OptionContract{
		{OptionSymbol: "O:AAPL240621C00195000", Underlying: "O:AAPL"},
	}}
	a := New(zap.NewNop(), DefaultConfig(), primary, nil)
	chain, err := a.GetChain(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	require.Equal(t, "AAPL240621C00195000", chain[0].OptionSymbol)
	require.Equal(t, "AAPL", chain[0].Underlying)
}

func TestGetChainFailsWhenEmptyFromBothSources(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	fallback := &fakeSource{name: "fallback"}
	a := New(zap.NewNop(), DefaultConfig(), primary, fallback)
	_, err := a.GetChain(context.Background(), "AAPL", nil)
	require.ErrorIs(t, err, tradeerr.ErrDataUnavailable)
}
