package options

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

func callAt(strike float64, dte int, asOf time.Time) types.OptionContract {
	return types.OptionContract{
		OptionSymbol: "AAPL_TEST",
		Strike:       decimal.NewFromFloat(strike),
		Expiration:   asOf.Add(time.Duration(dte) * 24 * time.Hour),
		OptionType:   types.OptionCall,
		Bid:          decimal.NewFromFloat(1.00),
		Ask:          decimal.NewFromFloat(1.05),
		Last:         decimal.NewFromFloat(1.00),
		Volume:       100,
		OpenInterest: 500,
	}
}

func TestSelectPicksClosestStrikeWithinPreferredWindow(t *testing.T) {
	asOf := time.Now()
	chain := []types.OptionContract{
		callAt(145, 5, asOf),
		callAt(150, 5, asOf),
		callAt(160, 5, asOf),
	}
	sel, err := Select(chain, types.SignalLong, decimal.NewFromInt(150), decimal.Zero, asOf, DefaultSelectorConfig())
	require.NoError(t, err)
	require.True(t, sel.Contract.Strike.Equal(decimal.NewFromInt(150)))
	require.NotEmpty(t, sel.ReasonTrail)
}

func TestSelectFallsBackWhenPreferredWindowEmpty(t *testing.T) {
	asOf := time.Now()
	chain := []types.OptionContract{callAt(150, 20, asOf)} // outside [0,7], inside fallback [0,30]
	sel, err := Select(chain, types.SignalLong, decimal.NewFromInt(150), decimal.Zero, asOf, DefaultSelectorConfig())
	require.NoError(t, err)
	require.True(t, sel.Contract.Strike.Equal(decimal.NewFromInt(150)))
	require.Contains(t, sel.ReasonTrail[1], "fallback")
}

func TestSelectFiltersByDirectionToPutsOnShort(t *testing.T) {
	asOf := time.Now()
	call := callAt(150, 5, asOf)
	put := callAt(150, 5, asOf)
	put.OptionType = types.OptionPut

	sel, err := Select([]types.OptionContract{call, put}, types.SignalShort, decimal.NewFromInt(150), decimal.Zero, asOf, DefaultSelectorConfig())
	require.NoError(t, err)
	require.Equal(t, types.OptionPut, sel.Contract.OptionType)
}

func TestSelectAppliesPriceCap(t *testing.T) {
	asOf := time.Now()
	cheap := callAt(150, 5, asOf)
	expensive := callAt(151, 5, asOf)
	expensive.Bid = decimal.NewFromFloat(50.00)
	expensive.Ask = decimal.NewFromFloat(50.10)

	sel, err := Select([]types.OptionContract{cheap, expensive}, types.SignalLong, decimal.NewFromInt(150), decimal.NewFromFloat(5.00), asOf, DefaultSelectorConfig())
	require.NoError(t, err)
	require.True(t, sel.Contract.Strike.Equal(decimal.NewFromInt(150)))
}

func TestSelectReturnsErrNoLiquidContractWhenNothingMatches(t *testing.T) {
	asOf := time.Now()
	chain := []types.OptionContract{callAt(150, 60, asOf)} // beyond MaxDTE
	_, err := Select(chain, types.SignalLong, decimal.NewFromInt(150), decimal.Zero, asOf, DefaultSelectorConfig())
	require.True(t, errors.Is(err, tradeerr.ErrNoLiquidContract))
}

func TestSelectPrefersHigherVolumeOnTie(t *testing.T) {
	asOf := time.Now()
	low := callAt(150, 5, asOf)
	low.Volume = 10
	high := callAt(150, 5, asOf)
	high.Volume = 1000

	sel, err := Select([]types.OptionContract{low, high}, types.SignalLong, decimal.NewFromInt(150), decimal.Zero, asOf, DefaultSelectorConfig())
	require.NoError(t, err)
	require.Equal(t, int64(1000), sel.Contract.Volume)
}
