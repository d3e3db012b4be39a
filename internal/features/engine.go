// Package features implements the Feature Engine (spec.md §4.3): a pure
// function from a bar sequence to a fixed-arity FeatureVector. It never
// panics; any non-finite result or insufficient history yields
// ErrInsufficientFeatures.
package features

import (
	"fmt"
	"math"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
	"github.com/achavala/tradenova/pkg/utils"
)

// MinBars is the minimum history the Feature Engine requires, matching the
// Data Adapter's MIN_BARS.
const MinBars = 30

// Compute derives a FeatureVector from bars, which must be ordered by
// Timestamp ascending (the Data Adapter's contract). Requires len(bars) >=
// MinBars and fully-populated 14/21-period indicator windows.
func Compute(symbol string, bars []types.Bar) (types.FeatureVector, error) {
	if len(bars) < MinBars {
		return types.FeatureVector{}, fmt.Errorf("%w: got %d bars, need %d", tradeerr.ErrInsufficientFeatures, len(bars), MinBars)
	}

	closes := closesOf(bars)

	ema9 := runEMA(closes, 9)
	ema21 := runEMA(closes, 21)
	sma20 := runSMA(closes, 20)
	rsi14 := rsi(closes, 14)
	atr14 := atr(bars, 14)
	adx14 := adx(bars, 14)
	vwap := vwapOf(bars)
	slope, rsq := linearRegression(closes[len(closes)-21:])
	hurst := hurstExponent(closes)
	realizedVol := realizedVolatility(closes)
	bullish, bearish, unfilled := fvg(bars)

	last := closes[len(closes)-1]

	fv := types.FeatureVector{
		Symbol:      symbol,
		AsOf:        bars[len(bars)-1].Timestamp,
		EMA9:        ema9,
		EMA21:       ema21,
		SMA20:       sma20,
		RSI14:       rsi14,
		ATR14:       atr14,
		ADX14:       adx14,
		VWAP:        vwap,
		Hurst:       hurst,
		Slope:       slope,
		RSquared:    rsq,
		RealizedVol: realizedVol,
		FVGBullish:  bullish,
		FVGBearish:  bearish,
		FVGUnfilled: unfilled,
		LastPrice:   last,
	}

	if !utils.AllFinite(fv.EMA9, fv.EMA21, fv.SMA20, fv.RSI14, fv.ATR14, fv.ADX14, fv.VWAP, fv.Hurst, fv.Slope, fv.RSquared, fv.RealizedVol, fv.LastPrice) {
		return types.FeatureVector{}, fmt.Errorf("%w: non-finite feature for %s", tradeerr.ErrInsufficientFeatures, symbol)
	}

	return fv, nil
}

func closesOf(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

func runEMA(closes []float64, period int) float64 {
	e := utils.NewEMA(period)
	var v float64
	for _, c := range closes {
		v = e.Add(c)
	}
	return v
}

func runSMA(closes []float64, period int) float64 {
	s := utils.NewSMA(period)
	var v float64
	for _, c := range closes {
		v = s.Add(c)
	}
	return v
}

// rsi computes Wilder's RSI over the trailing period.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return math.NaN()
	}
	var gainSum, lossSum float64
	start := len(closes) - period - 1
	for i := start + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum += -change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// atr computes Wilder's average true range over the trailing period.
func atr(bars []types.Bar, period int) float64 {
	if len(bars) < period+1 {
		return math.NaN()
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high := bars[i].High.InexactFloat64()
		low := bars[i].Low.InexactFloat64()
		prevClose := bars[i-1].Close.InexactFloat64()
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	window := trs[len(trs)-period:]
	return utils.Mean(window)
}

// adx computes a simplified Wilder's ADX over the trailing period: the
// smoothed absolute difference of +DI/-DI normalized by their sum.
func adx(bars []types.Bar, period int) float64 {
	if len(bars) < period+2 {
		return math.NaN()
	}
	var plusDM, minusDM, trSum float64
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		upMove := bars[i].High.InexactFloat64() - bars[i-1].High.InexactFloat64()
		downMove := bars[i-1].Low.InexactFloat64() - bars[i].Low.InexactFloat64()
		if upMove > downMove && upMove > 0 {
			plusDM += upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM += downMove
		}
		high := bars[i].High.InexactFloat64()
		low := bars[i].Low.InexactFloat64()
		prevClose := bars[i-1].Close.InexactFloat64()
		trSum += math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}
	if trSum == 0 {
		return 0
	}
	plusDI := 100 * plusDM / trSum
	minusDI := 100 * minusDM / trSum
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

func vwapOf(bars []types.Bar) float64 {
	var pvSum, volSum float64
	for _, b := range bars {
		typical := (b.High.InexactFloat64() + b.Low.InexactFloat64() + b.Close.InexactFloat64()) / 3
		vol := b.Volume.InexactFloat64()
		pvSum += typical * vol
		volSum += vol
	}
	if volSum == 0 {
		return bars[len(bars)-1].Close.InexactFloat64()
	}
	return pvSum / volSum
}

// linearRegression fits y = a + b*x over the window's closes, returning
// the slope and R-squared.
func linearRegression(closes []float64) (slope, rSquared float64) {
	n := float64(len(closes))
	if n < 2 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	b := (n*sumXY - sumX*sumY) / denom
	a := (sumY - b*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range closes {
		x := float64(i)
		pred := a + b*x
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return b, 0
	}
	return b, 1 - ssRes/ssTot
}

// hurstExponent estimates the Hurst exponent via rescaled-range analysis,
// filtering non-positive returns before taking logs (spec.md §4.3).
func hurstExponent(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		r := closes[i] / closes[i-1]
		if r <= 0 {
			continue
		}
		returns = append(returns, math.Log(r))
	}
	if len(returns) < 10 {
		return 0.5
	}
	mean := utils.Mean(returns)
	var cumDev, maxCum, minCum float64
	var sumSq float64
	for _, r := range returns {
		dev := r - mean
		cumDev += dev
		if cumDev > maxCum {
			maxCum = cumDev
		}
		if cumDev < minCum {
			minCum = cumDev
		}
		sumSq += dev * dev
	}
	rangeVal := maxCum - minCum
	stdDev := math.Sqrt(sumSq / float64(len(returns)))
	if stdDev == 0 || rangeVal == 0 {
		return 0.5
	}
	rs := rangeVal / stdDev
	n := float64(len(returns))
	return math.Log(rs) / math.Log(n)
}

func realizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return utils.StdDev(returns) * math.Sqrt(252)
}

// fvg detects a 3-bar fair value gap over the trailing bars: a bullish gap
// when bar[i-2].High < bar[i].Low, a bearish gap when bar[i-2].Low >
// bar[i].High. "Unfilled" means the most recent gap has not yet been
// retraced by a later bar's range.
func fvg(bars []types.Bar) (bullish, bearish, unfilled bool) {
	if len(bars) < 3 {
		return false, false, false
	}
	for i := len(bars) - 1; i >= 2; i-- {
		a, c := bars[i-2], bars[i]
		if a.High.LessThan(c.Low) {
			gapLow := a.High
			filled := false
			for j := i + 1; j < len(bars); j++ {
				if bars[j].Low.LessThanOrEqual(gapLow) {
					filled = true
					break
				}
			}
			return true, false, !filled
		}
		if a.Low.GreaterThan(c.High) {
			gapHigh := a.Low
			filled := false
			for j := i + 1; j < len(bars); j++ {
				if bars[j].High.GreaterThanOrEqual(gapHigh) {
					filled = true
					break
				}
			}
			return false, true, !filled
		}
	}
	return false, false, false
}
