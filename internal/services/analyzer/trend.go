package analyzer

import (
	"errors"

	"github.com/stockpulse/assistant/internal/models"
	"gonum.org/v1/gonum/stat"
)

// Classical trend analyzer: the fallback when no trained model artifact
// exists for a symbol. Linear regression gives the one-step-ahead estimate;
// the SMA crossover labels the trend.

const (
	smaShortWindow = 10
	smaLongWindow  = 50

	trendBullish = "Bullish"
	trendBearish = "Bearish"
	trendNeutral = "Neutral"
)

// ErrInsufficientHistory marks a series too short to analyze.
var ErrInsufficientHistory = errors.New("insufficient price history")

// TrendForecast produces a Forecast from chronological history using
// regression and moving averages only.
func TrendForecast(history []models.PricePoint) (*models.Forecast, error) {
	if len(history) < smaShortWindow {
		return nil, ErrInsufficientHistory
	}

	prices := make([]float64, len(history))
	xs := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
		xs[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(xs, prices, nil, false)
	rsq := stat.RSquared(xs, prices, nil, alpha, beta)

	currentPrice := prices[len(prices)-1]
	predicted := alpha + beta*float64(len(prices))
	if predicted <= 0 {
		predicted = currentPrice
	}

	change := predicted - currentPrice
	changePct := 0.0
	if currentPrice > 0 {
		changePct = change / currentPrice * 100
	}

	trend := trendNeutral
	if len(prices) >= smaLongWindow {
		short := sma(prices, smaShortWindow)
		long := sma(prices, smaLongWindow)
		if short > long {
			trend = trendBullish
		} else if short < long {
			trend = trendBearish
		}
	} else if changePct > 2 {
		trend = trendBullish
	} else if changePct < -2 {
		trend = trendBearish
	}

	// Regression fit quality stands in for model confidence, floored so a
	// noisy series still reports something actionable.
	confidence := rsq
	if confidence < 0.3 {
		confidence = 0.3
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &models.Forecast{
		PredictedPrice:     predicted,
		CurrentPrice:       currentPrice,
		PredictedChange:    change,
		PredictedChangePct: changePct,
		Trend:              trend,
		Confidence:         confidence,
		ModelType:          "LinearTrend",
		ModelVersion:       "classical-1",
	}, nil
}

// sma is the simple moving average of the trailing window.
func sma(prices []float64, window int) float64 {
	if window > len(prices) {
		window = len(prices)
	}
	tail := prices[len(prices)-window:]
	return stat.Mean(tail, nil)
}
