package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stockpulse/assistant/internal/models"
)

func linearHistory(n int, start, step float64) []models.PricePoint {
	points := make([]models.PricePoint, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		points[i] = models.PricePoint{
			Price:     start + step*float64(i),
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return points
}

func TestTrendForecast_RisingSeries(t *testing.T) {
	forecast, err := TrendForecast(linearHistory(50, 100, 1))
	require.NoError(t, err)

	assert.Equal(t, 149.0, forecast.CurrentPrice)
	assert.InDelta(t, 150.0, forecast.PredictedPrice, 0.01)
	assert.Greater(t, forecast.PredictedChange, 0.0)
	assert.Equal(t, trendBullish, forecast.Trend)
	assert.Equal(t, "LinearTrend", forecast.ModelType)
	// A perfectly linear series fits with R-squared 1, capped at 0.95.
	assert.Equal(t, 0.95, forecast.Confidence)
}

func TestTrendForecast_FallingSeries(t *testing.T) {
	forecast, err := TrendForecast(linearHistory(50, 200, -1))
	require.NoError(t, err)

	assert.Less(t, forecast.PredictedChange, 0.0)
	assert.Equal(t, trendBearish, forecast.Trend)
}

func TestTrendForecast_ShortSeriesUsesChangeThreshold(t *testing.T) {
	// 20 points is below the long SMA window; trend comes from the
	// predicted change instead of the crossover.
	forecast, err := TrendForecast(linearHistory(20, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, trendBullish, forecast.Trend)

	forecast, err = TrendForecast(linearHistory(20, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, trendNeutral, forecast.Trend)
}

func TestTrendForecast_InsufficientHistory(t *testing.T) {
	_, err := TrendForecast(linearHistory(5, 100, 1))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestTrendForecast_ConfidenceFlooredOnNoise(t *testing.T) {
	// Alternating series has near-zero regression fit.
	points := make([]models.PricePoint, 40)
	for i := range points {
		price := 100.0
		if i%2 == 0 {
			price = 110.0
		}
		points[i] = models.PricePoint{Price: price}
	}

	forecast, err := TrendForecast(points)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, forecast.Confidence, 0.3)
	assert.LessOrEqual(t, forecast.Confidence, 0.95)
}
