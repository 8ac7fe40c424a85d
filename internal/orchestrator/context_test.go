package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stockpulse/assistant/internal/models"
)

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil))
	assert.Equal(t, "", BuildContext(&models.HandlerResults{}))
}

func TestBuildContext_SectionsPerPopulatedKey(t *testing.T) {
	results := &models.HandlerResults{
		Forecast: &models.Forecast{
			PredictedPrice: 182.5, CurrentPrice: 178.2,
			PredictedChange: 4.3, PredictedChangePct: 2.41,
			Trend: "Bullish", Confidence: 0.82, ModelType: "RandomForest",
		},
		News: &models.NewsDigest{
			Articles: []models.Article{{Title: "Record quarter", Summary: "revenue up", Source: "Reuters"}},
			Total:    1,
		},
	}

	block := BuildContext(results)

	assert.Contains(t, block, "Price forecast:")
	assert.Contains(t, block, "182.50")
	assert.Contains(t, block, "Recent news (1 articles):")
	assert.Contains(t, block, "Record quarter")
	assert.NotContains(t, block, "Sentiment:")
	assert.NotContains(t, block, "Portfolio:")
}

func TestBuildContext_HybridLineAttached(t *testing.T) {
	results := &models.HandlerResults{
		Forecast: &models.Forecast{
			PredictedPrice: 10, CurrentPrice: 9, Trend: "Bullish",
			Hybrid: &models.HybridSignal{FinalSignal: "Buy", Confidence: "High", Explanation: "momentum"},
		},
	}

	block := BuildContext(results)
	assert.Contains(t, block, "Hybrid signal: Buy")
}

func TestContextDigest_DistinguishesContexts(t *testing.T) {
	a := contextDigest("context A")
	b := contextDigest("context B")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, contextDigest("context A"))
	assert.Len(t, a, 32)
}
