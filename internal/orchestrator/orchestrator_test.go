package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/i18n"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/services/breaker"
	"github.com/stockpulse/assistant/internal/services/cache"
	"github.com/stockpulse/assistant/internal/services/intent"
	"github.com/stockpulse/assistant/internal/services/llm"
	"github.com/stockpulse/assistant/internal/services/router"
	"github.com/stockpulse/assistant/internal/services/usage"
)

type stubClassifier struct {
	result *models.IntentResult
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, message string) *models.IntentResult {
	s.calls++
	out := *s.result
	return &out
}

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Ask(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLM) Model() string { return "stub" }

type stubHandlers struct {
	forecast  *models.Forecast
	sentiment *models.SentimentReport
	news      *models.NewsDigest
	portfolio *models.PortfolioInsight
	history   *models.StockQuote

	forecastCalls  int
	sentimentCalls int
	newsCalls      int
	portfolioCalls int
	historyCalls   int
}

func (s *stubHandlers) PriceForecast(ctx context.Context, symbol string) (*models.Forecast, error) {
	s.forecastCalls++
	if s.forecast == nil {
		return nil, errors.New("no data")
	}
	return s.forecast, nil
}

func (s *stubHandlers) Sentiment(ctx context.Context, symbol, query string) (*models.SentimentReport, error) {
	s.sentimentCalls++
	if s.sentiment == nil {
		return nil, errors.New("no data")
	}
	return s.sentiment, nil
}

func (s *stubHandlers) NewsSummary(ctx context.Context, symbol, query string) (*models.NewsDigest, error) {
	s.newsCalls++
	if s.news == nil {
		return nil, errors.New("no data")
	}
	return s.news, nil
}

func (s *stubHandlers) PortfolioInsight(ctx context.Context, userID, period string) (*models.PortfolioInsight, error) {
	s.portfolioCalls++
	if s.portfolio == nil {
		return nil, errors.New("no data")
	}
	return s.portfolio, nil
}

func (s *stubHandlers) StockHistory(ctx context.Context, symbol string) (*models.StockQuote, error) {
	s.historyCalls++
	if s.history == nil {
		return nil, errors.New("no data")
	}
	return s.history, nil
}

type fixture struct {
	orch       *Orchestrator
	classifier *stubClassifier
	llm        *stubLLM
	handlers   *stubHandlers
	breaker    *breaker.CircuitBreaker
	monitor    *usage.Monitor
}

func newFixture(t *testing.T, intentResult *models.IntentResult, client *stubLLM, handlers *stubHandlers) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en", "vi", "zh"},
		Directory:       "../../configs/i18n",
	})
	require.NoError(t, err)

	cacheStore := cache.NewStore(&config.CacheConfig{
		Enabled:     true,
		IntentTTL:   5 * time.Minute,
		ResponseTTL: 10 * time.Minute,
	}, logger)

	monitor := usage.NewMonitor(nil, nil, logger)
	cb := breaker.New(2, 30*time.Minute, monitor, logger)

	classifier := &stubClassifier{result: intentResult}
	orch := New(
		router.New(), classifier, cacheStore, handlers,
		client, cb, monitor, localizer, nil, logger,
		2000, time.Second,
	)

	return &fixture{
		orch:       orch,
		classifier: classifier,
		llm:        client,
		handlers:   handlers,
		breaker:    cb,
		monitor:    monitor,
	}
}

func generalIntent() *models.IntentResult {
	return &models.IntentResult{Intent: models.IntentGeneral, Confidence: 0.5, Method: "rules"}
}

func TestProcess_GreetingShortCircuit(t *testing.T) {
	f := newFixture(t, generalIntent(), &stubLLM{reply: "should not be called"}, &stubHandlers{})

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentGeneral, resp.Type)
	assert.Contains(t, resp.Text, "stock market assistant")
	assert.True(t, resp.Metadata.Optimized)
	assert.ElementsMatch(t,
		[]string{"intent_llm", "data_fetching", "llm_generation"},
		resp.Metadata.SkippedSteps,
	)
	assert.Equal(t, 0, f.classifier.calls)
	assert.Equal(t, 0, f.llm.calls)
	assert.Nil(t, resp.Data)
}

func TestProcess_NoDataFastPathSkipsGeneration(t *testing.T) {
	f := newFixture(t, generalIntent(), &stubLLM{reply: "should not be called"}, &stubHandlers{})

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "tell me something interesting"})
	require.NoError(t, err)

	// No data to fetch means the template answers and the LLM stays idle.
	assert.Equal(t, models.IntentGeneral, resp.Type)
	assert.Contains(t, resp.Text, "forecast stock prices")
	assert.ElementsMatch(t,
		[]string{"data_fetching", "llm_generation"},
		resp.Metadata.SkippedSteps,
	)
	assert.Equal(t, 0, f.handlers.forecastCalls)
	assert.Equal(t, 0, f.handlers.historyCalls)
	assert.Equal(t, 0, f.llm.calls)
}

func TestProcess_ForecastHappyPath(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentPriceForecast,
		Confidence: 0.9,
		Entities:   models.Entities{Symbol: "AAPL"},
		Method:     "llm",
	}
	handlers := &stubHandlers{
		forecast: &models.Forecast{
			PredictedPrice: 182.5, CurrentPrice: 178.2,
			PredictedChange: 4.3, PredictedChangePct: 2.41,
			Trend: "Bullish", Confidence: 0.82, ModelType: "RandomForest",
		},
	}
	f := newFixture(t, intent, &stubLLM{reply: "AAPL looks set to climb to 182.50."}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL next week"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentPriceForecast, resp.Type)
	assert.Equal(t, "AAPL looks set to climb to 182.50.", resp.Text)
	assert.Equal(t, handlers.forecast, resp.Data)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "ml_model", resp.Sources[0].Type)
	assert.Equal(t, "AAPL", resp.Sources[0].Symbol)
	assert.Equal(t, 1, handlers.forecastCalls)
	assert.Equal(t, 0, handlers.historyCalls)
	assert.Empty(t, resp.Metadata.SkippedSteps)
}

func TestProcess_SentimentPath(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentSentiment,
		Confidence: 0.85,
		Entities:   models.Entities{Symbol: "TSLA"},
	}
	handlers := &stubHandlers{
		sentiment: &models.SentimentReport{Label: "Positive", Score: 0.4, ArticlesAnalyzed: 4, Method: "textblob"},
		history:   &models.StockQuote{Symbol: "TSLA", Price: 250},
	}
	f := newFixture(t, intent, &stubLLM{reply: "Mood around TSLA is upbeat."}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "how do people feel about TSLA"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentSentiment, resp.Type)
	assert.Equal(t, handlers.sentiment, resp.Data)
	assert.Equal(t, 1, handlers.sentimentCalls)
	assert.Equal(t, 1, handlers.historyCalls)

	var types []string
	for _, s := range resp.Sources {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, "sentiment_analyzer")
}

func TestProcess_NewsTemplateWhenLLMDown(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentNewsSummary,
		Confidence: 0.85,
		Entities:   models.Entities{Symbol: "MSFT"},
	}
	handlers := &stubHandlers{
		news: &models.NewsDigest{
			Articles: []models.Article{
				{ID: "1", Title: "Cloud growth accelerates"},
				{ID: "2", Title: "New AI partnership announced"},
			},
			Total: 2,
		},
	}
	f := newFixture(t, intent, &stubLLM{err: errors.New("connection refused")}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "news about MSFT"})
	require.NoError(t, err)

	assert.Equal(t, "Here are 2 recent articles about MSFT: Cloud growth accelerates; New AI partnership announced.", resp.Text)
	assert.Contains(t, resp.Metadata.SkippedSteps, "llm_generation")
	// A plain transport failure never opens the circuit.
	assert.False(t, f.breaker.IsOpen())
}

func TestProcess_QuotaErrorOpensBreaker(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentPriceForecast,
		Confidence: 0.9,
		Entities:   models.Entities{Symbol: "AAPL"},
	}
	handlers := &stubHandlers{
		forecast: &models.Forecast{PredictedPrice: 182.5, CurrentPrice: 178.2, Trend: "Bullish", Confidence: 0.8},
	}
	client := &stubLLM{err: errors.New("LLM request failed with status 429: quota exceeded")}
	f := newFixture(t, intent, client, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL"})
	require.NoError(t, err)

	// Degraded but useful: the template speaks from the fetched forecast.
	assert.Contains(t, resp.Text, "182.50")
	assert.True(t, f.breaker.IsOpen())
	assert.Equal(t, 1, client.calls)

	// The next request short-circuits generation entirely.
	resp, err = f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL again please"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Contains(t, resp.Metadata.SkippedSteps, "llm_generation")
}

func TestProcess_UnavailableMarkerTriggersTemplate(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentSentiment,
		Confidence: 0.85,
		Entities:   models.Entities{Symbol: "TSLA"},
	}
	handlers := &stubHandlers{
		sentiment: &models.SentimentReport{Label: "Negative", Score: -0.3, ArticlesAnalyzed: 2},
	}
	f := newFixture(t, intent, &stubLLM{reply: "⚠️ Model temporarily unavailable"}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "sentiment for TSLA"})
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "Negative")
	assert.NotContains(t, resp.Text, "⚠️")
}

func TestProcess_ResponseCacheHit(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentPriceForecast,
		Confidence: 0.9,
		Entities:   models.Entities{Symbol: "AAPL"},
	}
	handlers := &stubHandlers{
		forecast: &models.Forecast{PredictedPrice: 182.5, CurrentPrice: 178.2, Trend: "Bullish"},
	}
	client := &stubLLM{reply: "AAPL is heading to 182.50."}
	f := newFixture(t, intent, client, handlers)

	first, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL"})
	require.NoError(t, err)
	assert.False(t, first.Metadata.Cached)

	second, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL"})
	require.NoError(t, err)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, client.calls)
}

func TestProcess_ValidationErrors(t *testing.T) {
	f := newFixture(t, generalIntent(), &stubLLM{}, &stubHandlers{})

	_, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.orch.Process(context.Background(), models.ChatRequest{Message: strings.Repeat("a", 2001)})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	assert.Equal(t, 0, f.classifier.calls)
}

func TestProcess_SymbolHintFillsMissingEntity(t *testing.T) {
	intent := &models.IntentResult{Intent: models.IntentPriceForecast, Confidence: 0.9}
	handlers := &stubHandlers{
		forecast: &models.Forecast{PredictedPrice: 50, CurrentPrice: 48, Trend: "Bullish"},
	}
	f := newFixture(t, intent, &stubLLM{reply: "Looking up."}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{
		Message: "what is the forecast?",
		Session: models.SessionContext{StockSymbolHint: "vnm"},
	})
	require.NoError(t, err)

	assert.Equal(t, "VNM", resp.Metadata.Entities.Symbol)
	assert.Equal(t, 1, handlers.forecastCalls)
}

func TestProcess_SymbolHintDoesNotLeakAcrossSessions(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en", "vi", "zh"},
		Directory:       "../../configs/i18n",
	})
	require.NoError(t, err)

	cacheStore := cache.NewStore(&config.CacheConfig{
		Enabled:     true,
		IntentTTL:   5 * time.Minute,
		ResponseTTL: 10 * time.Minute,
	}, logger)
	monitor := usage.NewMonitor(nil, nil, logger)
	cb := breaker.New(2, 30*time.Minute, monitor, logger)

	// The real classifier shares the real cache, so both requests resolve
	// the same message through the same cached classification.
	client := &stubLLM{err: errors.New("connection refused")}
	classifier := intent.NewClassifier(client, cacheStore, cb, time.Second, logger)
	orch := New(
		router.New(), classifier, cacheStore, &stubHandlers{},
		client, cb, monitor, localizer, nil, logger,
		2000, time.Second,
	)

	first, err := orch.Process(context.Background(), models.ChatRequest{
		Message: "what is the forecast?",
		Session: models.SessionContext{UserID: "u1", SessionID: "s1", StockSymbolHint: "vnm"},
	})
	require.NoError(t, err)
	assert.Equal(t, "VNM", first.Metadata.Entities.Symbol)

	// A second session asking the same question carries no hint; the first
	// user's symbol must not surface from the shared intent cache.
	second, err := orch.Process(context.Background(), models.ChatRequest{
		Message: "what is the forecast?",
		Session: models.SessionContext{UserID: "u2", SessionID: "s2"},
	})
	require.NoError(t, err)
	assert.Empty(t, second.Metadata.Entities.Symbol)
}

func TestProcess_PortfolioPath(t *testing.T) {
	intent := &models.IntentResult{Intent: models.IntentPortfolioInsight, Confidence: 0.9}
	handlers := &stubHandlers{
		portfolio: &models.PortfolioInsight{TotalValue: 1500, TotalCost: 1400, ProfitLoss: 100, ProfitLossPct: 7.14, Period: "1m"},
	}
	f := newFixture(t, intent, &stubLLM{reply: "Your portfolio gained 7% this month."}, handlers)

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{
		Message: "how is my portfolio doing",
		Session: models.SessionContext{UserID: "u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.IntentPortfolioInsight, resp.Type)
	assert.Equal(t, handlers.portfolio, resp.Data)
	assert.Equal(t, 1, handlers.portfolioCalls)

	var types []string
	for _, s := range resp.Sources {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, "portfolio_service")
}

func TestProcess_HandlerFailureDegradesGracefully(t *testing.T) {
	intent := &models.IntentResult{
		Intent:     models.IntentPriceForecast,
		Confidence: 0.9,
		Entities:   models.Entities{Symbol: "AAPL"},
	}
	// Handler returns no data; the LLM still answers from general knowledge.
	f := newFixture(t, intent, &stubLLM{reply: "I could not fetch price data right now."}, &stubHandlers{})

	resp, err := f.orch.Process(context.Background(), models.ChatRequest{Message: "forecast AAPL"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentPriceForecast, resp.Type)
	assert.Nil(t, resp.Data)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Text)
}
