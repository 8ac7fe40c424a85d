package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/services/analyzer"
	"github.com/stockpulse/assistant/internal/services/retrieval"
	"github.com/stockpulse/assistant/internal/services/store"
)

// forecastWindow is the canonical history depth for forecasts.
const forecastWindow = 50

// DefaultGrowthPeriod is used when the user does not name one.
const DefaultGrowthPeriod = "1m"

var (
	// ErrNoHistory marks a symbol with no price data.
	ErrNoHistory = errors.New("no price history for symbol")
	// ErrNoArticles marks a sentiment/news request with nothing to analyze.
	ErrNoArticles = errors.New("no articles available")
	// ErrEmptyPortfolio marks a user with no holdings.
	ErrEmptyPortfolio = errors.New("portfolio is empty")
)

// SentimentScorer is the slice of the analyzer the sentiment handler uses.
type SentimentScorer interface {
	AnalyzeSentiment(ctx context.Context, text string) (*analyzer.SentimentResult, error)
}

// PricePredictor is the slice of the analyzer the forecast handler uses.
type PricePredictor interface {
	HasModel(symbol string) bool
	PredictPrice(ctx context.Context, symbol string, history []models.PricePoint) (*models.Forecast, error)
	HybridAnalyze(ctx context.Context, history []models.PricePoint, newsText string) (*models.HybridSignal, error)
}

// ExternalNews is the optional supplemental news source.
type ExternalNews interface {
	Search(ctx context.Context, query string, limit int) ([]models.Article, error)
}

// Handlers owns the five specialized fetchers. Each returns a typed payload
// or an error; the orchestrator maps errors to "not fetched" and never
// propagates them to the caller.
type Handlers struct {
	prices    store.PriceHistoryStore
	articles  store.ArticleStore
	portfolio store.PortfolioService
	retrieval retrieval.Adapter
	scorer    SentimentScorer
	predictor PricePredictor
	news      ExternalNews

	retrievalThreshold float64
	logger             *logrus.Logger
}

// NewHandlers wires the fetchers. news may be nil.
func NewHandlers(
	prices store.PriceHistoryStore,
	articles store.ArticleStore,
	portfolio store.PortfolioService,
	retrievalAdapter retrieval.Adapter,
	scorer SentimentScorer,
	predictor PricePredictor,
	news ExternalNews,
	retrievalThreshold float64,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		prices:             prices,
		articles:           articles,
		portfolio:          portfolio,
		retrieval:          retrievalAdapter,
		scorer:             scorer,
		predictor:          predictor,
		news:               news,
		retrievalThreshold: retrievalThreshold,
		logger:             logger,
	}
}

// PriceForecast predicts the next price for a symbol. The trained model is
// preferred when an artifact exists; otherwise the classical trend analyzer
// runs. A hybrid technical/sentiment signal is attached when recent news is
// available, but its failure never fails the forecast.
func (h *Handlers) PriceForecast(ctx context.Context, symbol string) (*models.Forecast, error) {
	history, err := h.prices.FindByStockSymbol(ctx, symbol, forecastWindow)
	if err != nil {
		return nil, fmt.Errorf("price history fetch failed: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrNoHistory
	}

	// Store order is newest first; analyzers expect chronological.
	chronological := reversed(history)

	var forecast *models.Forecast
	if h.predictor.HasModel(symbol) {
		forecast, err = h.predictor.PredictPrice(ctx, symbol, chronological)
		if err != nil && !errors.Is(err, analyzer.ErrNoModel) {
			h.logger.WithError(err).WithField("symbol", symbol).Warn("ML prediction failed, falling back to trend")
		}
	}
	if forecast == nil {
		forecast, err = analyzer.TrendForecast(chronological)
		if err != nil {
			return nil, fmt.Errorf("trend analysis failed: %w", err)
		}
	}

	if newsText := h.recentNewsText(ctx, symbol); newsText != "" {
		if hybrid, err := h.predictor.HybridAnalyze(ctx, chronological, newsText); err != nil {
			h.logger.WithError(err).WithField("symbol", symbol).Debug("Hybrid analysis unavailable")
		} else {
			forecast.Hybrid = hybrid
		}
	}

	return forecast, nil
}

// Sentiment scores the mood around a symbol from retrieval hits, falling
// back to stored articles plus optional external news.
func (h *Handlers) Sentiment(ctx context.Context, symbol, query string) (*models.SentimentReport, error) {
	articles, err := h.retrieval.SearchSimilar(ctx, query, retrieval.SearchOptions{
		Symbol:    symbol,
		Limit:     5,
		Threshold: h.retrievalThreshold,
		DataTypes: []string{"article", "external_news"},
	})
	if err != nil {
		h.logger.WithError(err).Warn("Retrieval failed, using article store")
	}

	if len(articles) == 0 {
		articles, err = h.articles.FindBySymbol(ctx, symbol, "published", 5)
		if err != nil {
			return nil, fmt.Errorf("article fallback failed: %w", err)
		}
		if h.news != nil {
			if external, err := h.news.Search(ctx, symbol+" stock", 3); err != nil {
				h.logger.WithError(err).Debug("External news unavailable")
			} else {
				articles = retrieval.Dedup(append(articles, external...))
			}
		}
	}

	if len(articles) == 0 {
		return nil, ErrNoArticles
	}
	if len(articles) > 5 {
		articles = articles[:5]
	}

	var sb strings.Builder
	sources := make([]string, 0, len(articles))
	for _, a := range articles {
		sb.WriteString(a.Title)
		sb.WriteString(". ")
		if a.Summary != "" {
			sb.WriteString(a.Summary)
			sb.WriteString(". ")
		}
		if a.Content != "" {
			sb.WriteString(a.Content)
			sb.WriteString(" ")
		}
		sources = append(sources, a.Source)
	}

	scored, err := h.scorer.AnalyzeSentiment(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("sentiment scoring failed: %w", err)
	}

	return &models.SentimentReport{
		Label:            scored.Label,
		Score:            clampScore(scored.Score),
		Method:           scored.Method,
		ArticlesAnalyzed: len(articles),
		Sources:          sources,
		Breakdown:        approximateBreakdown(scored.Label, len(articles)),
	}, nil
}

// NewsSummary returns up to five deduplicated articles: retrieval hits
// first, topped up with recent-by-symbol.
func (h *Handlers) NewsSummary(ctx context.Context, symbol, query string) (*models.NewsDigest, error) {
	hits, err := h.retrieval.SearchSimilar(ctx, query, retrieval.SearchOptions{
		Symbol:    symbol,
		Limit:     3,
		Threshold: h.retrievalThreshold,
	})
	if err != nil {
		h.logger.WithError(err).Warn("Retrieval failed for news summary")
	}

	const maxArticles = 5
	if len(hits) < maxArticles {
		recent, err := h.retrieval.GetRecent(ctx, symbol, maxArticles-len(hits))
		if err != nil {
			h.logger.WithError(err).Debug("Recency top-up failed")
		} else {
			hits = append(hits, recent...)
		}
	}

	hits = retrieval.Dedup(hits)
	if len(hits) == 0 {
		return nil, ErrNoArticles
	}
	if len(hits) > maxArticles {
		hits = hits[:maxArticles]
	}

	return &models.NewsDigest{Articles: hits, Total: len(hits)}, nil
}

// PortfolioInsight aggregates the user's portfolio. The three sub-queries
// run in parallel; any failure fails the handler as a whole.
func (h *Handlers) PortfolioInsight(ctx context.Context, userID, period string) (*models.PortfolioInsight, error) {
	if period == "" {
		period = DefaultGrowthPeriod
	}

	var (
		wg      sync.WaitGroup
		byStock []models.HoldingDistribution
		sectors []models.SectorDistribution
		growth  []models.GrowthPoint
		errs    [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		byStock, errs[0] = h.portfolio.DistributionByStock(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		sectors, errs[1] = h.portfolio.DistributionBySector(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		growth, errs[2] = h.portfolio.GrowthOverTime(ctx, userID, period)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("portfolio aggregation failed: %w", err)
		}
	}
	if len(byStock) == 0 {
		return nil, ErrEmptyPortfolio
	}

	var totalValue, totalCost float64
	for _, row := range byStock {
		totalValue += row.Value
		if row.Cost != nil {
			totalCost += *row.Cost
		} else {
			totalCost += row.Value
		}
	}

	profitLoss := totalValue - totalCost
	profitLossPct := 0.0
	if totalCost != 0 {
		profitLossPct = profitLoss / totalCost * 100
	}

	return &models.PortfolioInsight{
		TotalValue:    totalValue,
		TotalCost:     totalCost,
		ProfitLoss:    profitLoss,
		ProfitLossPct: profitLossPct,
		ByStock:       byStock,
		BySector:      sectors,
		Growth:        growth,
		Period:        period,
	}, nil
}

// StockHistory returns the latest quote with its change against the
// previous record.
func (h *Handlers) StockHistory(ctx context.Context, symbol string) (*models.StockQuote, error) {
	points, err := h.prices.FindByStockSymbol(ctx, symbol, 2)
	if err != nil {
		return nil, fmt.Errorf("price history fetch failed: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoHistory
	}

	quote := &models.StockQuote{
		Symbol:    strings.ToUpper(symbol),
		Price:     points[0].Price,
		Timestamp: points[0].Timestamp,
	}
	if len(points) > 1 && points[1].Price != 0 {
		quote.Change = points[0].Price - points[1].Price
		quote.ChangePct = quote.Change / points[1].Price * 100
	}
	return quote, nil
}

func (h *Handlers) recentNewsText(ctx context.Context, symbol string) string {
	articles, err := h.articles.FindBySymbol(ctx, symbol, "published", 3)
	if err != nil || len(articles) == 0 {
		return ""
	}
	parts := make([]string, 0, len(articles))
	for _, a := range articles {
		parts = append(parts, a.Title+". "+a.Summary)
	}
	return strings.Join(parts, " ")
}

// approximateBreakdown keeps the historical fixed-fraction split: the
// winning label takes ~60% of the article count, the other two ~20% each.
// Per-article analysis would replace this; the coarse split is a known
// limitation preserved for output compatibility.
func approximateBreakdown(label string, count int) models.SentimentBreakdown {
	major := int(math.Round(float64(count) * 0.6))
	minor := int(math.Round(float64(count) * 0.2))

	switch label {
	case "Positive":
		return models.SentimentBreakdown{Positive: major, Negative: minor, Neutral: count - major - minor}
	case "Negative":
		return models.SentimentBreakdown{Negative: major, Positive: minor, Neutral: count - major - minor}
	default:
		return models.SentimentBreakdown{Neutral: major, Positive: minor, Negative: count - major - minor}
	}
}

func clampScore(score float64) float64 {
	if score < -1 {
		return -1
	}
	if score > 1 {
		return 1
	}
	return score
}

func reversed(points []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}
