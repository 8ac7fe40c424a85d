package models

import (
	"time"
)

// Intent is the coarse class of a user question.
type Intent string

const (
	IntentPriceForecast    Intent = "price_forecast"
	IntentSentiment        Intent = "sentiment"
	IntentNewsSummary      Intent = "news_summary"
	IntentPortfolioInsight Intent = "portfolio_insight"
	IntentGeneral          Intent = "general"
)

// ValidIntent reports whether s names a known intent. Unknown intents
// collapse to general at the classifier boundary.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentPriceForecast, IntentSentiment, IntentNewsSummary, IntentPortfolioInsight, IntentGeneral:
		return true
	}
	return false
}

// SessionContext carries the authenticated session data a request enters with.
type SessionContext struct {
	UserID          string `json:"userId,omitempty"`
	StockSymbolHint string `json:"stockSymbolHint,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	Language        string `json:"language,omitempty"`
}

// ChatRequest is constructed at ingress and immutable thereafter.
type ChatRequest struct {
	Message string         `json:"message"`
	Session SessionContext `json:"session"`
}

// Entities are typed tokens extracted from the message.
type Entities struct {
	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Action    string `json:"action,omitempty"`
}

// IntentResult is produced once per request and is cacheable.
type IntentResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	Method     string   `json:"method,omitempty"`
}

// Requirements is the router output: five independent flags.
type Requirements struct {
	NeedsData      bool `json:"needsData"`
	NeedsRetrieval bool `json:"needsRetrieval"`
	NeedsML        bool `json:"needsML"`
	NeedsPortfolio bool `json:"needsPortfolio"`
	IsGreeting     bool `json:"isGreeting"`
}

// PricePoint is a single history record from the price store.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Volume    float64   `json:"volume,omitempty"`
}

// HybridSignal is the combined technical/sentiment signal from the
// hybrid analyzer script.
type HybridSignal struct {
	EMA20           float64 `json:"ema_20"`
	RSI14           float64 `json:"rsi_14"`
	TechnicalSignal string  `json:"technical_signal"`
	SentimentLabel  string  `json:"sentiment_label"`
	SentimentScore  float64 `json:"sentiment_score"`
	FinalSignal     string  `json:"final_signal"`
	Confidence      string  `json:"confidence"`
	Explanation     string  `json:"explanation"`
}

// Forecast is the price-forecast handler payload. Field names follow the
// predictor script output.
type Forecast struct {
	PredictedPrice     float64       `json:"predicted_price"`
	CurrentPrice       float64       `json:"current_price"`
	PredictedChange    float64       `json:"predicted_change"`
	PredictedChangePct float64       `json:"predicted_change_pct"`
	Trend              string        `json:"trend"`
	Confidence         float64       `json:"confidence"`
	ModelType          string        `json:"model_type"`
	ModelVersion       string        `json:"model_version"`
	Hybrid             *HybridSignal `json:"hybrid,omitempty"`
}

// SentimentBreakdown is a coarse positive/negative/neutral article split.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// SentimentReport is the sentiment handler payload.
type SentimentReport struct {
	Label            string             `json:"label"`
	Score            float64            `json:"score"`
	Method           string             `json:"method"`
	ArticlesAnalyzed int                `json:"articles_analyzed"`
	Sources          []string           `json:"sources"`
	Breakdown        SentimentBreakdown `json:"breakdown"`
}

// Article is the uniform record shape shared by the article store, the
// retrieval index and external news.
type Article struct {
	ID             string    `json:"id"`
	StockSymbol    string    `json:"stockSymbol,omitempty"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary,omitempty"`
	Content        string    `json:"content,omitempty"`
	Source         string    `json:"source"`
	Type           string    `json:"type"`
	Status         string    `json:"status,omitempty"`
	PublishedAt    time.Time `json:"publishedAt"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
}

// NewsDigest is the news-summary handler payload.
type NewsDigest struct {
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
}

// HoldingDistribution is one row of the by-stock portfolio distribution.
// Cost is optional; callers fall back to Value when absent.
type HoldingDistribution struct {
	Symbol   string   `json:"symbol"`
	Value    float64  `json:"value"`
	Cost     *float64 `json:"cost,omitempty"`
	Quantity float64  `json:"quantity,omitempty"`
}

// SectorDistribution is one row of the by-sector portfolio distribution.
type SectorDistribution struct {
	Sector string  `json:"sector"`
	Value  float64 `json:"value"`
}

// GrowthPoint is one point of portfolio value over time.
type GrowthPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// PortfolioInsight is the portfolio-insight handler payload.
type PortfolioInsight struct {
	TotalValue    float64               `json:"total_value"`
	TotalCost     float64               `json:"total_cost"`
	ProfitLoss    float64               `json:"profit_loss"`
	ProfitLossPct float64               `json:"profit_loss_pct"`
	ByStock       []HoldingDistribution `json:"by_stock"`
	BySector      []SectorDistribution  `json:"by_sector"`
	Growth        []GrowthPoint         `json:"growth"`
	Period        string                `json:"period"`
}

// StockQuote is the stock-history handler payload.
type StockQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Timestamp time.Time `json:"timestamp"`
}

// HandlerResults collects the typed outputs of the handler fan-out. A nil
// field means the handler was not invoked or failed; that is distinct from
// an invoked handler returning an empty payload.
type HandlerResults struct {
	Forecast  *Forecast         `json:"forecast,omitempty"`
	Sentiment *SentimentReport  `json:"sentiment,omitempty"`
	News      *NewsDigest       `json:"news,omitempty"`
	Portfolio *PortfolioInsight `json:"portfolio,omitempty"`
	History   *StockQuote       `json:"history,omitempty"`
}

// Empty reports whether no handler produced data.
func (r *HandlerResults) Empty() bool {
	return r.Forecast == nil && r.Sentiment == nil && r.News == nil &&
		r.Portfolio == nil && r.History == nil
}

// Source identifies where a piece of the response came from.
type Source struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// ResponseMetadata is attached to every ChatResponse.
type ResponseMetadata struct {
	Intent       Intent    `json:"intent"`
	Entities     Entities  `json:"entities"`
	ProcessingMs int64     `json:"processingMs"`
	Timestamp    time.Time `json:"timestamp"`
	Optimized    bool      `json:"optimized,omitempty"`
	SkippedSteps []string  `json:"skippedSteps,omitempty"`
	Cached       bool      `json:"cached,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ChatResponse is the public contract of the orchestrator. Type always
// matches the resolved intent; Data is non-nil only when the matching
// handler ran and returned data.
type ChatResponse struct {
	Type     Intent           `json:"type"`
	Text     string           `json:"text"`
	Data     interface{}      `json:"data"`
	Sources  []Source         `json:"sources"`
	Metadata ResponseMetadata `json:"metadata"`
}
