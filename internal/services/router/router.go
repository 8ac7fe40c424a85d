package router

import (
	"strings"

	"github.com/stockpulse/assistant/internal/models"
)

// greetings is a small multilingual lexicon. Matching is case-insensitive
// and only applies to short messages or greeting-prefixed ones, so "hello,
// what's the price of AAPL" is not short-circuited.
var greetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"xin chào", "chào", "chào bạn", "chào buổi sáng",
	"你好", "您好", "嗨", "早上好",
}

// dataKeywords flag messages that need market data even without a symbol.
var dataKeywords = []string{
	"price", "forecast", "predict", "sentiment", "news", "article",
	"portfolio", "stock", "symbol", "ticker", "chart", "analysis",
}

// intentsRequiringData always fetch something when resolvable.
var intentsRequiringData = map[models.Intent]bool{
	models.IntentPriceForecast:    true,
	models.IntentSentiment:        true,
	models.IntentNewsSummary:      true,
	models.IntentPortfolioInsight: true,
}

// Router derives handler requirements from a classified message. It is a
// pure decision function: no I/O, deterministic, idempotent.
type Router struct{}

// New creates a router.
func New() *Router {
	return &Router{}
}

// Requirements maps (message, intent, session) to the five routing flags.
// Rules apply in order; a greeting forces every other flag off.
func (r *Router) Requirements(message string, intent *models.IntentResult, session models.SessionContext) models.Requirements {
	if r.IsGreeting(message) {
		return models.Requirements{IsGreeting: true}
	}

	req := models.Requirements{}
	hasSymbol := intent.Entities.Symbol != ""

	switch intent.Intent {
	case models.IntentSentiment, models.IntentNewsSummary:
		req.NeedsRetrieval = hasSymbol
	case models.IntentPriceForecast:
		req.NeedsML = hasSymbol
	case models.IntentPortfolioInsight:
		req.NeedsPortfolio = session.UserID != ""
	}

	req.NeedsData = hasSymbol ||
		intentsRequiringData[intent.Intent] ||
		containsDataKeyword(message)

	return req
}

// IsGreeting reports whether the message is a bare greeting.
func (r *Router) IsGreeting(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}

	for _, g := range greetings {
		if normalized == g {
			return true
		}
		if len(normalized) < 20 && strings.HasPrefix(normalized, g) {
			return true
		}
	}
	return false
}

func containsDataKeyword(message string) bool {
	lowered := strings.ToLower(message)
	for _, kw := range dataKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
