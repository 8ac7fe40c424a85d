package intent

import (
	"regexp"
	"strings"

	"github.com/stockpulse/assistant/internal/models"
)

const ruleConfidence = 0.8

// Ordered rule groups: first match wins. Order matters: forecast phrasing
// often mentions "price" too, so it is checked before sentiment and news.
var ruleGroups = []struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}{
	{
		intent: models.IntentPriceForecast,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(forecast|predict|prediction|projection)\b`),
			regexp.MustCompile(`(?i)\bprice\s+(target|next|tomorrow|outlook)\b`),
			regexp.MustCompile(`(?i)\b(will|going to)\b.*\b(rise|fall|go up|go down|drop)\b`),
			regexp.MustCompile(`(?i)dự\s*báo|dự\s*đoán`),
		},
	},
	{
		intent: models.IntentSentiment,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bsentiment\b`),
			regexp.MustCompile(`(?i)\b(bullish|bearish)\b.*\?`),
			regexp.MustCompile(`(?i)\bhow\s+(do|does)\s+.*\bfeel\b`),
			regexp.MustCompile(`(?i)tâm\s*lý|cảm\s*xúc\s*thị\s*trường`),
		},
	},
	{
		intent: models.IntentNewsSummary,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(news|headlines|articles?)\b`),
			regexp.MustCompile(`(?i)\bsummar(y|ize|ise)\b`),
			regexp.MustCompile(`(?i)\bwhat.s\s+happening\b`),
			regexp.MustCompile(`(?i)tin\s*tức|bản\s*tin`),
		},
	},
	{
		intent: models.IntentPortfolioInsight,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(portfolio|holdings?|positions?)\b`),
			regexp.MustCompile(`(?i)\bmy\s+(stocks?|investments?)\b`),
			regexp.MustCompile(`(?i)\b(profit|loss|p&l|pnl)\b`),
			regexp.MustCompile(`(?i)danh\s*mục`),
		},
	},
}

var symbolPattern = regexp.MustCompile(`\$?([A-Z]{2,5})\b`)

// knownSymbols is the simulation's default universe, consulted before the
// generic pattern so common uppercase words ("NEWS", "WILL") do not shadow
// real tickers typed in lowercase.
var knownSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "TSLA", "NVDA", "META",
	"AMD", "INTC", "NFLX", "BABA", "VIC", "VNM", "FPT", "HPG", "VCB",
}

// symbolStopwords are uppercase tokens the generic pattern must not treat
// as tickers.
var symbolStopwords = map[string]bool{
	"NEWS": true, "STOCK": true, "PRICE": true, "WILL": true, "WHAT": true,
	"THE": true, "FOR": true, "AND": true, "HOW": true, "NEXT": true,
	"WEEK": true, "DAY": true, "MONTH": true, "YEAR": true, "ETF": true,
}

var timeframePhrases = []struct {
	timeframe string
	phrases   []string
}{
	{"next_day", []string{"tomorrow", "next day", "ngày mai"}},
	{"next_week", []string{"next week", "this week", "tuần tới", "tuần sau"}},
	{"next_month", []string{"next month", "this month", "tháng tới", "tháng sau"}},
	{"next_year", []string{"next year", "this year", "năm tới", "năm sau"}},
}

var actionKeywords = []struct {
	action   string
	keywords []string
}{
	{"forecast", []string{"forecast", "predict", "projection", "dự báo", "dự đoán"}},
	{"analyze", []string{"analyze", "analyse", "analysis", "phân tích"}},
	{"summarize", []string{"summarize", "summarise", "summary", "tóm tắt"}},
}

// ClassifyByRules is the Stage-B fallback classifier: ordered regex groups,
// fixed confidence, entity extraction from the raw message.
func ClassifyByRules(message string) *models.IntentResult {
	result := &models.IntentResult{
		Intent:     models.IntentGeneral,
		Confidence: 0.5,
		Entities:   ExtractEntities(message),
		Method:     "rules",
	}

	for _, group := range ruleGroups {
		for _, pattern := range group.patterns {
			if pattern.MatchString(message) {
				result.Intent = group.intent
				result.Confidence = ruleConfidence
				return result
			}
		}
	}

	return result
}

// ExtractEntities pulls symbol, timeframe and action tokens from a message.
func ExtractEntities(message string) models.Entities {
	entities := models.Entities{}
	lowered := strings.ToLower(message)

	// Known symbols first, matched case-insensitively.
	for _, sym := range knownSymbols {
		if containsWord(lowered, strings.ToLower(sym)) {
			entities.Symbol = sym
			break
		}
	}

	if entities.Symbol == "" {
		for _, match := range symbolPattern.FindAllStringSubmatch(message, -1) {
			candidate := match[1]
			if !symbolStopwords[candidate] {
				entities.Symbol = candidate
				break
			}
		}
	}

	for _, tf := range timeframePhrases {
		for _, phrase := range tf.phrases {
			if strings.Contains(lowered, phrase) {
				entities.Timeframe = tf.timeframe
				break
			}
		}
		if entities.Timeframe != "" {
			break
		}
	}

	for _, a := range actionKeywords {
		for _, kw := range a.keywords {
			if strings.Contains(lowered, kw) {
				entities.Action = a.action
				break
			}
		}
		if entities.Action != "" {
			break
		}
	}

	return entities
}

func containsWord(haystack, word string) bool {
	idx := strings.Index(haystack, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(haystack[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
