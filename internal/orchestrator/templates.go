package orchestrator

import (
	"fmt"
	"strings"

	"github.com/stockpulse/assistant/internal/i18n"
	"github.com/stockpulse/assistant/internal/models"
)

// Template responses: deterministic, data-driven sentences emitted when the
// LLM is unavailable or skipped. They must stay useful on their own; for
// many degraded requests this text is all the user sees.

func (o *Orchestrator) templateResponse(intent *models.IntentResult, results *models.HandlerResults, lang string) string {
	switch intent.Intent {
	case models.IntentPriceForecast:
		if f := results.Forecast; f != nil {
			text := fmt.Sprintf(
				"%s is trading at %.2f and is expected to move to %.2f (%+.2f%%). Trend: %s (confidence %.0f%%).",
				symbolOrStock(intent), f.CurrentPrice, f.PredictedPrice, f.PredictedChangePct,
				f.Trend, f.Confidence*100,
			)
			if f.Hybrid != nil {
				text += fmt.Sprintf(" Combined signal: %s.", f.Hybrid.FinalSignal)
			}
			return text
		}
		return fmt.Sprintf("I couldn't retrieve enough price data to forecast %s right now. Please try again later.", symbolOrStock(intent))

	case models.IntentSentiment:
		if s := results.Sentiment; s != nil {
			return fmt.Sprintf(
				"Market sentiment for %s looks %s (score %.2f), based on %d recent articles.",
				symbolOrStock(intent), s.Label, s.Score, s.ArticlesAnalyzed,
			)
		}
		return fmt.Sprintf("I couldn't find recent articles to gauge sentiment for %s.", symbolOrStock(intent))

	case models.IntentNewsSummary:
		if n := results.News; n != nil && len(n.Articles) > 0 {
			titles := make([]string, 0, len(n.Articles))
			for _, a := range n.Articles {
				titles = append(titles, a.Title)
			}
			return fmt.Sprintf("Here are %d recent articles about %s: %s.",
				n.Total, symbolOrStock(intent), strings.Join(titles, "; "))
		}
		return fmt.Sprintf("I couldn't find recent news about %s.", symbolOrStock(intent))

	case models.IntentPortfolioInsight:
		if p := results.Portfolio; p != nil {
			return fmt.Sprintf(
				"Your portfolio is worth %.2f against a cost basis of %.2f, profit/loss %+.2f (%+.2f%%) over %s.",
				p.TotalValue, p.TotalCost, p.ProfitLoss, p.ProfitLossPct, p.Period,
			)
		}
		return "I couldn't load your portfolio right now. Make sure you have holdings and try again."

	default:
		if q := results.History; q != nil {
			return fmt.Sprintf("%s last traded at %.2f (%+.2f%%).", q.Symbol, q.Price, q.ChangePct)
		}
		return o.localizer.Get(lang, i18n.MsgGeneralHelp, nil)
	}
}

func symbolOrStock(intent *models.IntentResult) string {
	if intent.Entities.Symbol != "" {
		return intent.Entities.Symbol
	}
	return "this stock"
}
