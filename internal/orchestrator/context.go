package orchestrator

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/stockpulse/assistant/internal/models"
)

// BuildContext renders the handler results into the plain-text block fed to
// the generation prompt: one section per populated key, nothing for keys
// that were not fetched.
func BuildContext(results *models.HandlerResults) string {
	if results == nil || results.Empty() {
		return ""
	}

	var sections []string

	if f := results.Forecast; f != nil {
		s := fmt.Sprintf(
			"Price forecast: current price %.2f, predicted price %.2f (%+.2f, %+.2f%%), trend %s, model %s (confidence %.0f%%).",
			f.CurrentPrice, f.PredictedPrice, f.PredictedChange, f.PredictedChangePct,
			f.Trend, f.ModelType, f.Confidence*100,
		)
		if f.Hybrid != nil {
			s += fmt.Sprintf(" Hybrid signal: %s (%s confidence): %s",
				f.Hybrid.FinalSignal, f.Hybrid.Confidence, f.Hybrid.Explanation)
		}
		sections = append(sections, s)
	}

	if s := results.Sentiment; s != nil {
		sections = append(sections, fmt.Sprintf(
			"Sentiment: %s (score %.2f) from %d articles analyzed with %s.",
			s.Label, s.Score, s.ArticlesAnalyzed, s.Method,
		))
	}

	if n := results.News; n != nil && len(n.Articles) > 0 {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Recent news (%d articles):", n.Total))
		for _, a := range n.Articles {
			sb.WriteString(fmt.Sprintf("\n- %s", a.Title))
			if a.Summary != "" {
				sb.WriteString(": " + a.Summary)
			}
			sb.WriteString(fmt.Sprintf(" (%s)", a.Source))
		}
		sections = append(sections, sb.String())
	}

	if p := results.Portfolio; p != nil {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf(
			"Portfolio: total value %.2f, cost %.2f, profit/loss %+.2f (%+.2f%%) over %s.",
			p.TotalValue, p.TotalCost, p.ProfitLoss, p.ProfitLossPct, p.Period,
		))
		for _, row := range p.ByStock {
			sb.WriteString(fmt.Sprintf("\n- %s: %.2f", row.Symbol, row.Value))
		}
		sections = append(sections, sb.String())
	}

	if q := results.History; q != nil {
		sections = append(sections, fmt.Sprintf(
			"Latest quote: %s at %.2f (%+.2f, %+.2f%%).",
			q.Symbol, q.Price, q.Change, q.ChangePct,
		))
	}

	return strings.Join(sections, "\n\n")
}

// contextDigest keys the response cache on the semantic inputs of
// generation, so the same question over different data never aliases.
func contextDigest(contextBlock string) string {
	sum := md5.Sum([]byte(contextBlock))
	return hex.EncodeToString(sum[:])
}
