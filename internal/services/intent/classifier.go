package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/services/cache"
	"github.com/stockpulse/assistant/internal/services/llm"
)

// llmWinsThreshold: below this the LLM classification is considered weak
// and the rule-based result may replace it.
const llmWinsThreshold = 0.7

// Gate short-circuits the LLM stage; satisfied by the circuit breaker.
type Gate interface {
	IsOpen() bool
}

// Classifier resolves a message to an IntentResult: LLM first, regex rules
// as fallback. Results are cached; an LLM failure caches the rule-based
// result, never a failure marker.
type Classifier struct {
	llm     llm.Client
	cache   cache.Service
	gate    Gate
	timeout time.Duration
	logger  *logrus.Logger
}

// NewClassifier creates the two-stage classifier. timeout bounds the LLM
// stage only; rules are instantaneous. gate may be nil.
func NewClassifier(client llm.Client, cacheStore cache.Service, gate Gate, timeout time.Duration, logger *logrus.Logger) *Classifier {
	return &Classifier{
		llm:     client,
		cache:   cacheStore,
		gate:    gate,
		timeout: timeout,
		logger:  logger,
	}
}

// Classify returns the intent for a message. It never fails: the rule stage
// always produces a result.
func (c *Classifier) Classify(ctx context.Context, message string) *models.IntentResult {
	if cached, found := c.cache.GetIntent(message); found {
		return cached
	}

	ruleResult := ClassifyByRules(message)

	if c.gate != nil && c.gate.IsOpen() {
		// LLM quota circuit is open; rules carry the request.
		c.cache.SetIntent(message, ruleResult)
		return ruleResult
	}

	llmResult, err := c.classifyByLLM(ctx, message)
	if err != nil {
		c.logger.WithError(err).Debug("LLM intent classification failed, using rules")
		c.cache.SetIntent(message, ruleResult)
		return ruleResult
	}

	chosen := merge(llmResult, ruleResult)
	c.cache.SetIntent(message, chosen)
	return chosen
}

// merge implements the tie-break: a confident LLM result wins outright; a
// weak one is replaced by the rule result iff the rules are strictly more
// confident.
func merge(llmResult, ruleResult *models.IntentResult) *models.IntentResult {
	if llmResult.Confidence >= llmWinsThreshold {
		return llmResult
	}
	if ruleResult.Confidence > llmResult.Confidence {
		return ruleResult
	}
	return llmResult
}

func (c *Classifier) classifyByLLM(ctx context.Context, message string) (*models.IntentResult, error) {
	llmCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Ask(llmCtx, llm.ClassifyPrompt(message))
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(raw)
	if err != nil {
		return nil, err
	}

	// Entities the model missed are topped up from the rules extractor so a
	// confident LLM intent still routes on a symbol typed in the message.
	ruleEntities := ExtractEntities(message)
	if result.Entities.Symbol == "" {
		result.Entities.Symbol = ruleEntities.Symbol
	}
	if result.Entities.Timeframe == "" {
		result.Entities.Timeframe = ruleEntities.Timeframe
	}
	if result.Entities.Action == "" {
		result.Entities.Action = ruleEntities.Action
	}

	return result, nil
}

// parseClassification accepts the first JSON object substring of the model
// output and normalizes it into a valid IntentResult.
func parseClassification(raw string) (*models.IntentResult, error) {
	obj, ok := llm.FirstJSONObject(raw)
	if !ok {
		return nil, errNoJSON
	}

	var parsed struct {
		Intent     string          `json:"intent"`
		Confidence float64         `json:"confidence"`
		Entities   models.Entities `json:"entities"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, err
	}

	result := &models.IntentResult{
		Intent:     models.Intent(parsed.Intent),
		Confidence: clamp01(parsed.Confidence),
		Entities:   parsed.Entities,
		Method:     "llm",
	}
	result.Entities.Symbol = normalizeSymbol(result.Entities.Symbol)
	if !models.ValidIntent(parsed.Intent) {
		result.Intent = models.IntentGeneral
	}
	return result, nil
}

var symbolShape = regexp.MustCompile(`^[A-Z]{2,5}$`)

// normalizeSymbol uppercases a model-supplied ticker and drops anything that
// does not look like one ("Apple Inc.", sentences, empty strings). Dropped
// values leave room for the rules extractor to fill in from the message.
func normalizeSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	sym = strings.TrimPrefix(sym, "$")
	if !symbolShape.MatchString(sym) {
		return ""
	}
	return sym
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
