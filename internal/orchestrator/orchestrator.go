package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/i18n"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/services/cache"
	"github.com/stockpulse/assistant/internal/services/llm"
	"github.com/stockpulse/assistant/pkg/logger"
	"github.com/stockpulse/assistant/pkg/markdown"
)

// responseCacheMinLen: short messages without data context are cheap to
// regenerate and too likely to collide, so they bypass the response cache.
const responseCacheMinLen = 50

// Skipped-step markers reported in response metadata.
const (
	stepIntentLLM     = "intent_llm"
	stepDataFetching  = "data_fetching"
	stepLLMGeneration = "llm_generation"
)

// Validation errors surface to the HTTP layer as 400s. Everything else the
// orchestrator absorbs into a degraded response.
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// IntentClassifier resolves a message to an intent. Never fails.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) *models.IntentResult
}

// RequirementsRouter derives routing flags from a classified message.
type RequirementsRouter interface {
	Requirements(message string, intent *models.IntentResult, session models.SessionContext) models.Requirements
	IsGreeting(message string) bool
}

// DataHandlers is the fan-out surface. Implemented by data.Handlers.
type DataHandlers interface {
	PriceForecast(ctx context.Context, symbol string) (*models.Forecast, error)
	Sentiment(ctx context.Context, symbol, query string) (*models.SentimentReport, error)
	NewsSummary(ctx context.Context, symbol, query string) (*models.NewsDigest, error)
	PortfolioInsight(ctx context.Context, userID, period string) (*models.PortfolioInsight, error)
	StockHistory(ctx context.Context, symbol string) (*models.StockQuote, error)
}

// Breaker gates generation-stage LLM calls.
type Breaker interface {
	IsOpen() bool
	RecordQuotaError()
}

// QuotaClassifier decides whether an LLM failure is quota-class. Implemented
// by the usage monitor so the breaker and the daily counters agree.
type QuotaClassifier interface {
	ClassifyQuota(errString string) bool
}

// Metrics receives request-level observations. nil disables export.
type Metrics interface {
	RecordChatRequest(intent, status string, seconds float64)
	RecordHandlerDuration(handler string, seconds float64)
	RecordCacheHit()
	RecordCacheMiss()
}

// Orchestrator runs one chat request end to end: validate, shortcut
// greetings, classify, route, fan out data handlers, build context, generate
// or template, assemble. It degrades instead of failing: after validation
// the caller always gets a usable ChatResponse.
type Orchestrator struct {
	router     RequirementsRouter
	classifier IntentClassifier
	cache      cache.Service
	handlers   DataHandlers
	llm        llm.Client
	breaker    Breaker
	quota      QuotaClassifier
	localizer  *i18n.Localizer
	metrics    Metrics
	logger     *logrus.Logger

	maxMessageLen     int
	generationTimeout time.Duration
}

// New wires the orchestrator. metrics may be nil.
func New(
	requirementsRouter RequirementsRouter,
	classifier IntentClassifier,
	cacheStore cache.Service,
	handlers DataHandlers,
	client llm.Client,
	circuitBreaker Breaker,
	quota QuotaClassifier,
	localizer *i18n.Localizer,
	metrics Metrics,
	logger *logrus.Logger,
	maxMessageLen int,
	generationTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		router:            requirementsRouter,
		classifier:        classifier,
		cache:             cacheStore,
		handlers:          handlers,
		llm:               client,
		breaker:           circuitBreaker,
		quota:             quota,
		localizer:         localizer,
		metrics:           metrics,
		logger:            logger,
		maxMessageLen:     maxMessageLen,
		generationTimeout: generationTimeout,
	}
}

// Process handles one chat request. The returned error is non-nil only for
// input validation failures; every downstream failure is absorbed into a
// degraded response with metadata describing what was skipped.
func (o *Orchestrator) Process(ctx context.Context, req models.ChatRequest) (resp *models.ChatResponse, err error) {
	start := time.Now()
	log := logger.WithRequest(o.logger, req.Session.UserID, req.Session.SessionID)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Chat processing panicked")
			resp = o.panicResponse(req, start, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
		if resp != nil {
			o.observe(resp, start)
		}
	}()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(req.Message) > o.maxMessageLen {
		return nil, ErrMessageTooLong
	}

	lang := req.Session.Language

	// Greetings never touch the LLM or the data layer.
	if o.router.IsGreeting(message) {
		return o.greetingResponse(lang, start), nil
	}

	intent := o.classifier.Classify(ctx, message)
	if intent.Entities.Symbol == "" && req.Session.StockSymbolHint != "" {
		intent.Entities.Symbol = strings.ToUpper(req.Session.StockSymbolHint)
	}
	log = log.WithFields(logrus.Fields{
		"intent": intent.Intent,
		"symbol": intent.Entities.Symbol,
		"method": intent.Method,
	})

	reqs := o.router.Requirements(message, intent, req.Session)

	results := &models.HandlerResults{}
	var (
		skipped []string
		text    string
		cached  bool
	)
	if reqs.NeedsData {
		o.fetchData(ctx, intent, reqs, req.Session, message, results)

		contextBlock := BuildContext(results)
		var generated bool
		text, cached, generated = o.generate(ctx, message, contextBlock, intent, results, lang, log)
		if !generated {
			skipped = append(skipped, stepLLMGeneration)
		}
	} else {
		// Nothing to fetch means nothing for the LLM to ground on. The
		// template answers from the intent alone and the generation call
		// is saved entirely.
		skipped = append(skipped, stepDataFetching, stepLLMGeneration)
		text = o.templateResponse(intent, results, lang)
	}

	resp = &models.ChatResponse{
		Type:    intent.Intent,
		Text:    text,
		Data:    payloadFor(intent.Intent, results),
		Sources: buildSources(intent, results),
		Metadata: models.ResponseMetadata{
			Intent:       intent.Intent,
			Entities:     intent.Entities,
			ProcessingMs: time.Since(start).Milliseconds(),
			Timestamp:    time.Now(),
			SkippedSteps: skipped,
			Cached:       cached,
		},
	}
	log.WithFields(logrus.Fields{
		"processing_ms": resp.Metadata.ProcessingMs,
		"cached":        cached,
		"skipped":       skipped,
	}).Info("Chat request processed")
	return resp, nil
}

// fetchData runs the selected handlers in parallel and collects typed
// results. A failed handler leaves its slot nil and is only logged.
func (o *Orchestrator) fetchData(
	ctx context.Context,
	intent *models.IntentResult,
	reqs models.Requirements,
	session models.SessionContext,
	message string,
	results *models.HandlerResults,
) {
	symbol := intent.Entities.Symbol

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			if err := fn(); err != nil {
				o.logger.WithError(err).WithFields(logrus.Fields{
					"handler": name,
					"symbol":  symbol,
				}).Warn("Data handler failed")
			}
			if o.metrics != nil {
				o.metrics.RecordHandlerDuration(name, time.Since(started).Seconds())
			}
		}()
	}

	if reqs.NeedsML && symbol != "" {
		run("price_forecast", func() error {
			forecast, err := o.handlers.PriceForecast(ctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			results.Forecast = forecast
			mu.Unlock()
			return nil
		})
	}

	if reqs.NeedsRetrieval && symbol != "" {
		switch intent.Intent {
		case models.IntentSentiment:
			run("sentiment", func() error {
				report, err := o.handlers.Sentiment(ctx, symbol, message)
				if err != nil {
					return err
				}
				mu.Lock()
				results.Sentiment = report
				mu.Unlock()
				return nil
			})
		case models.IntentNewsSummary:
			run("news_summary", func() error {
				digest, err := o.handlers.NewsSummary(ctx, symbol, message)
				if err != nil {
					return err
				}
				mu.Lock()
				results.News = digest
				mu.Unlock()
				return nil
			})
		}
	}

	if reqs.NeedsPortfolio && session.UserID != "" {
		run("portfolio_insight", func() error {
			insight, err := o.handlers.PortfolioInsight(ctx, session.UserID, growthPeriod(intent.Entities.Timeframe))
			if err != nil {
				return err
			}
			mu.Lock()
			results.Portfolio = insight
			mu.Unlock()
			return nil
		})
	}

	// A latest quote accompanies symbol questions that are not already
	// covered by the forecast or portfolio paths.
	if symbol != "" && quoteIntents[intent.Intent] {
		run("stock_history", func() error {
			quote, err := o.handlers.StockHistory(ctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			results.History = quote
			mu.Unlock()
			return nil
		})
	}

	wg.Wait()
}

var quoteIntents = map[models.Intent]bool{
	models.IntentGeneral:     true,
	models.IntentSentiment:   true,
	models.IntentNewsSummary: true,
}

// generate produces the response text. Returns the text, whether it came
// from the response cache, and whether the generation LLM actually ran.
func (o *Orchestrator) generate(
	ctx context.Context,
	message, contextBlock string,
	intent *models.IntentResult,
	results *models.HandlerResults,
	lang string,
	log *logrus.Entry,
) (text string, cached, generated bool) {
	useCache := contextBlock != "" || utf8.RuneCountInString(message) > responseCacheMinLen
	digest := contextDigest(contextBlock)

	if useCache {
		if hit, found := o.cache.GetResponse(message, digest); found {
			if o.metrics != nil {
				o.metrics.RecordCacheHit()
			}
			return hit, true, false
		}
		if o.metrics != nil {
			o.metrics.RecordCacheMiss()
		}
	}

	if o.breaker.IsOpen() {
		log.Debug("Circuit open, using template response")
		return o.templateResponse(intent, results, lang), false, false
	}

	llmCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	raw, err := o.llm.Ask(llmCtx, llm.GeneratePrompt(message, contextBlock))
	if err != nil {
		if o.quota.ClassifyQuota(err.Error()) {
			o.breaker.RecordQuotaError()
		}
		log.WithError(err).Warn("LLM generation failed, using template response")
		return o.templateResponse(intent, results, lang), false, false
	}

	if llm.IsUnavailable(raw) {
		if o.quota.ClassifyQuota(raw) {
			o.breaker.RecordQuotaError()
		}
		log.Warn("LLM reported itself unavailable, using template response")
		return o.templateResponse(intent, results, lang), false, true
	}

	text = markdown.ToPlainText(raw)
	if useCache {
		o.cache.SetResponse(message, digest, text)
	}
	return text, false, true
}

func (o *Orchestrator) greetingResponse(lang string, start time.Time) *models.ChatResponse {
	return &models.ChatResponse{
		Type:    models.IntentGeneral,
		Text:    o.localizer.Get(lang, i18n.MsgGreeting, nil),
		Sources: []models.Source{},
		Metadata: models.ResponseMetadata{
			Intent:       models.IntentGeneral,
			ProcessingMs: time.Since(start).Milliseconds(),
			Timestamp:    time.Now(),
			Optimized:    true,
			SkippedSteps: []string{stepIntentLLM, stepDataFetching, stepLLMGeneration},
		},
	}
}

func (o *Orchestrator) panicResponse(req models.ChatRequest, start time.Time, errText string) *models.ChatResponse {
	return &models.ChatResponse{
		Type:    models.IntentGeneral,
		Text:    o.localizer.Get(req.Session.Language, i18n.MsgError, nil),
		Sources: []models.Source{},
		Metadata: models.ResponseMetadata{
			Intent:       models.IntentGeneral,
			ProcessingMs: time.Since(start).Milliseconds(),
			Timestamp:    time.Now(),
			Error:        errText,
		},
	}
}

func (o *Orchestrator) observe(resp *models.ChatResponse, start time.Time) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if resp.Metadata.Error != "" {
		status = "error"
	}
	o.metrics.RecordChatRequest(string(resp.Metadata.Intent), status, time.Since(start).Seconds())
}

// payloadFor selects the typed Data payload matching the resolved intent.
func payloadFor(intent models.Intent, results *models.HandlerResults) interface{} {
	switch intent {
	case models.IntentPriceForecast:
		if results.Forecast != nil {
			return results.Forecast
		}
	case models.IntentSentiment:
		if results.Sentiment != nil {
			return results.Sentiment
		}
	case models.IntentNewsSummary:
		if results.News != nil {
			return results.News
		}
	case models.IntentPortfolioInsight:
		if results.Portfolio != nil {
			return results.Portfolio
		}
	default:
		if results.History != nil {
			return results.History
		}
	}
	return nil
}

// buildSources attributes the response to the subsystems that produced data.
func buildSources(intent *models.IntentResult, results *models.HandlerResults) []models.Source {
	symbol := intent.Entities.Symbol
	sources := make([]models.Source, 0, 2)

	if results.Forecast != nil {
		sources = append(sources, models.Source{Type: "ml_model", Name: results.Forecast.ModelType, Symbol: symbol})
	}
	if results.Sentiment != nil {
		sources = append(sources, models.Source{Type: "sentiment_analyzer", Name: results.Sentiment.Method, Symbol: symbol})
	}
	if results.News != nil {
		sources = append(sources, models.Source{Type: "rag", Name: "knowledge_index", Symbol: symbol})
	}
	if results.Portfolio != nil {
		sources = append(sources, models.Source{Type: "portfolio_service"})
	}
	return sources
}

// growthPeriod maps an extracted timeframe to a portfolio growth period.
func growthPeriod(timeframe string) string {
	switch timeframe {
	case "next_day":
		return "1d"
	case "next_week":
		return "1w"
	case "next_month":
		return "1m"
	case "next_year":
		return "1y"
	default:
		return ""
	}
}
