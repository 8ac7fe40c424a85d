package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
)

// Message is a single chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the language-model interface the orchestrator and classifier
// consume. Implementations must respect the context deadline.
type Client interface {
	Ask(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// CallLogger receives the outcome of every LLM invocation. Satisfied by the
// usage monitor.
type CallLogger interface {
	LogCall(model string, ok bool, tokens int, errString string)
}

// unavailableMarkers flag generated text that is itself a failure notice.
// Substring sniffing is fragile but matches the upstream model behavior;
// the orchestrator treats a marked response like an error.
var unavailableMarkers = []string{"⚠️", "unavailable", "quota"}

// IsUnavailable reports whether generated text should be treated as an LLM
// failure despite a 2xx transport result.
func IsUnavailable(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range unavailableMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// OllamaClient talks to an OpenAI-compatible chat-completion endpoint.
type OllamaClient struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	usage       CallLogger
	logger      *logrus.Logger
}

// NewOllamaClient creates the LLM adapter. The HTTP client timeout is a
// backstop; per-call deadlines come from the caller's context.
func NewOllamaClient(cfg *config.LLMConfig, usage CallLogger, logger *logrus.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.GenerationTimeout + 5*time.Second,
		},
		usage:  usage,
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Ask posts a non-streaming chat completion and returns
// choices[0].message.content. Every call, success or failure, is funneled
// into the usage monitor.
func (c *OllamaClient) Ask(ctx context.Context, messages []Message) (string, error) {
	text, err := c.ask(ctx, messages)
	if err != nil {
		c.usage.LogCall(c.model, false, 0, err.Error())
		return "", err
	}
	c.usage.LogCall(c.model, true, 0, "")
	return text, nil
}

func (c *OllamaClient) ask(ctx context.Context, messages []Message) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"stream":      false,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"model": c.model,
		"url":   url,
	}).Debug("Sending LLM request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("LLM request failed")
		return "", fmt.Errorf("LLM request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("LLM error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from LLM")
	}

	return result.Choices[0].Message.Content, nil
}
