package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

// Client fetches supplemental external news. Disabled when no API key is
// configured; callers treat a nil client and an empty result the same way.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient returns nil when the API key is absent.
func NewClient(cfg *config.NewsConfig, logger *logrus.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Search returns up to limit external articles matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Article, error) {
	endpoint := fmt.Sprintf("%s/everything?q=%s&pageSize=%d&sortBy=publishedAt&apiKey=%s",
		c.baseURL, url.QueryEscape(query), limit, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create news request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read news response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news request failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		Articles []struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			Content     string    `json:"content"`
			URL         string    `json:"url"`
			PublishedAt time.Time `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse news response: %w", err)
	}

	articles := make([]models.Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		articles = append(articles, models.Article{
			ID:          a.URL,
			Title:       a.Title,
			Summary:     a.Description,
			Content:     a.Content,
			Source:      a.Source.Name,
			Type:        "external_news",
			PublishedAt: a.PublishedAt,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"query": query,
		"count": len(articles),
	}).Debug("External news fetched")

	return articles, nil
}
