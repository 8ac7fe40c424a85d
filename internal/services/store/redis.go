package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

// RedisStore implements every collaborator interface on the platform's
// shared Redis. Key layout mirrors what the CRUD services write:
//
//	article:<id>               JSON article
//	articles:symbol:<SYM>      list of ids, newest first
//	articles:all               list of ids, newest first
//	prices:<SYM>               list of JSON price points, newest first
//	portfolio:stock:<userID>   JSON []HoldingDistribution
//	portfolio:sector:<userID>  JSON []SectorDistribution
//	portfolio:growth:<userID>:<period>  JSON []GrowthPoint
//	session:<token>            JSON SessionContext
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for composition-root health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// FindBySymbol returns up to limit articles for a symbol, newest first,
// filtered by status.
func (s *RedisStore) FindBySymbol(ctx context.Context, symbol, status string, limit int) ([]models.Article, error) {
	key := fmt.Sprintf("articles:symbol:%s", strings.ToUpper(symbol))
	return s.articlesByIDList(ctx, key, status, limit)
}

// All returns every article in the corpus, newest first.
func (s *RedisStore) All(ctx context.Context) ([]models.Article, error) {
	return s.articlesByIDList(ctx, "articles:all", "", -1)
}

func (s *RedisStore) articlesByIDList(ctx context.Context, key, status string, limit int) ([]models.Article, error) {
	end := int64(-1)
	if limit > 0 {
		// Over-fetch to survive status filtering.
		end = int64(limit)*2 - 1
	}

	ids, err := s.client.LRange(ctx, key, 0, end).Result()
	if err == redis.Nil || len(ids) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list article ids: %w", err)
	}

	articles := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, "article:"+id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get article %s: %w", id, err)
		}

		var article models.Article
		if err := json.Unmarshal([]byte(data), &article); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("Skipping malformed article")
			continue
		}
		if status != "" && article.Status != status {
			continue
		}

		articles = append(articles, article)
		if limit > 0 && len(articles) >= limit {
			break
		}
	}
	return articles, nil
}

// FindByStockSymbol returns up to limit price points, newest first.
func (s *RedisStore) FindByStockSymbol(ctx context.Context, symbol string, limit int) ([]models.PricePoint, error) {
	key := fmt.Sprintf("prices:%s", strings.ToUpper(symbol))

	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}
	entries, err := s.client.LRange(ctx, key, 0, end).Result()
	if err == redis.Nil || len(entries) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price history: %w", err)
	}

	points := make([]models.PricePoint, 0, len(entries))
	for _, entry := range entries {
		var point models.PricePoint
		if err := json.Unmarshal([]byte(entry), &point); err != nil {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Skipping malformed price point")
			continue
		}
		points = append(points, point)
	}
	return points, nil
}

// DistributionByStock reads the by-stock aggregate for a user.
func (s *RedisStore) DistributionByStock(ctx context.Context, userID string) ([]models.HoldingDistribution, error) {
	var rows []models.HoldingDistribution
	if err := s.getJSON(ctx, fmt.Sprintf("portfolio:stock:%s", userID), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DistributionBySector reads the by-sector aggregate for a user.
func (s *RedisStore) DistributionBySector(ctx context.Context, userID string) ([]models.SectorDistribution, error) {
	var rows []models.SectorDistribution
	if err := s.getJSON(ctx, fmt.Sprintf("portfolio:sector:%s", userID), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GrowthOverTime reads the growth series for a user and period.
func (s *RedisStore) GrowthOverTime(ctx context.Context, userID, period string) ([]models.GrowthPoint, error) {
	var rows []models.GrowthPoint
	if err := s.getJSON(ctx, fmt.Sprintf("portfolio:growth:%s:%s", userID, period), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Validate resolves a session token.
func (s *RedisStore) Validate(ctx context.Context, token string) (*models.SessionContext, error) {
	data, err := s.client.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.SessionContext
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, target interface{}) error {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
