package store

import (
	"context"
	"errors"

	"github.com/stockpulse/assistant/internal/models"
)

// The chat core consumes the rest of the platform through these interfaces.
// The CRUD services own the data; this package only reads it.

// ErrNoSession marks an unknown or expired session token.
var ErrNoSession = errors.New("session not found")

// ArticleStore reads published news articles.
type ArticleStore interface {
	// FindBySymbol returns up to limit articles for a symbol with the given
	// status, newest first.
	FindBySymbol(ctx context.Context, symbol, status string, limit int) ([]models.Article, error)
	// All returns every published article, for retrieval index builds.
	All(ctx context.Context) ([]models.Article, error)
}

// PriceHistoryStore reads simulated price history.
type PriceHistoryStore interface {
	// FindByStockSymbol returns up to limit points, newest first.
	FindByStockSymbol(ctx context.Context, symbol string, limit int) ([]models.PricePoint, error)
}

// PortfolioService exposes the portfolio aggregates maintained by the
// position-update service. The chat core is indifferent to storage shape;
// it consumes the nested-holdings view these aggregates derive from.
type PortfolioService interface {
	DistributionByStock(ctx context.Context, userID string) ([]models.HoldingDistribution, error)
	DistributionBySector(ctx context.Context, userID string) ([]models.SectorDistribution, error)
	GrowthOverTime(ctx context.Context, userID, period string) ([]models.GrowthPoint, error)
}

// SessionValidator resolves a bearer token to a session context.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.SessionContext, error)
}
