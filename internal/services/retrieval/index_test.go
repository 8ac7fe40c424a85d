package retrieval

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stockpulse/assistant/internal/models"
)

type fakeArticleStore struct {
	articles []models.Article
	recent   []models.Article
}

func (f *fakeArticleStore) All(ctx context.Context) ([]models.Article, error) {
	return f.articles, nil
}

func (f *fakeArticleStore) FindBySymbol(ctx context.Context, symbol, status string, limit int) ([]models.Article, error) {
	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	return f.recent[:limit], nil
}

func testCorpus() []models.Article {
	return []models.Article{
		{ID: "1", StockSymbol: "AAPL", Title: "Apple releases record earnings", Summary: "Revenue up on strong iPhone sales", Type: "article", PublishedAt: time.Now()},
		{ID: "2", StockSymbol: "AAPL", Title: "Apple supply chain concerns", Summary: "Component shortages hit production", Type: "article", PublishedAt: time.Now()},
		{ID: "3", StockSymbol: "TSLA", Title: "Tesla opens new factory", Summary: "Production capacity expands", Type: "article", PublishedAt: time.Now()},
		{ID: "4", StockSymbol: "AAPL", Title: "Analysts bullish on Apple earnings", Summary: "Earnings expectations rise", Type: "external_news", PublishedAt: time.Now()},
	}
}

func newTestIndex(t *testing.T, store *fakeArticleStore) *Index {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	idx := NewIndex(store, logger)
	require.NoError(t, idx.Refresh(context.Background()))
	return idx
}

func TestIndex_SearchSimilarFiltersBySymbol(t *testing.T) {
	idx := newTestIndex(t, &fakeArticleStore{articles: testCorpus()})

	hits, err := idx.SearchSimilar(context.Background(), "earnings revenue", SearchOptions{
		Symbol: "AAPL",
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	for _, hit := range hits {
		assert.Equal(t, "AAPL", hit.StockSymbol)
		assert.Greater(t, hit.RelevanceScore, 0.0)
	}
}

func TestIndex_SearchSimilarRanksByRelevance(t *testing.T) {
	idx := newTestIndex(t, &fakeArticleStore{articles: testCorpus()})

	hits, err := idx.SearchSimilar(context.Background(), "earnings revenue iphone", SearchOptions{
		Symbol: "AAPL",
		Limit:  10,
	})
	require.NoError(t, err)
	require.True(t, len(hits) >= 2)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].RelevanceScore, hits[i].RelevanceScore)
	}
	assert.Equal(t, "1", hits[0].ID)
}

func TestIndex_SearchSimilarFiltersByType(t *testing.T) {
	idx := newTestIndex(t, &fakeArticleStore{articles: testCorpus()})

	hits, err := idx.SearchSimilar(context.Background(), "earnings", SearchOptions{
		Symbol:    "AAPL",
		Limit:     10,
		DataTypes: []string{"external_news"},
	})
	require.NoError(t, err)

	for _, hit := range hits {
		assert.Equal(t, "external_news", hit.Type)
	}
}

func TestIndex_SearchSimilarRespectsLimit(t *testing.T) {
	idx := newTestIndex(t, &fakeArticleStore{articles: testCorpus()})

	hits, err := idx.SearchSimilar(context.Background(), "apple earnings production", SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_EmptyIndexReturnsNothing(t *testing.T) {
	idx := newTestIndex(t, &fakeArticleStore{})

	hits, err := idx.SearchSimilar(context.Background(), "anything", SearchOptions{Limit: 5})
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_GetRecentDeduplicates(t *testing.T) {
	store := &fakeArticleStore{
		recent: []models.Article{
			{ID: "1", Title: "Apple releases record earnings"},
			{ID: "1", Title: "Apple releases record earnings"},
			{ID: "2", Title: "Another story"},
		},
	}
	idx := newTestIndex(t, store)

	hits, err := idx.GetRecent(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestDedup(t *testing.T) {
	articles := []models.Article{
		{ID: "1", Title: "Same story"},
		{ID: "1", Title: "  same STORY "},
		{ID: "2", Title: "Same story"},
		{ID: "3", Title: "Different"},
	}

	out := Dedup(articles)
	assert.Len(t, out, 3)
	assert.Equal(t, "1", out[0].ID)
}

func TestIndex_RefreshReplacesCorpus(t *testing.T) {
	store := &fakeArticleStore{articles: testCorpus()}
	idx := newTestIndex(t, store)
	assert.Equal(t, 4, idx.Size())

	store.articles = store.articles[:1]
	require.NoError(t, idx.Refresh(context.Background()))
	assert.Equal(t, 1, idx.Size())
}
