package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/services/store"
)

// SearchOptions filter a similarity search.
type SearchOptions struct {
	Symbol    string
	Limit     int
	Threshold float64
	DataTypes []string
}

// Adapter is the retrieval surface the orchestrator and handlers consume.
type Adapter interface {
	SearchSimilar(ctx context.Context, query string, opts SearchOptions) ([]models.Article, error)
	GetRecent(ctx context.Context, symbol string, limit int) ([]models.Article, error)
	Refresh(ctx context.Context) error
}

// Index is an in-memory vector index over the article corpus with a
// recency fallback through the article store.
type Index struct {
	mu       sync.RWMutex
	articles []models.Article
	vectors  [][]float32
	embedder *tfidfEmbedder

	store  store.ArticleStore
	logger *logrus.Logger
}

// NewIndex creates an empty index; call Refresh to load the corpus.
func NewIndex(articleStore store.ArticleStore, logger *logrus.Logger) *Index {
	return &Index{
		embedder: newTFIDFEmbedder(),
		store:    articleStore,
		logger:   logger,
	}
}

// Refresh rebuilds vocabulary and document vectors from the store.
func (idx *Index) Refresh(ctx context.Context) error {
	articles, err := idx.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load article corpus: %w", err)
	}

	deduped := Dedup(articles)
	texts := make([]string, len(deduped))
	for i, a := range deduped {
		texts[i] = articleText(a)
	}

	embedder := newTFIDFEmbedder()
	embedder.buildVocabulary(texts)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embedder.embed(text)
	}

	idx.mu.Lock()
	idx.articles = deduped
	idx.vectors = vectors
	idx.embedder = embedder
	idx.mu.Unlock()

	idx.logger.WithField("documents", len(deduped)).Info("Retrieval index refreshed")
	return nil
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.articles)
}

// SearchSimilar ranks corpus articles by cosine similarity to the query,
// applying symbol and type filters. An empty result is not an error; the
// caller decides whether to fall back to recency.
func (idx *Index) SearchSimilar(ctx context.Context, query string, opts SearchOptions) ([]models.Article, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.articles) == 0 {
		return nil, nil
	}

	queryVector := idx.embedder.embed(query)

	type scored struct {
		article models.Article
		score   float32
	}
	var results []scored

	for i, article := range idx.articles {
		if opts.Symbol != "" && !strings.EqualFold(article.StockSymbol, opts.Symbol) {
			continue
		}
		if len(opts.DataTypes) > 0 && !typeAllowed(article.Type, opts.DataTypes) {
			continue
		}

		score := cosineSimilarity(queryVector, idx.vectors[i])
		if float64(score) >= opts.Threshold && score > 0 {
			results = append(results, scored{article: article, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := opts.Limit
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	out := make([]models.Article, 0, limit)
	for _, r := range results[:limit] {
		article := r.article
		article.RelevanceScore = float64(r.score)
		out = append(out, article)
	}
	return out, nil
}

// GetRecent is the recency fallback: newest published articles for a symbol.
func (idx *Index) GetRecent(ctx context.Context, symbol string, limit int) ([]models.Article, error) {
	articles, err := idx.store.FindBySymbol(ctx, symbol, "published", limit)
	if err != nil {
		return nil, fmt.Errorf("recency fallback failed: %w", err)
	}
	return Dedup(articles), nil
}

// Dedup removes duplicate articles by a stable hash of (id, title),
// preserving order.
func Dedup(articles []models.Article) []models.Article {
	seen := make(map[uint64]bool, len(articles))
	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		key := identityHash(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func identityHash(a models.Article) uint64 {
	h := fnv.New64a()
	h.Write([]byte(a.ID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(a.Title))))
	return h.Sum64()
}

func typeAllowed(articleType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.EqualFold(articleType, t) {
			return true
		}
	}
	return false
}

func articleText(a models.Article) string {
	return strings.TrimSpace(a.Title + " " + a.Summary + " " + a.Content)
}
