package cache

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

func newTestStore(enabled bool) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(&config.CacheConfig{
		Enabled:     enabled,
		IntentTTL:   5 * time.Minute,
		ResponseTTL: 10 * time.Minute,
	}, logger)
}

func TestStore_IntentRoundTrip(t *testing.T) {
	store := newTestStore(true)
	result := &models.IntentResult{Intent: models.IntentSentiment, Confidence: 0.9}

	store.SetIntent("What is the sentiment for AAPL?", result)

	got, found := store.GetIntent("What is the sentiment for AAPL?")
	assert.True(t, found)
	assert.Equal(t, models.IntentSentiment, got.Intent)
}

func TestStore_KeyNormalization(t *testing.T) {
	store := newTestStore(true)
	result := &models.IntentResult{Intent: models.IntentPriceForecast}

	store.SetIntent("Forecast   AAPL  price", result)

	// Case and whitespace differences hit the same entry.
	_, found := store.GetIntent("forecast aapl price")
	assert.True(t, found)

	_, found = store.GetIntent("forecast aapl prices")
	assert.False(t, found)
}

func TestStore_ResponseKeyedByContextDigest(t *testing.T) {
	store := newTestStore(true)

	store.SetResponse("tell me about AAPL", "digest-a", "answer over data A")

	got, found := store.GetResponse("tell me about AAPL", "digest-a")
	assert.True(t, found)
	assert.Equal(t, "answer over data A", got)

	// Same question over different data is a different entry.
	_, found = store.GetResponse("tell me about AAPL", "digest-b")
	assert.False(t, found)
}

func TestStore_DisabledIsNoop(t *testing.T) {
	store := newTestStore(false)

	store.SetIntent("hello", &models.IntentResult{Intent: models.IntentGeneral})
	_, found := store.GetIntent("hello")
	assert.False(t, found)

	store.SetResponse("hello", "d", "text")
	_, found = store.GetResponse("hello", "d")
	assert.False(t, found)

	assert.Equal(t, Stats{}, store.Stats())
	assert.NotPanics(t, func() {
		store.SweepExpired()
		store.ClearAll()
	})
}

func TestStore_StatsAndClear(t *testing.T) {
	store := newTestStore(true)

	store.SetIntent("q1", &models.IntentResult{Intent: models.IntentGeneral})
	store.SetIntent("q2", &models.IntentResult{Intent: models.IntentGeneral})
	store.SetResponse("q1", "d", "a")

	stats := store.Stats()
	assert.Equal(t, 2, stats.IntentEntries)
	assert.Equal(t, 1, stats.ResponseEntries)

	store.ClearAll()
	stats = store.Stats()
	assert.Equal(t, 0, stats.IntentEntries)
	assert.Equal(t, 0, stats.ResponseEntries)
}

func TestStore_IntentEntriesIsolatedFromCallers(t *testing.T) {
	store := newTestStore(true)
	original := &models.IntentResult{Intent: models.IntentPriceForecast, Confidence: 0.8}

	store.SetIntent("what is the forecast?", original)

	// One caller annotates its copy with a session symbol hint.
	first, found := store.GetIntent("what is the forecast?")
	assert.True(t, found)
	first.Entities.Symbol = "VNM"

	// The next caller must see the entry as it was stored.
	second, found := store.GetIntent("what is the forecast?")
	assert.True(t, found)
	assert.Empty(t, second.Entities.Symbol)

	// Mutating the value after SetIntent must not reach the entry either.
	original.Entities.Symbol = "AAPL"
	third, _ := store.GetIntent("what is the forecast?")
	assert.Empty(t, third.Entities.Symbol)
}

func TestStore_EmptyResponseNotStored(t *testing.T) {
	store := newTestStore(true)

	store.SetResponse("q", "d", "")

	_, found := store.GetResponse("q", "d")
	assert.False(t, found)
}
