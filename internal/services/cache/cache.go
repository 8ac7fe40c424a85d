package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

// Service defines the two-table chat cache: classified intents and
// generated response texts. Keys are stable hashes of normalized inputs so
// semantically identical messages hit the same entry.
type Service interface {
	GetIntent(message string) (*models.IntentResult, bool)
	SetIntent(message string, result *models.IntentResult)
	GetResponse(message, contextDigest string) (string, bool)
	SetResponse(message, contextDigest, text string)
	SweepExpired()
	Stats() Stats
	ClearAll()
}

// Stats reports current table sizes.
type Stats struct {
	IntentEntries   int `json:"intent_entries"`
	ResponseEntries int `json:"response_entries"`
}

// Store implements Service on two go-cache tables with independent TTLs.
type Store struct {
	enabled   bool
	intents   *gocache.Cache
	responses *gocache.Cache
	logger    *logrus.Logger
}

// NewStore creates the cache store. The go-cache janitor is disabled; the
// composition root owns the sweep timer so tests can drive SweepExpired
// deterministically.
func NewStore(cfg *config.CacheConfig, logger *logrus.Logger) *Store {
	if !cfg.Enabled {
		return &Store{enabled: false}
	}

	return &Store{
		enabled:   true,
		intents:   gocache.New(cfg.IntentTTL, 0),
		responses: gocache.New(cfg.ResponseTTL, 0),
		logger:    logger,
	}
}

// GetIntent returns the cached classification for a message, if fresh.
// Callers get their own copy: the same message is shared across sessions, and
// callers annotate the result with session state (symbol hints) after the
// fact. Handing out the stored pointer would leak one session's annotations
// into every other.
func (s *Store) GetIntent(message string) (*models.IntentResult, bool) {
	if !s.enabled {
		return nil, false
	}

	key := normalizedKey(message)
	if val, found := s.intents.Get(key); found {
		s.logger.WithField("message", truncateForLog(message)).Debug("Intent cache hit")
		cached := *val.(*models.IntentResult)
		return &cached, true
	}
	return nil, false
}

// SetIntent stores a classification, overwriting any existing entry. The
// value is copied on the way in for the same reason GetIntent copies on the
// way out: callers keep mutating their result after caching it.
func (s *Store) SetIntent(message string, result *models.IntentResult) {
	if !s.enabled || result == nil {
		return
	}
	stored := *result
	s.intents.SetDefault(normalizedKey(message), &stored)
}

// GetResponse returns a cached generated text for (message, context digest).
func (s *Store) GetResponse(message, contextDigest string) (string, bool) {
	if !s.enabled {
		return "", false
	}

	key := normalizedKey(message + ":" + contextDigest)
	if val, found := s.responses.Get(key); found {
		s.logger.WithField("message", truncateForLog(message)).Debug("Response cache hit")
		return val.(string), true
	}
	return "", false
}

// SetResponse stores a generated text, overwriting any existing entry.
func (s *Store) SetResponse(message, contextDigest, text string) {
	if !s.enabled || text == "" {
		return
	}
	s.responses.SetDefault(normalizedKey(message+":"+contextDigest), text)
}

// SweepExpired drops expired entries from both tables. Reads already purge
// lazily; the sweep bounds memory between reads.
func (s *Store) SweepExpired() {
	if !s.enabled {
		return
	}
	s.intents.DeleteExpired()
	s.responses.DeleteExpired()
	s.logger.WithFields(logrus.Fields{
		"intents":   s.intents.ItemCount(),
		"responses": s.responses.ItemCount(),
	}).Debug("Cache sweep completed")
}

// Stats returns current entry counts.
func (s *Store) Stats() Stats {
	if !s.enabled {
		return Stats{}
	}
	return Stats{
		IntentEntries:   s.intents.ItemCount(),
		ResponseEntries: s.responses.ItemCount(),
	}
}

// ClearAll flushes both tables.
func (s *Store) ClearAll() {
	if !s.enabled {
		return
	}
	s.intents.Flush()
	s.responses.Flush()
	s.logger.Info("Cache cleared")
}

// normalizedKey hashes the lowercased, whitespace-collapsed input. The full
// message always participates in the key; truncation is for logging only.
func normalizedKey(input string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func truncateForLog(message string) string {
	const maxLogged = 80
	if len(message) <= maxLogged {
		return message
	}
	return message[:maxLogged] + "..."
}
