package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"query-orchestrator/internal/common/database"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"
)

const cacheKeyPrefix = "qo:reasoning:"

// Cache is satisfied by *database.RedisClient.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error
}

// CachedReasoner memoises completions for identical prompts. Cache failures
// never fail the call.
type CachedReasoner struct {
	next   Reasoner
	cache  Cache
	ttl    time.Duration
	logger logger.Logger
}

func NewCached(next Reasoner, cache Cache, ttl time.Duration, log logger.Logger) *CachedReasoner {
	return &CachedReasoner{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "reasoning-cache"}),
	}
}

type cachedCompletion struct {
	Text     string    `json:"text"`
	StoredAt time.Time `json:"storedAt"`
}

func (r *CachedReasoner) Complete(ctx context.Context, prompt Prompt, c Constraints) (string, error) {
	key := cacheKey(prompt, c)

	var hit cachedCompletion
	err := r.cache.GetJSON(ctx, key, &hit)
	switch {
	case err == nil:
		metrics.ReasoningCalls.WithLabelValues("cache_hit").Inc()
		return hit.Text, nil
	case !errors.Is(err, database.ErrCacheMiss):
		r.logger.Warn("reasoning cache read failed", map[string]interface{}{"error": err.Error()})
	}

	text, err := r.next.Complete(ctx, prompt, c)
	if err != nil {
		return "", err
	}

	if err := r.cache.SetJSON(ctx, key, cachedCompletion{Text: text, StoredAt: time.Now().UTC()}, r.ttl); err != nil {
		r.logger.Warn("reasoning cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return text, nil
}

func cacheKey(prompt Prompt, c Constraints) string {
	payload, _ := json.Marshal(struct {
		Prompt      Prompt
		Constraints Constraints
	}{prompt, c})
	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
