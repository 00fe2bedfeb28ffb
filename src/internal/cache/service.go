package cache

import (
	"context"
	"errors"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"
	"session-store-svc/src/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const defaultKeyPrefix = "session:doc:"

type Service interface {
	Get(ctx context.Context, id string) (*session.Document, error)
	Set(ctx context.Context, doc *session.Document) error
	Delete(ctx context.Context, ids ...string) error
}

// cacheService keeps BSON-encoded session documents in Redis. Entries never
// outlive the document's own expiry.
type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
	now    func() time.Time
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache,
		now:    time.Now,
	}
}

func (c *cacheService) key(id string) string {
	prefix := c.cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + id
}

func (c *cacheService) Get(ctx context.Context, id string) (*session.Document, error) {
	key := c.key(id)
	logrus.WithField("key", key).Debug("Getting session from cache")

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.WithField("key", key).Debug("Session not found in cache")
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get session from cache")
		return nil, models.ErrRedisGet
	}

	var doc session.Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal session from cache")
		return nil, models.ErrRedisGet
	}
	if doc.SessionData == nil {
		doc.SessionData = bson.M{}
	}

	return &doc, nil
}

func (c *cacheService) Set(ctx context.Context, doc *session.Document) error {
	expiration := c.ttl(doc)
	if expiration <= 0 {
		logrus.WithField("session_id", doc.ID).Debug("Session already expired, not caching")
		return c.Delete(ctx, doc.ID)
	}

	data, err := bson.Marshal(doc)
	if err != nil {
		logrus.WithError(err).WithField("session_id", doc.ID).Error("Failed to marshal session for cache")
		return models.ErrRedisSet
	}

	if err := c.client.Set(ctx, c.key(doc.ID), data, expiration).Err(); err != nil {
		logrus.WithError(err).WithField("session_id", doc.ID).Error("Failed to cache session")
		return models.ErrRedisSet
	}

	logrus.WithField("session_id", doc.ID).Debug("Session cached successfully")
	return nil
}

// Delete drops every listed session in a single DEL.
func (c *cacheService) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("sessions", len(ids)).Error("Failed to delete sessions from cache")
		return models.ErrRedisDelete
	}
	return nil
}

// ttl is the configured cache lifetime capped by the time left until expiry.
func (c *cacheService) ttl(doc *session.Document) time.Duration {
	remaining := time.Unix(doc.Expires, 0).Sub(c.now())

	configured := time.Duration(c.cfg.SessionTTLSeconds) * time.Second
	if configured > 0 && configured < remaining {
		return configured
	}
	return remaining
}
