package directory

import (
	"context"
	"encoding/json"
	"time"

	"lumir-wiki/internal/store"

	"go.uber.org/zap"
)

const snapshotCacheKey = "directory:snapshot"

// CachedProvider caches the inner provider's snapshot in a KV store so
// scheduler runs and read-path triggers don't hammer the HR service.
// Cache failures fall through to the inner provider.
type CachedProvider struct {
	inner  Provider
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProvider(inner Provider, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, kv: kv, ttl: ttl, logger: logger}
}

func (c *CachedProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if cached, err := c.kv.Get(ctx, snapshotCacheKey); err == nil {
		var payload snapshotPayload
		if err := json.Unmarshal([]byte(cached), &payload); err == nil {
			return payload.toSnapshot(), nil
		}
		c.logger.Warn("Discarding unparsable cached directory snapshot")
	} else if err != store.ErrMiss {
		c.logger.Warn("Directory snapshot cache read failed", zap.Error(err))
	}

	snap, err := c.inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(payloadFromSnapshot(snap)); err == nil {
		if err := c.kv.Set(ctx, snapshotCacheKey, string(raw), c.ttl); err != nil {
			c.logger.Warn("Directory snapshot cache write failed", zap.Error(err))
		}
	}

	return snap, nil
}
