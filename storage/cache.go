package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

// SnapshotCache keeps the latest committed snapshot in Redis so reads skip
// the backend. Entries carry the commit revision and a write never replaces
// a higher one, so instances sharing the key cannot roll it back.
type SnapshotCache struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

type cacheEntry struct {
	Version  Version         `json:"version"`
	Revision int64           `json:"revision"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type cachedRevision struct {
	Revision int64 `json:"revision"`
}

const cacheWriteAttempts = 3

// NewSnapshotCache caches under key for ttl. A zero ttl disables writes.
func NewSnapshotCache(client *redis.Client, key string, ttl time.Duration) *SnapshotCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotCache{redis: client, key: key, ttl: ttl}
}

// Load returns the cached snapshot. Redis errors and undecodable entries
// count as a miss; the latter are evicted.
func (c *SnapshotCache) Load(ctx context.Context) (domain.Snapshot, Version, bool) {
	if c == nil || c.redis == nil {
		return domain.Snapshot{}, "", false
	}
	data, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, c.key).Err()
		}
		return domain.Snapshot{}, "", false
	}
	var entry cacheEntry
	if err := codec.Unmarshal(data, &entry); err != nil {
		_ = c.redis.Del(ctx, c.key).Err()
		return domain.Snapshot{}, "", false
	}
	entry.Snapshot.Normalize()
	return entry.Snapshot, entry.Version, true
}

// Fill stores a snapshot read from the backend unless the key already holds
// the same or a newer revision.
func (c *SnapshotCache) Fill(ctx context.Context, snap domain.Snapshot, version Version) {
	_ = c.write(ctx, snap, version)
}

// Store replaces the cached snapshot after a commit. On failure the key is
// evicted so a stale entry cannot outlive the commit.
func (c *SnapshotCache) Store(ctx context.Context, snap domain.Snapshot, version Version) {
	if err := c.write(ctx, snap, version); err != nil {
		c.Evict(ctx)
	}
}

func (c *SnapshotCache) write(ctx context.Context, snap domain.Snapshot, version Version) error {
	if c == nil || c.redis == nil || c.ttl == 0 {
		return nil
	}
	rev := revisionOf(version)
	data, err := codec.Marshal(cacheEntry{Version: version, Revision: rev, Snapshot: snap})
	if err != nil {
		return err
	}
	set := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var held cachedRevision
			if codec.Unmarshal(cur, &held) == nil && held.Revision >= rev {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, c.key, data, c.ttl)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < cacheWriteAttempts; attempt++ {
		err = c.redis.Watch(ctx, set, c.key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (c *SnapshotCache) Evict(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, c.key).Result()
}
