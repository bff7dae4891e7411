package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const (
	// DefaultTTL is how long a fetched database is used before refreshing.
	DefaultTTL = 6 * time.Hour

	// DefaultCacheKey is the blob key the database is persisted under.
	DefaultCacheKey = "threatintel/urlhaus.json"
)

// Cache holds the reputation Database, persisting it in a blob bucket and
// refreshing it from a Feed once it is older than the TTL.
//
// Refresh failures are never returned: the stale copy is used when there is
// one, an empty database otherwise.
type Cache struct {
	bucket *blob.Bucket
	feed   Feed
	key    string
	ttl    time.Duration
	now    func() time.Time

	mu sync.Mutex
	db *Database
}

type (
	CacheOption interface{ set(*Cache) }
	cacheOption func(*Cache) // cacheOption implements CacheOption.
)

func (o cacheOption) set(c *Cache) { o(c) }

// TTL sets how long a database stays fresh.
func TTL(ttl time.Duration) CacheOption {
	return cacheOption(func(c *Cache) { c.ttl = ttl })
}

// CacheKey sets the blob key used to persist the database.
func CacheKey(key string) CacheOption {
	return cacheOption(func(c *Cache) { c.key = key })
}

// Clock overrides the time source.
func Clock(now func() time.Time) CacheOption {
	return cacheOption(func(c *Cache) { c.now = now })
}

// NewCache returns a cache backed by bucket. A nil bucket keeps the database
// in memory only. The caller owns the bucket.
func NewCache(bucket *blob.Bucket, feed Feed, options ...CacheOption) *Cache {
	c := &Cache{
		bucket: bucket,
		feed:   feed,
		key:    DefaultCacheKey,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range options {
		o.set(c)
	}
	return c
}

// Database returns a fresh database when possible.
func (c *Cache) Database(ctx context.Context) *Database {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.db != nil && !c.db.Stale(c.ttl, now) {
		return c.db
	}

	if c.db == nil && c.bucket != nil {
		db, err := c.load(ctx)
		switch {
		case err == nil:
			c.db = db
		case gcerrors.Code(err) == gcerrors.NotFound:
		default:
			slog.WarnContext(ctx, "could not load reputation cache", "key", c.key, "error", err)
		}
		if c.db != nil && !c.db.Stale(c.ttl, now) {
			return c.db
		}
	}

	if c.feed == nil {
		return c.current()
	}
	db, err := c.feed.Fetch(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reputation feed refresh failed, using cached copy",
			"error", err, "cached", c.db != nil)
		return c.current()
	}
	c.db = db
	slog.InfoContext(ctx, "reputation database refreshed", "indicators", db.Len())

	if c.bucket != nil {
		if err := c.store(ctx, db); err != nil {
			slog.WarnContext(ctx, "could not persist reputation cache", "key", c.key, "error", err)
		}
	}
	return c.db
}

func (c *Cache) current() *Database {
	if c.db == nil {
		return &Database{}
	}
	return c.db
}

func (c *Cache) load(ctx context.Context) (*Database, error) {
	data, err := c.bucket.ReadAll(ctx, c.key)
	if err != nil {
		return nil, err
	}
	db := &Database{}
	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("corrupt reputation cache: %w", err)
	}
	return db, nil
}

func (c *Cache) store(ctx context.Context, db *Database) error {
	data, err := json.Marshal(db)
	if err != nil {
		return err
	}
	return c.bucket.WriteAll(ctx, c.key, data, &blob.WriterOptions{ContentType: "application/json"})
}
