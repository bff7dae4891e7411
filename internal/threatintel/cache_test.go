package threatintel

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"
)

type fakeFeed struct {
	db    *Database
	err   error
	calls int
}

func (f *fakeFeed) Fetch(context.Context) (*Database, error) {
	f.calls++
	return f.db, f.err
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	now := testTime
	clock := Clock(func() time.Time { return now })
	feed := &fakeFeed{db: NewDatabase([]string{"http://evil.test/x"}, testTime)}

	c := NewCache(bucket, feed, clock, TTL(time.Hour))
	if got := c.Database(ctx).Len(); got != 2 {
		t.Errorf("Database().Len() = %d; want 2", got)
	}
	c.Database(ctx)
	if feed.calls != 1 {
		t.Errorf("feed fetched %d times; want 1", feed.calls)
	}

	// A second cache over the same bucket reuses the persisted copy.
	other := &fakeFeed{err: errors.New("offline")}
	c2 := NewCache(bucket, other, clock, TTL(time.Hour))
	db := c2.Database(ctx)
	if other.calls != 0 {
		t.Errorf("second cache fetched %d times; want 0", other.calls)
	}
	if _, ok := db.Match(iocURL("http://evil.test/x")); !ok {
		t.Errorf("persisted database does not match http://evil.test/x")
	}

	// Once stale, a failed refresh keeps the stale copy.
	now = testTime.Add(2 * time.Hour)
	db = c2.Database(ctx)
	if other.calls != 1 {
		t.Errorf("stale cache fetched %d times; want 1", other.calls)
	}
	if db.Len() != 2 {
		t.Errorf("Database().Len() after failed refresh = %d; want 2", db.Len())
	}
}

func TestCacheWithoutData(t *testing.T) {
	feed := &fakeFeed{err: errors.New("offline")}
	db := NewCache(nil, feed).Database(context.Background())
	if db == nil || db.Len() != 0 {
		t.Errorf("Database() = %v; want empty database", db)
	}

	db = NewCache(nil, nil).Database(context.Background())
	if db == nil || db.Len() != 0 {
		t.Errorf("Database() without feed = %v; want empty database", db)
	}
}

func TestCacheCorruptBlob(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	if err := bucket.WriteAll(ctx, DefaultCacheKey, []byte("{not json"), nil); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{db: NewDatabase([]string{"http://evil.test/x"}, time.Now())}
	if got := NewCache(bucket, feed).Database(ctx).Len(); got != 2 {
		t.Errorf("Database().Len() = %d; want 2 from the feed", got)
	}
	if feed.calls != 1 {
		t.Errorf("feed fetched %d times; want 1", feed.calls)
	}
}
