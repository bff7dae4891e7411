// Package resultstore persists scan results to a gocloud blob bucket
// (file://, gs://, s3:// or mem:// URLs).
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
	"github.com/AnishDe12020/unsus/pkg/pkgidentifier"
)

// unversioned names the object of a scan whose manifest carries no version.
const unversioned = "unversioned"

type ResultStore struct {
	bucketURL  string
	prefix     string
	perPackage bool
	now        func() time.Time
}

type (
	Option interface{ set(*ResultStore) }
	option func(*ResultStore) // option implements Option.
)

func (o option) set(rs *ResultStore) { o(rs) }

// ConstructPath nests each result under "npm/<package name>/".
func ConstructPath() Option {
	return option(func(rs *ResultStore) { rs.perPackage = true })
}

// BasePath puts every key under prefix.
func BasePath(prefix string) Option {
	return option(func(rs *ResultStore) { rs.prefix = prefix })
}

func New(bucketURL string, options ...Option) *ResultStore {
	rs := &ResultStore{bucketURL: bucketURL, now: time.Now}
	for _, o := range options {
		o.set(rs)
	}
	return rs
}

func (rs *ResultStore) String() string {
	if rs == nil {
		return ""
	}
	return rs.bucketURL + "/" + rs.prefix
}

func (rs *ResultStore) openBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, rs.bucketURL)
}

// Key returns the object key a result is written to:
// [<prefix>/][npm/<name>/]<version>.json.
func (rs *ResultStore) Key(result *scanresult.ScanResult) string {
	dir := rs.prefix
	if rs.perPackage {
		dir = path.Join(dir, pkgidentifier.Ecosystem, result.Name)
	}
	version := result.Version
	if version == "" {
		version = unversioned
	}
	return path.Join(dir, version+".json")
}

// Save writes result, wrapped with its package identity and a creation
// timestamp, to the bucket. An existing object for the same version is
// replaced.
func (rs *ResultStore) Save(ctx context.Context, result *scanresult.ScanResult) error {
	doc, err := json.Marshal(&record{
		Package: pkg{
			Name:    result.Name,
			Version: result.Version,
			PURL:    result.PURL,
		},
		CreatedTimestamp: rs.now().UTC().Unix(),
		Result:           result,
	})
	if err != nil {
		return err
	}

	bucket, err := rs.openBucket(ctx)
	if err != nil {
		return err
	}
	defer bucket.Close()

	key := rs.Key(result)
	slog.InfoContext(ctx, "Uploading scan result", "bucket", rs.bucketURL, "key", key)
	return bucket.WriteAll(ctx, key, doc, &blob.WriterOptions{ContentType: "application/json"})
}

// Consume implements scan.Consumer.
func (rs *ResultStore) Consume(ctx context.Context, result *scanresult.ScanResult) error {
	if err := rs.Save(ctx, result); err != nil {
		return fmt.Errorf("saving result to %s: %w", rs, err)
	}
	return nil
}
