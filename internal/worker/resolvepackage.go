package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"gocloud.dev/blob"

	"github.com/AnishDe12020/unsus/internal/utils"
)

var ErrNoPackageBucket = errors.New("packages bucket not set")

// Package is a package source ready to scan.
type Package struct {
	// Dir is the package root.
	Dir string

	// SHA256 is the digest of the archive the package came from, if any.
	SHA256 string

	cleanup func() error
}

// Close removes any files created while resolving the package.
func (p *Package) Close() error {
	if p.cleanup == nil {
		return nil
	}
	return p.cleanup()
}

// ResolvePackage turns src into a package directory. A directory is used in
// place; a file is treated as an archive and extracted into a temporary
// directory that Close removes.
func ResolvePackage(ctx context.Context, src string) (*Package, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return &Package{Dir: src}, nil
	}

	digest, err := utils.SHA256Hash(src)
	if err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "unsus-pkg-")
	if err != nil {
		return nil, err
	}
	cleanup := func() error { return os.RemoveAll(tmp) }

	if err := utils.ExtractArchiveFile(ctx, src, tmp); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(src), err)
	}
	root, err := utils.SinglePackageRoot(tmp)
	if err != nil {
		cleanup()
		return nil, err
	}
	slog.DebugContext(ctx, "Extracted package archive", "archive", src, "root", root, "sha256", digest)
	return &Package{Dir: root, SHA256: digest, cleanup: cleanup}, nil
}

// CopyPackageToLocalFile downloads key from bucket into a temporary file and
// returns its path. The caller removes the file.
func CopyPackageToLocalFile(ctx context.Context, bucket *blob.Bucket, key string) (string, error) {
	if bucket == nil {
		return "", ErrNoPackageBucket
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// Keep the extension so archiver can identify the format by name.
	f, err := os.CreateTemp("", "*-"+path.Base(key))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
