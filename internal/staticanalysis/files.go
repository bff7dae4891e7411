package staticanalysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// ManifestName is the package manifest file at the package root.
	ManifestName = "package.json"

	// MaxFileSize is the size above which files are not loaded.
	MaxFileSize = 5 << 20

	// headerSize is the number of leading bytes kept for binary files.
	headerSize = 64

	// sniffSize is how much of a file is checked for NUL bytes.
	sniffSize = 8 << 10
)

var (
	// ErrNoPackage is returned by LoadPackage when the package root does not
	// exist or is not a directory.
	ErrNoPackage = errors.New("package directory not found")

	// ErrNoManifest is recorded in Package.ManifestErr when there is no
	// package.json at the root.
	ErrNoManifest = errors.New("package manifest not found")
)

var sourceExtensions = map[string]bool{
	".js":  true,
	".mjs": true,
	".cjs": true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
	".mts": true,
	".cts": true,
}

var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// SourceFile is a JavaScript or TypeScript-like file. Path is relative to the
// package root and uses forward slashes.
type SourceFile struct {
	Path    string
	Content []byte
}

// BinaryFile is a non-text file, identified by its leading bytes.
type BinaryFile struct {
	Path   string
	Header []byte
}

// Package is the immutable file set that every static analysis task reads.
type Package struct {
	Root string

	// Manifest holds the raw package.json bytes, or nil with ManifestErr set.
	Manifest    []byte
	ManifestErr error

	Sources  []SourceFile
	Binaries []BinaryFile
}

// IsSource reports whether the file name has a JavaScript-like extension.
func IsSource(name string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadPackage reads the package tree rooted at root. A missing root is the
// only error; a missing or unreadable manifest is recorded in ManifestErr.
func LoadPackage(ctx context.Context, root string) (*Package, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPackage, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoPackage, root)
	}

	pkg := &Package{Root: root}
	pkg.Manifest, pkg.ManifestErr = readManifest(root)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skippedDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		fi, err := d.Info()
		if err != nil {
			slog.WarnContext(ctx, "skipping file", "path", rel, "error", err)
			return nil
		}
		if fi.Size() > MaxFileSize {
			slog.InfoContext(ctx, "skipping large file", "path", rel, "size", fi.Size())
			return nil
		}

		if IsSource(rel) {
			content, err := os.ReadFile(p)
			if err != nil {
				slog.WarnContext(ctx, "skipping file", "path", rel, "error", err)
				return nil
			}
			pkg.Sources = append(pkg.Sources, SourceFile{Path: rel, Content: content})
			return nil
		}

		header, binary, err := sniff(p)
		if err != nil {
			slog.WarnContext(ctx, "skipping file", "path", rel, "error", err)
			return nil
		}
		if binary {
			pkg.Binaries = append(pkg.Binaries, BinaryFile{Path: rel, Header: header})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error enumerating package files: %w", err)
	}

	return pkg, nil
}

func readManifest(root string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(root, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return b, nil
}

// sniff reads the start of the file at p and reports whether it is binary
// (contains a NUL byte), along with its header bytes.
func sniff(p string) ([]byte, bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, false, err
	}
	buf = buf[:n]
	if bytes.IndexByte(buf, 0) < 0 {
		return nil, false, nil
	}
	return bytes.Clone(buf[:min(n, headerSize)]), true, nil
}

// SkipMinifiedDuplicates drops "x.min.js" style files when the unminified
// "x.js" exists in the same directory. The input is not modified.
func SkipMinifiedDuplicates(files []SourceFile) []SourceFile {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}

	out := make([]SourceFile, 0, len(files))
	for _, f := range files {
		if orig, ok := unminifiedName(f.Path); ok && present[orig] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func unminifiedName(p string) (string, bool) {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	if !strings.HasSuffix(stem, ".min") {
		return "", false
	}
	return strings.TrimSuffix(stem, ".min") + ext, true
}
