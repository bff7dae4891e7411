package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v4"
)

// MaxExtractedBytes bounds the total size of the files written by
// ExtractArchiveFile.
const MaxExtractedBytes = 1 << 30

var (
	ErrPathEscapes = errors.New("archive path escapes output dir")
	ErrTooLarge    = errors.New("archive expands beyond size limit")
)

// ExtractArchiveFile extracts the archive at archivePath (any format
// archiver can identify, typically .tgz) into outputDir.
//
// Entries resolving outside outputDir fail the extraction. Links and other
// special files are skipped. File modes are kept but never made group or
// world writable.
func ExtractArchiveFile(ctx context.Context, archivePath, outputDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	format, input, err := archiver.Identify(archivePath, f)
	if err != nil {
		return fmt.Errorf("identify %s: %w", filepath.Base(archivePath), err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return fmt.Errorf("%s is not an archive", filepath.Base(archivePath))
	}

	root := filepath.Clean(outputDir) + string(os.PathSeparator)
	var written int64
	return extractor.Extract(ctx, input, nil, func(ctx context.Context, entry archiver.File) error {
		outputPath := filepath.Join(outputDir, entry.NameInArchive)
		if !strings.HasPrefix(outputPath, root) {
			return fmt.Errorf("%w: %s", ErrPathEscapes, entry.NameInArchive)
		}

		switch mode := entry.Mode(); {
		case entry.IsDir():
			return os.MkdirAll(outputPath, 0o755)
		case !mode.IsRegular() || entry.LinkTarget != "":
			slog.DebugContext(ctx, "Skipping non-regular archive entry", "name", entry.NameInArchive, "mode", mode.String())
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return fmt.Errorf("create parent dirs for %s: %w", entry.NameInArchive, err)
		}
		n, err := extractFile(entry, outputPath, MaxExtractedBytes-written)
		written += n
		return err
	})
}

func extractFile(entry archiver.File, outputPath string, budget int64) (int64, error) {
	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", entry.NameInArchive, err)
	}
	defer src.Close()

	perm := entry.Mode().Perm()&^0o022 | 0o600
	dst, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entry.NameInArchive, err)
	}

	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if err == nil && n > budget {
		err = ErrTooLarge
	}
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", entry.NameInArchive, err)
	}
	return n, nil
}

// SinglePackageRoot returns the directory that holds the package when an
// archive was extracted into dir. npm tarballs wrap their contents in a single
// top-level directory (usually "package"); other layouts return dir itself.
func SinglePackageRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
