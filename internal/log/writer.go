package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"unicode"
)

// maxLineBytes bounds a single log entry produced by a Writer. Install
// scripts can print minified bundles on one line.
const maxLineBytes = 4096

// NewWriter returns an io.WriteCloser that logs each line written to it as a
// separate entry at level, with attrs attached. Blank lines are dropped and
// lines longer than maxLineBytes are truncated.
//
// Close flushes a trailing partial line.
func NewWriter(ctx context.Context, logger *slog.Logger, level slog.Level, attrs ...slog.Attr) io.WriteCloser {
	return &writer{ctx: ctx, logger: logger, level: level, attrs: attrs}
}

type writer struct {
	ctx    context.Context
	logger *slog.Logger
	level  slog.Level
	attrs  []slog.Attr
	line   bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buffer(p)
			break
		}
		w.buffer(p[:i])
		w.flush()
		p = p[i+1:]
	}
	return n, nil
}

// buffer appends p to the current line, discarding bytes past the limit.
func (w *writer) buffer(p []byte) {
	if room := maxLineBytes - w.line.Len(); room > 0 {
		w.line.Write(p[:min(len(p), room)])
	}
}

func (w *writer) flush() {
	line := bytes.TrimRightFunc(w.line.Bytes(), unicode.IsSpace)
	if len(line) > 0 {
		w.logger.LogAttrs(w.ctx, w.level, string(line), w.attrs...)
	}
	w.line.Reset()
}

func (w *writer) Close() error {
	w.flush()
	return nil
}
