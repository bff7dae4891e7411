package log_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/exp/slices"

	"github.com/AnishDe12020/unsus/internal/log"
)

func initLogs(t *testing.T, l zapcore.Level) (*slog.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, obs := observer.New(l)
	return log.NewSlogLogger(core), obs
}

func writeAll(t *testing.T, logger *slog.Logger, level slog.Level, in string) {
	t.Helper()
	w := log.NewWriter(context.Background(), logger, level)
	_, err := io.Copy(w, bytes.NewBufferString(in))
	w.Close()
	if err != nil {
		t.Fatalf("Writing failed: %v", err)
	}
}

func messages(obs *observer.ObservedLogs) []string {
	var got []string
	for _, entry := range obs.All() {
		got = append(got, entry.Message)
	}
	return got
}

func TestNewWriter_SingleLine(t *testing.T) {
	logger, obs := initLogs(t, zapcore.DebugLevel)
	want := "npm WARN deprecated"
	writeAll(t, logger, slog.LevelInfo, want)

	if got := messages(obs); !slices.Equal(got, []string{want}) {
		t.Errorf("Got log entries = %v; want [%v]", got, want)
	}
}

func TestNewWriter_MultiLine(t *testing.T) {
	logger, obs := initLogs(t, zapcore.DebugLevel)
	want := []string{"one", "two", "three", "four"}
	writeAll(t, logger, slog.LevelInfo, strings.Join(want, "\n"))

	if got := messages(obs); !slices.Equal(got, want) {
		t.Errorf("Got log entries = %v; want %v", got, want)
	}
}

func TestNewWriter_LevelSuppress(t *testing.T) {
	logger, obs := initLogs(t, zapcore.WarnLevel)
	writeAll(t, logger, slog.LevelInfo, "this is the log message")

	if got := obs.Len(); got != 0 {
		t.Fatalf("Got %d log entries; want none", got)
	}
}

func TestNewWriter_MultiWithEmptyAndTrailingSpace(t *testing.T) {
	logger, obs := initLogs(t, zapcore.DebugLevel)
	in := []string{"one    ", "two \t \f \v \r", "", "\t\t\t\t", "four"}
	want := []string{"one", "two", "four"}
	writeAll(t, logger, slog.LevelInfo, strings.Join(in, "\n"))

	if got := messages(obs); !slices.Equal(got, want) {
		t.Errorf("Got log entries = %v; want %v", got, want)
	}
}

func TestNewWriter_LongLineTruncated(t *testing.T) {
	logger, obs := initLogs(t, zapcore.DebugLevel)
	writeAll(t, logger, slog.LevelInfo, strings.Repeat("x", 3*4096)+"\nnext")

	got := messages(obs)
	if len(got) != 2 || len(got[0]) != 4096 || got[1] != "next" {
		t.Errorf("Got %d entries (first %d bytes); want a 4096 byte entry and %q", len(got), len(got[0]), "next")
	}
}

func TestNewWriter_Attrs(t *testing.T) {
	logger, obs := initLogs(t, zapcore.DebugLevel)
	w := log.NewWriter(context.Background(), logger, slog.LevelDebug, slog.String("container", "unsus-exec-1"))
	io.WriteString(w, "added 1 package\n")
	w.Close()

	entries := obs.All()
	if len(entries) != 1 {
		t.Fatalf("Got %d entries; want 1", len(entries))
	}
	if got := entries[0].ContextMap()["container"]; got != "unsus-exec-1" {
		t.Errorf("container = %v; want unsus-exec-1", got)
	}
}
