package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/kafkapubsub"

	"github.com/AnishDe12020/unsus/internal/config"
	"github.com/AnishDe12020/unsus/internal/featureflags"
	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/internal/notification"
	"github.com/AnishDe12020/unsus/internal/scan"
	"github.com/AnishDe12020/unsus/internal/staticanalysis"
	"github.com/AnishDe12020/unsus/internal/useragent"
	"github.com/AnishDe12020/unsus/internal/worker"
	"github.com/AnishDe12020/unsus/internal/worker/leaseextender"
)

type handler struct {
	scanner  *scan.Scanner
	packages *blob.Bucket
	extender *leaseextender.Extender
}

// handleMessage scans the package named by msg. Messages that can never
// succeed are acked; other failures leave the message to be redelivered.
func (h *handler) handleMessage(ctx context.Context, msg *pubsub.Message) error {
	name := msg.Metadata["name"]
	version := msg.Metadata["version"]
	packagePath := msg.Metadata["package_path"]
	if name == "" || packagePath == "" {
		slog.WarnContext(ctx, "Ignoring message without name or package_path", "metadata", msg.Metadata)
		msg.Ack()
		return nil
	}

	ctx = log.ContextWithAttrs(ctx, log.LabelAttr("name", name), log.LabelAttr("version", version))
	worker.LogRequest(ctx, name, version, packagePath)

	if h.extender != nil {
		lease, err := h.extender.Hold(ctx, msg, func() {
			slog.DebugContext(ctx, "Message lease extended")
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(); err != nil {
				slog.WarnContext(ctx, "Message lease extension failed", "error", err)
			}
		}()
	}

	local, err := worker.CopyPackageToLocalFile(ctx, h.packages, packagePath)
	if err != nil {
		return fmt.Errorf("failed to download package: %w", err)
	}
	defer os.Remove(local)

	pkg, err := worker.ResolvePackage(ctx, local)
	if err != nil {
		worker.LogScanError(ctx, name, version, err)
		msg.Ack()
		return nil
	}
	defer pkg.Close()

	result, err := h.scanner.Scan(ctx, pkg.Dir)
	switch {
	case errors.Is(err, staticanalysis.ErrNoPackage):
		worker.LogScanError(ctx, name, version, err)
		msg.Ack()
		return nil
	case err != nil:
		return err
	}
	worker.LogScanResult(ctx, result)
	msg.Ack()
	return nil
}

func messageLoop(ctx context.Context, cfg *workerConfig, scanCfg config.Config) error {
	sub, err := pubsub.OpenSubscription(ctx, cfg.subURL)
	if err != nil {
		return err
	}
	defer sub.Shutdown(ctx)

	extender, err := leaseextender.New(ctx, cfg.subURL, sub)
	if err != nil {
		return err
	}

	var consumers []scan.Consumer
	if cfg.resultStore != nil {
		consumers = append(consumers, cfg.resultStore)
	}
	if cfg.notificationTopicURL != "" {
		topic, err := pubsub.OpenTopic(ctx, cfg.notificationTopicURL)
		if err != nil {
			return err
		}
		defer topic.Shutdown(ctx)
		consumers = append(consumers, notification.NewNotifier(topic))
	}

	var packages *blob.Bucket
	if cfg.packagesBucket != "" {
		packages, err = blob.OpenBucket(ctx, cfg.packagesBucket)
		if err != nil {
			return err
		}
		defer packages.Close()
	}

	scanner, cleanup, err := worker.NewScanner(ctx, scanCfg, worker.ScannerOptions{
		Dynamic:   cfg.dynamic,
		Consumers: consumers,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	h := &handler{scanner: scanner, packages: packages, extender: extender}
	slog.InfoContext(ctx, "Listening for messages to process...")
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			// All subsequent receive calls will return the same error, so we bail out.
			return fmt.Errorf("error receiving message: %w", err)
		}
		if err := h.handleMessage(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to process message", "error", err)
		}
	}
}

func main() {
	log.Initialize(os.Getenv("LOGGER_ENV"), os.Getenv("LOGGER_LEVEL"))
	ctx := context.Background()
	cfg := configFromEnv()

	if err := featureflags.Update(cfg.features); err != nil {
		slog.Error("Failed to parse feature flags", "error", err)
		os.Exit(1)
	}
	scanCfg, err := config.Load(cfg.configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	http.DefaultTransport = useragent.DefaultRoundTripper(http.DefaultTransport, cfg.userAgentExtra)

	// If configured, start a webserver so that Go's pprof can be accessed for
	// debugging and profiling.
	if cfg.enableProfiler {
		go func() {
			slog.Info("Starting profiler")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				slog.Error("Profiler stopped", "error", err)
			}
		}()
	}

	slog.InfoContext(ctx, "Starting worker", "config", cfg, "feature_flags", featureflags.String())

	if err := messageLoop(ctx, cfg, scanCfg); err != nil {
		slog.ErrorContext(ctx, "Error encountered", "error", err)
		os.Exit(1)
	}
}
