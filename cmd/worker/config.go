package main

import (
	"log/slog"
	"os"

	"github.com/AnishDe12020/unsus/internal/resultstore"
)

type workerConfig struct {
	subURL               string
	packagesBucket       string
	notificationTopicURL string
	resultStore          *resultstore.ResultStore

	configPath     string
	features       string
	dynamic        bool
	enableProfiler bool
	userAgentExtra string
}

func (c *workerConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subscription", c.subURL),
		slog.String("package_bucket", c.packagesBucket),
		slog.String("results_store", c.resultStore.String()),
		slog.String("topic_notification", c.notificationTopicURL),
		slog.String("config_path", c.configPath),
		slog.String("features", c.features),
		slog.Bool("dynamic", c.dynamic),
		slog.String("user_agent_extra", c.userAgentExtra),
	)
}

func resultStoreForEnv(key string) *resultstore.ResultStore {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	return resultstore.New(val, resultstore.ConstructPath())
}

func configFromEnv() *workerConfig {
	return &workerConfig{
		subURL:               os.Getenv("UNSUS_WORKER_SUBSCRIPTION"),
		packagesBucket:       os.Getenv("UNSUS_PACKAGES_BUCKET"),
		notificationTopicURL: os.Getenv("UNSUS_NOTIFICATION_TOPIC"),
		resultStore:          resultStoreForEnv("UNSUS_RESULTS_BUCKET"),

		configPath:     os.Getenv("UNSUS_CONFIG"),
		features:       os.Getenv("UNSUS_FEATURES"),
		dynamic:        os.Getenv("UNSUS_DISABLE_DYNAMIC") == "",
		enableProfiler: os.Getenv("UNSUS_ENABLE_PROFILER") != "",
		userAgentExtra: os.Getenv("UNSUS_USER_AGENT_EXTRA"),
	}
}
