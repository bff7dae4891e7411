package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnishDe12020/unsus/internal/config"
	"github.com/AnishDe12020/unsus/internal/featureflags"
	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/internal/resultstore"
	"github.com/AnishDe12020/unsus/internal/scan"
	"github.com/AnishDe12020/unsus/internal/staticanalysis"
	"github.com/AnishDe12020/unsus/internal/utils"
	"github.com/AnishDe12020/unsus/internal/worker"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

// exitRisk is the exit status when the package reaches the -fail-on level.
const exitRisk = 3

var (
	configPath   = flag.String("config", "", "path to a YAML calibration file")
	dynamic      = flag.Bool("dynamic", false, "also install the package in the sandbox")
	offline      = flag.Bool("offline", false, "skip the reputation feed, host lookups and npm audit")
	output       = flag.String("output", "", "write the JSON result to this file instead of stdout")
	upload       = flag.String("upload", "", "bucket URL to also store the result in")
	failOn       = flag.String("fail-on", "", "exit with status 3 if the risk level is at least this (safe, low, medium, high, critical)")
	features     = flag.String("features", "", "override features that are enabled/disabled by default")
	listFeatures = flag.Bool("list-features", false, "list available features that can be toggled")
	logLevel     = flag.String("log-level", "", "minimum log level (debug, info, warn, error)")
	tasks        = utils.CommaSeparated(flag.CommandLine, "tasks", taskNames(staticanalysis.AllTasks()),
		"static analysis tasks to run, separated by commas")
)

func taskNames(ts []staticanalysis.Task) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = string(t)
	}
	return names
}

func parseTasks(names []string) ([]staticanalysis.Task, error) {
	var ts []staticanalysis.Task
	for _, n := range names {
		t, ok := staticanalysis.TaskFromString(n)
		if !ok {
			return nil, fmt.Errorf("unknown static analysis task %q", n)
		}
		ts = append(ts, t)
	}
	if len(ts) == 0 {
		return nil, errors.New("no static analysis tasks selected")
	}
	return ts, nil
}

func printFeatureFlags(w io.Writer) {
	fmt.Fprintf(w, "%-30s %s\n", "Name", "Default")
	fmt.Fprintf(w, "----------------------------------------\n")
	state := featureflags.State()
	onOff := map[bool]string{false: "Off", true: "On"}
	for _, name := range featureflags.Names() {
		fmt.Fprintf(w, "%-30s %s\n", name, onOff[state[name]])
	}
}

func writeResult(w io.Writer, result *scanresult.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <package directory or .tgz>\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	log.Initialize(os.Getenv("LOGGER_ENV"), *logLevel)
	os.Exit(run())
}

func run() int {
	if err := featureflags.Update(os.Getenv("UNSUS_FEATURES")); err != nil {
		slog.Error("Failed to parse UNSUS_FEATURES", "error", err)
		return 2
	}
	if err := featureflags.Update(*features); err != nil {
		slog.Error("Failed to parse flags", "error", err)
		return 2
	}
	if *listFeatures {
		printFeatureFlags(os.Stdout)
		return 0
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	src := flag.Arg(0)

	taskList, err := parseTasks(tasks.Values)
	if err != nil {
		slog.Error("Invalid -tasks", "error", err)
		return 2
	}
	var threshold scanresult.RiskLevel
	if *failOn != "" {
		if threshold, err = scanresult.ParseRiskLevel(*failOn); err != nil {
			slog.Error("Invalid -fail-on", "error", err)
			return 2
		}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextWithAttrs(ctx, log.LabelAttr("package_path", src))

	pkg, err := worker.ResolvePackage(ctx, src)
	if err != nil {
		slog.ErrorContext(ctx, "Error resolving package", "error", err)
		return 1
	}
	defer func() {
		if err := pkg.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to remove extracted package", "error", err)
		}
	}()

	var consumers []scan.Consumer
	if *upload != "" {
		consumers = append(consumers, resultstore.New(*upload, resultstore.ConstructPath()))
	}
	scanner, cleanup, err := worker.NewScanner(ctx, cfg, worker.ScannerOptions{
		Dynamic:   *dynamic,
		Offline:   *offline,
		Tasks:     taskList,
		Consumers: consumers,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to set up scanner", "error", err)
		return 1
	}
	defer cleanup()

	result, err := scanner.Scan(ctx, pkg.Dir)
	if err != nil {
		slog.ErrorContext(ctx, "Scan failed", "error", err)
		return 1
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create output file", "error", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	if err := writeResult(out, result); err != nil {
		slog.ErrorContext(ctx, "Failed to write result", "error", err)
		return 1
	}
	slog.InfoContext(ctx, result.Summary)

	if threshold != "" && result.RiskLevel.AtLeast(threshold) {
		return exitRisk
	}
	return 0
}
