package worker

import (
	"context"
	"log/slog"

	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

/*
NOTE: These strings are matched by log-based alerting on the worker, and so
should be changed with care.
*/
const (
	gotRequestLogMsg   = "Got request"
	scanCompleteLogMsg = "Scan completed successfully"
	scanErrorLogMsg    = "Scan error"
)

// LogRequest records that a scan request was received.
func LogRequest(ctx context.Context, name, version, packagePath string) {
	slog.InfoContext(ctx, gotRequestLogMsg,
		log.LabelAttr("name", name),
		log.LabelAttr("version", version),
		log.LabelAttr("package_path", packagePath))
}

// LogScanResult records the outcome of a completed scan.
func LogScanResult(ctx context.Context, result *scanresult.ScanResult) {
	slog.InfoContext(ctx, scanCompleteLogMsg,
		log.LabelAttr("name", result.Name),
		log.LabelAttr("version", result.Version),
		log.LabelAttr("risk_level", string(result.RiskLevel)),
		"risk_score", result.RiskScore,
		"findings", len(result.Findings),
		"dynamic", result.Dynamic != nil)
}

// LogScanError records that a package could not be scanned.
func LogScanError(ctx context.Context, name, version string, err error) {
	slog.ErrorContext(ctx, scanErrorLogMsg,
		log.LabelAttr("name", name),
		log.LabelAttr("version", version),
		"error", err)
}
