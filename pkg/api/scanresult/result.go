// Package scanresult holds the records a scan produces and hands to result
// consumers.
package scanresult

import (
	"time"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// RiskLevel is the tier a risk score falls into.
type RiskLevel string

const (
	Safe     RiskLevel = "safe"
	Low      RiskLevel = "low"
	Medium   RiskLevel = "medium"
	High     RiskLevel = "high"
	Critical RiskLevel = "critical"
)

// ScanResult is the terminal aggregate of one scan.
type ScanResult struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	PURL      string            `json:"purl,omitempty"`
	RiskScore float64           `json:"riskScore"`
	RiskLevel RiskLevel         `json:"riskLevel"`
	Findings  []finding.Finding `json:"findings"`
	IOCs      []ioc.IOC         `json:"iocs"`
	Dynamic   *DynamicResult    `json:"dynamic,omitempty"`
	Summary   string            `json:"summary"`
	ScannedAt time.Time         `json:"scannedAt"`
	Duration  time.Duration     `json:"duration"`
}

// Connection is an outbound connection attempt observed in the sandbox.
// Hostname is the name the address was resolved from, when DNS was captured.
type Connection struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname,omitempty"`
}

// ResourceSample is one reading of the sandbox resource monitor.
type ResourceSample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpuPercent"`
	MemoryKB   int64     `json:"memoryKB"`
}

// DynamicResult is the record of one sandbox run.
type DynamicResult struct {
	Connections  []Connection     `json:"connections"`
	DNSQueries   []string         `json:"dnsQueries,omitempty"`
	Resources    []ResourceSample `json:"resources"`
	FilesChanged []string         `json:"filesChanged"`
	Hooks        []string         `json:"hooks"`
	ExitCode     int              `json:"exitCode"`
	Duration     time.Duration    `json:"duration"`
	TimedOut     bool             `json:"timedOut"`
	Output       string           `json:"output"`
}

// AverageCPU returns the mean CPU usage over all samples, or 0 without samples.
func (r *DynamicResult) AverageCPU() float64 {
	if len(r.Resources) == 0 {
		return 0
	}
	var total float64
	for _, s := range r.Resources {
		total += s.CPUPercent
	}
	return total / float64(len(r.Resources))
}

// PeakMemoryKB returns the highest memory reading.
func (r *DynamicResult) PeakMemoryKB() int64 {
	var peak int64
	for _, s := range r.Resources {
		peak = max(peak, s.MemoryKB)
	}
	return peak
}
