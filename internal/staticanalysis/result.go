package staticanalysis

import (
	"fmt"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/metadata"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// Result is the combined output of the static analysis tasks, in task order.
// Findings and IOCs are not deduplicated across tasks.
type Result struct {
	Findings []finding.Finding
	IOCs     []ioc.IOC

	// Manifest is nil when package.json is missing or invalid.
	Manifest *metadata.Manifest
}

func (r Result) String() string {
	return fmt.Sprintf("%d findings, %d IOCs", len(r.Findings), len(r.IOCs))
}
