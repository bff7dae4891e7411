package resultstore

import (
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

type pkg struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	PURL    string `json:"purl,omitempty"`
}

// record is the stored document: the scan result plus the identifying
// fields used to locate it.
type record struct {
	Package          pkg                    `json:"package"`
	CreatedTimestamp int64                  `json:"createdTimestamp"`
	Result           *scanresult.ScanResult `json:"result"`
}
