package notification

import (
	"encoding/json"
	"fmt"

	"gocloud.dev/pubsub"

	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
	"github.com/AnishDe12020/unsus/pkg/pkgidentifier"
)

// ScanCompletion is a struct representing the message sent to notify
// that a package scan completed.
type ScanCompletion struct {
	Package   pkgidentifier.PkgIdentifier
	PURL      string               `json:",omitempty"`
	RiskScore float64              `json:"riskScore"`
	RiskLevel scanresult.RiskLevel `json:"riskLevel"`
}

// ParseJSON takes in a notification JSON and returns a ScanCompletion struct.
func ParseJSON(msg *pubsub.Message) (ScanCompletion, error) {
	notification := ScanCompletion{}
	if err := json.Unmarshal(msg.Body, &notification); err != nil {
		return notification, fmt.Errorf("error unmarshalling json: %w", err)
	}
	return notification, nil
}
