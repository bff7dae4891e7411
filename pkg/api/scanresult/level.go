package scanresult

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

var ErrInvalidRiskLevel = errors.New("invalid risk level")

// RiskLevels lists the levels from least to most severe.
var RiskLevels = []RiskLevel{Safe, Low, Medium, High, Critical}

// ParseRiskLevel returns the RiskLevel named by s, ignoring case.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(RiskLevels, l) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
	return l, nil
}

// AtLeast reports whether l is as severe as other or more.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return slices.Index(RiskLevels, l) >= slices.Index(RiskLevels, other)
}
