package finding

import (
	"errors"
	"fmt"
)

// Severity ranks how strongly a Finding indicates malicious behaviour.
//
// It implements encoding.TextUnmarshaler and encoding.TextMarshaler so
// only the four defined levels survive a JSON round trip.
type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	Danger   Severity = "danger"
	Critical Severity = "critical"
)

// ErrInvalidSeverity is returned when text does not name a defined Severity.
var ErrInvalidSeverity = errors.New("invalid severity")

// Severities lists every defined Severity, lowest first.
var Severities = []Severity{Info, Warning, Danger, Critical}

// ParseSeverity returns the Severity named by s.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// Rank orders severities; higher is worse. Unknown values rank below Info.
func (s Severity) Rank() int {
	switch s {
	case Info:
		return 1
	case Warning:
		return 2
	case Danger:
		return 3
	case Critical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the defined levels.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, string(s))
	}
	return []byte(s), nil
}

func (s Severity) String() string {
	return string(s)
}
