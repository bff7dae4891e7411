// Package ioc defines indicators of compromise extracted from package sources.
package ioc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is the kind of artifact an IOC holds.
type Type string

const (
	URL       Type = "url"
	Domain    Type = "domain"
	IP        Type = "ip"
	EnvVar    Type = "env-var"
	WalletETH Type = "wallet-eth"
	WalletBTC Type = "wallet-btc"
	WalletSOL Type = "wallet-sol"
	WalletTRX Type = "wallet-trx"
)

// Types lists every defined IOC Type.
var Types = []Type{URL, Domain, IP, EnvVar, WalletETH, WalletBTC, WalletSOL, WalletTRX}

// ErrInvalidType is returned when text does not name a defined Type.
var ErrInvalidType = errors.New("invalid ioc type")

func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (t *Type) UnmarshalText(text []byte) error {
	typ, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
	return []byte(t), nil
}

func (t Type) String() string {
	return string(t)
}

// ThreatMatch records which reputation source flagged an IOC.
type ThreatMatch struct {
	Source string `json:"source"`
	Detail string `json:"detail"`
}

// IOC is a candidate artifact of interest. Context is "path:line".
type IOC struct {
	Type        Type         `json:"type"`
	Value       string       `json:"value"`
	Context     string       `json:"context"`
	ThreatMatch *ThreatMatch `json:"threatMatch,omitempty"`
}

// Key identifies an IOC for deduplication.
type Key struct {
	Type  Type
	Value string
}

func (i IOC) Key() Key {
	return Key{Type: i.Type, Value: i.Value}
}

// Location splits Context into the file path and line number. Line is 0 when
// the context carries no line.
func (i IOC) Location() (string, int) {
	idx := strings.LastIndexByte(i.Context, ':')
	if idx < 0 {
		return i.Context, 0
	}
	line, err := strconv.Atoi(i.Context[idx+1:])
	if err != nil {
		return i.Context, 0
	}
	return i.Context[:idx], line
}

// FormatContext builds the Context string for a match in path at line.
func FormatContext(path string, line int) string {
	return path + ":" + strconv.Itoa(line)
}

// Dedupe keeps the first IOC for every (type, value) pair, preserving order.
func Dedupe(iocs []IOC) []IOC {
	seen := make(map[Key]bool, len(iocs))
	out := make([]IOC, 0, len(iocs))
	for _, i := range iocs {
		if seen[i.Key()] {
			continue
		}
		seen[i.Key()] = true
		out = append(out, i)
	}
	return out
}
