package finding

import (
	"errors"
	"fmt"
)

// Type is the closed set of evidence kinds an analyzer can report.
type Type string

// Source behaviour, reported by the AST analyzer.
const (
	Eval                Type = "eval"
	FunctionConstructor Type = "function-constructor"
	DynamicRequire      Type = "dynamic-require"
	ChildProcess        Type = "child-process"
	VMModule            Type = "vm-module"
	Exec                Type = "exec"
	Network             Type = "network"
	Base64              Type = "base64"
	CharCode            Type = "char-code"
	ComputedCall        Type = "computed-call"
	EnvAccess           Type = "env-access"
	EnvAccessSensitive  Type = "env-access-sensitive"
	FSWrite             Type = "fs-write"
	FSRead              Type = "fs-read"
	GeoTrigger          Type = "geo-trigger"
	HexEscape           Type = "hex-escape"
	ParseError          Type = "parse-error"
)

// Obfuscation, binaries and manifest metadata.
const (
	Obfuscation      Type = "obfuscation"
	BinarySuspicious Type = "binary-suspicious"
	Cryptominer      Type = "cryptominer"
	InstallScript    Type = "install-script"
	Typosquat        Type = "typosquat"
	ManifestError    Type = "manifest-error"
)

// Reputation and vulnerability lookups.
const (
	ThreatIntel Type = "threat-intel"
	NPMAudit    Type = "npm-audit"
	KnownCVE    Type = "known-cve"
)

// Behaviour observed in the sandbox.
const (
	DynamicNetwork  Type = "dynamic-network"
	DynamicDNS      Type = "dynamic-dns"
	DynamicResource Type = "dynamic-resource"
	DynamicFS       Type = "dynamic-fs"
)

// ErrInvalidType is returned when text does not name a defined Type.
var ErrInvalidType = errors.New("invalid finding type")

// Types lists every defined finding Type.
var Types = []Type{
	Eval, FunctionConstructor, DynamicRequire, ChildProcess, VMModule, Exec,
	Network, Base64, CharCode, ComputedCall, EnvAccess, EnvAccessSensitive,
	FSWrite, FSRead, GeoTrigger, HexEscape, ParseError,
	Obfuscation, BinarySuspicious, Cryptominer, InstallScript, Typosquat, ManifestError,
	ThreatIntel, NPMAudit, KnownCVE,
	DynamicNetwork, DynamicDNS, DynamicResource, DynamicFS,
}

var knownTypes = func() map[Type]bool {
	m := make(map[Type]bool, len(Types))
	for _, t := range Types {
		m[t] = true
	}
	return m
}()

// ParseType returns the Type named by s.
func ParseType(s string) (Type, error) {
	if t := Type(s); knownTypes[t] {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool {
	return knownTypes[t]
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
