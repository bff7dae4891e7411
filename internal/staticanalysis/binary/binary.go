// Package binary inspects non-text files for native executables and scans
// sources for cryptocurrency mining indicators.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path"
	"regexp"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

// Format is an executable container format recognised by its magic bytes.
type Format string

const (
	ELF    Format = "ELF"
	PE     Format = "PE"
	MachO  Format = "Mach-O"
	FatBin Format = "Mach-O universal"
)

var (
	elfMagic = []byte{0x7f, 'E', 'L', 'F'}
	peMagic  = []byte{'M', 'Z'}

	machOMagics = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce},
		{0xfe, 0xed, 0xfa, 0xcf},
		{0xce, 0xfa, 0xed, 0xfe},
		{0xcf, 0xfa, 0xed, 0xfe},
	}
	fatMagic = []byte{0xca, 0xfe, 0xba, 0xbe}
)

// maxFatArchs separates universal binaries from Java class files, which share
// the 0xcafebabe magic but carry a class file version (>= 45) where a fat
// header carries its architecture count.
const maxFatArchs = 30

var minerName = regexp.MustCompile(`(?i)\b(?:xmrig|xmr-stak|minergate|ethminer|nbminer|cgminer|cpuminer|bfgminer|minerd|nicehash|t-rex|phoenixminer|lolminer)\b`)

// DetectFormat identifies the executable format of header, if any.
func DetectFormat(header []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(header, elfMagic):
		return ELF, true
	case bytes.HasPrefix(header, peMagic):
		return PE, true
	case bytes.HasPrefix(header, fatMagic):
		if len(header) >= 8 && binary.BigEndian.Uint32(header[4:8]) < maxFatArchs {
			return FatBin, true
		}
		return "", false
	}
	for _, m := range machOMagics {
		if bytes.HasPrefix(header, m) {
			return MachO, true
		}
	}
	return "", false
}

// AnalyzeFile reports a binary file that is a native executable, or whose
// name is that of a known miner.
func AnalyzeFile(p string, header []byte) []finding.Finding {
	var findings []finding.Finding
	if format, ok := DetectFormat(header); ok {
		findings = append(findings, finding.Finding{
			Type:     finding.BinarySuspicious,
			Severity: finding.Danger,
			Message:  fmt.Sprintf("package ships a native %s executable", format),
			File:     p,
		})
	}
	if name := minerName.FindString(path.Base(p)); name != "" {
		findings = append(findings, finding.Finding{
			Type:     finding.Cryptominer,
			Severity: finding.Critical,
			Message:  fmt.Sprintf("binary named after the %s miner", name),
			File:     p,
		})
	}
	return findings
}
