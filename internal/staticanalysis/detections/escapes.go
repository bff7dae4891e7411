package detections

import (
	"regexp"
	"strconv"
	"strings"
)

// escapeChain matches three or more consecutive hex, 16-bit unicode or code
// point escapes, e.g. "\x68\x74\x74" or "\u0065\u0076\u0061\u006c".
var escapeChain = regexp.MustCompile(`(?:\\x[[:xdigit:]]{2}|\\u[[:xdigit:]]{4}|\\u\{[[:xdigit:]]+\}){3,}`)

var singleEscape = regexp.MustCompile(`\\x([[:xdigit:]]{2})|\\u([[:xdigit:]]{4})|\\u\{([[:xdigit:]]+)\}`)

// EscapeChain is a run of escape sequences found in source text.
type EscapeChain struct {
	Raw     string
	Decoded string
}

// FindEscapeChains returns every chain of at least three consecutive escape
// sequences in s, with its decoded text.
func FindEscapeChains(s string) []EscapeChain {
	if !strings.Contains(s, `\`) {
		return nil
	}
	var chains []EscapeChain
	for _, raw := range escapeChain.FindAllString(s, -1) {
		chains = append(chains, EscapeChain{Raw: raw, Decoded: decodeEscapes(raw)})
	}
	return chains
}

func decodeEscapes(raw string) string {
	var b strings.Builder
	for _, m := range singleEscape.FindAllStringSubmatch(raw, -1) {
		digits := m[1] + m[2] + m[3]
		v, err := strconv.ParseUint(digits, 16, 32)
		if err != nil || v > 0x10FFFF {
			b.WriteRune('\uFFFD')
			continue
		}
		b.WriteRune(rune(v))
	}
	return b.String()
}
