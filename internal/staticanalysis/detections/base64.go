package detections

import (
	"encoding/base64"
	"regexp"
	"strings"
)

var (
	// RFC4648 standard base 64 chars, padding optional, min length 16.
	standardBase64 = regexp.MustCompile("[[:alnum:]+/]{16,}(?:={0,2})?")
	// RFC4648 url/file-safe base 64 chars, padding optional, min length 16.
	urlSafeBase64 = regexp.MustCompile("[[:alnum:]-_]{16,}(?:={0,2})?")
	base64Regex   = regexp.MustCompile(standardBase64.String() + "|" + urlSafeBase64.String())
	wholeBase64   = regexp.MustCompile("^(?:" + base64Regex.String() + ")$")

	filterRegexes = []*regexp.Regexp{
		regexp.MustCompile("[[:upper:]]"),
		regexp.MustCompile("[[:lower:]]"),
		regexp.MustCompile("[G-Zg-z]"), // non-hex letter
	}

	versionLike = regexp.MustCompile(`^[v=^~<>]*\d+(?:\.\d+)+`)
)

// looksLikeActualBase64 filters long words, hex strings and paths out of
// candidates that match base64Regex.
func looksLikeActualBase64(candidate string) bool {
	if strings.ContainsRune(candidate, '=') && len(candidate)%4 != 0 {
		return false
	}
	for _, r := range filterRegexes {
		if !r.MatchString(candidate) {
			return false
		}
	}
	return true
}

// FindBase64Substrings returns the non-overlapping substrings of s that look
// like base64 encoded data.
func FindBase64Substrings(s string) []string {
	var matches []string
	for _, candidate := range base64Regex.FindAllString(s, -1) {
		if looksLikeActualBase64(candidate) {
			matches = append(matches, candidate)
		}
	}
	return matches
}

// IsBase64Value reports whether the whole of s looks like a base64 blob: at
// least 16 characters of the base64 alphabet, no whitespace, and not a
// version string or URL.
func IsBase64Value(s string) bool {
	if len(s) < 16 || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	if versionLike.MatchString(s) || strings.Contains(s, "://") {
		return false
	}
	return wholeBase64.MatchString(s) && looksLikeActualBase64(s)
}

// DecodeBase64 decodes s with the standard or URL-safe alphabet, padded or
// not.
func DecodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
