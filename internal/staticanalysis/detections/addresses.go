// Package detections holds the pattern matchers shared by the static
// analyzers: network addresses, escape sequence chains and base64 blobs.
package detections

import (
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"github.com/AnishDe12020/unsus/internal/utils"
)

// digits0_255 matches decimal numbers from 0-255
var digits0_255 = regexp.MustCompile(`(?:25[0-5]|(?:2[0-4]|1[0-9]|[1-9]|)[0-9])`)

var ipv4Regexp = regexp.MustCompile(fmt.Sprintf(`\b%s(?:\.%s){3}\b`, digits0_255, digits0_255))

var hex1_4 = regexp.MustCompile(`[[:xdigit:]]{1,4}`)

// ipv6Regexp over-matches compressed forms with too many segments; candidates
// are validated with netip before being returned.
var ipv6Regexp = utils.CombineRegexp(
	regexp.MustCompile(fmt.Sprintf(`%s(?::%s){5}(?:(?::%s){2}|:%s)`, hex1_4, hex1_4, hex1_4, ipv4Regexp)),
	regexp.MustCompile(fmt.Sprintf(`(?:(?:%s:){1,4}|:):%s`, hex1_4, ipv4Regexp)),
	regexp.MustCompile(fmt.Sprintf(`(?:(?:%s:){1,4}|:)(?::%s){1,4}:%s`, hex1_4, hex1_4, ipv4Regexp)),
	regexp.MustCompile(fmt.Sprintf(`(?:(?:%s:){1,6}|:)(?:(?::%s){1,6}|:)`, hex1_4, hex1_4)),
)

var urlSchemes = regexp.MustCompile(`(?i:https?|ftp|wss?)`)
var hostChars = regexp.MustCompile(`[\p{L}\p{N}_-]`)
var port = regexp.MustCompile(`(?::\d+)`)

var urlAuthority = regexp.MustCompile(fmt.Sprintf(`%s+(?:\.%s+)*\.\p{L}+%s?`, hostChars, hostChars, port))

// path and query; quotes and backticks end a URL embedded in source text
var urlPathAndQuery = regexp.MustCompile("(?:/[^\\s'\"`<>]*)?(?:\\?[^\\s'\"`<>]*)?")

var urlRegexp = regexp.MustCompile(fmt.Sprintf(`%s://%s%s`, urlSchemes, urlAuthority, urlPathAndQuery))
var ipv4URLRegexp = regexp.MustCompile(fmt.Sprintf(`%s://%s%s?%s`, urlSchemes, ipv4Regexp, port, urlPathAndQuery))

// trailingPunct is stripped from matched URLs, which often end a sentence or
// an argument list.
const trailingPunct = `.,;:!?)]}'"` + "`"

// FindURLs returns the http(s), ftp and websocket URLs in s, with trailing
// punctuation removed.
func FindURLs(s string) []string {
	var urls []string
	for _, m := range append(urlRegexp.FindAllString(s, -1), ipv4URLRegexp.FindAllString(s, -1)...) {
		if u := TrimURL(m); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// TrimURL strips surrounding whitespace and trailing punctuation. Closing
// parentheses are kept when balanced inside the URL.
func TrimURL(u string) string {
	u = strings.TrimSpace(u)
	for u != "" && strings.ContainsRune(trailingPunct, rune(u[len(u)-1])) {
		if u[len(u)-1] == ')' && strings.Count(u, "(") >= strings.Count(u, ")") {
			break
		}
		u = u[:len(u)-1]
	}
	return u
}

// URLHost returns the lower-cased host name of a URL, without port.
func URLHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// FindIPAddresses returns the syntactically valid IPv4 and IPv6 addresses in s.
func FindIPAddresses(s string) []string {
	var addrs []string
	for _, m := range ipv4Regexp.FindAllString(s, -1) {
		if _, err := netip.ParseAddr(m); err == nil {
			addrs = append(addrs, m)
		}
	}
	for _, m := range ipv6Regexp.FindAllString(s, -1) {
		// "::" alone and time-like "12:30" fragments are not interesting
		if strings.Count(m, ":") < 2 || m == "::" {
			continue
		}
		if _, err := netip.ParseAddr(m); err == nil {
			addrs = append(addrs, m)
		}
	}
	return addrs
}

// IsLocalAddress reports whether the address is loopback or unspecified.
func IsLocalAddress(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsUnspecified()
}
