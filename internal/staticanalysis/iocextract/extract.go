// Package iocextract pulls indicators of compromise (URLs, hosts, addresses,
// wallet ids and environment variable names) out of raw package text.
package iocextract

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/detections"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

const base58 = `1-9A-HJ-NP-Za-km-z`

var (
	ethAddress = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	btcAddress = regexp.MustCompile(`\b(?:bc1[a-z0-9]{25,39}|[13][` + base58 + `]{25,34})\b`)
	trxAddress = regexp.MustCompile(`\bT[` + base58 + `]{33}\b`)
	solAddress = regexp.MustCompile(`\b[` + base58 + `]{32,44}\b`)

	envVarDot     = regexp.MustCompile(`process\.env\.([A-Za-z_$][A-Za-z0-9_$]*)`)
	envVarBracket = regexp.MustCompile(`process\.env\[\s*['"` + "`" + `]([^'"` + "`" + `\]]+)['"` + "`" + `]\s*\]`)

	quotedDomain = regexp.MustCompile(`['"` + "`" + `]((?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,24})['"` + "`" + `]`)

	hasDigit = regexp.MustCompile(`[0-9]`)
)

// safeDomains are infrastructure hosts that appear in nearly every package.
var safeDomains = []string{
	"npmjs.org",
	"npmjs.com",
	"yarnpkg.com",
	"github.com",
	"githubusercontent.com",
	"github.io",
	"nodejs.org",
	"unpkg.com",
	"jsdelivr.net",
	"w3.org",
	"mozilla.org",
	"json-schema.org",
	"opensource.org",
	"spdx.org",
	"schema.org",
}

// Extract returns the IOCs in src, one per (type, value), in order of first
// appearance.
func Extract(path string, src []byte) []ioc.IOC {
	e := &extractor{path: path, seen: map[ioc.Key]bool{}}
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), len(src)+1)
	line := 0
	for sc.Scan() {
		line++
		e.line(line, sc.Text())
	}
	return e.iocs
}

type extractor struct {
	path string
	seen map[ioc.Key]bool
	iocs []ioc.IOC
}

func (e *extractor) add(typ ioc.Type, value string, line int) {
	i := ioc.IOC{Type: typ, Value: value, Context: ioc.FormatContext(e.path, line)}
	if e.seen[i.Key()] {
		return
	}
	e.seen[i.Key()] = true
	e.iocs = append(e.iocs, i)
}

// line runs the patterns in order. Wallet matches claim their span of the
// line so that later, looser wallet patterns do not report it again.
func (e *extractor) line(n int, text string) {
	var claimed [][]int
	overlaps := func(loc []int) bool {
		for _, c := range claimed {
			if loc[0] < c[1] && c[0] < loc[1] {
				return true
			}
		}
		return false
	}
	wallet := func(re *regexp.Regexp, typ ioc.Type, keep func(string) bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if overlaps(loc) {
				continue
			}
			v := text[loc[0]:loc[1]]
			if keep != nil && !keep(v) {
				continue
			}
			claimed = append(claimed, loc)
			e.add(typ, v, n)
		}
	}

	wallet(ethAddress, ioc.WalletETH, nil)
	wallet(btcAddress, ioc.WalletBTC, nil)
	wallet(trxAddress, ioc.WalletTRX, func(v string) bool { return len(v) == 34 })
	wallet(solAddress, ioc.WalletSOL, func(v string) bool {
		return hasDigit.MatchString(v) && strings.ToLower(v) != v
	})

	for _, u := range detections.FindURLs(text) {
		host := detections.URLHost(u)
		if host == "" || host == "localhost" || detections.IsLocalAddress(host) || IsSafeDomain(host) {
			continue
		}
		e.add(ioc.URL, u, n)
	}

	for _, ip := range detections.FindIPAddresses(text) {
		if detections.IsLocalAddress(ip) {
			continue
		}
		e.add(ioc.IP, ip, n)
	}

	for _, m := range envVarDot.FindAllStringSubmatch(text, -1) {
		e.add(ioc.EnvVar, m[1], n)
	}
	for _, m := range envVarBracket.FindAllStringSubmatch(text, -1) {
		e.add(ioc.EnvVar, strings.TrimSpace(m[1]), n)
	}

	for _, m := range quotedDomain.FindAllStringSubmatch(text, -1) {
		d := strings.ToLower(strings.TrimRight(m[1], "."))
		if isFileName(d) || IsSafeDomain(d) {
			continue
		}
		e.add(ioc.Domain, d, n)
	}
}

// IsSafeDomain reports whether host is, or is a subdomain of, a well-known
// package infrastructure domain.
func IsSafeDomain(host string) bool {
	host = strings.ToLower(host)
	for _, d := range safeDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func isFileName(name string) bool {
	idx := strings.LastIndexByte(name, '.')
	return idx >= 0 && detections.IsFileExtension(name[idx+1:])
}
