// Package threatintel decorates IOCs with reputation data from URLhaus, using
// a cached copy of its URL feed and, when an API key is configured, its host
// lookup API.
package threatintel

import (
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/iocextract"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// FeedSource names the cached feed in ThreatMatch.Source.
const FeedSource = "urlhaus-feed"

// Database is a snapshot of known-bad URLs and the hosts serving them.
type Database struct {
	Domains   []string  `json:"domains"`
	URLs      []string  `json:"urls"`
	IPs       []string  `json:"ips"`
	FetchedAt time.Time `json:"fetchedAt"`

	once  sync.Once
	index map[ioc.Key]bool
}

// NewDatabase builds a Database from a list of URLs. Values are normalized,
// deduplicated and sorted.
func NewDatabase(urls []string, fetchedAt time.Time) *Database {
	d := &Database{FetchedAt: fetchedAt}
	for _, raw := range urls {
		u := normalizeURL(raw)
		if u == "" {
			continue
		}
		d.URLs = append(d.URLs, u)
		host := hostOf(u)
		switch {
		case host == "":
		case net.ParseIP(host) != nil:
			d.IPs = append(d.IPs, host)
		case !iocextract.IsSafeDomain(host):
			d.Domains = append(d.Domains, host)
		}
	}
	for _, s := range []*[]string{&d.URLs, &d.Domains, &d.IPs} {
		slices.Sort(*s)
		*s = slices.Compact(*s)
	}
	return d
}

// Len is the number of indicators in the database.
func (d *Database) Len() int {
	return len(d.URLs) + len(d.Domains) + len(d.IPs)
}

// Stale reports whether the snapshot is older than ttl at now.
func (d *Database) Stale(ttl time.Duration, now time.Time) bool {
	return d.FetchedAt.IsZero() || now.Sub(d.FetchedAt) > ttl
}

func (d *Database) build() {
	d.index = make(map[ioc.Key]bool, d.Len())
	for _, v := range d.URLs {
		d.index[ioc.Key{Type: ioc.URL, Value: v}] = true
	}
	for _, v := range d.Domains {
		d.index[ioc.Key{Type: ioc.Domain, Value: v}] = true
	}
	for _, v := range d.IPs {
		d.index[ioc.Key{Type: ioc.IP, Value: v}] = true
	}
}

func (d *Database) has(t ioc.Type, v string) bool {
	d.once.Do(d.build)
	return d.index[ioc.Key{Type: t, Value: v}]
}

// Match reports whether the IOC, or for a URL its host, is in the database.
// The database must not be modified once Match has been called.
func (d *Database) Match(i ioc.IOC) (*ioc.ThreatMatch, bool) {
	switch i.Type {
	case ioc.URL:
		u := normalizeURL(i.Value)
		if d.has(ioc.URL, u) {
			return &ioc.ThreatMatch{Source: FeedSource, Detail: "URL listed as malware distribution"}, true
		}
		host := hostOf(u)
		if d.has(ioc.Domain, host) || d.has(ioc.IP, host) {
			return &ioc.ThreatMatch{Source: FeedSource, Detail: "host " + host + " serves listed malware URLs"}, true
		}
	case ioc.Domain:
		if d.has(ioc.Domain, strings.ToLower(i.Value)) {
			return &ioc.ThreatMatch{Source: FeedSource, Detail: "domain serves listed malware URLs"}, true
		}
	case ioc.IP:
		if d.has(ioc.IP, i.Value) {
			return &ioc.ThreatMatch{Source: FeedSource, Detail: "IP serves listed malware URLs"}, true
		}
	}
	return nil, false
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
