// Package dnsanalyzer collects DNS questions and answers from captured
// packets.
package dnsanalyzer

import (
	"net"
	"strings"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type DNSAnalyzer struct {
	queries     map[string]struct{}
	ipHostnames map[string]map[string]struct{}
}

func New() *DNSAnalyzer {
	return &DNSAnalyzer{
		queries:     make(map[string]struct{}),
		ipHostnames: make(map[string]map[string]struct{}),
	}
}

func (d *DNSAnalyzer) LayerTypes() []gopacket.LayerType {
	return []gopacket.LayerType{layers.LayerTypeDNS}
}

func (d *DNSAnalyzer) addIPHostnames(l *layers.DNS) {
	// Collect all the hostnames who's IP address are being queried.
	var hostnames []string
	for _, q := range l.Questions {
		if q.Type != layers.DNSTypeA && q.Type != layers.DNSTypeAAAA {
			continue
		}
		hostnames = append(hostnames, normalize(q.Name))
	}

	// Associate each hostname above with the addresses in the answers.
	for _, a := range l.Answers {
		if a.Type != layers.DNSTypeA && a.Type != layers.DNSTypeAAAA {
			continue
		}
		if a.IP == nil {
			continue
		}
		ip := a.IP.String()
		if _, exists := d.ipHostnames[ip]; !exists {
			d.ipHostnames[ip] = make(map[string]struct{})
		}
		for _, h := range hostnames {
			d.ipHostnames[ip][h] = struct{}{}
		}
	}
}

func (d *DNSAnalyzer) Receive(l gopacket.Layer, p gopacket.Packet) {
	dns, ok := l.(*layers.DNS)
	if !ok || len(dns.Questions) == 0 {
		return
	}
	if dns.QR {
		d.addIPHostnames(dns)
		return
	}
	for _, q := range dns.Questions {
		if name := normalize(q.Name); name != "" {
			d.queries[name] = struct{}{}
		}
	}
}

// Queries returns the distinct hostnames that were queried, sorted.
func (d *DNSAnalyzer) Queries() []string {
	names := maps.Keys(d.queries)
	slices.Sort(names)
	return names
}

// Hostname returns the hostnames used to obtain the given IP address, sorted.
//
// Returns an empty slice when the address was not seen in an answer.
func (d *DNSAnalyzer) Hostname(address string) []string {
	// We parse the IP to ensure that it is valid.
	ip := net.ParseIP(address)
	if ip == nil {
		return []string{}
	}
	hostnames := maps.Keys(d.ipHostnames[ip.String()])
	slices.Sort(hostnames)
	return hostnames
}

func normalize(name []byte) string {
	return strings.TrimSuffix(strings.ToLower(string(name)), ".")
}
