// Package useragent identifies unsus to the reputation services it queries.
package useragent

import (
	"fmt"
	"net/http"
	"time"
)

const defaultUserAgentFmt = "unsus (github.com/AnishDe12020/unsus%s)"

// DefaultTimeout bounds requests made with Client.
const DefaultTimeout = 30 * time.Second

type uaRoundTripper struct {
	parent    http.RoundTripper
	userAgent string
}

// RoundTrip implements the http.RoundTripper interface.
func (rt *uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", rt.userAgent)
	return rt.parent.RoundTrip(req)
}

// RoundTripper wraps parent so that every request carries ua as its
// User-Agent header.
func RoundTripper(ua string, parent http.RoundTripper) http.RoundTripper {
	if parent == nil {
		parent = http.DefaultTransport
	}
	return &uaRoundTripper{parent: parent, userAgent: ua}
}

// DefaultRoundTripper wraps parent with the unsus user-agent. A non-empty
// extra is appended inside the parentheses, e.g. to tag a deployment.
func DefaultRoundTripper(parent http.RoundTripper, extra string) http.RoundTripper {
	if extra != "" {
		extra = ", " + extra
	}
	return RoundTripper(fmt.Sprintf(defaultUserAgentFmt, extra), parent)
}

// Client returns an HTTP client using DefaultRoundTripper and DefaultTimeout.
func Client(extra string) *http.Client {
	return &http.Client{
		Transport: DefaultRoundTripper(http.DefaultTransport, extra),
		Timeout:   DefaultTimeout,
	}
}
