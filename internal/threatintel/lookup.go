package threatintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"

	"github.com/AnishDe12020/unsus/internal/useragent"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

const (
	// DefaultLookupURL is the URLhaus host information endpoint.
	DefaultLookupURL = "https://urlhaus-api.abuse.ch/v1/host/"

	// LookupSource names the host API in ThreatMatch.Source.
	LookupSource = "urlhaus-api"

	// DefaultInterval is the minimum spacing between API requests.
	DefaultInterval = time.Second

	// highConfidenceURLs is the URL count at which a host is critical even
	// without a blocklist listing.
	highConfidenceURLs = 10
)

var ErrNoAPIKey = errors.New("no URLhaus API key")

// HostReport is the URLhaus view of one host.
type HostReport struct {
	Host        string
	URLCount    int
	Blocklisted []string
}

// Severity grades the report: many URLs or URLs plus a blocklist listing is
// critical, URLs alone danger, a listing alone warning. ok is false when
// URLhaus knows nothing bad about the host.
func (r HostReport) Severity() (sev finding.Severity, ok bool) {
	switch {
	case r.URLCount >= highConfidenceURLs, r.URLCount > 0 && len(r.Blocklisted) > 0:
		return finding.Critical, true
	case r.URLCount > 0:
		return finding.Danger, true
	case len(r.Blocklisted) > 0:
		return finding.Warning, true
	}
	return "", false
}

func (r HostReport) Detail() string {
	detail := fmt.Sprintf("%d malware URLs on host %s", r.URLCount, r.Host)
	if len(r.Blocklisted) > 0 {
		detail += ", listed by " + strings.Join(r.Blocklisted, ", ")
	}
	return detail
}

// Lookup queries the URLhaus host API. Requests are spaced by a rate limiter
// shared by all callers.
type Lookup struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewLookup returns a client for endpoint (DefaultLookupURL when empty).
func NewLookup(endpoint, apiKey string, interval time.Duration) *Lookup {
	if endpoint == "" {
		endpoint = DefaultLookupURL
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Lookup{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   useragent.Client(""),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

type hostResponse struct {
	QueryStatus string            `json:"query_status"`
	Host        string            `json:"host"`
	URLCount    json.RawMessage   `json:"url_count"`
	Blacklists  map[string]string `json:"blacklists"`
}

// Host fetches the report for host. A host URLhaus has never seen yields an
// empty report and no error.
func (l *Lookup) Host(ctx context.Context, host string) (*HostReport, error) {
	if l.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{"host": {host}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Auth-Key", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("host lookup %s: %w", host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("host lookup %s: unexpected status %s", host, resp.Status)
	}

	var body hostResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("host lookup %s: %w", host, err)
	}

	report := &HostReport{Host: host}
	switch body.QueryStatus {
	case "ok":
	case "no_results":
		return report, nil
	default:
		return nil, fmt.Errorf("host lookup %s: query status %q", host, body.QueryStatus)
	}

	report.URLCount = parseCount(body.URLCount)
	lists := maps.Keys(body.Blacklists)
	slices.Sort(lists)
	for _, name := range lists {
		if status := body.Blacklists[name]; status != "" && status != "not listed" {
			report.Blocklisted = append(report.Blocklisted, name)
		}
	}
	return report, nil
}

// parseCount accepts the count as a JSON number or a quoted number.
func parseCount(raw json.RawMessage) int {
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
