package threatintel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnishDe12020/unsus/internal/useragent"
)

// DefaultFeedURL is the URLhaus list of currently online malware URLs.
const DefaultFeedURL = "https://urlhaus.abuse.ch/downloads/text_online/"

// maxFeedSize caps how much of the feed body is read.
const maxFeedSize = 64 << 20

// Feed produces a fresh reputation Database.
type Feed interface {
	Fetch(ctx context.Context) (*Database, error)
}

// URLhausFeed downloads the URLhaus plain-text URL list.
type URLhausFeed struct {
	URL    string
	Client *http.Client
}

// NewURLhausFeed returns a feed for url, or DefaultFeedURL when url is empty.
func NewURLhausFeed(url string) *URLhausFeed {
	if url == "" {
		url = DefaultFeedURL
	}
	return &URLhausFeed{URL: url, Client: useragent.Client("")}
}

func (f *URLhausFeed) Fetch(ctx context.Context) (*Database, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed: unexpected status %s", resp.Status)
	}
	return ParseFeed(io.LimitReader(resp.Body, maxFeedSize), time.Now())
}

// ParseFeed reads one URL per line. Blank lines and lines starting with '#'
// are ignored.
func ParseFeed(r io.Reader, fetchedAt time.Time) (*Database, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return NewDatabase(urls, fetchedAt), nil
}
