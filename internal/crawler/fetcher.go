package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sold-crawler/internal/config"
	"sold-crawler/pkg/models"
)

// guardPrefixLen is the length of the anti-JSON-hijacking prefix ("{}&&")
// the search endpoint puts in front of every body.
const guardPrefixLen = 4

// RegionFetcher returns the decoded search payload for one region. A non-nil
// error always comes with a nil payload.
type RegionFetcher interface {
	Fetch(ctx context.Context, region, lookbackDays int) (*models.Payload, error)
}

// NewHTTPClient builds the client used for search and robots.txt requests.
// A zero timeout means none.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Fetcher queries the sold-property search endpoint over plain HTTP.
type Fetcher struct {
	BaseURL    string
	UserAgent  string
	ResultCap  int
	RegionType int

	client  *http.Client
	domains *DomainManager
}

// NewFetcher creates a Fetcher. domains may be nil to skip robots.txt and
// rate limiting entirely.
func NewFetcher(cfg *config.Config, client *http.Client, domains *DomainManager) *Fetcher {
	if client == nil {
		client = NewHTTPClient(cfg.HTTPTimeout)
	}
	return &Fetcher{
		BaseURL:    cfg.BaseURL,
		UserAgent:  cfg.UserAgent,
		ResultCap:  cfg.ResultCap,
		RegionType: cfg.RegionType,
		client:     client,
		domains:    domains,
	}
}

// SearchURL builds the request URL for one region and lookback window.
func (f *Fetcher) SearchURL(region, lookbackDays int) string {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return f.BaseURL
	}
	q := u.Query()
	q.Set("al", "1")
	q.Set("num_homes", strconv.Itoa(f.ResultCap))
	q.Set("region_id", strconv.Itoa(region))
	q.Set("region_type", strconv.Itoa(f.RegionType))
	q.Set("sold_within_days", strconv.Itoa(lookbackDays))
	u.RawQuery = q.Encode()
	return u.String()
}

func (f *Fetcher) Fetch(ctx context.Context, region, lookbackDays int) (*models.Payload, error) {
	target := f.SearchURL(region, lookbackDays)
	if err := f.polite(ctx, target); err != nil {
		return nil, fmt.Errorf("region %d: %w", region, err)
	}

	body, err := f.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("region %d: %w", region, err)
	}

	payload, err := DecodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("region %d: %w", region, err)
	}
	return payload, nil
}

// polite applies the robots.txt check and the per-host limiter.
func (f *Fetcher) polite(ctx context.Context, target string) error {
	if f.domains == nil {
		return nil
	}
	if !f.domains.IsAllowed(ctx, target) {
		return ErrDisallowed
	}
	return f.domains.Wait(ctx, target)
}

// get performs the single GET. The status code is not checked: the upstream
// reports logical errors inside the body, and anything else fails to decode.
func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// DecodeBody strips the guard prefix and decodes the rest. HTML bodies, such
// as a bot wall, get their page title attached to the error.
func DecodeBody(body []byte) (*models.Payload, error) {
	if len(body) < guardPrefixLen {
		return nil, ErrShortBody
	}
	payload, err := models.DecodePayload(body[guardPrefixLen:])
	if err != nil {
		if title, ok := PageTitle(body); ok {
			return nil, fmt.Errorf("%w: upstream returned HTML page %q", ErrDecode, title)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return payload, nil
}
