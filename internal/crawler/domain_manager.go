package crawler

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DomainManager keeps requests polite per host: robots.txt is consulted once
// per host, and an optional limiter spaces requests out.
type DomainManager struct {
	agent       string
	interval    time.Duration
	checkRobots bool
	client      *http.Client

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.Group
	warned      map[string]bool
}

// NewDomainManager creates a DomainManager. An interval of 0 disables the
// limiter; checkRobots false allows every path.
func NewDomainManager(agent string, interval time.Duration, checkRobots bool, client *http.Client) *DomainManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &DomainManager{
		agent:       agent,
		interval:    interval,
		checkRobots: checkRobots,
		client:      client,
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*robotstxt.Group),
		warned:      make(map[string]bool),
	}
}

// Wait blocks until the host's limiter lets the request through.
func (d *DomainManager) Wait(ctx context.Context, targetURL string) error {
	if d.interval <= 0 {
		return nil
	}
	u, err := url.Parse(targetURL)
	if err != nil {
		return err
	}

	d.mu.Lock()
	limiter, exists := d.limiters[u.Host]
	if !exists {
		// Burst of 1: the first request goes immediately.
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[u.Host] = limiter
	}
	d.mu.Unlock()

	return limiter.Wait(ctx)
}

// IsAllowed reports whether robots.txt lets our agent fetch link. A missing
// or unreadable robots.txt allows everything.
func (d *DomainManager) IsAllowed(ctx context.Context, link string) bool {
	if !d.checkRobots {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	d.mu.Lock()
	group, exists := d.robotsCache[u.Host]
	d.mu.Unlock()

	if !exists {
		// Concurrent first lookups may both fetch; the results are identical.
		group = d.fetchRobots(ctx, u)
		d.mu.Lock()
		d.robotsCache[u.Host] = group
		d.mu.Unlock()
	}

	if group == nil {
		return true
	}
	if group.Test(u.Path) {
		return true
	}

	d.mu.Lock()
	first := !d.warned[u.Host]
	d.warned[u.Host] = true
	d.mu.Unlock()
	if first {
		log.Printf("WARNING: robots.txt on %s disallows %s for %q; matching requests will be skipped (set RESPECT_ROBOTS=false to ignore)",
			u.Host, u.Path, d.agent)
	}
	return false
}

func (d *DomainManager) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.Scheme+"://"+u.Host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.agent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(d.agent)
}
