package crawler

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"sold-crawler/pkg/models"
)

// BrowserFetcher loads the search endpoint in headless Chrome. It is for
// hosts that refuse plain HTTP clients; the request URL, politeness checks
// and body decoding are the same as Fetcher's.
type BrowserFetcher struct {
	search *Fetcher

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserFetcher starts one Chrome process. Each Fetch opens its own tab.
func NewBrowserFetcher(parent context.Context, search *Fetcher, headless bool) (*BrowserFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(search.UserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Running with no actions launches the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserFetcher{
		search:        search,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, region, lookbackDays int) (*models.Payload, error) {
	target := b.search.SearchURL(region, lookbackDays)
	if err := b.search.polite(ctx, target); err != nil {
		return nil, fmt.Errorf("region %d: %w", region, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var text string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept": "application/json"}),
		chromedp.Navigate(target),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	if err != nil {
		return nil, fmt.Errorf("region %d: browser fetch: %w", region, err)
	}

	payload, err := DecodeBody([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("region %d: %w", region, err)
	}
	return payload, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelBrowser()
	b.cancelAlloc()
}
