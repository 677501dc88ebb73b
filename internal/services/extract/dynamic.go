package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"golang.org/x/time/rate"
)

// BrowserPool manages a pool of headless browser contexts for JavaScript
// rendering with round-robin allocation.
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	currentIndex     int
	userAgent        string
	renderWait       time.Duration
	logger           arbor.ILogger
}

// NewBrowserPool creates and initializes a pool of browser instances.
// Returns an error when no instance can be started (e.g. no Chrome
// runtime on the host); the dynamic engine reports that as
// EngineUnavailable.
func NewBrowserPool(config common.DynamicConfig, userAgent string, logger arbor.ILogger) (*BrowserPool, error) {
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool_size must be greater than 0, got: %d", config.PoolSize)
	}

	pool := &BrowserPool{
		userAgent:  userAgent,
		renderWait: config.RenderWait(),
		logger:     logger,
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(userAgent),
	)

	for i := 0; i < config.PoolSize; i++ {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// Start the browser process now so a missing runtime fails here,
		// not on the first dispatch
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			if len(pool.browsers) == 0 {
				pool.Shutdown()
				return nil, fmt.Errorf("failed to start browser instance: %w", err)
			}
			pool.logger.Warn().Err(err).Int("browser_index", i).Msg("Failed to start browser instance")
			continue
		}

		pool.browsers = append(pool.browsers, browserCtx)
		pool.browserCancels = append(pool.browserCancels, browserCancel)
		pool.allocatorCancels = append(pool.allocatorCancels, allocCancel)
	}

	logger.Info().
		Int("pool_size", len(pool.browsers)).
		Str("user_agent", userAgent).
		Msg("Browser pool initialized")
	return pool, nil
}

// Render navigates to a URL in the next pooled browser, waits for
// JavaScript to settle, and returns the post-render HTML.
func (p *BrowserPool) Render(ctx context.Context, pageURL string) (string, error) {
	p.mu.Lock()
	if len(p.browsers) == 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("browser pool is empty")
	}
	browserCtx := p.browsers[p.currentIndex]
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	p.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var timeoutCancel context.CancelFunc
		tabCtx, timeoutCancel = context.WithDeadline(tabCtx, deadline)
		defer timeoutCancel()
	}

	var html string
	err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(p.userAgent),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(p.renderWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// Shutdown closes all pooled browser instances
func (p *BrowserPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cancel := range p.browserCancels {
		cancel()
	}
	for _, cancel := range p.allocatorCancels {
		cancel()
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
}

// DynamicEngine renders JS-heavy sources in a headless browser and parses
// the post-render HTML with the same listing parser the static engine
// uses. Strictly slower than static and rate-limited independently across
// all dynamic sources.
type DynamicEngine struct {
	config    common.ExtractConfig
	converter *md.Converter
	limiter   *rate.Limiter
	logger    arbor.ILogger

	initOnce sync.Once
	pool     *BrowserPool
	initErr  error
}

// NewDynamicEngine creates the headless-browser extraction engine. The
// browser pool starts lazily on first use so hosts without a browser
// runtime can still run static and raw sources.
func NewDynamicEngine(config common.ExtractConfig, logger arbor.ILogger) *DynamicEngine {
	rpm := config.Dynamic.RequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}
	interval := time.Minute / time.Duration(rpm)
	return &DynamicEngine{
		config:    config,
		converter: md.NewConverter("", true, nil),
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		logger:    logger,
	}
}

// Name returns the engine identifier
func (e *DynamicEngine) Name() models.Engine {
	return models.EngineDynamic
}

// Extract walks the source's listing pages in a headless browser and emits
// candidates in page-encounter order.
func (e *DynamicEngine) Extract(ctx context.Context, source *models.SourceConfig, emit interfaces.EmitFunc) (*interfaces.ExtractStats, error) {
	e.initOnce.Do(func() {
		e.pool, e.initErr = NewBrowserPool(e.config.Dynamic, e.config.UserAgent, e.logger)
	})
	if e.initErr != nil {
		return nil, &common.EngineUnavailableError{Engine: string(models.EngineDynamic), Err: e.initErr}
	}

	stats := &interfaces.ExtractStats{}

	maxPages := source.Pagination.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	pageURL := source.BaseURL
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := waitDelay(ctx, source.RequestDelay); err != nil {
				return stats, err
			}
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		html, err := e.pool.Render(ctx, pageURL)
		if err != nil {
			return stats, &common.TransportError{URL: pageURL, Err: err}
		}
		stats.PagesFetched++

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return stats, &common.TransportError{URL: pageURL, Err: err}
		}

		found := parseListing(doc, source, e.converter, pageURL, emit, stats)
		e.logger.Debug().
			Str("source", source.ID).
			Str("url", pageURL).
			Int("page", page).
			Int("candidates", found).
			Msg("Parsed rendered page")

		if found == 0 {
			break
		}

		next, ok := nextPageURL(doc, source.Pagination.NextPageSelector, pageURL)
		if !ok {
			break
		}
		pageURL = next
	}

	return stats, nil
}

// Shutdown closes the browser pool if it was started
func (e *DynamicEngine) Shutdown() {
	if e.pool != nil {
		e.pool.Shutdown()
	}
}
