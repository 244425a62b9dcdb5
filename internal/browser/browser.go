package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/amazon-listing-scraper/internal/fetch"
	"github.com/maltedev/amazon-listing-scraper/internal/ratelimit"
)

// Browser is a playwright-backed fetch.Fetcher. It returns the rendered
// document once the DOM has loaded.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	MaxRetries     int
	Humanize       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "Asia/Kolkata",
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept":        "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Cache-Control": "max-age=0",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(contextOptions(opts))
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

func contextOptions(opts *Options) playwright.BrowserNewContextOptions {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	return playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

// Fetch opens a fresh page, navigates to url and returns the rendered HTML.
func (b *Browser) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	resp, err := b.navigateWithRetry(ctx, page, url)
	if err != nil {
		return nil, err
	}

	if b.opts.Humanize {
		if err := b.humanizeInteraction(ctx, page); err != nil {
			b.logger.Debug("humanize interaction failed", "error", err)
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}

	result := &fetch.Response{
		StatusCode: resp.Status(),
		Body:       []byte(content),
		URL:        page.URL(),
	}
	if !result.OK() {
		return result, fmt.Errorf("%w %d for %s", fetch.ErrStatus, result.StatusCode, url)
	}
	return result, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, url string) (playwright.Response, error) {
	attempts := b.opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := ratelimit.Sleep(ctx, time.Duration(i+1)*time.Second); err != nil {
				return nil, err
			}
		}

		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Error("navigation failed", "error", err, "attempt", i+1)
			continue
		}
		if resp == nil {
			lastErr = fmt.Errorf("no response for %s", url)
			continue
		}

		if _, err := b.continueShopping(page); err != nil {
			b.logger.Warn("interstitial check failed", "error", err)
		}
		return resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

var interstitialMarkers = []string{
	"Click the button below to continue shopping",
	"Klicke auf die Schaltfläche unten",
}

var continueButtons = []string{
	`button:has-text("Continue shopping")`,
	`button:has-text("Weiter shoppen")`,
	`input[type="submit"][value*="Continue"]`,
	`.a-button-primary`,
}

// continueShopping clicks through the "continue shopping" interstitial that
// occasionally precedes a page. Captcha pages are left alone; the caller's
// block detection reports them.
func (b *Browser) continueShopping(page playwright.Page) (bool, error) {
	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}

	found := false
	for _, marker := range interstitialMarkers {
		if strings.Contains(content, marker) {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	b.logger.Info("interstitial detected")
	for _, selector := range continueButtons {
		button := page.Locator(selector).First()
		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := button.Click(); err != nil {
			b.logger.Error("failed to click button", "selector", selector, "error", err)
			continue
		}
		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		}); err != nil {
			return false, fmt.Errorf("waiting after interstitial: %w", err)
		}
		return true, nil
	}

	return false, fmt.Errorf("no continue button found")
}

func (b *Browser) humanizeInteraction(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 3; i++ {
		if err := page.Mouse().Move(float64(100+i*200), float64(100+i*150)); err != nil {
			return err
		}
		if err := ratelimit.Sleep(ctx, time.Duration(200+i*100)*time.Millisecond); err != nil {
			return err
		}
	}

	_, err := page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
	return err
}

var _ fetch.Fetcher = (*Browser)(nil)
