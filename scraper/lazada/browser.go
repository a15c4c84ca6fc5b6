package lazada

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"product-ingest/scraper"
	"product-ingest/utils"
)

const (
	defaultActionTimeout = 60 * time.Second
	browserUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// NewChromeSessionFactory returns a SessionFactory that starts a headless
// Chrome per session. chromeBin may be empty to search the usual locations.
func NewChromeSessionFactory(chromeBin string, logger *utils.Logger) scraper.SessionFactory {
	return func(ctx context.Context) (scraper.PageFetcher, error) {
		bin := chromeBin
		if bin == "" {
			bin = findChromeBinary()
		}
		logger.Info("[lazada] Using browser binary: %q", bin)

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1920, 1080),
			chromedp.UserAgent(browserUserAgent),
		)
		if bin != "" {
			opts = append(opts, chromedp.ExecPath(bin))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
		// Suppress chromedp log noise
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

		// An empty Run starts the browser.
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			return nil, fmt.Errorf("%w: start chrome: %w", scraper.ErrCapabilityUnavailable, err)
		}

		return &chromeSession{ctx: browserCtx, cancelBrowser: cancelBrowser, cancelAlloc: cancelAlloc}, nil
	}
}

// chromeSession is a PageFetcher backed by one chromedp browser tab.
type chromeSession struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

// run executes actions in the browser tab, bounded by timeout and by ctx.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, 0, chromedp.Navigate(url))
}

func (s *chromeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *chromeSession) ScrollToBottom(ctx context.Context, times int, delay time.Duration) error {
	actions := make([]chromedp.Action, 0, times*2)
	for i := 0; i < times; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(delay),
		)
	}
	return s.run(ctx, 0, actions...)
}

func (s *chromeSession) ReadAll(ctx context.Context, selector string) ([]string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("quote selector: %w", err)
	}
	var out []string
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(function(e){return e.outerHTML;})`, quoted)
	if err := s.run(ctx, 0, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return s.closeErr
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
