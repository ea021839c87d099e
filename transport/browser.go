package transport

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"bookfetch/book"
)

// Browser is the browser-driven substrate for providers that gate
// their pages behind executed JavaScript. It returns the rendered DOM
// as the response body.
type Browser struct {
	logger   *zap.Logger
	proxyURL string
	options  []chromedp.ExecAllocatorOption
}

func NewBrowser(logger *zap.Logger, proxyURL string) *Browser {
	options := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.UserAgent(UserAgent),

		// Stealth options
		chromedp.Flag("accept-language", "en-US,en;q=0.9"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-extensions", ""),
	)
	if proxyURL != "" {
		options = append(options, chromedp.ProxyServer(proxyURL))
	}
	return &Browser{
		logger:   logger,
		proxyURL: proxyURL,
		options:  options,
	}
}

// Fetch navigates to rawURL and captures the rendered document. The
// status code is reported as 200 whenever navigation succeeds; callers
// judge the content, not the code, which is all these providers allow.
func (b *Browser) Fetch(ctx context.Context, rawURL string, opts Options) (*book.FetchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = MetadataTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.options...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, timeout)
	defer timeoutCancel()

	actions := []chromedp.Action{network.Enable()}
	if opts.Referer != "" {
		actions = append(actions,
			network.SetExtraHTTPHeaders(network.Headers{"Referer": opts.Referer}))
	}

	var html, finalURL string
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitVisible("body"),
		chromedp.Evaluate(`
			Object.defineProperty(navigator, 'webdriver', {
				get: () => undefined,
			});
			window.chrome = { runtime: {} };
		`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		b.logger.Error("browser navigation failed",
			zap.String("url", rawURL),
			zap.Error(err))
		return nil, err
	}

	b.logger.Debug("browser fetch complete",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL),
		zap.Int("dom_length", len(html)))

	return &book.FetchResult{
		StatusCode:  200,
		Body:        []byte(html),
		ContentType: "text/html",
		FinalURL:    finalURL,
	}, nil
}
