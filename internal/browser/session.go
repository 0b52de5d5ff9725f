// Package browser drives headless page visits against the origin, reading
// the embedded payload out of the live DOM while sniffing media URLs off the
// network.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"tapfeed/internal/httputil"
	"tapfeed/internal/nuxt"
	"tapfeed/internal/taptap"
)

// stealthScripts run before any page script, hiding the headless runtime the
// way the origin's bot checks probe for it.
var stealthScripts = []string{
	`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`,
	`Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});`,
	`const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
	if (parameter === 37445) return 'Google Inc. (NVIDIA)';
	if (parameter === 37446) return 'NVIDIA GeForce GTX 1050 Ti Direct3D11 vs_5_0 ps_5_0';
	return getParameter(parameter);
};`,
}

const (
	// wafWait bounds the informational wait for the interstitial marker.
	wafWait = 3 * time.Second

	// payloadWait bounds the wait for the payload script element.
	payloadWait = 25 * time.Second
)

// Config holds pool tuning.
type Config struct {
	// ChromePath overrides the browser binary lookup when non-empty.
	ChromePath string

	// Sessions caps concurrent tabs.
	Sessions int

	// PageTimeout bounds one full page visit.
	PageTimeout time.Duration

	// Settle is how long to idle after scrolling so lazy media requests fire.
	Settle time.Duration
}

// Pool owns one browser process and hands out bounded concurrent sessions.
// It implements taptap.Browser.
type Pool struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	cfg      Config
	log      *zap.Logger
}

// NewPool starts the allocator. The browser process itself launches lazily
// with the first session.
func NewPool(ctx context.Context, cfg Config, log *zap.Logger) *Pool {
	if cfg.Sessions < 1 {
		cfg.Sessions = 1
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 40 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(httputil.UserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("lang", "zh-CN"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return &Pool{
		allocCtx: allocCtx,
		cancel:   cancel,
		sem:      make(chan struct{}, cfg.Sessions),
		cfg:      cfg,
		log:      log,
	}
}

// Close shuts the browser process down.
func (p *Pool) Close() {
	p.cancel()
}

// Capture visits pageURL in a fresh tab, waits for the payload element, and
// returns the decoded payload plus every sniffed media candidate. A visit
// that yields candidates but no payload is still a success.
func (p *Pool) Capture(ctx context.Context, pageURL string) (*taptap.Capture, error) {
	if err := httputil.ValidateURL(pageURL); err != nil {
		return nil, err
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancelTab := chromedp.NewContext(p.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.cfg.PageTimeout)
	defer cancelTimeout()

	sniffer := NewSniffer(p.log)
	sniffer.Attach(tabCtx)

	var payloadText string
	runErr := chromedp.Run(tabCtx,
		network.Enable(),
		injectStealth(),
		chromedp.Navigate(pageURL),
		waitForInterstitial(p.log),
		waitForPayload(&payloadText, p.log),
		chromedp.Evaluate(`window.scrollTo(0, 200)`, nil),
		chromedp.Sleep(p.cfg.Settle),
	)

	capture := &taptap.Capture{Candidates: sniffer.Candidates()}
	if payloadText != "" {
		payload, err := nuxt.DecodeScript(payloadText)
		if err != nil {
			p.log.Warn("payload element held no decodable state",
				zap.String("url", pageURL), zap.Error(err))
		} else {
			capture.Payload = payload
		}
	}

	if runErr != nil && capture.Payload == nil && len(capture.Candidates) == 0 {
		return nil, fmt.Errorf("visiting %s: %w", pageURL, runErr)
	}
	if runErr != nil {
		p.log.Warn("page visit ended early, keeping partial capture",
			zap.String("url", pageURL), zap.Error(runErr))
	}
	return capture, nil
}

func injectStealth() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, script := range stealthScripts {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("injecting stealth script: %w", err)
			}
		}
		return nil
	})
}

// waitForInterstitial gives the WAF page a moment to appear and redirect.
// Timing out here is the normal case.
func waitForInterstitial(log *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		wafCtx, cancel := context.WithTimeout(ctx, wafWait)
		defer cancel()
		if err := chromedp.WaitReady("#renderData", chromedp.ByID).Do(wafCtx); err == nil {
			log.Info("interstitial detected, waiting for redirect")
		}
		return nil
	})
}

// waitForPayload waits for the payload script element and reads its text
// content. A page that never attaches the element leaves out empty rather
// than aborting the visit; the sniffer may still have caught media URLs.
func waitForPayload(out *string, log *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, payloadWait)
		defer cancel()
		if err := chromedp.WaitReady("#__NUXT_DATA__", chromedp.ByID).Do(waitCtx); err != nil {
			log.Warn("payload element never attached", zap.Error(err))
			return nil
		}
		return chromedp.Evaluate(
			`document.getElementById("__NUXT_DATA__").textContent`, out).Do(ctx)
	})
}
