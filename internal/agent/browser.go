package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// captchaImageSelector finds the captcha <img> for an element-only capture.
const captchaImageSelector = `img[src*="captcha"]`

// BrowserManager manages browser lifecycle and implements Driver on top of
// chromedp.
type BrowserManager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewBrowserManager creates a new browser manager
func NewBrowserManager(headless bool) (*BrowserManager, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless), // Only disable GPU in headless mode
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Hide automation detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	bm := &BrowserManager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
	}

	return bm, nil
}

// Close shuts down the browser and cleans up resources
func (bm *BrowserManager) Close() {
	if bm.cancel != nil {
		bm.cancel()
	}
	if bm.allocCancel != nil {
		bm.allocCancel()
	}
}

// GetContext returns the browser context for running chromedp tasks
func (bm *BrowserManager) GetContext() context.Context {
	return bm.ctx
}

// Navigate navigates to the specified URL and waits for the body to render
func (bm *BrowserManager) Navigate(url string, timeout time.Duration) error {
	timeoutCtx, timeoutCancel := context.WithTimeout(bm.ctx, timeout)
	defer timeoutCancel()

	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return classifyDriverErr(fmt.Sprintf("failed to navigate to %s", url), err)
	}
	return nil
}

// run executes chromedp actions against the browser context, forwarding any
// caller deadline, and classifies failures into the pipeline's taxonomy.
func (bm *BrowserManager) run(ctx context.Context, message string, actions ...chromedp.Action) error {
	runCtx := bm.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(bm.ctx, deadline)
		defer cancel()
	}
	return classifyDriverErr(message, chromedp.Run(runCtx, actions...))
}

// elementBox is the captcha element's page-space geometry as reported by the
// capture probe script.
type elementBox struct {
	Found  bool    `json:"found"`
	PageX  float64 `json:"pageX"`
	PageY  float64 `json:"pageY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Ratio  float64 `json:"ratio"`
}

// CaptureCaptcha screenshots the captcha image element if one is on the
// page, recording where its bitmap sits in page pixel space. When the
// element cannot be found or captured, the full viewport is captured with a
// zero crop offset.
func (bm *BrowserManager) CaptureCaptcha(ctx context.Context) (*Capture, error) {
	probe := fmt.Sprintf(`
(function() {
    const el = document.querySelector(%q);
    if (!el) {
        return JSON.stringify({ found: false });
    }
    el.scrollIntoView({ block: 'center' });
    const rect = el.getBoundingClientRect();
    return JSON.stringify({
        found: true,
        pageX: rect.left + window.pageXOffset,
        pageY: rect.top + window.pageYOffset,
        width: rect.width,
        height: rect.height,
        ratio: window.devicePixelRatio || 1
    });
})();
`, captchaImageSelector)

	var probeJSON string
	if err := bm.run(ctx, "failed to probe captcha element", chromedp.Evaluate(probe, &probeJSON)); err != nil {
		return nil, err
	}

	var box elementBox
	if err := json.Unmarshal([]byte(probeJSON), &box); err != nil {
		return nil, NewBrowserError("failed to parse captcha element probe", err)
	}

	if box.Found {
		var buf []byte
		err := bm.run(ctx, "failed to screenshot captcha element",
			chromedp.Screenshot(captchaImageSelector, &buf, chromedp.ByQuery))
		if err == nil {
			if box.Ratio <= 0 {
				box.Ratio = 1
			}
			// The solver answers in bitmap pixels, so the crop
			// offset is recorded in the same space.
			capture := &Capture{
				Data:        buf,
				Width:       int(box.Width * box.Ratio),
				Height:      int(box.Height * box.Ratio),
				CropOffsetX: int(box.PageX * box.Ratio),
				CropOffsetY: int(box.PageY * box.Ratio),
				TakenAt:     time.Now(),
			}
			log.Printf("[Browser] Captured captcha element at page (%.0f,%.0f), %dx%d px",
				box.PageX, box.PageY, capture.Width, capture.Height)
			return capture, nil
		}
		if IsInvalidSession(err) {
			return nil, err
		}
		log.Printf("[Browser] Element screenshot failed, falling back to full page: %v", err)
	}

	var buf []byte
	if err := bm.run(ctx, "failed to capture screenshot", chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}

	metrics, err := bm.Metrics(ctx)
	if err != nil {
		return nil, err
	}

	return viewportCapture(buf, metrics), nil
}

// viewportCapture wraps a viewport-only screenshot. The bitmap's origin is
// the top of the viewport, which on a scrolled page sits scrollY below the
// page origin; the crop offset records that in bitmap pixel space so the
// mapping formula holds for fallback captures too.
func viewportCapture(buf []byte, metrics ViewportMetrics) *Capture {
	ratio := metrics.DevicePixelRatio
	if ratio <= 0 {
		ratio = 1
	}
	return &Capture{
		Data:        buf,
		Width:       int(float64(metrics.Width) * ratio),
		Height:      int(float64(metrics.Height) * ratio),
		CropOffsetY: int(metrics.ScrollY * ratio),
		FullPage:    true,
		TakenAt:     time.Now(),
	}
}

// Metrics reads the live viewport geometry. Clicks re-derive coordinates
// from these values at click time; capture and click are never assumed
// synchronous.
func (bm *BrowserManager) Metrics(ctx context.Context) (ViewportMetrics, error) {
	const script = `
JSON.stringify({
    dpr: window.devicePixelRatio || 1,
    scrollY: window.pageYOffset || document.documentElement.scrollTop || 0,
    width: window.innerWidth,
    height: window.innerHeight
});
`
	var raw string
	if err := bm.run(ctx, "failed to read viewport metrics", chromedp.Evaluate(script, &raw)); err != nil {
		return ViewportMetrics{}, err
	}

	var parsed struct {
		DPR     float64 `json:"dpr"`
		ScrollY float64 `json:"scrollY"`
		Width   int     `json:"width"`
		Height  int     `json:"height"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ViewportMetrics{}, NewBrowserError("failed to parse viewport metrics", err)
	}
	if parsed.DPR <= 0 {
		parsed.DPR = 1
	}

	return ViewportMetrics{
		DevicePixelRatio: parsed.DPR,
		ScrollY:          parsed.ScrollY,
		Width:            parsed.Width,
		Height:           parsed.Height,
	}, nil
}

// ActivateAt hit-tests the topmost element at the coordinate and fires its
// native click plus a synthesized MouseEvent, the way a user activation
// would reach it.
func (bm *BrowserManager) ActivateAt(ctx context.Context, x, y float64) (bool, error) {
	script := fmt.Sprintf(`
(function() {
    const el = document.elementFromPoint(%f, %f);
    if (!el) {
        return false;
    }
    el.click();
    el.dispatchEvent(new MouseEvent('click', {
        view: window,
        bubbles: true,
        cancelable: true,
        clientX: %f,
        clientY: %f
    }));
    return true;
})();
`, x, y, x, y)

	var clicked bool
	if err := bm.run(ctx, "failed to activate element at point", chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// DispatchClick synthesizes a raw mouse press/release pair through the CDP
// input domain.
func (bm *BrowserManager) DispatchClick(ctx context.Context, x, y float64) error {
	return bm.run(ctx, "failed to dispatch mouse click", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
}

// TileCandidates lists visible captcha tiles with their viewport bounding
// boxes.
func (bm *BrowserManager) TileCandidates(ctx context.Context) ([]Tile, error) {
	const script = `
(function() {
    const selectors = [
        'img[onclick]',
        '[class*="captcha"] img',
        'img[class*="clickable"]',
        'img[class*="tile"]'
    ];
    const seen = new Set();
    const tiles = [];
    for (const selector of selectors) {
        for (const el of document.querySelectorAll(selector)) {
            if (seen.has(el)) continue;
            seen.add(el);
            const rect = el.getBoundingClientRect();
            if (rect.width === 0 || rect.height === 0) continue;
            tiles.push({
                selector: selector,
                x: rect.left,
                y: rect.top,
                width: rect.width,
                height: rect.height
            });
        }
    }
    return JSON.stringify(tiles);
})();
`
	var raw string
	if err := bm.run(ctx, "failed to query tile candidates", chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}

	var tiles []Tile
	if err := json.Unmarshal([]byte(raw), &tiles); err != nil {
		return nil, NewBrowserError("failed to parse tile candidates", err)
	}
	return tiles, nil
}

// ActivateTile clicks the tile through its center point.
func (bm *BrowserManager) ActivateTile(ctx context.Context, tile Tile) error {
	return bm.DispatchClick(ctx, tile.X+tile.Width/2, tile.Y+tile.Height/2)
}

// PageState snapshots the page for captcha detection, rate-limit scanning
// and solve confirmation.
func (bm *BrowserManager) PageState(ctx context.Context) (*PageState, error) {
	const script = `
(function() {
    const markers = [
        'img[src*="captcha"]',
        'img[alt*="captcha"]',
        '[class*="captcha"]',
        '[id*="captcha"]',
        'iframe[src*="captcha"]'
    ];
    const present = markers.some(s => document.querySelector(s) !== null);
    const body = document.body ? document.body.innerText : '';
    return JSON.stringify({
        url: window.location.href,
        title: document.title,
        bodyText: body.slice(0, 10000),
        captchaPresent: present
    });
})();
`
	var raw string
	if err := bm.run(ctx, "failed to read page state", chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}

	var parsed struct {
		URL            string `json:"url"`
		Title          string `json:"title"`
		BodyText       string `json:"bodyText"`
		CaptchaPresent bool   `json:"captchaPresent"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, NewBrowserError("failed to parse page state", err)
	}

	return &PageState{
		URL:            parsed.URL,
		Title:          parsed.Title,
		BodyText:       parsed.BodyText,
		CaptchaPresent: parsed.CaptchaPresent,
	}, nil
}

// ClickVerifyControl clicks the verify/submit button that finalizes the
// captcha form. Missing buttons are not an error; some pages auto-submit.
func (bm *BrowserManager) ClickVerifyControl(ctx context.Context) (bool, error) {
	const script = `
(function() {
    const selectors = [
        '#btnVerify',
        'button[onclick*="onSubmit"]',
        'input[type="submit"]',
        'button[type="submit"]'
    ];
    for (const selector of selectors) {
        const el = document.querySelector(selector);
        if (el && el.offsetParent !== null && !el.disabled) {
            el.click();
            return true;
        }
    }
    const words = ['verify', 'submit', 'continue'];
    for (const btn of document.querySelectorAll('button')) {
        const text = btn.textContent.toLowerCase().trim();
        if (words.some(w => text.includes(w)) && btn.offsetParent !== null && !btn.disabled) {
            btn.click();
            return true;
        }
    }
    return false;
})();
`
	var clicked bool
	if err := bm.run(ctx, "failed to click verify control", chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// Reload refreshes the page and waits for the body to render again.
func (bm *BrowserManager) Reload(ctx context.Context) error {
	return bm.run(ctx, "failed to reload page",
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}
