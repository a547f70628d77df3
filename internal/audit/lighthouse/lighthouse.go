// Package lighthouse runs the headless page audit producing Lighthouse-style
// category scores.
package lighthouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/sitevitals/vitalscan/internal/audit"
)

// Config controls the behavior of the page auditor.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Auditor implements audit.PageAuditor using chromedp and headless Chrome.
// A fresh browser context is created per Run and always torn down.
type Auditor struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a page auditor backed by chromedp.
func NewChromedp(cfg Config) (*Auditor, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Auditor{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, killing any remaining browser.
func (a *Auditor) Close() {
	a.allocCancel()
}

// timingExpr collects navigation timing facts from the rendered page.
const timingExpr = `(() => {
	const nav = performance.getEntriesByType('navigation')[0] || {};
	const paint = performance.getEntriesByType('paint').find(e => e.name === 'first-contentful-paint');
	return {
		load: nav.loadEventEnd || 0,
		dom_content: nav.domContentLoadedEventEnd || 0,
		first_paint: paint ? paint.startTime : 0,
		transfer: nav.transferSize || 0,
		requests: performance.getEntriesByType('resource').length + 1,
		nodes: document.getElementsByTagName('*').length,
	};
})()`

type pageTimings struct {
	Load       float64 `json:"load"`
	DOMContent float64 `json:"dom_content"`
	FirstPaint float64 `json:"first_paint"`
	Transfer   float64 `json:"transfer"`
	Requests   float64 `json:"requests"`
	Nodes      float64 `json:"nodes"`
}

// Run navigates to url with a headless browser and computes category scores.
// Any failure is returned as a SourceFailed result; the caller owns the
// mock-substitution policy.
func (a *Auditor) Run(ctx context.Context, rawURL string) audit.LighthouseResult {
	start := time.Now()
	fail := func(err error) audit.LighthouseResult {
		return audit.LighthouseResult{
			Source:   audit.SourceFailed,
			URL:      rawURL,
			Err:      err,
			Duration: time.Since(start),
		}
	}

	target, err := audit.ValidateURL(rawURL)
	if err != nil {
		return fail(err)
	}

	if err := a.acquire(ctx); err != nil {
		return fail(err)
	}
	defer a.release()

	taskCtx, taskCancel := chromedp.NewContext(a.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, a.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var (
		html    string
		timings pageTimings
	)
	actions := []chromedp.Action{
		a.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(timingExpr, &timings),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fail(fmt.Errorf("chromedp run: %w", err))
	}

	checks, err := analyzeHTML(html)
	if err != nil {
		return fail(err)
	}

	stats := audit.PageStats{
		LoadTimeMs:      timings.Load,
		DOMContentMs:    timings.DOMContent,
		FirstPaintMs:    timings.FirstPaint,
		TransferBytes:   timings.Transfer,
		RequestCount:    timings.Requests,
		DOMNodes:        timings.Nodes,
		FinalStatusCode: meta.status(),
	}

	return audit.LighthouseResult{
		Source:     audit.SourceReal,
		URL:        target,
		Categories: scoreCategories(stats, checks, strings.HasPrefix(target, "https://")),
		Stats:      stats,
		Duration:   time.Since(start),
	}
}

func (a *Auditor) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if a.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(a.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (a *Auditor) acquire(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	select {
	case a.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (a *Auditor) release() {
	if a.limiter == nil {
		return
	}
	select {
	case <-a.limiter:
	default:
	}
}

// responseMeta captures the document response status from CDP events.
type responseMeta struct {
	mu         sync.RWMutex
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.statusCode = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.statusCode == 0 {
		return 200
	}
	return m.statusCode
}
