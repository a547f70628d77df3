// Package axe runs the axe-core accessibility audit inside a headless browser.
package axe

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/sitevitals/vitalscan/internal/audit"
)

// Config controls the accessibility auditor.
type Config struct {
	// ScriptURL is the axe-core script injected into the page.
	ScriptURL         string
	UserAgent         string
	NavigationTimeout time.Duration
}

// Auditor implements audit.AccessibilityAuditor using chromedp. The axe-core
// script is injected into the target page and executed in-browser.
type Auditor struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates an accessibility auditor backed by chromedp.
func NewChromedp(cfg Config) (*Auditor, error) {
	if cfg.ScriptURL == "" {
		return nil, fmt.Errorf("axe script url is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Auditor{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, killing any remaining browser.
func (a *Auditor) Close() {
	a.allocCancel()
}

const injectTemplate = `new Promise((resolve, reject) => {
	if (window.axe) { resolve(true); return; }
	const s = document.createElement('script');
	s.src = %q;
	s.onload = () => resolve(true);
	s.onerror = () => reject(new Error('axe script load failed'));
	document.head.appendChild(s);
})`

const runExpr = `axe.run(document, {resultTypes: ['violations', 'passes', 'incomplete']})
	.then(r => ({
		violations: r.violations.map(v => ({id: v.id, impact: v.impact || '', description: v.description, helpUrl: v.helpUrl, nodes: v.nodes.length})),
		passes: r.passes.map(v => ({id: v.id, impact: v.impact || '', description: v.description, helpUrl: v.helpUrl, nodes: v.nodes.length})),
		incomplete: r.incomplete.map(v => ({id: v.id, impact: v.impact || '', description: v.description, helpUrl: v.helpUrl, nodes: v.nodes.length})),
	}))`

type axeEntry struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	HelpURL     string `json:"helpUrl"`
	Nodes       int    `json:"nodes"`
}

type axeOutput struct {
	Violations []axeEntry `json:"violations"`
	Passes     []axeEntry `json:"passes"`
	Incomplete []axeEntry `json:"incomplete"`
}

// Run audits url with axe-core. Failures come back as SourceFailed results;
// the caller owns the mock-substitution policy.
func (a *Auditor) Run(ctx context.Context, rawURL string) audit.AxeResult {
	start := time.Now()
	fail := func(err error) audit.AxeResult {
		return audit.AxeResult{
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

	taskCtx, taskCancel := chromedp.NewContext(a.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, a.cfg.NavigationTimeout)
	defer cancel()

	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}

	var (
		loaded bool
		out    axeOutput
	)
	actions := []chromedp.Action{
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(injectTemplate, a.cfg.ScriptURL), &loaded, awaitPromise),
		chromedp.Evaluate(runExpr, &out, awaitPromise),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fail(fmt.Errorf("axe run: %w", err))
	}

	return audit.AxeResult{
		Source:     audit.SourceReal,
		URL:        target,
		Violations: toFindings(out.Violations),
		Passes:     toFindings(out.Passes),
		Incomplete: toFindings(out.Incomplete),
		Duration:   time.Since(start),
	}
}

func toFindings(entries []axeEntry) []audit.AxeFinding {
	findings := make([]audit.AxeFinding, 0, len(entries))
	for _, e := range entries {
		findings = append(findings, audit.AxeFinding{
			RuleID:      e.ID,
			Impact:      e.Impact,
			Description: e.Description,
			HelpURL:     e.HelpURL,
			Nodes:       e.Nodes,
		})
	}
	return findings
}
