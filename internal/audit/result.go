// Package audit defines the shared contract between audit runners and the
// scan orchestrator.
package audit

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Source tags how a result was produced. Runners return real or failed;
// the orchestrator may substitute mock, never the runners themselves.
type Source string

// Result sources.
const (
	SourceReal   Source = "real"
	SourceMock   Source = "mock"
	SourceFailed Source = "failed"
)

// CategoryScores are the four Lighthouse-style category scores, 0-100.
type CategoryScores struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	SEO           float64 `json:"seo"`
	BestPractices float64 `json:"best_practices"`
}

// PageStats carries raw measurements behind the performance score.
type PageStats struct {
	LoadTimeMs      float64 `json:"load_time_ms"`
	DOMContentMs    float64 `json:"dom_content_ms"`
	FirstPaintMs    float64 `json:"first_paint_ms"`
	TransferBytes   float64 `json:"transfer_bytes"`
	RequestCount    float64 `json:"request_count"`
	DOMNodes        float64 `json:"dom_nodes"`
	FinalStatusCode int     `json:"final_status_code"`
}

// LighthouseResult is produced by the page audit runner.
type LighthouseResult struct {
	Source     Source         `json:"source"`
	URL        string         `json:"url"`
	Categories CategoryScores `json:"categories"`
	Stats      PageStats      `json:"stats"`
	Duration   time.Duration  `json:"-"`
	Err        error          `json:"-"`
}

// AxeFinding is one axe-core rule outcome.
type AxeFinding struct {
	RuleID      string `json:"rule_id"`
	Impact      string `json:"impact,omitempty"`
	Description string `json:"description"`
	HelpURL     string `json:"help_url,omitempty"`
	Nodes       int    `json:"nodes"`
}

// AxeResult is produced by the accessibility audit runner.
type AxeResult struct {
	Source     Source        `json:"source"`
	URL        string        `json:"url"`
	Violations []AxeFinding  `json:"violations"`
	Passes     []AxeFinding  `json:"passes"`
	Incomplete []AxeFinding  `json:"incomplete"`
	Duration   time.Duration `json:"-"`
	Err        error         `json:"-"`
}

// HeaderFinding records presence and value of one recommended header.
type HeaderFinding struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Value   string `json:"value,omitempty"`
	Points  int    `json:"points"`
	Advice  string `json:"advice,omitempty"`
}

// HeaderReport is produced by the security header checker.
type HeaderReport struct {
	Source   Source          `json:"source"`
	URL      string          `json:"url"`
	Score    int             `json:"score"`
	Grade    string          `json:"grade"`
	Headers  []HeaderFinding `json:"headers"`
	Duration time.Duration   `json:"-"`
	Err      error           `json:"-"`
}

// PageAuditor runs the Lighthouse-style page audit.
type PageAuditor interface {
	Run(ctx context.Context, url string) LighthouseResult
}

// AccessibilityAuditor runs the axe-core accessibility audit.
type AccessibilityAuditor interface {
	Run(ctx context.Context, url string) AxeResult
}

// HeaderChecker scores the response headers of the target.
type HeaderChecker interface {
	Check(ctx context.Context, url string) HeaderReport
}

// ValidateURL rejects anything but absolute http(s) URLs. Runners call this
// first so malformed input fails before a browser is launched.
func ValidateURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}
