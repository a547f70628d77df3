// Package headers scores a site's HTTP response headers against a fixed
// rubric of recommended security headers.
package headers

import (
	"context"
	"net/http"
	"time"

	"github.com/sitevitals/vitalscan/internal/audit"
)

// rule is one rubric entry. Points are fixed; presence of the header earns
// them, absence earns zero. The total across all rules is 100.
type rule struct {
	name   string
	points int
	advice string
}

var rubric = []rule{
	{"Content-Security-Policy", 25, "Define a Content-Security-Policy to mitigate XSS and injection attacks."},
	{"Strict-Transport-Security", 25, "Enable HSTS so browsers always connect over HTTPS."},
	{"X-Frame-Options", 15, "Set X-Frame-Options to DENY or SAMEORIGIN to prevent clickjacking."},
	{"X-Content-Type-Options", 15, "Set X-Content-Type-Options: nosniff to stop MIME type sniffing."},
	{"Referrer-Policy", 10, "Set a Referrer-Policy to control referrer leakage."},
	{"Permissions-Policy", 10, "Set a Permissions-Policy to restrict powerful browser features."},
}

// Fetcher performs the single outbound request for the checker. The checker
// needs only the response headers; the body is discarded.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (int, http.Header, error)
}

// Checker implements audit.HeaderChecker.
type Checker struct {
	fetcher Fetcher
}

// New builds a Checker around the given fetcher.
func New(fetcher Fetcher) *Checker {
	return &Checker{fetcher: fetcher}
}

// Check issues one request and scores the response headers. No retries; a
// network failure comes back as a failed report for the caller to handle.
func (c *Checker) Check(ctx context.Context, rawURL string) audit.HeaderReport {
	start := time.Now()

	target, err := audit.ValidateURL(rawURL)
	if err != nil {
		return audit.HeaderReport{Source: audit.SourceFailed, URL: rawURL, Err: err, Duration: time.Since(start)}
	}

	_, hdrs, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return audit.HeaderReport{Source: audit.SourceFailed, URL: target, Err: err, Duration: time.Since(start)}
	}

	report := Score(hdrs)
	report.Source = audit.SourceReal
	report.URL = target
	report.Duration = time.Since(start)
	return report
}

// Score applies the rubric to a header set. Pure and deterministic: the same
// headers always produce the same score and grade.
func Score(hdrs http.Header) audit.HeaderReport {
	var report audit.HeaderReport
	total := 0
	for _, r := range rubric {
		value := hdrs.Get(r.name)
		finding := audit.HeaderFinding{
			Name:    r.name,
			Present: value != "",
			Value:   value,
			Points:  r.points,
		}
		if finding.Present {
			total += r.points
		} else {
			finding.Advice = r.advice
		}
		report.Headers = append(report.Headers, finding)
	}
	if total > 100 {
		total = 100
	}
	report.Score = total
	report.Grade = grade(total)
	return report
}

func grade(score int) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	case score >= 40:
		return "D"
	case score >= 20:
		return "E"
	default:
		return "F"
	}
}
