package headers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the header fetch collector.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher performs the checker's single GET using a Colly collector.
type CollyFetcher struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg CollyConfig) *CollyFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &CollyFetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns status and headers.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (int, http.Header, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		status   int
		hdrs     http.Header
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		hdrs = r.Headers.Clone()
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(url); err != nil && fetchErr == nil {
			fetchErr = err
		}
		collector.Wait()
	}()

	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("header fetch canceled: %w", ctx.Err())
	case <-done:
	}

	if fetchErr != nil {
		return status, nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if hdrs == nil {
		return status, nil, fmt.Errorf("fetch %s: no response received", url)
	}
	return status, hdrs, nil
}
