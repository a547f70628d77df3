package audit

// Fixed mock payloads substituted by the orchestrator when a runner fails
// and the configuration allows it (development mode only). Values are
// stable so local dashboards render something sensible without Chromium.

// MockLighthouse returns the fixed page audit payload for url.
func MockLighthouse(url string) LighthouseResult {
	return LighthouseResult{
		Source: SourceMock,
		URL:    url,
		Categories: CategoryScores{
			Performance:   85,
			Accessibility: 90,
			SEO:           88,
			BestPractices: 92,
		},
		Stats: PageStats{
			LoadTimeMs:      1200,
			DOMContentMs:    800,
			FirstPaintMs:    600,
			TransferBytes:   350_000,
			RequestCount:    42,
			DOMNodes:        850,
			FinalStatusCode: 200,
		},
	}
}

// MockHeaders returns the fixed security header payload for url.
func MockHeaders(url string) HeaderReport {
	return HeaderReport{
		Source: SourceMock,
		URL:    url,
		Score:  65,
		Grade:  "C",
		Headers: []HeaderFinding{
			{Name: "Content-Security-Policy", Present: true, Value: "default-src 'self'", Points: 25},
			{Name: "Strict-Transport-Security", Present: true, Value: "max-age=31536000", Points: 25},
			{Name: "X-Frame-Options", Present: true, Value: "DENY", Points: 15},
			{Name: "X-Content-Type-Options", Present: false, Points: 15, Advice: "Add X-Content-Type-Options: nosniff"},
			{Name: "Referrer-Policy", Present: false, Points: 10, Advice: "Add a Referrer-Policy header"},
			{Name: "Permissions-Policy", Present: false, Points: 10, Advice: "Add a Permissions-Policy header"},
		},
	}
}

// MockAxe returns the fixed accessibility payload for url.
func MockAxe(url string) AxeResult {
	return AxeResult{
		Source: SourceMock,
		URL:    url,
		Violations: []AxeFinding{
			{
				RuleID:      "image-alt",
				Impact:      "critical",
				Description: "Images must have alternate text",
				Nodes:       2,
			},
		},
		Passes: []AxeFinding{
			{RuleID: "document-title", Description: "Documents must have a title", Nodes: 1},
			{RuleID: "html-has-lang", Description: "html element must have a lang attribute", Nodes: 1},
		},
		Incomplete: []AxeFinding{},
	}
}
