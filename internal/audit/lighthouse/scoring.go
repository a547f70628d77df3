package lighthouse

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitevitals/vitalscan/internal/audit"
)

// domChecks are the DOM facts feeding the non-performance category scores.
type domChecks struct {
	HasTitle        bool
	HasMetaDesc     bool
	H1Count         int
	HasViewport     bool
	HasCanonical    bool
	HasLang         bool
	HasDoctype      bool
	ImgTotal        int
	ImgWithAlt      int
	InputTotal      int
	InputLabeled    int
	LinksWithoutRel int
}

// analyzeHTML extracts domChecks from rendered page HTML.
func analyzeHTML(html string) (domChecks, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domChecks{}, fmt.Errorf("parse html: %w", err)
	}

	var checks domChecks
	checks.HasTitle = strings.TrimSpace(doc.Find("title").First().Text()) != ""
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		checks.HasMetaDesc = strings.TrimSpace(desc) != ""
	}
	checks.H1Count = doc.Find("h1").Length()
	_, checks.HasViewport = doc.Find(`meta[name="viewport"]`).Attr("content")
	_, checks.HasCanonical = doc.Find(`link[rel="canonical"]`).Attr("href")
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		checks.HasLang = strings.TrimSpace(lang) != ""
	}
	checks.HasDoctype = strings.HasPrefix(strings.TrimSpace(strings.ToLower(html)), "<!doctype")

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		checks.ImgTotal++
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			checks.ImgWithAlt++
		}
	})
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "hidden" || t == "submit" || t == "button" {
			return
		}
		checks.InputTotal++
		if _, ok := s.Attr("aria-label"); ok {
			checks.InputLabeled++
			return
		}
		if id, ok := s.Attr("id"); ok && id != "" {
			if doc.Find(fmt.Sprintf(`label[for=%q]`, id)).Length() > 0 {
				checks.InputLabeled++
			}
		}
	})
	doc.Find(`a[target="_blank"]`).Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !strings.Contains(rel, "noopener") && !strings.Contains(rel, "noreferrer") {
			checks.LinksWithoutRel++
		}
	})

	return checks, nil
}

// scoreCategories maps raw stats and DOM facts onto 0-100 category scores.
// Pure and deterministic.
func scoreCategories(stats audit.PageStats, checks domChecks, https bool) audit.CategoryScores {
	return audit.CategoryScores{
		Performance:   scorePerformance(stats),
		Accessibility: scoreAccessibility(checks),
		SEO:           scoreSEO(checks),
		BestPractices: scoreBestPractices(stats, checks, https),
	}
}

func scorePerformance(stats audit.PageStats) float64 {
	score := 100.0
	if stats.LoadTimeMs > 500 {
		score -= (stats.LoadTimeMs - 500) / 100
	}
	if stats.TransferBytes > 500_000 {
		score -= (stats.TransferBytes - 500_000) / 100_000
	}
	if stats.DOMNodes > 1500 {
		score -= (stats.DOMNodes - 1500) / 100
	}
	return clamp(score)
}

func scoreAccessibility(checks domChecks) float64 {
	score := 100.0
	if !checks.HasLang {
		score -= 15
	}
	if checks.ImgTotal > 0 {
		missing := float64(checks.ImgTotal-checks.ImgWithAlt) / float64(checks.ImgTotal)
		score -= missing * 45
	}
	if checks.InputTotal > 0 {
		unlabeled := float64(checks.InputTotal-checks.InputLabeled) / float64(checks.InputTotal)
		score -= unlabeled * 40
	}
	return clamp(score)
}

func scoreSEO(checks domChecks) float64 {
	score := 0.0
	if checks.HasTitle {
		score += 25
	}
	if checks.HasMetaDesc {
		score += 25
	}
	if checks.H1Count == 1 {
		score += 20
	}
	if checks.HasViewport {
		score += 15
	}
	if checks.HasCanonical {
		score += 15
	}
	return clamp(score)
}

func scoreBestPractices(stats audit.PageStats, checks domChecks, https bool) float64 {
	score := 0.0
	if https {
		score += 40
	}
	if stats.FinalStatusCode > 0 && stats.FinalStatusCode < 400 {
		score += 30
	}
	if checks.HasDoctype {
		score += 15
	}
	if checks.LinksWithoutRel == 0 {
		score += 15
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
