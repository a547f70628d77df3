package lighthouse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitevitals/vitalscan/internal/audit"
)

const goodPage = `<!doctype html>
<html lang="en">
<head>
<title>Example Site</title>
<meta name="description" content="A well-formed page">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="canonical" href="https://example.com/">
</head>
<body>
<h1>Welcome</h1>
<img src="a.png" alt="logo">
<form><label for="q">Search</label><input id="q" type="text"></form>
<a href="https://other.example" target="_blank" rel="noopener">out</a>
</body>
</html>`

const badPage = `<html>
<head></head>
<body>
<h1>One</h1><h1>Two</h1>
<img src="a.png"><img src="b.png">
<input type="text">
<a href="https://other.example" target="_blank">out</a>
</body>
</html>`

func TestAnalyzeGoodPage(t *testing.T) {
	t.Parallel()

	checks, err := analyzeHTML(goodPage)
	require.NoError(t, err)
	require.True(t, checks.HasTitle)
	require.True(t, checks.HasMetaDesc)
	require.Equal(t, 1, checks.H1Count)
	require.True(t, checks.HasViewport)
	require.True(t, checks.HasCanonical)
	require.True(t, checks.HasLang)
	require.True(t, checks.HasDoctype)
	require.Equal(t, 1, checks.ImgTotal)
	require.Equal(t, 1, checks.ImgWithAlt)
	require.Equal(t, 1, checks.InputTotal)
	require.Equal(t, 1, checks.InputLabeled)
	require.Equal(t, 0, checks.LinksWithoutRel)
}

func TestAnalyzeBadPage(t *testing.T) {
	t.Parallel()

	checks, err := analyzeHTML(badPage)
	require.NoError(t, err)
	require.False(t, checks.HasTitle)
	require.False(t, checks.HasMetaDesc)
	require.Equal(t, 2, checks.H1Count)
	require.False(t, checks.HasLang)
	require.False(t, checks.HasDoctype)
	require.Equal(t, 2, checks.ImgTotal)
	require.Equal(t, 0, checks.ImgWithAlt)
	require.Equal(t, 1, checks.LinksWithoutRel)
}

func TestScoreGoodPageIsHigh(t *testing.T) {
	t.Parallel()

	checks, err := analyzeHTML(goodPage)
	require.NoError(t, err)
	stats := audit.PageStats{LoadTimeMs: 400, TransferBytes: 100_000, DOMNodes: 200, FinalStatusCode: 200}

	scores := scoreCategories(stats, checks, true)
	require.InDelta(t, 100, scores.Performance, 0.001)
	require.InDelta(t, 100, scores.Accessibility, 0.001)
	require.InDelta(t, 100, scores.SEO, 0.001)
	require.InDelta(t, 100, scores.BestPractices, 0.001)
}

func TestScoreBadPageIsLow(t *testing.T) {
	t.Parallel()

	checks, err := analyzeHTML(badPage)
	require.NoError(t, err)
	stats := audit.PageStats{LoadTimeMs: 9000, TransferBytes: 3_000_000, DOMNodes: 4000, FinalStatusCode: 500}

	scores := scoreCategories(stats, checks, false)
	require.Less(t, scores.Performance, 20.0)
	require.Less(t, scores.Accessibility, 50.0)
	require.InDelta(t, 0, scores.SEO, 0.001)
	require.InDelta(t, 0, scores.BestPractices, 0.001)
}

func TestScoresAreClamped(t *testing.T) {
	t.Parallel()

	stats := audit.PageStats{LoadTimeMs: 60_000, TransferBytes: 50_000_000, DOMNodes: 100_000}
	scores := scoreCategories(stats, domChecks{}, false)
	require.GreaterOrEqual(t, scores.Performance, 0.0)
	require.LessOrEqual(t, scores.Performance, 100.0)
}

func TestNewChromedpRejectsNegativeParallel(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)
}
