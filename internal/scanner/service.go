// Package scanner orchestrates the audit pipeline for a single scan.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/audit"
	"github.com/sitevitals/vitalscan/internal/hash/sha256"
	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Config controls orchestration policy.
type Config struct {
	// AllowMock substitutes fixed payloads when a runner fails. The caller
	// must have already refused this in production mode.
	AllowMock bool
	// ArtifactContentType is used when uploading the raw artifact.
	ArtifactContentType string
}

// Service runs the audit pipeline and persists the outcome.
type Service struct {
	cfg     Config
	store   vitals.Store
	blobs   vitals.BlobStore
	page    audit.PageAuditor
	a11y    audit.AccessibilityAuditor
	headers audit.HeaderChecker
	clock   vitals.Clock
	hasher  vitals.Hasher
	log     *zap.Logger
}

// NewService wires an orchestrator from its collaborators.
func NewService(
	cfg Config,
	store vitals.Store,
	blobs vitals.BlobStore,
	page audit.PageAuditor,
	a11y audit.AccessibilityAuditor,
	headers audit.HeaderChecker,
	clock vitals.Clock,
	log *zap.Logger,
) *Service {
	if cfg.ArtifactContentType == "" {
		cfg.ArtifactContentType = "application/json"
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		page:    page,
		a11y:    a11y,
		headers: headers,
		clock:   clock,
		hasher:  sha256.New(),
		log:     log,
	}
}

// artifact is the raw audit payload uploaded to blob storage.
type artifact struct {
	ScanID      uuid.UUID              `json:"scan_id"`
	URL         string                 `json:"url"`
	GeneratedAt time.Time              `json:"generated_at"`
	Lighthouse  audit.LighthouseResult `json:"lighthouse"`
	Axe         audit.AxeResult        `json:"axe"`
	Headers     audit.HeaderReport     `json:"headers"`
}

// ProcessScan drives one scan from pending to a terminal state. Scans that
// are already terminal are skipped so redelivered queue items stay harmless.
func (s *Service) ProcessScan(ctx context.Context, scanID uuid.UUID) error {
	scan, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if scan.Status.Terminal() {
		s.log.Info("scan already terminal, skipping",
			zap.String("scan_id", scanID.String()),
			zap.String("status", string(scan.Status)))
		return nil
	}

	site, err := s.store.GetWebsite(ctx, scan.WebsiteID)
	if err != nil {
		return s.fail(ctx, scanID, fmt.Errorf("load website %s: %w", scan.WebsiteID, err))
	}

	if scan.Status == vitals.ScanStatusPending {
		if err := s.store.MarkScanInProgress(ctx, scanID); err != nil {
			return fmt.Errorf("mark scan in progress: %w", err)
		}
	}

	lh := s.page.Run(ctx, site.URL)
	metrics.ObserveAudit("lighthouse", string(lh.Source), lh.Duration)
	if lh.Source == audit.SourceFailed && s.cfg.AllowMock {
		s.log.Warn("page audit failed, substituting mock payload",
			zap.String("scan_id", scanID.String()), zap.Error(lh.Err))
		lh = audit.MockLighthouse(site.URL)
	}

	ax := s.a11y.Run(ctx, site.URL)
	metrics.ObserveAudit("axe", string(ax.Source), ax.Duration)
	if ax.Source == audit.SourceFailed && s.cfg.AllowMock {
		s.log.Warn("accessibility audit failed, substituting mock payload",
			zap.String("scan_id", scanID.String()), zap.Error(ax.Err))
		ax = audit.MockAxe(site.URL)
	}

	hdrs := s.headers.Check(ctx, site.URL)
	metrics.ObserveAudit("headers", string(hdrs.Source), hdrs.Duration)
	if hdrs.Source == audit.SourceFailed && s.cfg.AllowMock {
		s.log.Warn("header check failed, substituting mock payload",
			zap.String("scan_id", scanID.String()), zap.Error(hdrs.Err))
		hdrs = audit.MockHeaders(site.URL)
	}

	if auditErr := firstFailure(lh, ax, hdrs); auditErr != nil {
		return s.fail(ctx, scanID, auditErr)
	}

	artifactURI := s.uploadArtifact(ctx, scanID, site.URL, lh, ax, hdrs)

	rows := buildMetrics(scanID, lh, ax, hdrs)
	issues := buildIssues(scanID, ax, hdrs)

	completedAt := s.clock.Now()
	if err := s.store.CompleteScan(ctx, scanID, completedAt, artifactURI, rows, issues); err != nil {
		return fmt.Errorf("complete scan %s: %w", scanID, err)
	}
	metrics.ObserveScan(string(vitals.ScanStatusCompleted))
	s.log.Info("scan completed",
		zap.String("scan_id", scanID.String()),
		zap.String("url", site.URL),
		zap.Float64("performance", lh.Categories.Performance),
		zap.Int("security_score", hdrs.Score),
		zap.Int("violations", len(ax.Violations)))
	return nil
}

// fail records the terminal failure and reports the original error.
func (s *Service) fail(ctx context.Context, scanID uuid.UUID, cause error) error {
	if err := s.store.FailScan(ctx, scanID, s.clock.Now(), cause.Error()); err != nil {
		s.log.Error("recording scan failure",
			zap.String("scan_id", scanID.String()), zap.Error(err))
	}
	metrics.ObserveScan(string(vitals.ScanStatusFailed))
	return fmt.Errorf("scan %s failed: %w", scanID, cause)
}

func (s *Service) uploadArtifact(
	ctx context.Context,
	scanID uuid.UUID,
	url string,
	lh audit.LighthouseResult,
	ax audit.AxeResult,
	hdrs audit.HeaderReport,
) string {
	payload, err := json.Marshal(artifact{
		ScanID:      scanID,
		URL:         url,
		GeneratedAt: s.clock.Now(),
		Lighthouse:  lh,
		Axe:         ax,
		Headers:     hdrs,
	})
	if err != nil {
		s.log.Error("marshal artifact", zap.String("scan_id", scanID.String()), zap.Error(err))
		return ""
	}
	digest, err := s.hasher.Hash(payload)
	if err != nil {
		s.log.Error("hash artifact", zap.String("scan_id", scanID.String()), zap.Error(err))
	}
	path := fmt.Sprintf("scans/%s/artifact.json", scanID)
	uri, err := s.blobs.PutObject(ctx, path, s.cfg.ArtifactContentType, payload)
	if err != nil {
		// The structured rows still land in the store, so a blob outage
		// degrades the scan rather than failing it.
		s.log.Error("upload artifact", zap.String("scan_id", scanID.String()), zap.Error(err))
		return ""
	}
	s.log.Debug("artifact uploaded",
		zap.String("scan_id", scanID.String()),
		zap.String("uri", uri),
		zap.String("sha256", digest))
	return uri
}

func firstFailure(lh audit.LighthouseResult, ax audit.AxeResult, hdrs audit.HeaderReport) error {
	if lh.Source == audit.SourceFailed {
		return fmt.Errorf("page audit: %w", lh.Err)
	}
	if ax.Source == audit.SourceFailed {
		return fmt.Errorf("accessibility audit: %w", ax.Err)
	}
	if hdrs.Source == audit.SourceFailed {
		return fmt.Errorf("header check: %w", hdrs.Err)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func buildMetrics(
	scanID uuid.UUID,
	lh audit.LighthouseResult,
	ax audit.AxeResult,
	hdrs audit.HeaderReport,
) []vitals.Metric {
	score := strPtr("score")
	ms := strPtr("ms")
	rows := []vitals.Metric{
		{ScanID: scanID, Name: "performance_score", Value: lh.Categories.Performance, Unit: score, Category: "lighthouse"},
		{ScanID: scanID, Name: "accessibility_score", Value: lh.Categories.Accessibility, Unit: score, Category: "lighthouse"},
		{ScanID: scanID, Name: "seo_score", Value: lh.Categories.SEO, Unit: score, Category: "lighthouse"},
		{ScanID: scanID, Name: "best_practices_score", Value: lh.Categories.BestPractices, Unit: score, Category: "lighthouse"},
		{ScanID: scanID, Name: "load_time", Value: lh.Stats.LoadTimeMs, Unit: ms, Category: "performance"},
		{ScanID: scanID, Name: "first_paint", Value: lh.Stats.FirstPaintMs, Unit: ms, Category: "performance"},
		{ScanID: scanID, Name: "transfer_size", Value: lh.Stats.TransferBytes, Unit: strPtr("bytes"), Category: "performance"},
		{ScanID: scanID, Name: "request_count", Value: lh.Stats.RequestCount, Unit: strPtr("count"), Category: "performance"},
		{ScanID: scanID, Name: "dom_nodes", Value: lh.Stats.DOMNodes, Unit: strPtr("count"), Category: "performance"},
		{ScanID: scanID, Name: "axe_violations", Value: float64(len(ax.Violations)), Unit: strPtr("count"), Category: "accessibility"},
		{ScanID: scanID, Name: "security_score", Value: float64(hdrs.Score), Unit: score, Category: "security"},
	}
	return rows
}

func buildIssues(scanID uuid.UUID, ax audit.AxeResult, hdrs audit.HeaderReport) []vitals.Issue {
	var issues []vitals.Issue
	for _, v := range ax.Violations {
		issues = append(issues, vitals.Issue{
			ScanID:      scanID,
			Title:       v.Description,
			Description: fmt.Sprintf("axe rule %s affects %d element(s)", v.RuleID, v.Nodes),
			Severity:    severityFromImpact(v.Impact),
			Category:    "accessibility",
		})
	}
	for _, h := range hdrs.Headers {
		if h.Present {
			continue
		}
		issues = append(issues, vitals.Issue{
			ScanID:      scanID,
			Title:       fmt.Sprintf("Missing %s header", h.Name),
			Description: h.Advice,
			Severity:    severityFromPoints(h.Points),
			Category:    "security",
		})
	}
	return issues
}

func severityFromImpact(impact string) string {
	switch impact {
	case "critical":
		return "critical"
	case "serious":
		return "high"
	case "moderate":
		return "medium"
	default:
		return "low"
	}
}

func severityFromPoints(points int) string {
	switch {
	case points >= 25:
		return "high"
	case points >= 15:
		return "medium"
	default:
		return "low"
	}
}
