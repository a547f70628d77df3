package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/audit"
	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

type createScanRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Progress checkpoints reported by the status endpoint. The pipeline has no
// finer-grained signal, so progress is derived from status alone.
const (
	progressPending    = 0
	progressInProgress = 50
	progressTerminal   = 100
)

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	targetURL, err := audit.ValidateURL(strings.TrimSpace(req.URL))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %v", err))
		return
	}

	site, err := s.resolveWebsite(r.Context(), user, targetURL, req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	scanID, err := s.enqueueScan(r.Context(), site)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]string{"scan_id": scanID.String()})
}

// resolveWebsite reuses the caller's active website row for the URL or
// creates one.
func (s *Server) resolveWebsite(ctx context.Context, user vitals.User, url, name string) (vitals.Website, error) {
	site, err := s.store.FindWebsiteByURL(ctx, user.ID, url)
	if err == nil {
		return site, nil
	}
	if !errors.Is(err, vitals.ErrNotFound) {
		return vitals.Website{}, fmt.Errorf("find website: %w", err)
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return vitals.Website{}, fmt.Errorf("generate website id: %w", err)
	}
	site = vitals.Website{
		ID:        id,
		UserID:    user.ID,
		URL:       url,
		Name:      name,
		IsActive:  true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateWebsite(ctx, site); err != nil {
		return vitals.Website{}, fmt.Errorf("create website: %w", err)
	}
	return site, nil
}

// enqueueScan creates a pending scan row and enqueues it exactly once.
func (s *Server) enqueueScan(ctx context.Context, site vitals.Website) (uuid.UUID, error) {
	scanID, err := s.idGen.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate scan id: %w", err)
	}
	now := s.clock.Now()
	scan := vitals.Scan{
		ID:        scanID,
		WebsiteID: site.ID,
		Status:    vitals.ScanStatusPending,
		CreatedAt: now,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		return uuid.Nil, fmt.Errorf("create scan: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := vitals.QueueItem{
		ScanID:    scanID,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		// The row would otherwise sit pending forever.
		if failErr := s.store.FailScan(ctx, scanID, s.clock.Now(), "enqueue failed"); failErr != nil {
			s.logger.Error("failing unenqueued scan",
				zap.String("scan_id", scanID.String()), zap.Error(failErr))
		}
		return uuid.Nil, fmt.Errorf("enqueue scan: %w", err)
	}
	metrics.ObserveScan(string(vitals.ScanStatusPending))
	return scanID, nil
}

func (s *Server) scanStatus(w http.ResponseWriter, r *http.Request) {
	scan, _, err := s.loadOwnedScan(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"status":   scan.Status,
		"progress": progressFor(scan.Status),
		"error":    scan.Error,
	})
}

func (s *Server) scanResults(w http.ResponseWriter, r *http.Request) {
	scan, user, err := s.loadOwnedScan(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	rows, err := s.store.ListMetrics(r.Context(), scan.ID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("list metrics: %w", err))
		return
	}
	issues, err := s.store.ListIssues(r.Context(), scan.ID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("list issues: %w", err))
		return
	}

	sub, err := s.store.GetSubscription(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("load subscription: %w", err))
		return
	}
	premium := sub.Premium(s.clock.Now())
	if !premium {
		rows = categoryScoresOnly(rows)
		issues = nil
	}

	writeData(w, http.StatusOK, map[string]any{
		"scan": map[string]any{
			"id":           scan.ID,
			"status":       scan.Status,
			"error":        scan.Error,
			"created_at":   scan.CreatedAt,
			"completed_at": scan.CompletedAt,
		},
		"plan":    sub.PlanType,
		"metrics": rows,
		"issues":  issues,
	})
}

// loadOwnedScan parses the id query parameter, loads the scan, and checks
// the caller owns the website the scan belongs to.
func (s *Server) loadOwnedScan(r *http.Request) (vitals.Scan, vitals.User, error) {
	user, ok := userFrom(r.Context())
	if !ok {
		return vitals.Scan{}, vitals.User{}, vitals.ErrUnauthorized
	}
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		return vitals.Scan{}, vitals.User{}, fmt.Errorf("%w: bad scan id", vitals.ErrInvalidInput)
	}
	scan, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		return vitals.Scan{}, vitals.User{}, fmt.Errorf("load scan: %w", err)
	}
	site, err := s.store.GetWebsite(r.Context(), scan.WebsiteID)
	if err != nil {
		return vitals.Scan{}, vitals.User{}, fmt.Errorf("load website: %w", err)
	}
	if site.UserID != user.ID {
		return vitals.Scan{}, vitals.User{}, vitals.ErrForbidden
	}
	return scan, user, nil
}

func progressFor(status vitals.ScanStatus) int {
	switch {
	case status == vitals.ScanStatusPending:
		return progressPending
	case status.Terminal():
		return progressTerminal
	default:
		return progressInProgress
	}
}

// categoryScoresOnly keeps the top-level score metrics and strips the rest.
// This is the free tier view.
func categoryScoresOnly(rows []vitals.Metric) []vitals.Metric {
	var out []vitals.Metric
	for _, m := range rows {
		if m.Category == "lighthouse" || m.Name == "security_score" {
			out = append(out, m)
		}
	}
	return out
}
