// Package memory provides an in-memory store for development and testing.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Store implements vitals.Store with mutex-guarded maps. All multi-row
// mutations happen under one lock, mirroring the Postgres transaction
// semantics.
type Store struct {
	mu            sync.RWMutex
	websites      map[uuid.UUID]vitals.Website
	scans         map[uuid.UUID]vitals.Scan
	metrics       map[uuid.UUID][]vitals.Metric
	issues        map[uuid.UUID][]vitals.Issue
	subscriptions map[uuid.UUID]vitals.Subscription
	usersByToken  map[string]vitals.User
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		websites:      make(map[uuid.UUID]vitals.Website),
		scans:         make(map[uuid.UUID]vitals.Scan),
		metrics:       make(map[uuid.UUID][]vitals.Metric),
		issues:        make(map[uuid.UUID][]vitals.Issue),
		subscriptions: make(map[uuid.UUID]vitals.Subscription),
		usersByToken:  make(map[string]vitals.User),
	}
}

// CreateWebsite stores a new website row.
func (s *Store) CreateWebsite(_ context.Context, site vitals.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.websites[site.ID]; exists {
		return fmt.Errorf("website %s already exists", site.ID)
	}
	s.websites[site.ID] = site
	return nil
}

// GetWebsite fetches a website by ID.
func (s *Store) GetWebsite(_ context.Context, id uuid.UUID) (vitals.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.websites[id]
	if !ok {
		return vitals.Website{}, vitals.ErrNotFound
	}
	return site, nil
}

// FindWebsiteByURL looks up an active website owned by userID with the given URL.
func (s *Store) FindWebsiteByURL(_ context.Context, userID uuid.UUID, url string) (vitals.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.websites {
		if site.UserID == userID && strings.EqualFold(site.URL, url) && site.IsActive {
			return site, nil
		}
	}
	return vitals.Website{}, vitals.ErrNotFound
}

// CreateScan stores a new scan row.
func (s *Store) CreateScan(_ context.Context, scan vitals.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ID)
	}
	s.scans[scan.ID] = scan
	return nil
}

// GetScan fetches a scan by ID.
func (s *Store) GetScan(_ context.Context, id uuid.UUID) (vitals.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[id]
	if !ok {
		return vitals.Scan{}, vitals.ErrNotFound
	}
	return scan, nil
}

// MarkScanInProgress transitions a pending scan to in-progress.
func (s *Store) MarkScanInProgress(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok {
		return vitals.ErrNotFound
	}
	if scan.Status != vitals.ScanStatusPending {
		return fmt.Errorf("scan %s is %s, not pending", id, scan.Status)
	}
	scan.Status = vitals.ScanStatusInProgress
	s.scans[id] = scan
	return nil
}

// CompleteScan writes metric and issue rows and flips the scan to completed
// in one critical section.
func (s *Store) CompleteScan(
	_ context.Context,
	id uuid.UUID,
	completedAt time.Time,
	artifactURI string,
	metrics []vitals.Metric,
	issues []vitals.Issue,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok {
		return vitals.ErrNotFound
	}
	if scan.Status.Terminal() {
		return fmt.Errorf("scan %s already %s", id, scan.Status)
	}
	s.metrics[id] = append([]vitals.Metric(nil), metrics...)
	s.issues[id] = append([]vitals.Issue(nil), issues...)
	scan.Status = vitals.ScanStatusCompleted
	scan.CompletedAt = &completedAt
	scan.ArtifactURI = artifactURI
	scan.Error = ""
	s.scans[id] = scan
	return nil
}

// FailScan records a terminal failure with the error text.
func (s *Store) FailScan(_ context.Context, id uuid.UUID, completedAt time.Time, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok {
		return vitals.ErrNotFound
	}
	if scan.Status.Terminal() {
		return fmt.Errorf("scan %s already %s", id, scan.Status)
	}
	scan.Status = vitals.ScanStatusFailed
	scan.CompletedAt = &completedAt
	scan.Error = errText
	s.scans[id] = scan
	return nil
}

// ListMetrics returns the metric rows for a scan.
func (s *Store) ListMetrics(_ context.Context, scanID uuid.UUID) ([]vitals.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]vitals.Metric(nil), s.metrics[scanID]...), nil
}

// ListIssues returns the issue rows for a scan.
func (s *Store) ListIssues(_ context.Context, scanID uuid.UUID) ([]vitals.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]vitals.Issue(nil), s.issues[scanID]...), nil
}

// GetSubscription returns the subscription for a user, defaulting to free.
func (s *Store) GetSubscription(_ context.Context, userID uuid.UUID) (vitals.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	if !ok {
		return vitals.Subscription{UserID: userID, PlanType: vitals.PlanFree, Status: "active"}, nil
	}
	return sub, nil
}

// GetUserByToken resolves a user from an API token.
func (s *Store) GetUserByToken(_ context.Context, token string) (vitals.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByToken[token]
	if !ok {
		return vitals.User{}, vitals.ErrNotFound
	}
	return user, nil
}

// PutUser seeds a user for tests and development.
func (s *Store) PutUser(user vitals.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByToken[user.APIToken] = user
}

// PutSubscription seeds a subscription for tests and development.
func (s *Store) PutSubscription(sub vitals.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
}

// Close is a no-op for the memory store.
func (s *Store) Close() {}
