// Package vitals defines core types shared across subsystems.
package vitals

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus represents the lifecycle state of a scan.
type ScanStatus string

// Scan status values persisted in the store. Transitions are monotonic:
// pending -> in-progress -> completed | failed.
const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusInProgress ScanStatus = "in-progress"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// PlanType gates how much result detail a caller may see.
type PlanType string

// Plan types recognized by the results endpoint.
const (
	PlanFree    PlanType = "free"
	PlanPremium PlanType = "premium"
)

// Website is a URL registered by a user for scanning.
type Website struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Scan is one execution of the audit pipeline against a website.
type Scan struct {
	ID          uuid.UUID  `json:"id"`
	WebsiteID   uuid.UUID  `json:"website_id"`
	Status      ScanStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	ArtifactURI string     `json:"artifact_uri,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Metric is a single named measurement produced by a scan.
type Metric struct {
	ScanID   uuid.UUID `json:"scan_id"`
	Name     string    `json:"name"`
	Value    float64   `json:"value"`
	Unit     *string   `json:"unit,omitempty"`
	Category string    `json:"category"`
}

// Issue is a free-form diagnostic finding attached to a scan.
type Issue struct {
	ScanID      uuid.UUID `json:"scan_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Category    string    `json:"category"`
}

// Subscription holds the billing state gating result detail.
// Stripe fields are written by an external billing collaborator; this
// service only reads them.
type Subscription struct {
	UserID               uuid.UUID  `json:"user_id"`
	PlanType             PlanType   `json:"plan_type"`
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	StripeCustomerID     string     `json:"-"`
	StripeSubscriptionID string     `json:"-"`
}

// Premium reports whether the subscription currently unlocks full detail.
func (s Subscription) Premium(now time.Time) bool {
	if s.PlanType != PlanPremium || s.Status != "active" {
		return false
	}
	if s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now) {
		return false
	}
	return true
}

// User is an authenticated owner of websites.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	APIToken string    `json:"-"`
}

// QueueItem wraps a scan ready to be processed by a worker.
type QueueItem struct {
	ScanID    uuid.UUID `json:"scan_id"`
	Attempt   int       `json:"attempt"`
	Submitted int64     `json:"submitted"`
}

// ScanResult aggregates everything the results endpoint returns for a
// completed scan before tier filtering is applied.
type ScanResult struct {
	Scan    Scan     `json:"scan"`
	Metrics []Metric `json:"metrics"`
	Issues  []Issue  `json:"issues"`
}
