package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists websites, scans, metrics, issues, and subscription reads.
type Store interface {
	CreateWebsite(ctx context.Context, site Website) error
	GetWebsite(ctx context.Context, id uuid.UUID) (Website, error)
	FindWebsiteByURL(ctx context.Context, userID uuid.UUID, url string) (Website, error)

	CreateScan(ctx context.Context, scan Scan) error
	GetScan(ctx context.Context, id uuid.UUID) (Scan, error)
	MarkScanInProgress(ctx context.Context, id uuid.UUID) error
	// CompleteScan atomically inserts the metric and issue rows and flips the
	// scan to completed. A failure leaves the scan untouched.
	CompleteScan(ctx context.Context, id uuid.UUID, completedAt time.Time, artifactURI string, metrics []Metric, issues []Issue) error
	FailScan(ctx context.Context, id uuid.UUID, completedAt time.Time, errText string) error

	ListMetrics(ctx context.Context, scanID uuid.UUID) ([]Metric, error)
	ListIssues(ctx context.Context, scanID uuid.UUID) ([]Issue, error)

	GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error)
	GetUserByToken(ctx context.Context, token string) (User, error)

	Close()
}

// Queue provides enqueue/dequeue semantics for scan jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore writes raw audit artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher digests artifact payloads for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan and website IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
