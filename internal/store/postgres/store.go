// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store persists websites, scans and their results in Postgres.
type Store struct {
	pool pgxPool
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateWebsite inserts a website row.
func (s *Store) CreateWebsite(ctx context.Context, site vitals.Website) error {
	const query = `
INSERT INTO websites (id, user_id, url, name, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		site.ID, site.UserID, site.URL, site.Name, site.IsActive, site.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert website: %w", err)
	}
	return nil
}

// GetWebsite fetches a website by ID.
func (s *Store) GetWebsite(ctx context.Context, id uuid.UUID) (vitals.Website, error) {
	const query = `
SELECT id, user_id, url, name, is_active, created_at
FROM websites
WHERE id = $1`
	var site vitals.Website
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&site.ID, &site.UserID, &site.URL, &site.Name, &site.IsActive, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return vitals.Website{}, vitals.ErrNotFound
	}
	if err != nil {
		return vitals.Website{}, fmt.Errorf("select website: %w", err)
	}
	return site, nil
}

// FindWebsiteByURL looks up an active website owned by userID with the given URL.
func (s *Store) FindWebsiteByURL(ctx context.Context, userID uuid.UUID, url string) (vitals.Website, error) {
	const query = `
SELECT id, user_id, url, name, is_active, created_at
FROM websites
WHERE user_id = $1 AND lower(url) = lower($2) AND is_active
LIMIT 1`
	var site vitals.Website
	err := s.pool.QueryRow(ctx, query, userID, url).Scan(
		&site.ID, &site.UserID, &site.URL, &site.Name, &site.IsActive, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return vitals.Website{}, vitals.ErrNotFound
	}
	if err != nil {
		return vitals.Website{}, fmt.Errorf("select website by url: %w", err)
	}
	return site, nil
}

// CreateScan inserts a scan row.
func (s *Store) CreateScan(ctx context.Context, scan vitals.Scan) error {
	const query = `
INSERT INTO scans (id, website_id, status, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query, scan.ID, scan.WebsiteID, scan.Status, scan.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// GetScan fetches a scan by ID.
func (s *Store) GetScan(ctx context.Context, id uuid.UUID) (vitals.Scan, error) {
	const query = `
SELECT id, website_id, status, error, artifact_uri, created_at, completed_at
FROM scans
WHERE id = $1`
	var (
		scan        vitals.Scan
		errText     *string
		artifactURI *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&scan.ID, &scan.WebsiteID, &scan.Status, &errText, &artifactURI,
		&scan.CreatedAt, &scan.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return vitals.Scan{}, vitals.ErrNotFound
	}
	if err != nil {
		return vitals.Scan{}, fmt.Errorf("select scan: %w", err)
	}
	if errText != nil {
		scan.Error = *errText
	}
	if artifactURI != nil {
		scan.ArtifactURI = *artifactURI
	}
	return scan, nil
}

// MarkScanInProgress transitions a pending scan to in-progress.
func (s *Store) MarkScanInProgress(ctx context.Context, id uuid.UUID) error {
	const query = `
UPDATE scans
SET status = $1
WHERE id = $2 AND status = $3`
	tag, err := s.pool.Exec(ctx, query,
		vitals.ScanStatusInProgress, id, vitals.ScanStatusPending)
	if err != nil {
		return fmt.Errorf("mark scan in progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s is not pending", id)
	}
	return nil
}

// CompleteScan writes metric and issue rows and flips the scan to completed
// inside a single transaction.
func (s *Store) CompleteScan(
	ctx context.Context,
	id uuid.UUID,
	completedAt time.Time,
	artifactURI string,
	metrics []vitals.Metric,
	issues []vitals.Issue,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete scan: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const metricQuery = `
INSERT INTO metrics (scan_id, name, value, unit, category)
VALUES ($1, $2, $3, $4, $5)`
	for _, m := range metrics {
		if _, err := tx.Exec(ctx, metricQuery,
			m.ScanID, m.Name, m.Value, m.Unit, m.Category); err != nil {
			return fmt.Errorf("insert metric %s: %w", m.Name, err)
		}
	}

	const issueQuery = `
INSERT INTO issues (scan_id, severity, category, title, description)
VALUES ($1, $2, $3, $4, $5)`
	for _, iss := range issues {
		if _, err := tx.Exec(ctx, issueQuery,
			iss.ScanID, iss.Severity, iss.Category, iss.Title, iss.Description); err != nil {
			return fmt.Errorf("insert issue %s: %w", iss.Title, err)
		}
	}

	const scanQuery = `
UPDATE scans
SET status = $1, completed_at = $2, artifact_uri = $3, error = NULL
WHERE id = $4 AND status IN ($5, $6)`
	tag, err := tx.Exec(ctx, scanQuery,
		vitals.ScanStatusCompleted, completedAt, artifactURI, id,
		vitals.ScanStatusPending, vitals.ScanStatusInProgress)
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s is already terminal", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete scan: %w", err)
	}
	return nil
}

// FailScan records a terminal failure with the error text.
func (s *Store) FailScan(ctx context.Context, id uuid.UUID, completedAt time.Time, errText string) error {
	const query = `
UPDATE scans
SET status = $1, completed_at = $2, error = $3
WHERE id = $4 AND status IN ($5, $6)`
	tag, err := s.pool.Exec(ctx, query,
		vitals.ScanStatusFailed, completedAt, errText, id,
		vitals.ScanStatusPending, vitals.ScanStatusInProgress)
	if err != nil {
		return fmt.Errorf("fail scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s is already terminal", id)
	}
	return nil
}

// ListMetrics returns the metric rows for a scan.
func (s *Store) ListMetrics(ctx context.Context, scanID uuid.UUID) ([]vitals.Metric, error) {
	const query = `
SELECT scan_id, name, value, unit, category
FROM metrics
WHERE scan_id = $1
ORDER BY category, name`
	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("select metrics: %w", err)
	}
	defer rows.Close()

	var out []vitals.Metric
	for rows.Next() {
		var m vitals.Metric
		if err := rows.Scan(&m.ScanID, &m.Name, &m.Value, &m.Unit, &m.Category); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return out, nil
}

// ListIssues returns the issue rows for a scan.
func (s *Store) ListIssues(ctx context.Context, scanID uuid.UUID) ([]vitals.Issue, error) {
	const query = `
SELECT scan_id, severity, category, title, description
FROM issues
WHERE scan_id = $1
ORDER BY severity, title`
	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}
	defer rows.Close()

	var out []vitals.Issue
	for rows.Next() {
		var iss vitals.Issue
		if err := rows.Scan(&iss.ScanID, &iss.Severity, &iss.Category,
			&iss.Title, &iss.Description); err != nil {
			return nil, fmt.Errorf("scan issue row: %w", err)
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return out, nil
}

// GetSubscription returns the subscription for a user. Users without a row
// are treated as free tier.
func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (vitals.Subscription, error) {
	const query = `
SELECT user_id, plan_type, status, current_period_end
FROM subscriptions
WHERE user_id = $1`
	var sub vitals.Subscription
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&sub.UserID, &sub.PlanType, &sub.Status, &sub.CurrentPeriodEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return vitals.Subscription{UserID: userID, PlanType: vitals.PlanFree, Status: "active"}, nil
	}
	if err != nil {
		return vitals.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

// GetUserByToken resolves a user from an API token.
func (s *Store) GetUserByToken(ctx context.Context, token string) (vitals.User, error) {
	const query = `
SELECT id, email, api_token
FROM users
WHERE api_token = $1`
	var user vitals.User
	err := s.pool.QueryRow(ctx, query, token).Scan(&user.ID, &user.Email, &user.APIToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return vitals.User{}, vitals.ErrNotFound
	}
	if err != nil {
		return vitals.User{}, fmt.Errorf("select user by token: %w", err)
	}
	return user, nil
}
