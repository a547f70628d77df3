package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

func TestGetScanMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, website_id, status").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetScan(context.Background(), id)
	require.ErrorIs(t, err, vitals.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScanInProgressRequiresPendingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectExec("UPDATE scans").
		WithArgs(vitals.ScanStatusInProgress, id, vitals.ScanStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.MarkScanInProgress(context.Background(), id)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteScanRunsInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	scanID := uuid.New()
	done := time.Unix(1700000000, 0).UTC()
	ms := "ms"
	metrics := []vitals.Metric{
		{ScanID: scanID, Name: "load_time", Value: 1200, Unit: &ms, Category: "lighthouse"},
	}
	issues := []vitals.Issue{
		{ScanID: scanID, Title: "Missing HSTS header", Description: "Add Strict-Transport-Security",
			Severity: "high", Category: "security"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO metrics").
		WithArgs(scanID, "load_time", float64(1200), &ms, "lighthouse").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO issues").
		WithArgs(scanID, "high", "security", "Missing HSTS header", "Add Strict-Transport-Security").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE scans").
		WithArgs(vitals.ScanStatusCompleted, done, "gs://artifacts/scan.json", scanID,
			vitals.ScanStatusPending, vitals.ScanStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.CompleteScan(context.Background(), scanID, done, "gs://artifacts/scan.json", metrics, issues)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteScanRollsBackOnTerminalScan(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	scanID := uuid.New()
	done := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE scans").
		WithArgs(vitals.ScanStatusCompleted, done, "", scanID,
			vitals.ScanStatusPending, vitals.ScanStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = store.CompleteScan(context.Background(), scanID, done, "", nil, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscriptionDefaultsToFree(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	userID := uuid.New()
	mock.ExpectQuery("SELECT user_id, plan_type").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	sub, err := store.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, vitals.PlanFree, sub.PlanType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByToken(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, email, api_token").
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "api_token"}).
			AddRow(userID, "dev@example.com", "tok-1"))

	user, err := store.GetUserByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, userID, user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
