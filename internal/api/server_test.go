package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sitevitals/vitalscan/internal/auth"
	"github.com/sitevitals/vitalscan/internal/config"
	"github.com/sitevitals/vitalscan/internal/dispatcher"
	queuemem "github.com/sitevitals/vitalscan/internal/queue/memory"
	storemem "github.com/sitevitals/vitalscan/internal/store/memory"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDGen struct{ ids []uuid.UUID }

func (g *seqIDGen) NewID() (uuid.UUID, error) {
	if len(g.ids) == 0 {
		return uuid.New(), nil
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id, nil
}

type fixture struct {
	server *Server
	store  *storemem.Store
	queue  *queuemem.Queue
	user   vitals.User
}

func newFixture(t *testing.T, production bool) *fixture {
	t.Helper()

	store := storemem.NewStore()
	user := vitals.User{ID: uuid.New(), Email: "dev@example.com", APIToken: "tok-1"}
	store.PutUser(user)

	q := queuemem.NewQueue(16)
	d := dispatcher.New(q, nil)

	cfg := config.Config{
		Mode:   config.ModeDevelopment,
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Auth:   config.AuthConfig{BypassHeader: "X-Test-User"},
	}
	if production {
		cfg.Mode = config.ModeProduction
	}

	authn := auth.New(store, cfg.Auth.BypassHeader, cfg.Production())
	srv := NewServer(store, d, authn,
		&seqIDGen{}, fixedClock{now: time.Unix(1700000000, 0).UTC()}, cfg, zap.NewNop())

	return &fixture{server: srv, store: store, queue: q, user: user}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCreateScanEnqueuesExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := f.do(t, "POST", "/api/scan", `{"url":"https://example.com","name":"Example"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	env := decodeEnvelope(t, w)
	require.True(t, env.Success)

	var data struct {
		ScanID string `json:"scan_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	scanID, err := uuid.Parse(data.ScanID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, scanID, item.ScanID)
	require.Equal(t, 1, item.Attempt)

	// No second delivery for a single create.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	_, err = f.queue.Dequeue(shortCtx)
	require.Error(t, err)

	scan, err := f.store.GetScan(context.Background(), scanID)
	require.NoError(t, err)
	require.Equal(t, vitals.ScanStatusPending, scan.Status)
}

func TestCreateScanReusesWebsiteRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := f.do(t, "POST", "/api/scan", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	w = f.do(t, "POST", "/api/scan", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	site, err := f.store.FindWebsiteByURL(context.Background(), f.user.ID, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, f.user.ID, site.UserID)
}

func TestCreateScanRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	w := f.do(t, "POST", "/api/scan", `{"url":"ftp://example.com"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, decodeEnvelope(t, w).Success)

	w = f.do(t, "POST", "/api/scan", `{"url":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/scan", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanEndpointsRequireAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	r := httptest.NewRequest("POST", "/api/scan", strings.NewReader(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBypassHeaderRefusedInProduction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	r := httptest.NewRequest("GET", "/api/scan/status?id="+uuid.NewString(), nil)
	r.Header.Set("X-Test-User", uuid.NewString())
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func seedOwnedScan(t *testing.T, f *fixture, status vitals.ScanStatus) vitals.Scan {
	t.Helper()
	ctx := context.Background()
	site := vitals.Website{
		ID:        uuid.New(),
		UserID:    f.user.ID,
		URL:       fmt.Sprintf("https://example-%s.com", uuid.NewString()[:8]),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateWebsite(ctx, site))
	scan := vitals.Scan{
		ID:        uuid.New(),
		WebsiteID: site.ID,
		Status:    vitals.ScanStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateScan(ctx, scan))
	switch status {
	case vitals.ScanStatusInProgress:
		require.NoError(t, f.store.MarkScanInProgress(ctx, scan.ID))
	case vitals.ScanStatusCompleted:
		require.NoError(t, f.store.MarkScanInProgress(ctx, scan.ID))
		require.NoError(t, f.store.CompleteScan(ctx, scan.ID, time.Now().UTC(), "memory://a",
			[]vitals.Metric{
				{ScanID: scan.ID, Name: "performance_score", Value: 91, Category: "lighthouse"},
				{ScanID: scan.ID, Name: "security_score", Value: 75, Category: "security"},
				{ScanID: scan.ID, Name: "load_time", Value: 1200, Category: "performance"},
			},
			[]vitals.Issue{
				{ScanID: scan.ID, Title: "Missing CSP header", Severity: "high", Category: "security"},
			}))
	case vitals.ScanStatusFailed:
		require.NoError(t, f.store.MarkScanInProgress(ctx, scan.ID))
		require.NoError(t, f.store.FailScan(ctx, scan.ID, time.Now().UTC(), "chrome did not start"))
	}
	return scan
}

func TestScanStatusProgress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	cases := []struct {
		status   vitals.ScanStatus
		progress float64
	}{
		{vitals.ScanStatusPending, 0},
		{vitals.ScanStatusInProgress, 50},
		{vitals.ScanStatusCompleted, 100},
		{vitals.ScanStatusFailed, 100},
	}
	for _, tc := range cases {
		scan := seedOwnedScan(t, f, tc.status)

		w := f.do(t, "GET", "/api/scan/status?id="+scan.ID.String(), "")
		require.Equal(t, http.StatusOK, w.Code)

		env := decodeEnvelope(t, w)
		var data struct {
			Status   string  `json:"status"`
			Progress float64 `json:"progress"`
			Error    string  `json:"error"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Equal(t, string(tc.status), data.Status)
		require.Equal(t, tc.progress, data.Progress)
		if tc.status == vitals.ScanStatusFailed {
			require.Equal(t, "chrome did not start", data.Error)
		}
	}
}

func TestScanStatusErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	w := f.do(t, "GET", "/api/scan/status?id=not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "GET", "/api/scan/status?id="+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanStatusForbiddenForOtherUsers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	// Scan owned by someone else.
	ctx := context.Background()
	otherSite := vitals.Website{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		URL:      "https://other.example.com",
		IsActive: true,
	}
	require.NoError(t, f.store.CreateWebsite(ctx, otherSite))
	scan := vitals.Scan{ID: uuid.New(), WebsiteID: otherSite.ID, Status: vitals.ScanStatusPending}
	require.NoError(t, f.store.CreateScan(ctx, scan))

	w := f.do(t, "GET", "/api/scan/status?id="+scan.ID.String(), "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

type resultsData struct {
	Plan    string          `json:"plan"`
	Metrics []vitals.Metric `json:"metrics"`
	Issues  []vitals.Issue  `json:"issues"`
}

func TestScanResultsFreeTierRedaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	scan := seedOwnedScan(t, f, vitals.ScanStatusCompleted)

	w := f.do(t, "GET", "/api/scan/results?id="+scan.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var data resultsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "free", data.Plan)
	require.Empty(t, data.Issues)
	for _, m := range data.Metrics {
		require.True(t, m.Category == "lighthouse" || m.Name == "security_score",
			"free tier leaked metric %s", m.Name)
	}
}

func TestScanResultsPremiumFullDetail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.store.PutSubscription(vitals.Subscription{
		UserID:   f.user.ID,
		PlanType: vitals.PlanPremium,
		Status:   "active",
	})
	scan := seedOwnedScan(t, f, vitals.ScanStatusCompleted)

	w := f.do(t, "GET", "/api/scan/results?id="+scan.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var data resultsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "premium", data.Plan)
	require.Len(t, data.Metrics, 3)
	require.Len(t, data.Issues, 1)
}

func TestExpiredPremiumFallsBackToFreeView(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	expired := time.Unix(1600000000, 0).UTC()
	f.store.PutSubscription(vitals.Subscription{
		UserID:           f.user.ID,
		PlanType:         vitals.PlanPremium,
		Status:           "active",
		CurrentPeriodEnd: &expired,
	})
	scan := seedOwnedScan(t, f, vitals.ScanStatusCompleted)

	w := f.do(t, "GET", "/api/scan/results?id="+scan.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var data resultsData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	require.Empty(t, data.Issues)
}

func TestHealthEndpointsSkipAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	for _, path := range []string{"/healthz", "/readyz"} {
		r := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRequestIDCorrelatesLogLines(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)

	store := storemem.NewStore()
	cfg := config.Config{
		Mode:   config.ModeDevelopment,
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
	}
	srv := NewServer(store, dispatcher.New(queuemem.NewQueue(1), nil),
		auth.New(store, "", false), &seqIDGen{},
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, cfg, zap.New(core))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	reqID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, reqID)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, reqID, entries[0].ContextMap()["request_id"])
}
