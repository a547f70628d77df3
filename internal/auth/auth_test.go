package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	storemem "github.com/sitevitals/vitalscan/internal/store/memory"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

func TestBearerTokenResolvesUser(t *testing.T) {
	t.Parallel()

	store := storemem.NewStore()
	user := vitals.User{ID: uuid.New(), Email: "dev@example.com", APIToken: "tok-1"}
	store.PutUser(user)

	a := New(store, "X-Test-User", true)

	r := httptest.NewRequest("GET", "/api/scan/status", nil)
	r.Header.Set("Authorization", "Bearer tok-1")

	got, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestSessionCookieResolvesUser(t *testing.T) {
	t.Parallel()

	store := storemem.NewStore()
	user := vitals.User{ID: uuid.New(), Email: "dev@example.com", APIToken: "tok-2"}
	store.PutUser(user)

	a := New(store, "", true)

	r := httptest.NewRequest("GET", "/api/scan/status", nil)
	r.Header.Set("Cookie", sessionCookie+"=tok-2")

	got, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestMissingCredentialsUnauthorized(t *testing.T) {
	t.Parallel()

	a := New(storemem.NewStore(), "X-Test-User", true)

	r := httptest.NewRequest("GET", "/api/scan/status", nil)
	_, err := a.Authenticate(context.Background(), r)
	require.ErrorIs(t, err, vitals.ErrUnauthorized)
}

func TestUnknownTokenUnauthorized(t *testing.T) {
	t.Parallel()

	a := New(storemem.NewStore(), "", true)

	r := httptest.NewRequest("GET", "/api/scan/status", nil)
	r.Header.Set("Authorization", "Bearer nope")
	_, err := a.Authenticate(context.Background(), r)
	require.ErrorIs(t, err, vitals.ErrUnauthorized)
}

func TestBypassHeaderHonoredInDevelopment(t *testing.T) {
	t.Parallel()

	a := New(storemem.NewStore(), "X-Test-User", false)

	userID := uuid.New()
	r := httptest.NewRequest("POST", "/api/scan", nil)
	r.Header.Set("X-Test-User", userID.String())

	got, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, userID, got.ID)
}

func TestBypassHeaderRefusedInProduction(t *testing.T) {
	t.Parallel()

	a := New(storemem.NewStore(), "X-Test-User", true)

	r := httptest.NewRequest("POST", "/api/scan", nil)
	r.Header.Set("X-Test-User", uuid.New().String())

	_, err := a.Authenticate(context.Background(), r)
	require.ErrorIs(t, err, vitals.ErrUnauthorized)
}

func TestBypassHeaderRejectsMalformedID(t *testing.T) {
	t.Parallel()

	a := New(storemem.NewStore(), "X-Test-User", false)

	r := httptest.NewRequest("POST", "/api/scan", nil)
	r.Header.Set("X-Test-User", "not-a-uuid")

	_, err := a.Authenticate(context.Background(), r)
	require.ErrorIs(t, err, vitals.ErrUnauthorized)
}
