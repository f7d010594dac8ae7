package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecare/internal/modules/jobs"
	"wecare/internal/modules/ride"
	"wecare/internal/modules/syncq"
)

func TestListRidesSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/drivers/d1/rides", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rides":[{"id":"R1","patient_name":"Malee","status":"ASSIGNED","appointment_time":"2026-10-16T09:00:00Z","special_needs":["oxygen"]}]}`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", "tok", time.Second)
	rides, err := b.ListRides(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, ride.StatusAssigned, rides[0].Status)
	assert.Equal(t, []string{"oxygen"}, rides[0].SpecialNeeds)
}

func TestUpdateStatusBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/rides/R1/status", r.URL.Path)
		var body statusRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ride.StatusEnRouteToPickup, body.Status)
		assert.EqualValues(t, "d1", body.ActorID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	require.NoError(t, b.UpdateStatus(context.Background(), "R1", ride.StatusEnRouteToPickup, "d1"))
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code      int
		body      string
		retryable bool
		is        error
	}{
		{http.StatusInternalServerError, `{"error":"internal error"}`, true, nil},
		{http.StatusBadGateway, ``, true, nil},
		{http.StatusTooManyRequests, ``, true, nil},
		{http.StatusNotFound, `{"error":"ride not found"}`, false, ride.ErrNotFound},
		{http.StatusUnauthorized, `{"error":"token expired"}`, true, nil},
		{http.StatusProxyAuthRequired, ``, true, nil},
		{http.StatusForbidden, `{"error":"actor may not change this ride"}`, false, ride.ErrForbidden},
		{http.StatusConflict, `{"error":"invalid state transition","code":"invalid_state"}`, false, ride.ErrInvalidState},
		{http.StatusConflict, `{"error":"ride state conflict","code":"conflict"}`, true, ride.ErrConflict},
		{http.StatusBadRequest, `{"error":"bad request"}`, false, ride.ErrBadRequest},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = io.WriteString(w, tc.body)
		}))
		err := NewHTTPBackend(srv.URL, "", time.Second).UpdateStatus(context.Background(), "R1", ride.StatusCompleted, "d1")
		srv.Close()

		require.Error(t, err, "status %d", tc.code)
		assert.Equal(t, tc.retryable, ride.IsRetryable(err), "status %d: %v", tc.code, err)
		if tc.is != nil {
			assert.ErrorIs(t, err, tc.is, "status %d", tc.code)
		}
		if tc.code >= 500 {
			var se *ride.ServerError
			assert.ErrorAs(t, err, &se)
		}
		if tc.code == http.StatusUnauthorized || tc.code == http.StatusProxyAuthRequired {
			var ae *ride.AuthError
			assert.ErrorAs(t, err, &ae)
			assert.NotErrorIs(t, err, ride.ErrForbidden)
		}
	}
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPBackend(addr, "", time.Second).ListRides(context.Background(), "d1")
	var ne *ride.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.True(t, ride.IsRetryable(err))
}

// An expired token must halt the drain, not drop the driver's queued change.
func TestExpiredTokenKeepsQueuedChange(t *testing.T) {
	var patchCode atomic.Int32
	patchCode.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"rides":[{"id":"R1","patient_name":"Malee","status":"ASSIGNED","appointment_time":"2026-10-16T09:00:00Z","driver_id":"d1"}]}`)
			return
		}
		code := int(patchCode.Load())
		w.WriteHeader(code)
		if code != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":"token expired"}`)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	q, err := syncq.Open(ctx, syncq.NewMemoryStore(), nil)
	require.NoError(t, err)
	c, err := jobs.NewController("d1", NewHTTPBackend(srv.URL, "tok", time.Second), q, nil)
	require.NoError(t, err)

	c.Load(ctx)
	require.NoError(t, c.RequestStatusChange(ctx, "R1", ride.StatusEnRouteToPickup))
	require.Equal(t, 1, q.Len())

	patchCode.Store(http.StatusUnauthorized)
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, 1, res.Remaining)
	var ae *ride.AuthError
	assert.ErrorAs(t, res.Halted, &ae)
	assert.Equal(t, 1, q.Len())
	status, _ := c.Status("R1")
	assert.Equal(t, ride.StatusEnRouteToPickup, status)
	assert.Zero(t, c.View().Conflicts)

	patchCode.Store(http.StatusOK)
	res, err = c.Drain(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Sent, 1)
	assert.Zero(t, q.Len())
}
