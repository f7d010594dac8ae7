package maps

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTravelEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Ban Nong Bua", r.URL.Query().Get("origin"))
		assert.Equal(t, "th", r.URL.Query().Get("language"))
		assert.Equal(t, "TH", r.URL.Query().Get("region"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"OK","routes":[{"summary":"1001","legs":[{"duration":{"value":2400,"text":"40 mins"},"distance":{"value":12000,"text":"12 km"}}]}]}`)
	}))
	defer srv.Close()

	svc, err := NewRouteService("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)
	d, dist, err := svc.GetTravelEstimate(context.Background(), "Ban Nong Bua", "Chiang Mai Hospital")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, d)
	assert.Equal(t, "12 km", dist)
}

func TestGetTravelEstimateNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"OK","routes":[]}`)
	}))
	defer srv.Close()

	svc, err := NewRouteService("test-key", WithBaseURL(srv.URL), WithLocale("en", "TH"))
	require.NoError(t, err)
	_, _, err = svc.GetTravelEstimate(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrNoRoute)
}
