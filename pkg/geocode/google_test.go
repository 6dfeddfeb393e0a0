package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/import-engine/internal/resilience"
)

func TestGeocodeGoogle_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Tokyo Tower", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 35.6586, "lng": 139.7454},
					"location_type": "ROOFTOP"
				},
				"formatted_address": "4 Chome-2-8 Shibakoen, Minato City, Tokyo, Japan"
			}]
		}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeGoogle(context.Background(), "Tokyo Tower")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.InDelta(t, 35.6586, result.Latitude, 1e-9)
	assert.InDelta(t, 139.7454, result.Longitude, 1e-9)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.Equal(t, "4 Chome-2-8 Shibakoen, Minato City, Tokyo, Japan", result.NormalizedAddress)
}

func TestGeocodeGoogle_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeGoogle(context.Background(), "gibberish")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocodeGoogle_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT", "results": []}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	_, err := g.geocodeGoogle(context.Background(), "123 Main St")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocodeGoogle_NoKey(t *testing.T) {
	g := &geocoder{httpClient: http.DefaultClient, limiter: newTestLimiter()}

	_, err := g.geocodeGoogle(context.Background(), "123 Main St")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key not configured")
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	tests := []struct {
		locType  string
		expected string
	}{
		{"ROOFTOP", "rooftop"},
		{"RANGE_INTERPOLATED", "range"},
		{"GEOMETRIC_CENTER", "centroid"},
		{"APPROXIMATE", "approximate"},
		{"rooftop", "rooftop"},
		{"SOMETHING_NEW", "approximate"},
	}
	for _, tt := range tests {
		t.Run(tt.locType, func(t *testing.T) {
			assert.Equal(t, tt.expected, googleLocationTypeToQuality(tt.locType))
		})
	}
}
