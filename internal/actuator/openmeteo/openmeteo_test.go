package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parley/internal/intent"
)

func TestCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "48.8500", r.URL.Query().Get("latitude"))
		assert.Equal(t, "2.3500", r.URL.Query().Get("longitude"))
		assert.Contains(t, r.URL.Query().Get("current"), "weather_code")
		_, _ = w.Write([]byte(`{"current":{"time":"2026-03-04T12:00","temperature_2m":21.3,"weather_code":0}}`))
	}))
	defer srv.Close()

	w, err := New(srv.URL).Current(context.Background(), intent.Location{Name: "Paris", Lat: 48.85, Long: 2.35})
	require.NoError(t, err)
	assert.Equal(t, "clear", w.Condition)
	assert.InDelta(t, 21.3, w.TemperatureC, 1e-9)
}

func TestCurrent_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Current(context.Background(), intent.Location{Lat: 1, Long: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCondition(t *testing.T) {
	cases := map[int]string{0: "clear", 2: "partly cloudy", 3: "overcast", 45: "fog", 63: "rain", 81: "rain", 73: "snow", 95: "thunderstorm", 200: "thunderstorm", 10: "unknown"}
	for code, want := range cases {
		assert.Equal(t, want, Condition(code), "code %d", code)
	}
}
