// Package openmeteo implements action.WeatherProvider against the Open-Meteo
// forecast API (no API key required).
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/intent"
)

// DefaultEndpoint is the public forecast endpoint.
const DefaultEndpoint = "https://api.open-meteo.com/v1/forecast"

// Provider fetches current conditions.
type Provider struct {
	endpoint string
	client   *http.Client
}

// New creates a Provider. An empty endpoint selects DefaultEndpoint.
func New(endpoint string) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{endpoint: strings.TrimRight(endpoint, "/"), client: &http.Client{}}
}

// Current returns the weather at loc.
func (p *Provider) Current(ctx context.Context, loc intent.Location) (action.Conditions, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Long, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return action.Conditions{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return action.Conditions{}, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return action.Conditions{}, fmt.Errorf("forecast failed (status %d): %s", resp.StatusCode, respBody)
	}

	var out struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return action.Conditions{}, fmt.Errorf("decoding forecast: %w", err)
	}

	w := action.Conditions{
		Condition:    Condition(out.Current.WeatherCode),
		TemperatureC: out.Current.Temperature,
	}
	slog.Debug("weather fetched", "location", loc.Name, "condition", w.Condition, "temp_c", w.TemperatureC)
	return w, nil
}

// Condition maps a WMO weather interpretation code to a short description.
func Condition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
