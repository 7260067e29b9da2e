package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const geocodeTokyoJSON = `{
	"results": [
		{"name": "Tokyo", "country": "Japan", "latitude": 35.6895, "longitude": 139.6917}
	]
}`

const currentWeatherJSON = `{
	"current": {
		"time": "2025-06-15T12:00",
		"temperature_2m": 22.5,
		"relative_humidity_2m": 60,
		"pressure_msl": 1013.2,
		"wind_speed_10m": 11.4,
		"weather_code": 2
	}
}`

const forecastJSON = `{
	"daily": {
		"time": ["2025-06-15", "2025-06-16", "2025-06-17"],
		"temperature_2m_max": [24.1, 25.3, 21.0],
		"temperature_2m_min": [17.2, 18.0, 15.5],
		"weather_code": [0, 61, 95]
	}
}`

// newTestWeather wires the tool against local stub servers.
func newTestWeather(t *testing.T, geocodeBody, forecastBody string) *Weather {
	t.Helper()

	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(geocodeBody))
	}))
	t.Cleanup(geocode.Close)

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(forecastBody))
	}))
	t.Cleanup(forecast.Close)

	w := NewWeather(&http.Client{}, nil)
	w.geocodeURL = geocode.URL
	w.forecastURL = forecast.URL
	return w
}

func TestWeatherCurrent(t *testing.T) {
	t.Parallel()
	w := newTestWeather(t, geocodeTokyoJSON, currentWeatherJSON)

	result := w.Current(context.Background(), CurrentInput{City: "Tokyo"})
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["city"] != "Tokyo" || result.Data["country"] != "Japan" {
		t.Errorf("unexpected location: %v", result.Data)
	}
	if result.Data["temperature"] != 22.5 {
		t.Errorf("expected temperature 22.5, got %v", result.Data["temperature"])
	}
	if result.Data["conditions"] != "Partly cloudy" {
		t.Errorf("expected weather code 2 mapped, got %v", result.Data["conditions"])
	}
	if _, ok := result.Data["temperature"]; !ok {
		t.Error("weather payload must carry a temperature key")
	}
}

func TestWeatherCurrentCityNotFound(t *testing.T) {
	t.Parallel()
	w := newTestWeather(t, `{"results": []}`, currentWeatherJSON)

	result := w.Current(context.Background(), CurrentInput{City: "Atlantis"})
	if result.Status != StatusError || result.Error.Code != ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", result)
	}
}

func TestWeatherCurrentEmptyCity(t *testing.T) {
	t.Parallel()
	w := newTestWeather(t, geocodeTokyoJSON, currentWeatherJSON)

	result := w.Current(context.Background(), CurrentInput{City: "   "})
	if result.Status != StatusError || result.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation error, got %+v", result)
	}
}

func TestWeatherCurrentUpstreamFailure(t *testing.T) {
	t.Parallel()

	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(geocode.Close)

	w := NewWeather(&http.Client{}, nil)
	w.geocodeURL = geocode.URL

	result := w.Current(context.Background(), CurrentInput{City: "Tokyo"})
	if result.Status != StatusError || result.Error.Code != ErrCodeNetwork {
		t.Fatalf("expected NETWORK_ERROR, got %+v", result)
	}
}

func TestWeatherForecast(t *testing.T) {
	t.Parallel()
	w := newTestWeather(t, geocodeTokyoJSON, forecastJSON)

	result := w.Forecast(context.Background(), ForecastInput{City: "Tokyo", Days: 3})
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	forecast, ok := result.Data["forecast"].([]map[string]any)
	if !ok {
		t.Fatalf("forecast missing or wrong type: %T", result.Data["forecast"])
	}
	if len(forecast) != 3 {
		t.Fatalf("expected 3 days, got %d", len(forecast))
	}
	if forecast[0]["conditions"] != "Clear sky" {
		t.Errorf("expected code 0 mapped, got %v", forecast[0]["conditions"])
	}
	if forecast[2]["conditions"] != "Thunderstorm" {
		t.Errorf("expected code 95 mapped, got %v", forecast[2]["conditions"])
	}
	if _, ok := result.Data["temperature"]; !ok {
		t.Error("forecast payload must carry a temperature key")
	}
}

func TestWeatherForecastClampsDays(t *testing.T) {
	t.Parallel()
	w := newTestWeather(t, geocodeTokyoJSON, forecastJSON)

	tests := []struct {
		name string
		days int
		want int
	}{
		{"zero defaults", 0, defaultForecastDays},
		{"negative defaults", -2, defaultForecastDays},
		{"above max clamps", 30, maxForecastDays},
		{"in range passes", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := w.Forecast(context.Background(), ForecastInput{City: "Tokyo", Days: tt.days})
			if result.Status != StatusSuccess {
				t.Fatalf("expected success, got %+v", result)
			}
			if result.Data["days"] != tt.want {
				t.Errorf("days = %v, want %d", result.Data["days"], tt.want)
			}
		})
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	t.Parallel()
	if got := describeWeatherCode(0); got != "Clear sky" {
		t.Errorf("code 0 = %q", got)
	}
	if got := describeWeatherCode(63); got != "Moderate rain" {
		t.Errorf("code 63 = %q", got)
	}
	if got := describeWeatherCode(4242); got != "Unknown conditions" {
		t.Errorf("unknown code = %q", got)
	}
}
