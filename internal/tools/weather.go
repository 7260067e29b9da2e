package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nimbuslabs/nimbus/internal/log"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	maxWeatherResponseSize = 1 << 20 // 1MB
	maxForecastDays        = 16
	defaultForecastDays    = 3
)

// weatherDescriptions maps WMO weather codes to human-readable text.
var weatherDescriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snowfall",
	73: "Moderate snowfall",
	75: "Heavy snowfall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

func describeWeatherCode(code int) string {
	if desc, ok := weatherDescriptions[code]; ok {
		return desc
	}
	return "Unknown conditions"
}

// Weather implements the get_weather and get_weather_forecast tools
// against the Open-Meteo geocoding and forecast APIs.
type Weather struct {
	client      *http.Client
	geocodeURL  string
	forecastURL string
	logger      log.Logger
}

// NewWeather creates the weather tool set. client must be non-nil;
// callers inject the SSRF-safe client.
func NewWeather(client *http.Client, logger log.Logger) *Weather {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Weather{
		client:      client,
		geocodeURL:  defaultGeocodeURL,
		forecastURL: defaultForecastURL,
		logger:      logger,
	}
}

// CurrentInput is the input for get_weather.
type CurrentInput struct {
	City string `json:"city" jsonschema_description:"City name to get current weather for, e.g. 'Tokyo' or 'San Francisco'"`
}

// ForecastInput is the input for get_weather_forecast.
type ForecastInput struct {
	City string `json:"city" jsonschema_description:"City name to get the forecast for"`
	Days int    `json:"days,omitempty" jsonschema_description:"Number of forecast days, 1-16 (default 3)"`
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type currentResponse struct {
	Current struct {
		Time             string  `json:"time"`
		Temperature      float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		PressureMSL      float64 `json:"pressure_msl"`
		WindSpeed        float64 `json:"wind_speed_10m"`
		WeatherCode      int     `json:"weather_code"`
	} `json:"current"`
}

type forecastResponse struct {
	Daily struct {
		Time           []string  `json:"time"`
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
		WeatherCode    []int     `json:"weather_code"`
	} `json:"daily"`
}

// Current fetches current conditions for a city.
func (w *Weather) Current(ctx context.Context, in CurrentInput) Result {
	city := strings.TrimSpace(in.City)
	if city == "" {
		return Errorf(ErrCodeValidation, "city is required")
	}

	loc, result := w.geocode(ctx, city)
	if result != nil {
		return *result
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("current", "temperature_2m,relative_humidity_2m,pressure_msl,wind_speed_10m,weather_code")

	var resp currentResponse
	if err := w.fetchJSON(ctx, w.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return Errorf(ErrCodeNetwork, "weather lookup failed: %v", err)
	}

	cur := resp.Current
	return Success(
		fmt.Sprintf("Current weather in %s, %s", loc.Name, loc.Country),
		map[string]any{
			"city":         loc.Name,
			"country":      loc.Country,
			"temperature":  cur.Temperature,
			"humidity":     cur.RelativeHumidity,
			"pressure":     cur.PressureMSL,
			"wind_speed":   cur.WindSpeed,
			"weather_code": cur.WeatherCode,
			"conditions":   describeWeatherCode(cur.WeatherCode),
			"observed_at":  cur.Time,
			"units": map[string]any{
				"temperature": "°C",
				"wind_speed":  "km/h",
				"pressure":    "hPa",
				"humidity":    "%",
			},
		},
	)
}

// Forecast fetches a daily forecast for a city. Days outside 1-16 are
// clamped rather than rejected.
func (w *Weather) Forecast(ctx context.Context, in ForecastInput) Result {
	city := strings.TrimSpace(in.City)
	if city == "" {
		return Errorf(ErrCodeValidation, "city is required")
	}

	days := in.Days
	if days <= 0 {
		days = defaultForecastDays
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	loc, result := w.geocode(ctx, city)
	if result != nil {
		return *result
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	q.Set("forecast_days", fmt.Sprintf("%d", days))
	q.Set("timezone", "auto")

	var resp forecastResponse
	if err := w.fetchJSON(ctx, w.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return Errorf(ErrCodeNetwork, "forecast lookup failed: %v", err)
	}

	daily := resp.Daily
	forecast := make([]map[string]any, 0, len(daily.Time))
	for i, date := range daily.Time {
		day := map[string]any{"date": date}
		if i < len(daily.TemperatureMax) {
			day["temperature_max"] = daily.TemperatureMax[i]
		}
		if i < len(daily.TemperatureMin) {
			day["temperature_min"] = daily.TemperatureMin[i]
		}
		if i < len(daily.WeatherCode) {
			day["conditions"] = describeWeatherCode(daily.WeatherCode[i])
		}
		forecast = append(forecast, day)
	}

	// "temperature" keyed off the first day so forecast payloads carry
	// the same marker current-weather payloads do.
	data := map[string]any{
		"city":     loc.Name,
		"country":  loc.Country,
		"days":     days,
		"forecast": forecast,
	}
	if len(daily.TemperatureMax) > 0 {
		data["temperature"] = daily.TemperatureMax[0]
	}

	return Success(
		fmt.Sprintf("%d-day forecast for %s, %s", days, loc.Name, loc.Country),
		data,
	)
}

type location struct {
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

// geocode resolves a city name to coordinates. On failure it returns a
// ready-to-use error result.
func (w *Weather) geocode(ctx context.Context, city string) (*location, *Result) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var resp geocodeResponse
	if err := w.fetchJSON(ctx, w.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		result := Errorf(ErrCodeNetwork, "geocoding failed: %v", err)
		return nil, &result
	}
	if len(resp.Results) == 0 {
		result := Errorf(ErrCodeNotFound, "city not found: %s", city)
		return nil, &result
	}

	r := resp.Results[0]
	return &location{
		Name:      r.Name,
		Country:   r.Country,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

func (w *Weather) fetchJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
