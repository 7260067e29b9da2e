package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/security"
)

// Tool names, in the order they are registered and listed.
const (
	ToolGetWeather         = "get_weather"
	ToolGetWeatherForecast = "get_weather_forecast"
	ToolWebSearch          = "web_search"
	ToolGetWebContent      = "get_web_content"
	ToolCurrentTime        = "current_time"
	ToolCalculate          = "calculate"
)

// WeatherTools lists the tools whose payloads carry weather data the
// turn manager surfaces to API clients.
var WeatherTools = map[string]bool{
	ToolGetWeather:         true,
	ToolGetWeatherForecast: true,
}

const (
	descGetWeather         = "Get current weather conditions for a city: temperature, humidity, wind, and a short description."
	descGetWeatherForecast = "Get a multi-day weather forecast for a city with daily high/low temperatures and conditions."
	descWebSearch          = "Search the web and return result titles, URLs, and snippets."
	descGetWebContent      = "Fetch a web page and extract its readable text content."
	descCurrentTime        = "Get the current date and time, optionally in a specific timezone."
	descCalculate          = "Evaluate a basic arithmetic expression (+, -, *, / and parentheses)."
)

// Setup builds the tool registry and, when g is non-nil, defines each
// tool in Genkit so the model sees its schema. Execution still goes
// through the registry: the orchestrator receives tool requests back
// from the model and calls the registry itself.
func Setup(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*Registry, []ai.ToolRef, error) {
	validator := security.NewURLValidator()
	client := validator.Client(time.Duration(cfg.WebScraper.TimeoutMs) * time.Millisecond)

	weather := NewWeather(client, logger)
	web := NewWeb(validator, client, cfg.WebScraper, logger)
	system := NewSystem()

	r := NewRegistry(logger)
	if err := registerAll(r, weather, web, system); err != nil {
		return nil, nil, err
	}

	var refs []ai.ToolRef
	if g != nil {
		refs = []ai.ToolRef{
			defineTool(g, ToolGetWeather, descGetWeather, weather.Current),
			defineTool(g, ToolGetWeatherForecast, descGetWeatherForecast, weather.Forecast),
			defineTool(g, ToolWebSearch, descWebSearch, web.Search),
			defineTool(g, ToolGetWebContent, descGetWebContent, web.FetchContent),
			defineTool(g, ToolCurrentTime, descCurrentTime, system.CurrentTime),
			defineTool(g, ToolCalculate, descCalculate, system.Calculate),
		}
	}

	logger.Info("tools registered", "count", len(r.List()))
	return r, refs, nil
}

func registerAll(r *Registry, weather *Weather, web *Web, system *System) error {
	if err := Register(r, ToolGetWeather, descGetWeather, weather.Current); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolGetWeather, err)
	}
	if err := Register(r, ToolGetWeatherForecast, descGetWeatherForecast, weather.Forecast); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolGetWeatherForecast, err)
	}
	if err := Register(r, ToolWebSearch, descWebSearch, web.Search); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolWebSearch, err)
	}
	if err := Register(r, ToolGetWebContent, descGetWebContent, web.FetchContent); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolGetWebContent, err)
	}
	if err := Register(r, ToolCurrentTime, descCurrentTime, system.CurrentTime); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolCurrentTime, err)
	}
	if err := Register(r, ToolCalculate, descCalculate, system.Calculate); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolCalculate, err)
	}
	return nil
}

// defineTool adapts a registry-style handler to a Genkit tool
// definition. Tool handlers never fail with Go errors; failures are
// carried in the Result.
func defineTool[In any](g *genkit.Genkit, name, description string, fn func(context.Context, In) Result) ai.ToolRef {
	return genkit.DefineTool(g, name, description,
		func(tc *ai.ToolContext, in In) (Result, error) {
			return fn(tc, in), nil
		})
}
