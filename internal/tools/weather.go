// Package tools exposes the weather gate to the chat assistant as MCP tools.
//
// Each tool is a struct with its dependencies injected, a Definition that
// returns the mcp.Tool schema and a Handle that processes a call. Failures the
// assistant can act on are returned as tool errors, not Go errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kjstillabower/wardrobe-weather/internal/client"
	"github.com/kjstillabower/wardrobe-weather/internal/service"
	"github.com/kjstillabower/wardrobe-weather/internal/validation"
)

// WeatherService is the gate the tool calls.
type WeatherService interface {
	GetWeather(ctx context.Context, req service.Request) (service.Result, error)
}

// WeatherTool handles the get_weather MCP tool.
type WeatherTool struct {
	weather WeatherService
}

// NewWeatherTool creates a WeatherTool backed by the given gate.
func NewWeatherTool(weather WeatherService) *WeatherTool {
	return &WeatherTool{weather: weather}
}

// Definition returns the MCP tool definition for get_weather.
func (t *WeatherTool) Definition() mcp.Tool {
	return mcp.NewTool("get_weather",
		mcp.WithDescription(
			"Get the weather for a place and day, e.g. the day an outfit was worn. "+
				"Results are cached per ~1 km grid cell and date, so repeated calls are cheap.",
		),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("Latitude in decimal degrees (-90 to 90)"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("Longitude in decimal degrees (-180 to 180)"),
		),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Calendar date in YYYY-MM-DD format"),
		),
		mcp.WithString("unit_group",
			mcp.Description("Unit system (default: us)"),
			mcp.Enum(validation.UnitGroups...),
		),
	)
}

// weatherResponse is the text body returned to the assistant.
type weatherResponse struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Date      string          `json:"date"`
	Cached    bool            `json:"cached"`
	Weather   json.RawMessage `json:"weather"`
}

// Handle processes the get_weather tool call.
func (t *WeatherTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	lat, err := numberArg(args, "latitude")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lon, err := numberArg(args, "longitude")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.weather.GetWeather(ctx, service.Request{
		Latitude:  lat,
		Longitude: lon,
		Date:      req.GetString("date", ""),
		UnitGroup: req.GetString("unit_group", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	body, err := json.Marshal(weatherResponse{
		Latitude:  result.Latitude,
		Longitude: result.Longitude,
		Date:      result.Date,
		Cached:    result.Cached,
		Weather:   result.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode weather result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// numberArg returns nil for an absent argument. JSON numbers arrive as float64;
// numeric strings are accepted because some clients send them.
func numberArg(args map[string]any, key string) (*float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case float64:
		return &v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("'%s' must be a number", key)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("'%s' must be a number", key)
	}
}

func toolErrorMessage(err error) string {
	var vErr *service.ValidationError
	var cfgErr *service.ConfigurationError
	var upErr *client.UpstreamError
	switch {
	case errors.As(err, &vErr):
		return vErr.Message
	case errors.As(err, &cfgErr):
		return cfgErr.Message
	case errors.As(err, &upErr):
		return upErr.Error()
	case errors.Is(err, client.ErrCircuitOpen):
		return "weather provider temporarily unavailable"
	default:
		return fmt.Sprintf("failed to fetch weather: %v", err)
	}
}
