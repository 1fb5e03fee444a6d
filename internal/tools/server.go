package tools

import (
	"github.com/mark3labs/mcp-go/server"
)

const serverInstructions = "Wardrobe weather tools. Use get_weather to look up the weather " +
	"for the place and day a wear entry was logged."

// NewServer creates an MCP server with the weather tools registered.
func NewServer(weather WeatherService, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wardrobe-weather",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	weatherTool := NewWeatherTool(weather)
	s.AddTool(weatherTool.Definition(), weatherTool.Handle)

	return s
}

// NewHTTPHandler serves s over MCP streamable HTTP.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath("/mcp"))
}
