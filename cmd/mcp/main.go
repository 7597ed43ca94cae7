// riskmesh MCP server - exposes the read-only risk surface as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/riskmesh/internal/mcpserver"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL:          envOrDefault("RISKMESH_API_URL", "http://localhost:8080"),
		APIKey:          os.Getenv("RISKMESH_API_KEY"),
		OperatorAddress: os.Getenv("RISKMESH_OPERATOR_ADDRESS"),
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
