package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server with every riskmesh tool registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("riskmesh", version, server.WithToolCapabilities(false))
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolGetRiskProfile, h.HandleGetRiskProfile)
	s.AddTool(ToolGetScoreHistory, h.HandleGetScoreHistory)
	s.AddTool(ToolGetRiskTrend, h.HandleGetRiskTrend)
	s.AddTool(ToolGetAIResult, h.HandleGetAIResult)
	s.AddTool(ToolCheckResultValidity, h.HandleCheckResultValidity)
	s.AddTool(ToolGetRewardBalance, h.HandleGetRewardBalance)
	s.AddTool(ToolListOracleSources, h.HandleListOracleSources)

	return s
}
