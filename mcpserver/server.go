// Package mcpserver exposes the running sweep's status and control
// surface as a Model Context Protocol tool server, adapted from the
// teacher's own MCPServer registration pattern.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/madpsy/ldpcsim/simdriver"
)

// StatusProvider supplies the live sweep state the MCP tools report.
// SimDriver implements it directly.
type StatusProvider interface {
	RunID() string
	SweepPoints() []float64
	LatestSnapshot() (simdriver.ResultsSnapshot, bool)
}

// Stopper raises a sweep's stop flag. *StopFlag implements it directly.
type Stopper interface {
	Stop()
	Stopped() bool
}

// Server wraps an mcp-go MCPServer exposing two tools: get_sweep_status
// and request_stop, mirroring the teacher's MCPServer/NewStreamableHTTPServer
// wiring in mcp_server.go.
type Server struct {
	status     StatusProvider
	stop       Stopper
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New constructs an MCP server bound to a running simulation's status
// provider and stop flag.
func New(status StatusProvider, stop Stopper) *Server {
	s := &Server{status: status, stop: stop}

	s.mcpServer = server.NewMCPServer(
		"ldpcsim",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)

	return s
}

// Handler returns the HTTP handler to mount on a listen address.
func (s *Server) Handler() *server.StreamableHTTPServer { return s.httpServer }

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_sweep_status",
			mcp.WithDescription("Get the current belief-propagation sweep's run ID, sweep points, and the most recent results snapshot (BER, FER, average iterations) for the point in progress."),
		),
		s.handleGetSweepStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("request_stop",
			mcp.WithDescription("Request that the running sweep stop after its current frame. The in-flight point ends with the counters gathered so far, without waiting for min_fec or max_frames, and no further points are run."),
		),
		s.handleRequestStop,
	)
}

func (s *Server) handleGetSweepStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot, ok := s.status.LatestSnapshot()
	payload := map[string]interface{}{
		"run_id":       s.status.RunID(),
		"sweep_points": s.status.SweepPoints(),
		"has_snapshot": ok,
	}
	if ok {
		payload["snapshot"] = snapshot
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRequestStop(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alreadyStopped := s.stop.Stopped()
	s.stop.Stop()
	if alreadyStopped {
		return mcp.NewToolResultText("stop was already requested"), nil
	}
	return mcp.NewToolResultText("stop requested"), nil
}
