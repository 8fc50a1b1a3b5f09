// Package mcp exposes the flowsheet engine as MCP tools over stdio, so
// agents can solve flowsheets, run unit calculations and inspect the
// equipment catalog without the HTTP API.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hydrolab/flowsolve/internal/solver"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/internal/validation"
)

// FlowsolveServerDeps holds the dependencies for creating a FlowsolveServer.
// Store is optional: without it, flowsolve.solve only accepts inline
// documents.
type FlowsolveServerDeps struct {
	Registry  *units.Registry
	Validator *validation.Validator
	Solver    *solver.Solver
	Store     store.Store
	Logger    *slog.Logger
}

// FlowsolveServer wraps an MCP server with flowsheet tool handlers.
type FlowsolveServer struct {
	registry  *units.Registry
	validator *validation.Validator
	solver    *solver.Solver
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowsolveServer creates a FlowsolveServer with all 4 tools registered.
func NewFlowsolveServer(deps FlowsolveServerDeps) *FlowsolveServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowsolveServer{
		registry:  deps.Registry,
		validator: deps.Validator,
		solver:    deps.Solver,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowsolve",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowsolve is a water-treatment flowsheet mass-balance engine. Use flowsolve.solve to solve a flowsheet (inline document or stored ID), flowsolve.calculate to run one unit operation, flowsolve.validate to check a flowsheet document, and flowsolve.catalog to list equipment types with their configuration ranges."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowsolveServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowsolveServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowsolveServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: solveTool(), Handler: s.handleSolve},
		{Tool: calculateTool(), Handler: s.handleCalculate},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: catalogTool(), Handler: s.handleCatalog},
	}
}

// --- Tool definitions ---

func solveTool() mcp.Tool {
	return mcp.NewTool("flowsolve.solve",
		mcp.WithDescription("Solve a flowsheet mass balance. Pass either an inline flowsheet document or the ID of a stored flowsheet."),
		mcp.WithObject("flowsheet", mcp.Description("Flowsheet document: equipment map, streams map, optional constraints")),
		mcp.WithString("flowsheet_id", mcp.Description("ID of a stored flowsheet (requires persistence)")),
	)
}

func calculateTool() mcp.Tool {
	return mcp.NewTool("flowsolve.calculate",
		mcp.WithDescription("Run a single unit operation calculation outside any flowsheet"),
		mcp.WithString("equipment_type", mcp.Required(),
			mcp.Description("Equipment type (see flowsolve.catalog)")),
		mcp.WithObject("config", mcp.Required(), mcp.Description("Equipment configuration, including feed conditions")),
		mcp.WithString("equipment_id", mcp.Description("Label used in error reporting")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowsolve.validate",
		mcp.WithDescription("Validate a flowsheet document without solving it: JSON Schema pass plus graph semantic checks"),
		mcp.WithObject("flowsheet", mcp.Required(), mcp.Description("Flowsheet document to validate")),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("flowsolve.catalog",
		mcp.WithDescription("List supported equipment types with their input/output fields and engineering ranges"),
	)
}
