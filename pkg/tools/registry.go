package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/core"
	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

// HandlerFunc is the signature of an MCP tool handler
type HandlerFunc = server.ToolHandlerFunc

// Registry contains all tool definitions and handlers
type Registry struct {
	logger   *slog.Logger
	boundary *BoundaryTools
}

// NewRegistry creates a new tool registry backed by assembler
func NewRegistry(logger *slog.Logger, assembler *boundary.Assembler) *Registry {
	return &Registry{
		logger:   logger,
		boundary: NewBoundaryTools(assembler),
	}
}

// ToolDefinition represents a boundary MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     HandlerFunc
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this boundary service",
			Tool:        GetVersionTool(),
			Handler:     r.HandleGetVersion,
		},
		{
			Name:        "get_boundary",
			Description: "Assemble a boundary relation into closed rings. Parameters: relation_id (number), format (string: summary, geojson, rings)",
			Tool:        GetBoundaryTool(),
			Handler:     r.boundary.HandleGetBoundary,
		},
		{
			Name:        "check_boundary",
			Description: "Report whether a boundary relation closes. Parameters: relation_id (number)",
			Tool:        CheckBoundaryTool(),
			Handler:     r.boundary.HandleCheckBoundary,
		},
	}
}

// Lookup returns the traced handler registered under name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(def.Name, def.Handler), true
		}
	}
	return nil, false
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// wrapWithTracing wraps a tool handler with a span and request metrics
func (r *Registry) wrapWithTracing(toolName string, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrToolName, toolName),
			),
		)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(start)

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			tracing.Finish(span, err, err.Error())
		case IsErrorResult(result):
			status = tracing.StatusError
			code := errorCodeOf(result)
			span.SetAttributes(attribute.String(tracing.AttrErrorType, code))
			span.SetStatus(codes.Error, code)
			monitoring.RecordError("tools", code)
		default:
			tracing.Finish(span, nil, "")
		}

		span.SetAttributes(
			attribute.String(tracing.AttrToolStatus, status),
			attribute.Int64(tracing.AttrToolDuration, duration.Milliseconds()),
		)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
		)

		return result, err
	}
}

// errorCodeOf returns the ToolError code carried by an error result, or
// "unknown" for plain error text.
func errorCodeOf(result *mcp.CallToolResult) string {
	var te core.ToolError
	if err := json.Unmarshal([]byte(ResultText(result)), &te); err != nil || te.Code == "" {
		return "unknown"
	}
	return te.Code
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
