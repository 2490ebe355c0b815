// Package tools provides the boundary MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/core"
)

// ErrorResponse returns a plain error result
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("invalid input format: %v", err)).ToMCPResult(), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("failed to parse input: %v", err)).ToMCPResult(), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling.
// Errors returned by handler are classified with toolError.
func WithParsedInput[T any](
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", handlerName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Error("handler error", "error", err)
			return toolError(err).ToMCPResult(), nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}

// toolError maps err to a ToolError, adding the not-found case core cannot
// see.
func toolError(err error) *core.ToolError {
	if errors.Is(err, boundary.ErrRelationNotFound) {
		return core.NewError(core.ErrNotFound, err.Error()).
			WithGuidance("Check the relation id on openstreetmap.org. Only relations can be assembled.")
	}
	return core.FromError(err)
}

// ValidateRelationID checks that id can name an OSM relation
func ValidateRelationID(id int64) error {
	if id <= 0 {
		return core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("relation_id must be a positive integer, got %d", id))
	}
	return nil
}

// IsErrorResult reports whether result is a tool error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// ResultText returns the first text content of result, or "" if it has none.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if t, ok := c.(mcp.TextContent); ok {
			return t.Text
		}
	}
	return ""
}
