// Package core provides error codes and HTTP helpers shared by the boundary
// service, its transport and its MCP tools.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmbounds/pkg/osm"
)

// ErrorCode defines standard error codes for tool and CLI responses
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrParseError         ErrorCode = "PARSE_ERROR"
	ErrUnclosedBoundaries ErrorCode = "UNCLOSED_BOUNDARIES"
	ErrInvalidGeometry    ErrorCode = "INVALID_GEOMETRY"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// ToolError represents a detailed error structure for tool responses
type ToolError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Details     []string `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e ToolError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new ToolError with the given code and message
func NewError(code ErrorCode, message string) *ToolError {
	return &ToolError{
		Code:    string(code),
		Message: message,
	}
}

// WithGuidance adds guidance information to the error
func (e *ToolError) WithGuidance(guidance string) *ToolError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *ToolError) WithSuggestions(suggestions ...string) *ToolError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDetails adds diagnostic lines to the error
func (e *ToolError) WithDetails(details ...string) *ToolError {
	e.Details = append(e.Details, details...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *ToolError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		// Fallback if marshaling fails
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for external service failures
func ServiceError(service string, statusCode int, message string) *ToolError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Large relations may need a higher Overpass timeout."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was invalid. Check the element id and try again."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// FromError classifies an assembly error into a ToolError. Unclosed
// boundary reports keep every dangling endpoint as a detail line.
func FromError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	var unclosed *osm.UnclosedBoundariesError
	if errors.As(err, &unclosed) {
		details := make([]string, len(unclosed.Dangling))
		for i, d := range unclosed.Dangling {
			details[i] = fmt.Sprintf("%s: way runs from %s to %s", d.Node, d.First, d.Last)
		}
		return NewError(ErrUnclosedBoundaries, fmt.Sprintf("%d endpoint(s) could not be joined", len(unclosed.Dangling))).
			WithDetails(details...).
			WithGuidance("The boundary data is incomplete. Check the listed nodes for missing or disconnected member ways.")
	}

	var pe *osm.ParseError
	if errors.As(err, &pe) {
		return NewError(ErrParseError, err.Error()).
			WithGuidance("The cached source was quarantined. Retry to fetch it again.")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrServiceTimeout, err.Error()).
			WithGuidance("Fetching the relation took too long. Large boundaries may need a longer timeout.")
	}

	if errors.Is(err, osm.ErrEndpointOccupied) {
		return NewError(ErrInvalidGeometry, err.Error()).
			WithGuidance("More than two member ways meet at one node.")
	}

	return NewError(ErrInternalError, err.Error())
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *ToolError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
