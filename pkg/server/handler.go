package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmbounds/pkg/core"
	"github.com/NERVsystems/osmbounds/pkg/tools"
)

// Handler serves the boundary tools over plain HTTP:
//
//	GET /boundary/{id}?format=summary|geojson|rings
//	GET /boundary/{id}/check
type Handler struct {
	logger   *slog.Logger
	registry *tools.Registry
	mux      *http.ServeMux
}

// NewHandler creates a new server handler
func NewHandler(registry *tools.Registry, logger *slog.Logger) *Handler {
	h := &Handler{
		logger:   logger,
		registry: registry,
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /boundary/{id}", h.handleTool("get_boundary"))
	h.mux.HandleFunc("GET /boundary/{id}/check", h.handleTool("check_boundary"))
	return h
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleTool(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeToolError(w, core.NewValidationError(core.ErrInvalidParameter, "relation id must be an integer"))
			return
		}

		handler, ok := h.registry.Lookup(name)
		if !ok {
			http.NotFound(w, r)
			return
		}

		var req mcp.CallToolRequest
		req.Params.Name = name
		args := map[string]any{"relation_id": id}
		if format := r.URL.Query().Get("format"); format != "" {
			args["format"] = format
		}
		req.Params.Arguments = args

		result, err := handler(r.Context(), req)
		if err != nil {
			h.logger.Error("tool failed", "tool", name, "error", err)
			writeToolError(w, core.NewError(core.ErrInternalError, err.Error()))
			return
		}

		content := tools.ResultText(result)
		status := http.StatusOK
		if result.IsError {
			var te core.ToolError
			if err := json.Unmarshal([]byte(content), &te); err == nil {
				status = statusForCode(core.ErrorCode(te.Code))
			} else {
				status = http.StatusInternalServerError
			}
		}

		w.Header().Set("Content-Type", contentType(r, result))
		w.WriteHeader(status)
		if _, err := w.Write([]byte(content)); err != nil {
			h.logger.Error("failed to write response", "tool", name, "error", err)
		}
	}
}

func contentType(r *http.Request, result *mcp.CallToolResult) string {
	if !result.IsError && r.URL.Query().Get("format") == tools.FormatGeoJSON {
		return "application/geo+json"
	}
	return "application/json"
}

func writeToolError(w http.ResponseWriter, te *core.ToolError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForCode(core.ErrorCode(te.Code)))
	_ = json.NewEncoder(w).Encode(te)
}

// statusForCode maps a tool error code to an HTTP status
func statusForCode(code core.ErrorCode) int {
	switch code {
	case core.ErrInvalidInput, core.ErrMissingParameter, core.ErrInvalidParameter:
		return http.StatusBadRequest
	case core.ErrUnauthorized:
		return http.StatusUnauthorized
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrUnclosedBoundaries, core.ErrInvalidGeometry:
		return http.StatusUnprocessableEntity
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrServiceTimeout:
		return http.StatusGatewayTimeout
	case core.ErrServiceUnavailable, core.ErrNetworkError, core.ErrParseError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
