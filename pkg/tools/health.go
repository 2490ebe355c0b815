package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmbounds/pkg/version"
)

// VersionInfo is the output of get_version
type VersionInfo struct {
	Version     string   `json:"version"`
	GoVersion   string   `json:"go_version,omitempty"`
	BuildTime   string   `json:"build_time,omitempty"`
	VCSRevision string   `json:"vcs_revision,omitempty"`
	Tools       []string `json:"tools"`
}

// GetVersionTool returns a tool definition for retrieving version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version, build information and tool list of the boundary service"),
	)
}

// HandleGetVersion reports the build and the tools this registry serves
func (r *Registry) HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := version.Info()
	resultBytes, err := json.Marshal(VersionInfo{
		Version:     info["version"],
		GoVersion:   info["go_version"],
		BuildTime:   info["build_date"],
		VCSRevision: info["commit"],
		Tools:       r.GetToolNames(),
	})
	if err != nil {
		r.logger.Error("failed to marshal version info", "tool", "get_version", "error", err)
		return ErrorResponse("Failed to retrieve version information"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}
