package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func assertError(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Errorf("%s: got success %s", message, ResultText(result))
	}
}

func assertSuccess(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Fatalf("%s: got error %s", message, ResultText(result))
	}
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(ResultText(result)), out); err != nil {
		t.Fatalf("decoding result %q: %v", ResultText(result), err)
	}
}
