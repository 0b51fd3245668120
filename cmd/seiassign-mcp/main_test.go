package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/seiassign/tally"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestValidateTerms(t *testing.T) {
	t.Setenv("SEI_URL", "https://sei.example.gov.br/sip/login.php")
	t.Setenv("SEI_USERNAME", "jdoe")
	t.Setenv("SEI_PASSWORD", "secret")
	path := filepath.Join(t.TempDir(), "terms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Parecer": {"atributo": "alice"}}`), 0o600))

	res, err := handleValidate()(context.Background(), callRequest("validate_terms", map[string]any{"terms_file": path}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "1 rules:")
	assert.Contains(t, text, "- 'Parecer' → alice")
}

func TestValidateTerms_MissingCredentials(t *testing.T) {
	t.Setenv("SEI_URL", "")
	t.Setenv("SEI_USERNAME", "")
	t.Setenv("SEI_PASSWORD", "")

	res, err := handleValidate()(context.Background(), callRequest("validate_terms", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "SEI_URL")
}

func TestRunAssignment_RejectsConcurrentRun(t *testing.T) {
	rn := &runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), progress: tally.NewProgress()}
	rn.mu.Lock()
	defer rn.mu.Unlock()

	res, err := rn.handleRun()(context.Background(), callRequest("run_assignment", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "already in progress")
}

func TestRunStatus_Idle(t *testing.T) {
	rn := &runner{progress: tally.NewProgress()}

	res, err := rn.handleStatus()(context.Background(), callRequest("run_status", nil))
	require.NoError(t, err)

	var snap tally.Snapshot
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &snap))
	assert.Equal(t, tally.StateIdle, snap.State)
}
