package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sleuth/internal/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Mocks

type fakeInvestigator struct {
	mu           sync.Mutex
	transcript   string
	instructions []string
}

func (f *fakeInvestigator) Run(ctx context.Context, instruction string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions = append(f.instructions, instruction)
	return f.transcript
}

func (f *fakeInvestigator) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.instructions...)
}

type fakeReporter struct {
	data []byte
	err  error
}

func (f *fakeReporter) Generate(run agent.Run) ([]byte, error) {
	return f.data, f.err
}

func newTestServer(t *testing.T, cfg Config, inv Investigator, reg *agent.Registry, rep Reporter) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg, inv, reg, nil, rep)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postRPC(t *testing.T, ts *httptest.Server, body string) Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// Test Cases

func TestServer_Initialize(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "initialize",
		"params": {
			"protocolVersion": "2024-11-05",
			"clientInfo": {"name": "test-client", "version": "0.1.0"}
		}
	}`)

	require.Nil(t, out.Error)
	assert.EqualValues(t, 1, out.ID)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.Equal(t, ServerVersion, result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.NotNil(t, result.Capabilities.Resources)
}

func TestServer_InitializedNotificationAccepted(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "2.0", "method": "notifications/initialized"}`)
	assert.Nil(t, out.Error)
}

func TestServer_ListTools(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`)
	require.Nil(t, out.Error)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result.Tools, 1)

	tool := result.Tools[0]
	assert.Equal(t, "execute_system_command", tool.Name)
	assert.Equal(t, "SRE Batch Agent", tool.Description)
	assert.Equal(t, "object", tool.InputSchema.Type)
	require.Contains(t, tool.InputSchema.Properties, "instruction")
	assert.Equal(t, "string", tool.InputSchema.Properties["instruction"].Type)
	assert.Equal(t, []string{"instruction"}, tool.InputSchema.Required)
}

func TestServer_CallToolRunsInvestigation(t *testing.T) {
	inv := &fakeInvestigator{transcript: "🚀 **SRE Agent**: all clear"}
	ts := newTestServer(t, Config{}, inv, nil, nil)

	out := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"id": 3,
		"method": "tools/call",
		"params": {"name": "execute_system_command", "arguments": {"instruction": "check disk space"}}
	}`)
	require.Nil(t, out.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "🚀 **SRE Agent**: all clear", result.Content[0].Text)

	assert.Equal(t, []string{"check disk space"}, inv.received())
}

func TestServer_CallToolUnknownTool(t *testing.T) {
	inv := &fakeInvestigator{}
	ts := newTestServer(t, Config{}, inv, nil, nil)

	out := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"id": 4,
		"method": "tools/call",
		"params": {"name": "reboot_host", "arguments": {"instruction": "x"}}
	}`)
	require.Nil(t, out.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "unknown tool: reboot_host")
	assert.Empty(t, inv.received())
}

func TestServer_CallToolRequiresInstruction(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"id": 5,
		"method": "tools/call",
		"params": {"name": "execute_system_command", "arguments": {}}
	}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrInvalidParams, out.Error.Code)
	assert.Equal(t, "instruction is required", out.Error.Message)
}

func TestServer_MethodNotFound(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "2.0", "id": 6, "method": "prompts/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrMethodNotFound, out.Error.Code)
	assert.Contains(t, out.Error.Message, "prompts/list")
}

func TestServer_RejectsWrongJSONRPCVersion(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "1.0", "id": 7, "method": "tools/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrInvalidRequest, out.Error.Code)
}

func TestServer_RejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{not json`)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrParse, out.Error.Code)
}

func TestServer_Ping(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "2.0", "id": 8, "method": "ping"}`)
	assert.Nil(t, out.Error)
	assert.JSONEq(t, `{}`, string(out.Result))
}

func TestServer_BearerTokenAuth(t *testing.T) {
	ts := newTestServer(t, Config{APIToken: "s3cret"}, &fakeInvestigator{}, nil, nil)

	body := `{"jsonrpc": "2.0", "id": 9, "method": "ping"}`

	// No token
	resp, err := ts.Client().Post(ts.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct token
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open
	resp, err = ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ListResources(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{"jsonrpc": "2.0", "id": 10, "method": "resources/list"}`)
	require.Nil(t, out.Error)

	var result ListResourcesResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result.Resources, 2)

	uris := []string{result.Resources[0].URI, result.Resources[1].URI}
	assert.Contains(t, uris, ResourceHostFacts)
	assert.Contains(t, uris, ResourceRecentRuns)
}

func TestServer_ReadHostFactsResource(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 11,
		"method": "resources/read",
		"params": {"uri": %q}
	}`, ResourceHostFacts))
	require.Nil(t, out.Error)

	var result ReadResourceResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result.Contents, 1)
	assert.Equal(t, ResourceHostFacts, result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MimeType)

	var facts map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &facts))
	assert.Contains(t, facts, "os")
	assert.Contains(t, facts, "cpuCores")
}

func TestServer_ReadRecentRunsResource(t *testing.T) {
	registry := agent.NewRegistry()
	registry.Add(agent.Run{ID: "run-1", Instruction: "check nginx", Outcome: "final", Report: "all good"})

	ts := newTestServer(t, Config{}, &fakeInvestigator{}, registry, nil)

	out := postRPC(t, ts, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 12,
		"method": "resources/read",
		"params": {"uri": %q}
	}`, ResourceRecentRuns))
	require.Nil(t, out.Error)

	var result ReadResourceResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result.Contents, 1)

	var runs []agent.Run
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "check nginx", runs[0].Instruction)
}

func TestServer_ReadUnknownResource(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, nil, nil)

	out := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"id": 13,
		"method": "resources/read",
		"params": {"uri": "sleuth://nope"}
	}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrInvalidParams, out.Error.Code)
	assert.Contains(t, out.Error.Message, "Unknown resource")
}

func TestServer_ReportDownload(t *testing.T) {
	registry := agent.NewRegistry()
	registry.Add(agent.Run{ID: "run-9", Instruction: "check disk", Outcome: "final", Report: "disk full"})
	reporter := &fakeReporter{data: []byte("%PDF-1.4 fake")}

	ts := newTestServer(t, Config{}, &fakeInvestigator{}, registry, reporter)

	resp, err := ts.Client().Get(ts.URL + "/report/run-9")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "run-9")

	body := make([]byte, 32)
	n, _ := resp.Body.Read(body)
	assert.Equal(t, "%PDF-1.4 fake", string(body[:n]))
}

func TestServer_ReportUnknownRun(t *testing.T) {
	registry := agent.NewRegistry()
	reporter := &fakeReporter{data: []byte("%PDF")}
	ts := newTestServer(t, Config{}, &fakeInvestigator{}, registry, reporter)

	resp, err := ts.Client().Get(ts.URL + "/report/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/report/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
