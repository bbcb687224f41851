package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/config"
	"github.com/praxis/acapy-mcp-gateway/internal/metrics"
	"github.com/praxis/acapy-mcp-gateway/internal/tools"
)

type stubExecutor struct {
	mu      sync.Mutex
	reqs    []acapy.Request
	respond func(acapy.Request) acapy.Outcome
}

func (s *stubExecutor) Execute(_ context.Context, req acapy.Request) (acapy.Outcome, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.respond(req), nil
}

func (s *stubExecutor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func respondWith(out acapy.Outcome) *stubExecutor {
	return &stubExecutor{respond: func(acapy.Request) acapy.Outcome { return out }}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newGateway(exec acapy.Executor) (*Gateway, *metrics.Collector) {
	log := quietLogger()
	catalog := tools.NewCatalog(tools.Deps{
		Executor:          exec,
		InvitationBaseURL: "http://localhost:8030",
		Logger:            log,
	})
	collector := metrics.NewCollector(log, "acapy-mcp-gateway", "test", "stdio")
	return New(catalog, collector, log), collector
}

func TestInvoke_Success(t *testing.T) {
	exec := respondWith(acapy.Success(200, []byte(`{"version":"0.12.1"}`)))
	g, collector := newGateway(exec)

	res := g.Call(context.Background(), "get_status", nil)
	assert.False(t, res.Failed)
	assert.Contains(t, res.Text, `"version": "0.12.1"`)
	assert.Equal(t, 1, exec.count())

	count, err := testutil.GatherAndCount(collector.Registry(), "acapy_mcp_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInvoke_FailuresBecomeText(t *testing.T) {
	exec := respondWith(acapy.Failure(acapy.NewApplicationError(500, `{"detail":"boom"}`)))
	g, _ := newGateway(exec)

	text := g.Invoke(context.Background(), "get_status", map[string]interface{}{})
	assert.Contains(t, text, "Error:")
	assert.Contains(t, text, "500")
	assert.Contains(t, text, "boom")
}

func TestInvoke_ValidationMakesNoCall(t *testing.T) {
	exec := respondWith(acapy.Success(200, []byte(`{}`)))
	g, _ := newGateway(exec)

	res := g.Call(context.Background(), "send_basic_message", map[string]interface{}{"conn_id": " ", "content": "hi"})
	assert.True(t, res.Failed)
	assert.Equal(t, "Error: Connection ID is required.", res.Text)
	assert.Zero(t, exec.count())
}

func TestInvoke_UnknownTool(t *testing.T) {
	exec := respondWith(acapy.Success(200, []byte(`{}`)))
	g, _ := newGateway(exec)

	res := g.Call(context.Background(), "no_such_tool", nil)
	assert.True(t, res.Failed)
	assert.Equal(t, `Error: unknown tool "no_such_tool"`, res.Text)
	assert.Zero(t, exec.count())
}

func TestInvoke_RecoversFromPanic(t *testing.T) {
	exec := &stubExecutor{respond: func(acapy.Request) acapy.Outcome { panic("executor exploded") }}
	g, _ := newGateway(exec)

	var res Result
	assert.NotPanics(t, func() {
		res = g.Call(context.Background(), "get_status", nil)
	})
	assert.True(t, res.Failed)
	assert.Contains(t, res.Text, "Error: internal error")
	assert.Contains(t, res.Text, "executor exploded")
}

func TestInvoke_CancelledContextReachesExecutor(t *testing.T) {
	var seen context.Context
	g, _ := newGateway(execFunc(func(ctx context.Context, _ acapy.Request) (acapy.Outcome, error) {
		seen = ctx
		return acapy.Success(200, []byte(`{}`)), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.Invoke(ctx, "get_status", nil)
	require.NotNil(t, seen)
	assert.ErrorIs(t, seen.Err(), context.Canceled)
}

type execFunc func(context.Context, acapy.Request) (acapy.Outcome, error)

func (f execFunc) Execute(ctx context.Context, req acapy.Request) (acapy.Outcome, error) {
	return f(ctx, req)
}

type rpcResult struct {
	Result struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Properties map[string]map[string]interface{} `json:"properties"`
				Required   []string                          `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func rpc(t *testing.T, g *Gateway, message string) rpcResult {
	t.Helper()
	mcpServer := g.NewMCPServer("acapy-mcp-gateway", "test")
	resp := mcpServer.HandleMessage(context.Background(), json.RawMessage(message))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out rpcResult
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestMCP_ListsTypedTools(t *testing.T) {
	g, _ := newGateway(respondWith(acapy.Success(200, []byte(`{}`))))

	out := rpc(t, g, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, out.Result.Tools, len(g.Catalog().Entries()))

	byName := map[string]int{}
	for i, tool := range out.Result.Tools {
		byName[tool.Name] = i
	}
	require.Contains(t, byName, "send_basic_message")
	send := out.Result.Tools[byName["send_basic_message"]]
	assert.ElementsMatch(t, []string{"conn_id", "content"}, send.InputSchema.Required)
	assert.Equal(t, "string", send.InputSchema.Properties["conn_id"]["type"])

	require.Contains(t, byName, "create_oob_invitation")
	oob := out.Result.Tools[byName["create_oob_invitation"]]
	assert.Equal(t, "boolean", oob.InputSchema.Properties["handshake"]["type"])
	assert.Equal(t, true, oob.InputSchema.Properties["handshake"]["default"])
	assert.Equal(t, "object", oob.InputSchema.Properties["metadata"]["type"])
}

func TestMCP_CallReturnsText(t *testing.T) {
	g, _ := newGateway(respondWith(acapy.Success(200, []byte(`{"ok":true}`))))

	out := rpc(t, g, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_status","arguments":{}}}`)
	require.Len(t, out.Result.Content, 1)
	assert.Equal(t, "text", out.Result.Content[0].Type)
	assert.Contains(t, out.Result.Content[0].Text, `"ok": true`)
	assert.False(t, out.Result.IsError)
}

func TestMCP_CallFailureSetsIsError(t *testing.T) {
	g, _ := newGateway(respondWith(acapy.Failure(acapy.NewTransportError(nil, "connection refused"))))

	out := rpc(t, g, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_status","arguments":{}}}`)
	require.Len(t, out.Result.Content, 1)
	assert.Equal(t, "Error: identity agent unreachable: connection refused", out.Result.Content[0].Text)
	assert.True(t, out.Result.IsError)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	g, collector := newGateway(respondWith(acapy.Success(200, []byte(`{}`))))
	srv := NewServer(g, config.ServerConfig{Name: "acapy-mcp-gateway", Version: "test", Transport: "sse"}, collector.Registry())
	g.Invoke(context.Background(), "get_status", nil)

	router := srv.Router(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, len(g.Catalog().Entries()), health["tools"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `acapy_mcp_tool_calls_total{outcome="ok",tool="get_status"} 1`)
	assert.Contains(t, rec.Body.String(), "acapy_mcp_tools_count")
}

func TestServe_StdioStopsOnCancel(t *testing.T) {
	g, _ := newGateway(respondWith(acapy.Success(200, []byte(`{}`))))
	srv := NewServer(g, config.ServerConfig{Name: "acapy-mcp-gateway", Version: "test", Transport: "stdio"}, nil)

	in, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeStdio(ctx, in, io.Discard) }()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stdio server did not stop")
	}
}
