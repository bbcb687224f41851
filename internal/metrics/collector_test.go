package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCollector_ToolCalls(t *testing.T) {
	c := NewCollector(quietLogger(), "acapy-mcp", "test", "stdio")

	c.ObserveTool("get_status", false, 10*time.Millisecond)
	c.ObserveTool("get_status", false, 5*time.Millisecond)
	c.ObserveTool("get_status", true, time.Millisecond)
	c.SetToolsCount(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("get_status", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("get_status", OutcomeError)))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.toolsCount))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayInfo.WithLabelValues("acapy-mcp", "test", "stdio")))
}

func TestCollector_AgentCalls(t *testing.T) {
	c := NewCollector(quietLogger(), "acapy-mcp", "test", "sse")

	c.ObserveAgentCall("GET", "/status", acapy.Success(200, []byte(`{}`)), time.Millisecond)
	c.ObserveAgentCall("POST", "/schemas", acapy.Failure(acapy.NewApplicationError(500, "boom")), time.Millisecond)
	c.ObserveAgentCall("GET", "/status", acapy.Failure(acapy.NewTransportError(nil, "refused")), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequests.WithLabelValues("GET", "200", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequests.WithLabelValues("POST", "500", acapy.KindApplication.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequests.WithLabelValues("GET", "0", acapy.KindTransport.String())))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "acapy_mcp_agent_request_duration_seconds")
}

func TestRemoteWriter_RequiresURL(t *testing.T) {
	_, err := NewRemoteWriter(quietLogger(), nil, RemoteWriteConfig{})
	assert.Error(t, err)
}

func TestRemoteWriter_PushesSnappyProtobuf(t *testing.T) {
	received := make(chan *prompb.WriteRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "prom", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))

		compressed, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		data, err := snappy.Decode(nil, compressed)
		require.NoError(t, err)
		var wr prompb.WriteRequest
		require.NoError(t, wr.Unmarshal(data))

		select {
		case received <- &wr:
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewCollector(quietLogger(), "acapy-mcp", "test", "stdio")
	c.ObserveTool("get_status", false, time.Millisecond)

	require.NoError(t, c.StartRemoteWriter(RemoteWriteConfig{
		URL:      srv.URL,
		Interval: time.Hour,
		Username: "prom",
		Password: "secret",
	}))
	defer c.StopRemoteWriter()

	select {
	case wr := <-received:
		var names []string
		for _, ts := range wr.Timeseries {
			for _, l := range ts.Labels {
				if l.Name == "__name__" {
					names = append(names, l.Value)
				}
			}
		}
		assert.Contains(t, names, "acapy_mcp_tool_calls_total")
		assert.Contains(t, names, "acapy_mcp_tool_duration_seconds_bucket")
		assert.Contains(t, names, "acapy_mcp_gateway_info")
	case <-time.After(5 * time.Second):
		t.Fatal("no push received")
	}
}
