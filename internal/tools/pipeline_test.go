package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

const (
	publicDID   = `{"result":{"did":"WgWxqztrNooG92RXvxSTWv","verkey":"V"}}`
	connections = `{"results":[
		{"connection_id":"c0","state":"request","their_label":"Bob"},
		{"connection_id":"c1","state":"active","their_label":"Alice"},
		{"connection_id":"c2","state":"active","their_label":"alice "}
	]}`
	credDefs = `{"credential_definition_ids":["WgWx:3:CL:20:default","WgWx:3:CL:21:other"]}`
)

func dynamicSpy() *spyExecutor {
	return newSpy().
		on("GET", "/wallet/did/public", ok(publicDID)).
		on("GET", "/connections", ok(connections)).
		on("GET", "/credential-definitions/created", ok(credDefs)).
		on("POST", "/issue-credential-2.0/send-offer", ok(`{"cred_ex_id":"x1","state":"offer-sent"}`))
}

func TestIssueDynamic_SendsAssembledOffer(t *testing.T) {
	spy := dynamicSpy()
	c := newCatalog(spy)

	out, err := c.Call(context.Background(), "issue_credential_dynamic", Args{
		"attributes": `{"name":"Alice","degree":"Maths"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "offer-sent")

	assert.Equal(t, []string{
		"GET /wallet/did/public",
		"GET /connections",
		"GET /credential-definitions/created",
		"POST /issue-credential-2.0/send-offer",
	}, spy.paths())

	offer := spy.calls()[3].Body
	data, err := json.Marshal(offer)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"connection_id": "c1",
		"filter": {"indy": {"cred_def_id": "WgWx:3:CL:20:default", "issuer_did": "WgWxqztrNooG92RXvxSTWv"}},
		"credential_preview": {
			"@type": "issue-credential/2.0/credential-preview",
			"attributes": [{"name":"degree","value":"Maths"},{"name":"name","value":"Alice"}]
		}
	}`, string(data))
}

func TestIssueDynamic_NamedAborts(t *testing.T) {
	cases := []struct {
		name     string
		spy      *spyExecutor
		expected string
		calls    int
	}{
		{
			name:     "no public DID",
			spy:      dynamicSpy().set("GET", "/wallet/did/public", ok(`{"result":null}`)),
			expected: "Error: no public DID configured",
			calls:    1,
		},
		{
			name:     "no active connection",
			spy:      dynamicSpy().set("GET", "/connections", ok(`{"results":[{"connection_id":"c0","state":"request"}]}`)),
			expected: "Error: no active connection found",
			calls:    2,
		},
		{
			name:     "no credential definition",
			spy:      dynamicSpy().set("GET", "/credential-definitions/created", ok(`{"credential_definition_ids":[]}`)),
			expected: "Error: no credential definition found",
			calls:    3,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newCatalog(tc.spy)
			_, err := c.Call(context.Background(), "issue_credential_dynamic", Args{"attributes": map[string]interface{}{"name": "Alice"}})
			assert.Equal(t, tc.expected, errorText(t, err))
			assert.Len(t, tc.spy.calls(), tc.calls)
			assert.NotContains(t, tc.spy.paths(), "POST /issue-credential-2.0/send-offer")
		})
	}
}

func TestIssueDynamic_StepFailurePropagates(t *testing.T) {
	spy := newSpy().on("GET", "/wallet/did/public", acapy.Failure(acapy.NewTransportError(nil, "connection refused")))
	c := newCatalog(spy)

	_, err := c.Call(context.Background(), "issue_credential_dynamic", Args{"attributes": map[string]interface{}{"name": "Alice"}})
	assert.Equal(t, "Error: identity agent unreachable: connection refused", errorText(t, err))
	assert.Len(t, spy.calls(), 1)
}

func TestIssueDynamic_ExplicitIDsSkipLookups(t *testing.T) {
	spy := dynamicSpy()
	c := newCatalog(spy)

	_, err := c.Call(context.Background(), "issue_credential_dynamic", Args{
		"attributes":    map[string]interface{}{"name": "Alice"},
		"connection_id": "c9",
		"cred_def_id":   "cd9",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /wallet/did/public", "POST /issue-credential-2.0/send-offer"}, spy.paths())
}

func TestIssueDynamic_RequiresAttributes(t *testing.T) {
	spy := dynamicSpy()
	_, err := newCatalog(spy).Call(context.Background(), "issue_credential_dynamic", Args{})
	assert.Equal(t, "Error: attributes is required.", errorText(t, err))
	assert.Empty(t, spy.calls())
}

func TestSendMessageByAlias_NoMatch(t *testing.T) {
	spy := newSpy().on("GET", "/connections", ok(connections))
	c := newCatalog(spy)

	out, err := c.Call(context.Background(), "send_message_by_alias", Args{"alias": "Carol", "content": "hi"})
	require.NoError(t, err)

	var record map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "Carol", record["alias"])
	assert.Contains(t, record["error"], "no connection matches")
	assert.Equal(t, []string{"GET /connections"}, spy.paths())
}

func TestSendMessageByAlias_FansOutToEveryMatch(t *testing.T) {
	spy := newSpy().
		on("GET", "/connections", ok(connections)).
		on("POST", "/connections/c2/send-message", acapy.Failure(acapy.NewApplicationError(404, "gone")))
	c := newCatalog(spy)

	out, err := c.Call(context.Background(), "send_message_by_alias", Args{"alias": "ALICE", "content": "hi"})
	require.NoError(t, err)

	var results []MessageResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].ConnectionID)
	assert.True(t, results[0].OK)
	assert.Equal(t, "c2", results[1].ConnectionID)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "404")

	assert.ElementsMatch(t, []string{
		"GET /connections",
		"POST /connections/c1/send-message",
		"POST /connections/c2/send-message",
	}, spy.paths())
}

func TestSendMessageByAlias_Validation(t *testing.T) {
	spy := newSpy()
	_, err := newCatalog(spy).Call(context.Background(), "send_message_by_alias", Args{"alias": "Alice"})
	assert.Equal(t, "Error: Message content is required.", errorText(t, err))
	assert.Empty(t, spy.calls())
}
