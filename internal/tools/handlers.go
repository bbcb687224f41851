package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/invitation"
)

const (
	didExchangeProtocol = "https://didcomm.org/didexchange/1.0"
	fanoutConcurrency   = 4
)

func handlerEntries() []*Entry {
	return []*Entry{
		oobInvitationEntry(),
		issueDynamicEntry(),
		sendByAliasEntry(),
		bearerTokenEntry(),
	}
}

func oobInvitationEntry() *Entry {
	return &Entry{
		Name: "create_oob_invitation",
		Description: "Create an out-of-band invitation and return it as a shareable connection URL " +
			"(the agent's raw response is returned when it contains no invitation)",
		Params: []Param{
			{Name: "alias", Type: TypeString, Description: "Alias for the resulting connection", Default: "Default Alias"},
			{Name: "my_label", Type: TypeString, Description: "Label shown to the invitee", Default: "Default Label"},
			{Name: "handshake", Type: TypeBoolean, Description: "Request a DID exchange handshake", Default: true},
			{Name: "use_public_did", Type: TypeBoolean, Description: "Use the public DID in the invitation", Default: false},
			{Name: "metadata", Type: TypeObject, Description: "Metadata attached to the invitation"},
		},
		Auth:    true,
		Handler: createOOBInvitation,
	}
}

func createOOBInvitation(ctx context.Context, c *Catalog, args Args) (string, error) {
	alias := args.String("alias")
	if alias == "" {
		alias = "Default Alias"
	}
	label := args.String("my_label")
	if label == "" {
		label = "Default Label"
	}
	handshake, err := args.Bool("handshake", true)
	if err != nil {
		return "", acapy.NewValidationError("%v", err)
	}
	usePublic, err := args.Bool("use_public_did", false)
	if err != nil {
		return "", acapy.NewValidationError("%v", err)
	}

	payload := map[string]interface{}{
		"alias":          alias,
		"my_label":       label,
		"use_public_did": usePublic,
	}
	if handshake {
		payload["handshake_protocols"] = []string{didExchangeProtocol}
	}
	metadata, ok, err := args.Object("metadata")
	if err != nil {
		return "", acapy.NewValidationError("Invalid JSON for metadata: %v", err)
	}
	if ok && len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	out, err := c.execute(ctx, true, args, acapy.Request{
		Method: http.MethodPost,
		Path:   "/out-of-band/create-invitation",
		Body:   payload,
	})
	if err != nil {
		return "", err
	}
	if !out.OK() {
		if out.Status == http.StatusMethodNotAllowed {
			return "", errors.New(methodNotAllowedHint)
		}
		return "", out.Err
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(out.Body, &record); err != nil {
		return out.Pretty(), nil
	}
	inv, ok := record["invitation"]
	if !ok {
		return out.Pretty(), nil
	}
	link, err := invitation.BuildConnectionURL(c.invitationURL, inv)
	if err != nil {
		return "", fmt.Errorf("failed to encode invitation: %w", err)
	}
	c.logger.WithField("alias", alias).Info("Created out-of-band invitation")
	return link, nil
}

type connectionRecord struct {
	ConnectionID string `json:"connection_id"`
	TheirLabel   string `json:"their_label"`
	State        string `json:"state"`
}

// MessageResult is the outcome of one message in an alias fan-out.
type MessageResult struct {
	ConnectionID string          `json:"connection_id"`
	TheirLabel   string          `json:"their_label"`
	OK           bool            `json:"ok"`
	Response     json.RawMessage `json:"response,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type noMatch struct {
	Error string `json:"error"`
	Alias string `json:"alias"`
}

func sendByAliasEntry() *Entry {
	return &Entry{
		Name:        "send_message_by_alias",
		Description: "Send a basic message to every connection whose counterparty label matches alias (case-insensitive)",
		Params: []Param{
			{Name: "alias", Type: TypeString, Required: true, Description: "Counterparty label to match", Missing: "Alias is required."},
			{Name: "content", Type: TypeString, Required: true, Description: "Message text", Missing: "Message content is required."},
		},
		Auth:    true,
		Handler: sendMessageByAlias,
	}
}

func sendMessageByAlias(ctx context.Context, c *Catalog, args Args) (string, error) {
	alias := args.String("alias")
	content := args.String("content")

	var listing struct {
		Results []connectionRecord `json:"results"`
	}
	if err := c.fetch(ctx, true, args, acapy.Request{Method: http.MethodGet, Path: "/connections"}, &listing); err != nil {
		return "", err
	}

	var matches []connectionRecord
	for _, conn := range listing.Results {
		if conn.ConnectionID != "" && strings.EqualFold(strings.TrimSpace(conn.TheirLabel), alias) {
			matches = append(matches, conn)
		}
	}
	if len(matches) == 0 {
		return prettyValue(noMatch{
			Error: fmt.Sprintf("no connection matches alias %q", alias),
			Alias: alias,
		})
	}

	results := make([]MessageResult, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for i, conn := range matches {
		i, conn := i, conn
		g.Go(func() error {
			res := MessageResult{ConnectionID: conn.ConnectionID, TheirLabel: conn.TheirLabel}
			out, err := c.execute(gctx, true, args, acapy.Request{
				Method: http.MethodPost,
				Path:   "/connections/" + url.PathEscape(conn.ConnectionID) + "/send-message",
				Body:   map[string]string{"content": content},
			})
			switch {
			case err != nil:
				res.Error = acapy.TextOf(err)
			case !out.OK():
				res.Error = out.Err.Text()
			default:
				res.OK = true
				res.Response = out.Body
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	c.logger.WithFields(logrus.Fields{
		"alias":   alias,
		"matches": len(matches),
	}).Info("Fanned out message by alias")
	return prettyValue(results)
}

func bearerTokenEntry() *Entry {
	return &Entry{
		Name:        "get_bearer_token",
		Description: "Get a bearer token for a tenant; defaults to the configured tenant",
		Params: []Param{
			str("tenant_id", "Tenant ID, defaults to the configured tenant"),
			str("api_key", "Tenant API key, defaults to the configured key"),
		},
		Handler: getBearerToken,
	}
}

func getBearerToken(ctx context.Context, c *Catalog, args Args) (string, error) {
	if c.tokens == nil {
		return "", acapy.NewAuthError("token manager is not configured", nil)
	}
	tenantID := args.String("tenant_id")
	apiKey := args.String("api_key")
	if tenantID == "" && apiKey == "" {
		tenantID = c.tenant.ID
		apiKey = c.tenant.APIKey.Value()
	}
	return c.tokens.Token(ctx, tenantID, apiKey)
}

func ledgerBrowserEntry() *Entry {
	return &Entry{
		Name:        "ledger_browser_query",
		Description: "Search the ledger browser and return its raw response",
		Params:      []Param{requiredStr("query", "Search text")},
		Handler:     queryLedgerBrowser,
	}
}

func queryLedgerBrowser(ctx context.Context, c *Catalog, args Args) (string, error) {
	out, err := c.ledger.Execute(ctx, acapy.Request{
		Method:    http.MethodGet,
		Path:      "/",
		Query:     url.Values{"query": {args.String("query")}},
		AllowText: true,
	})
	if err != nil {
		return "", err
	}
	if !out.OK() {
		return "", out.Err
	}
	var text string
	if json.Unmarshal(out.Body, &text) == nil {
		return text, nil
	}
	return out.Pretty(), nil
}
