// Package tools declares every operation the gateway exposes and maps each
// one onto identity agent admin API calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/config"
)

// ParamType is the JSON type advertised for a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     interface{}
	// Missing overrides the validation message for an absent required value.
	Missing string
}

// Handler executes a tool. Returned errors are rendered as "Error: ..." text
// by the caller.
type Handler func(ctx context.Context, c *Catalog, args Args) (string, error)

// Entry is one exposed operation.
type Entry struct {
	Name        string
	Description string
	Params      []Param
	// Auth entries carry a bearer token when the gateway runs multi-tenant
	// and accept an auth_token override.
	Auth    bool
	Handler Handler
}

// TokenSource provides tenant bearer tokens.
type TokenSource interface {
	Token(ctx context.Context, tenantID, apiKey string) (string, error)
	Invalidate(ctx context.Context, tenantID, apiKey string)
}

// Deps wires a Catalog to its collaborators.
type Deps struct {
	Executor acapy.Executor
	Tokens   TokenSource
	Tenant   config.TenantConfig

	InvitationBaseURL string

	// LedgerBrowser is optional; ledger_browser_query is only registered
	// when it is set.
	LedgerBrowser acapy.Executor

	Logger *logrus.Logger
}

// Catalog is the set of registered tools.
type Catalog struct {
	exec          acapy.Executor
	tokens        TokenSource
	tenant        config.TenantConfig
	invitationURL string
	ledger        acapy.Executor
	logger        *logrus.Logger

	entries map[string]*Entry
}

// NewCatalog builds the catalog with every operation registered.
func NewCatalog(deps Deps) *Catalog {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	c := &Catalog{
		exec:          deps.Executor,
		tokens:        deps.Tokens,
		tenant:        deps.Tenant,
		invitationURL: deps.InvitationBaseURL,
		ledger:        deps.LedgerBrowser,
		logger:        logger,
		entries:       make(map[string]*Entry),
	}
	for _, r := range routes() {
		c.register(r.entry())
	}
	for _, e := range handlerEntries() {
		c.register(e)
	}
	if c.ledger != nil {
		c.register(ledgerBrowserEntry())
	}
	return c
}

func (c *Catalog) register(e *Entry) {
	if e.Auth {
		e.Params = append(e.Params, Param{
			Name:        "auth_token",
			Type:        TypeString,
			Description: "Bearer token to use instead of the gateway-managed tenant token",
		})
	}
	if _, dup := c.entries[e.Name]; dup {
		panic(fmt.Sprintf("tools: duplicate tool %q", e.Name))
	}
	c.entries[e.Name] = e
}

// Entries returns all tools sorted by name.
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a tool by name.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Call runs a tool by name.
func (c *Catalog) Call(ctx context.Context, name string, args Args) (string, error) {
	e, ok := c.entries[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = Args{}
	}
	for _, p := range e.Params {
		if p.Required && !args.Has(p.Name) {
			if p.Missing != "" {
				return "", acapy.NewValidationError("%s", p.Missing)
			}
			return "", acapy.NewValidationError("%s is required.", p.Name)
		}
	}
	return e.Handler(ctx, c, args)
}

// execute sends req, attaching a bearer token for auth entries. A managed
// token rejected with 401/403 is invalidated and the call retried once.
func (c *Catalog) execute(ctx context.Context, auth bool, args Args, req acapy.Request) (acapy.Outcome, error) {
	if !auth {
		return c.exec.Execute(ctx, req)
	}
	if override := args.String("auth_token"); override != "" {
		return c.exec.Execute(ctx, withBearer(req, override))
	}
	if !c.tenant.MultiTenant() || c.tokens == nil {
		return c.exec.Execute(ctx, req)
	}

	token, err := c.tokens.Token(ctx, c.tenant.ID, c.tenant.APIKey.Value())
	if err != nil {
		return authFailure(err), nil
	}
	out, err := c.exec.Execute(ctx, withBearer(req, token))
	if err != nil || out.OK() || !out.Err.Unauthorized() {
		return out, err
	}

	c.logger.WithFields(logrus.Fields{
		"path":   req.Path,
		"status": out.Status,
	}).Warn("Tenant token rejected, refreshing")
	c.tokens.Invalidate(ctx, c.tenant.ID, c.tenant.APIKey.Value())
	token, err = c.tokens.Token(ctx, c.tenant.ID, c.tenant.APIKey.Value())
	if err != nil {
		return authFailure(err), nil
	}
	return c.exec.Execute(ctx, withBearer(req, token))
}

func withBearer(req acapy.Request, token string) acapy.Request {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	req.Headers = headers
	return req
}

func authFailure(err error) acapy.Outcome {
	if e, ok := acapy.AsError(err); ok && e.Kind == acapy.KindAuth {
		return acapy.Failure(e)
	}
	return acapy.Failure(acapy.NewAuthError(err.Error(), err))
}

// fetch runs req and decodes a successful body into v.
func (c *Catalog) fetch(ctx context.Context, auth bool, args Args, req acapy.Request, v interface{}) error {
	out, err := c.execute(ctx, auth, args, req)
	if err != nil {
		return err
	}
	if !out.OK() {
		return out.Err
	}
	return out.Decode(v)
}

func render(out acapy.Outcome, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !out.OK() {
		return "", out.Err
	}
	return out.Pretty(), nil
}

func prettyValue(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
