package tools

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

const methodNotAllowedHint = "HTTP 405 Method Not Allowed. Please verify that the endpoint expects a POST request and that the ACA-Py instance is running with admin API enabled."

// route is a tool that maps onto exactly one admin API call.
type route struct {
	name        string
	description string
	method      string
	// path may contain {param} placeholders filled from required arguments.
	path       string
	pathParams []Param
	// filters are optional arguments copied to the query string when present.
	filters []Param
	params  []Param
	query   func(Args) (url.Values, error)
	body    func(Args) (interface{}, error)
	public  bool
	// statusHints replaces the failure text for specific statuses.
	statusHints map[int]string
}

func (r route) entry() *Entry {
	params := make([]Param, 0, len(r.pathParams)+len(r.filters)+len(r.params))
	params = append(params, r.pathParams...)
	params = append(params, r.params...)
	params = append(params, r.filters...)
	return &Entry{
		Name:        r.name,
		Description: r.description,
		Params:      params,
		Auth:        !r.public,
		Handler:     r.handle,
	}
}

func (r route) handle(ctx context.Context, c *Catalog, args Args) (string, error) {
	req, err := r.request(args)
	if err != nil {
		return "", err
	}
	out, err := c.execute(ctx, !r.public, args, req)
	if err == nil && !out.OK() {
		if hint, ok := r.statusHints[out.Status]; ok {
			return "", errors.New(hint)
		}
	}
	return render(out, err)
}

func (r route) request(args Args) (acapy.Request, error) {
	path := r.path
	for _, p := range r.pathParams {
		path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(args.String(p.Name)))
	}

	names := make([]string, 0, len(r.filters))
	for _, f := range r.filters {
		names = append(names, f.Name)
	}
	query := args.Query(names...)
	if r.query != nil {
		extra, err := r.query(args)
		if err != nil {
			return acapy.Request{}, err
		}
		for k, vs := range extra {
			query[k] = vs
		}
	}

	req := acapy.Request{Method: r.method, Path: path, Query: query}
	if r.body != nil {
		body, err := r.body(args)
		if err != nil {
			return acapy.Request{}, err
		}
		req.Body = body
	}
	return req, nil
}

func str(name, description string) Param {
	return Param{Name: name, Type: TypeString, Description: description}
}

func requiredStr(name, description string) Param {
	return Param{Name: name, Type: TypeString, Description: description, Required: true}
}

func num(name, description string) Param {
	return Param{Name: name, Type: TypeNumber, Description: description}
}

// jsonBody parses a required JSON object argument.
func jsonBody(key, label string) func(Args) (interface{}, error) {
	return func(a Args) (interface{}, error) {
		obj, _, err := a.Object(key)
		if err != nil {
			return nil, acapy.NewValidationError("Invalid JSON for %s: %v", label, err)
		}
		return obj, nil
	}
}

// optionalJSONBody parses an optional JSON object argument, defaulting to {}.
func optionalJSONBody(key string) func(Args) (interface{}, error) {
	return func(a Args) (interface{}, error) {
		obj, ok, err := a.Object(key)
		if err != nil {
			return nil, acapy.NewValidationError("Invalid JSON payload: %v", err)
		}
		if !ok {
			return map[string]interface{}{}, nil
		}
		return obj, nil
	}
}

func emptyBody(Args) (interface{}, error) {
	return map[string]interface{}{}, nil
}

// endorserQuery adds the endorser flow parameters used by schema and
// credential definition publication.
func endorserQuery(a Args) (url.Values, error) {
	q := url.Values{}
	if a.Has("conn_id") {
		q.Set("conn_id", a.String("conn_id"))
	}
	endorse, err := a.Bool("create_transaction_for_endorser", false)
	if err != nil {
		return nil, acapy.NewValidationError("%v", err)
	}
	if endorse {
		q.Set("create_transaction_for_endorser", "true")
	}
	return q, nil
}

var endorserParams = []Param{
	str("conn_id", "Endorser connection ID"),
	{Name: "create_transaction_for_endorser", Type: TypeBoolean, Description: "Prepare the transaction for an endorser instead of writing it", Default: false},
}

var connectionFilters = []Param{
	str("alias", "Filter by connection alias"),
	str("connection_protocol", "Filter by connection protocol"),
	str("invitation_key", "Filter by invitation key"),
	str("invitation_msg_id", "Filter by invitation message ID"),
	str("my_did", "Filter by our DID"),
	str("state", "Filter by connection state, e.g. active"),
	str("their_did", "Filter by their DID"),
	str("their_public_did", "Filter by their public DID"),
	str("their_role", "Filter by their role"),
	num("offset", "Pagination offset"),
	num("limit", "Maximum number of results"),
}

var schemaFilters = []Param{
	str("schema_id", "Filter by full schema ID"),
	str("schema_issuer_did", "Filter by issuer DID"),
	str("schema_name", "Filter by schema name"),
	str("schema_version", "Filter by schema version"),
}

func routes() []route {
	credExID := requiredStr("cred_ex_id", "Credential exchange ID")
	connID := requiredStr("conn_id", "Connection ID")

	return []route{
		// Status and wallet
		{
			name:        "get_status",
			description: "Get the identity agent's status",
			method:      http.MethodGet,
			path:        "/status",
		},
		{
			name:        "get_metrics",
			description: "Get the identity agent's metrics",
			method:      http.MethodGet,
			path:        "/metrics",
		},
		{
			name:        "get_public_did",
			description: "Get the wallet's public DID",
			method:      http.MethodGet,
			path:        "/wallet/did/public",
		},
		{
			name:        "get_credentials",
			description: "List credentials stored in the wallet",
			method:      http.MethodGet,
			path:        "/credentials",
			filters: []Param{
				num("start", "Index of the first record"),
				num("count", "Maximum number of records"),
				str("wql", "WQL query"),
			},
		},

		// Connections
		{
			name:        "list_connections",
			description: "Query agent-to-agent connections; all filters are optional and combined with AND",
			method:      http.MethodGet,
			path:        "/connections",
			filters:     connectionFilters,
		},
		{
			name:        "get_connection",
			description: "Get a single connection record",
			method:      http.MethodGet,
			path:        "/connections/{conn_id}",
			pathParams:  []Param{connID},
		},
		{
			name:        "create_invitation",
			description: "Create a new connection invitation",
			method:      http.MethodPost,
			path:        "/connections/create-invitation",
			params:      []Param{str("alias", "Optional alias for the connection")},
			body: func(a Args) (interface{}, error) {
				body := map[string]interface{}{}
				if a.Has("alias") {
					body["alias"] = a.String("alias")
				}
				return body, nil
			},
		},
		{
			name:        "receive_invitation",
			description: "Receive a connection invitation given as a JSON string",
			method:      http.MethodPost,
			path:        "/connections/receive-invitation",
			params:      []Param{requiredStr("invitation", "Invitation object as JSON")},
			body:        jsonBody("invitation", "invitation"),
		},
		{
			name:        "accept_invitation",
			description: "Accept a received invitation",
			method:      http.MethodPost,
			path:        "/connections/{conn_id}/accept-invitation",
			pathParams:  []Param{connID},
			body:        emptyBody,
		},
		{
			name:        "accept_request",
			description: "Accept a connection request",
			method:      http.MethodPost,
			path:        "/connections/{conn_id}/accept-request",
			pathParams:  []Param{connID},
			body:        emptyBody,
		},
		{
			name:        "send_basic_message",
			description: "Send a basic message over a connection",
			method:      http.MethodPost,
			path:        "/connections/{conn_id}/send-message",
			pathParams: []Param{{
				Name: "conn_id", Type: TypeString, Required: true,
				Description: "Connection ID",
				Missing:     "Connection ID is required.",
			}},
			params: []Param{{
				Name: "content", Type: TypeString, Required: true,
				Description: "Message text",
				Missing:     "Message content is required.",
			}},
			body: func(a Args) (interface{}, error) {
				return map[string]string{"content": a.String("content")}, nil
			},
		},

		// Out-of-band
		{
			name:        "create_oob_invitation_raw",
			description: "Create an out-of-band invitation from a complete JSON payload and return the agent's response",
			method:      http.MethodPost,
			path:        "/out-of-band/create-invitation",
			params:      []Param{requiredStr("payload", "Invitation request as JSON")},
			body:        jsonBody("payload", "payload"),
			statusHints: map[int]string{http.StatusMethodNotAllowed: methodNotAllowedHint},
		},

		// Schemas and credential definitions
		{
			name:        "create_schema",
			description: "Create a schema and publish it to the ledger",
			method:      http.MethodPost,
			path:        "/schemas",
			params: append([]Param{
				{Name: "attributes", Type: TypeArray, Description: "Schema attribute names", Required: true},
				requiredStr("schema_name", "Schema name"),
				requiredStr("schema_version", "Schema version, e.g. 1.0"),
			}, endorserParams...),
			query: endorserQuery,
			body: func(a Args) (interface{}, error) {
				attrs, err := a.StringList("attributes")
				if err != nil {
					return nil, acapy.NewValidationError("%v", err)
				}
				if len(attrs) == 0 {
					return nil, acapy.NewValidationError("attributes must not be empty.")
				}
				return map[string]interface{}{
					"attributes":     attrs,
					"schema_name":    a.String("schema_name"),
					"schema_version": a.String("schema_version"),
				}, nil
			},
		},
		{
			name:        "get_created_schemas",
			description: "List schemas created by this agent",
			method:      http.MethodGet,
			path:        "/schemas/created",
			filters:     schemaFilters,
		},
		{
			name:        "get_schema",
			description: "Get a schema from the ledger by ID",
			method:      http.MethodGet,
			path:        "/schemas/{schema_id}",
			pathParams:  []Param{requiredStr("schema_id", "Fully qualified schema ID, e.g. DID:2:name:version")},
		},
		{
			name:        "create_credential_definition",
			description: "Create a credential definition and publish it to the ledger",
			method:      http.MethodPost,
			path:        "/credential-definitions",
			params: append([]Param{
				requiredStr("schema_id", "Schema the definition is based on"),
				{Name: "support_revocation", Type: TypeBoolean, Description: "Whether credentials can be revoked", Default: false},
				{Name: "tag", Type: TypeString, Description: "Definition tag", Default: "default"},
				num("revocation_registry_size", "Revocation registry size"),
			}, endorserParams...),
			query: endorserQuery,
			body: func(a Args) (interface{}, error) {
				revocable, err := a.Bool("support_revocation", false)
				if err != nil {
					return nil, acapy.NewValidationError("%v", err)
				}
				tag := a.String("tag")
				if tag == "" {
					tag = "default"
				}
				body := map[string]interface{}{
					"schema_id":          a.String("schema_id"),
					"support_revocation": revocable,
					"tag":                tag,
				}
				size, ok, err := a.Int("revocation_registry_size")
				if err != nil {
					return nil, acapy.NewValidationError("%v", err)
				}
				if ok {
					body["revocation_registry_size"] = size
				}
				return body, nil
			},
		},
		{
			name:        "get_credential_definitions",
			description: "List credential definitions created by this agent",
			method:      http.MethodGet,
			path:        "/credential-definitions/created",
			filters: append([]Param{
				str("cred_def_id", "Filter by credential definition ID"),
				str("issuer_did", "Filter by issuer DID"),
			}, schemaFilters...),
		},

		// Issuance (v2)
		{
			name:        "issue_credential",
			description: "Send a credential to a holder in one step",
			method:      http.MethodPost,
			path:        "/issue-credential-2.0/send",
			params:      []Param{requiredStr("credential_offer", "Credential offer as JSON")},
			body:        jsonBody("credential_offer", "credential offer"),
		},
		{
			name:        "send_credential_offer",
			description: "Send a credential offer",
			method:      http.MethodPost,
			path:        "/issue-credential-2.0/send-offer",
			params:      []Param{requiredStr("payload", "Offer request as JSON")},
			body:        jsonBody("payload", "payload"),
		},
		{
			name:        "send_credential_request",
			description: "Send a credential request for a received offer",
			method:      http.MethodPost,
			path:        "/issue-credential-2.0/records/{cred_ex_id}/send-request",
			pathParams:  []Param{credExID},
			params:      []Param{str("payload", "Optional request body as JSON")},
			body:        optionalJSONBody("payload"),
		},
		{
			name:        "issue_credential_record",
			description: "Issue the credential for a received request",
			method:      http.MethodPost,
			path:        "/issue-credential-2.0/records/{cred_ex_id}/issue",
			pathParams:  []Param{credExID},
			params:      []Param{str("payload", "Optional issue body as JSON")},
			body:        optionalJSONBody("payload"),
		},
		{
			name:        "store_credential",
			description: "Store a received credential in the holder's wallet",
			method:      http.MethodPost,
			path:        "/issue-credential-2.0/records/{cred_ex_id}/store",
			pathParams:  []Param{credExID},
			params: []Param{
				str("credential_id", "Optional ID to store the credential under"),
				str("payload", "Optional store body as JSON"),
			},
			body: func(a Args) (interface{}, error) {
				if a.Has("credential_id") {
					return map[string]string{"credential_id": a.String("credential_id")}, nil
				}
				return optionalJSONBody("payload")(a)
			},
		},

		// Proofs (v2)
		{
			name:        "send_proof_request",
			description: "Send a presentation request",
			method:      http.MethodPost,
			path:        "/present-proof-2.0/send-request",
			params:      []Param{requiredStr("proof_request", "Presentation request as JSON")},
			body:        jsonBody("proof_request", "proof request"),
		},
		{
			name:        "get_proof_record",
			description: "Get a presentation exchange record",
			method:      http.MethodGet,
			path:        "/present-proof-2.0/records/{pres_ex_id}",
			pathParams:  []Param{requiredStr("pres_ex_id", "Presentation exchange ID")},
		},

		// Revocation and ledger
		{
			name:        "revoke_credential",
			description: "Revoke an issued credential",
			method:      http.MethodPost,
			path:        "/revocation/revoke",
			params: []Param{
				requiredStr("cred_ex_id", "Credential exchange ID"),
				{Name: "publish", Type: TypeBoolean, Description: "Publish the revocation to the ledger immediately", Default: true},
			},
			body: func(a Args) (interface{}, error) {
				publish, err := a.Bool("publish", true)
				if err != nil {
					return nil, acapy.NewValidationError("%v", err)
				}
				return map[string]interface{}{
					"cred_ex_id": a.String("cred_ex_id"),
					"publish":    publish,
				}, nil
			},
		},
		{
			name:        "ledger_get_transaction",
			description: "Get a ledger transaction by ID",
			method:      http.MethodGet,
			path:        "/ledger/transactions/{txn_id}",
			pathParams:  []Param{requiredStr("txn_id", "Transaction ID")},
		},
		{
			name:        "ledger_register_nym",
			description: "Register a DID on the ledger from a JSON object with did, verkey, alias and role",
			method:      http.MethodPost,
			path:        "/ledger/register-nym",
			params:      []Param{requiredStr("did_info", "DID info as JSON")},
			query: func(a Args) (url.Values, error) {
				info, _, err := a.Object("did_info")
				if err != nil {
					return nil, acapy.NewValidationError("Invalid JSON for DID info: %v", err)
				}
				fields := Args(info)
				if !fields.Has("did") || !fields.Has("verkey") {
					return nil, acapy.NewValidationError("DID info must contain did and verkey.")
				}
				return fields.Query("did", "verkey", "alias", "role"), nil
			},
		},

		// Tenancy
		{
			name:        "get_tenant_details",
			description: "Get details of the authenticated tenant",
			method:      http.MethodGet,
			path:        "/tenant",
		},
		{
			name:        "get_multitenant_wallets",
			description: "List tenant wallets",
			method:      http.MethodGet,
			path:        "/multitenancy/wallets",
			filters:     []Param{str("wallet_name", "Filter by wallet name")},
		},
	}
}
