package tools

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	jmes "github.com/jmespath/go-jmespath"
	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

const credentialPreviewType = "issue-credential/2.0/credential-preview"

// Field picks applied to agent responses during dynamic issuance.
var (
	pickPublicDID        = jmes.MustCompile("result.did")
	pickActiveConnection = jmes.MustCompile("results[?state=='active'] | [0].connection_id")
	pickCredDefID        = jmes.MustCompile("credential_definition_ids[0]")
)

// pipelineStep fetches one document and extracts one string from it. An
// empty pick aborts the pipeline with the step's message.
type pipelineStep struct {
	request acapy.Request
	pick    *jmes.JMESPath
	missing string
}

func (c *Catalog) runStep(ctx context.Context, args Args, step pipelineStep) (string, error) {
	var doc interface{}
	if err := c.fetch(ctx, true, args, step.request, &doc); err != nil {
		return "", err
	}
	val, err := step.pick.Search(doc)
	if err != nil {
		return "", acapy.NewValidationError("%s", step.missing)
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return "", acapy.NewValidationError("%s", step.missing)
	}
	return s, nil
}

type previewAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// credentialPreview turns {"name": "Alice"} into the v2 preview list,
// ordered by attribute name.
func credentialPreview(attrs map[string]interface{}) map[string]interface{} {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]previewAttribute, 0, len(names))
	for _, name := range names {
		list = append(list, previewAttribute{Name: name, Value: Args(attrs).String(name)})
	}
	return map[string]interface{}{
		"@type":      credentialPreviewType,
		"attributes": list,
	}
}

// issueDynamic resolves issuer DID, connection and credential definition
// from the agent's own state, then sends an offer. No offer is sent unless
// every step produced a value.
func issueDynamic(ctx context.Context, c *Catalog, args Args) (string, error) {
	attrs, _, err := args.Object("attributes")
	if err != nil {
		return "", acapy.NewValidationError("Invalid JSON for attributes: %v", err)
	}
	if len(attrs) == 0 {
		return "", acapy.NewValidationError("attributes must not be empty.")
	}

	did, err := c.runStep(ctx, args, pipelineStep{
		request: acapy.Request{Method: http.MethodGet, Path: "/wallet/did/public"},
		pick:    pickPublicDID,
		missing: "no public DID configured",
	})
	if err != nil {
		return "", err
	}

	connID := args.String("connection_id")
	if connID == "" {
		connID, err = c.runStep(ctx, args, pipelineStep{
			request: acapy.Request{Method: http.MethodGet, Path: "/connections", Query: url.Values{"state": {"active"}}},
			pick:    pickActiveConnection,
			missing: "no active connection found",
		})
		if err != nil {
			return "", err
		}
	}

	credDefID := args.String("cred_def_id")
	if credDefID == "" {
		credDefID, err = c.runStep(ctx, args, pipelineStep{
			request: acapy.Request{Method: http.MethodGet, Path: "/credential-definitions/created"},
			pick:    pickCredDefID,
			missing: "no credential definition found",
		})
		if err != nil {
			return "", err
		}
	}

	offer := map[string]interface{}{
		"connection_id": connID,
		"filter": map[string]interface{}{
			"indy": map[string]interface{}{
				"cred_def_id": credDefID,
				"issuer_did":  did,
			},
		},
		"credential_preview": credentialPreview(attrs),
	}
	if args.Has("comment") {
		offer["comment"] = args.String("comment")
	}

	c.logger.WithFields(logrus.Fields{
		"connection_id": connID,
		"cred_def_id":   credDefID,
	}).Info("Sending dynamic credential offer")

	return render(c.execute(ctx, true, args, acapy.Request{
		Method: http.MethodPost,
		Path:   "/issue-credential-2.0/send-offer",
		Body:   offer,
	}))
}

func issueDynamicEntry() *Entry {
	return &Entry{
		Name: "issue_credential_dynamic",
		Description: "Offer a credential using the agent's public DID, its first active connection " +
			"and its first credential definition; attributes maps names to values",
		Params: []Param{
			{Name: "attributes", Type: TypeObject, Required: true, Description: "Credential attributes, e.g. {\"name\": \"Alice\"}"},
			str("connection_id", "Use this connection instead of the first active one"),
			str("cred_def_id", "Use this credential definition instead of the first created one"),
			str("comment", "Human readable comment for the offer"),
		},
		Auth:    true,
		Handler: issueDynamic,
	}
}
