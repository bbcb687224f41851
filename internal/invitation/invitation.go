// Package invitation turns out-of-band invitations into shareable connection
// URLs and back.
package invitation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// QueryParam is the URL parameter wallets read the invitation from.
const QueryParam = "oob"

var (
	// ErrEmptyInvitation is returned for a missing or null invitation.
	ErrEmptyInvitation = errors.New("invitation: empty invitation")
	// ErrMissingParam is returned when a URL carries no oob parameter.
	ErrMissingParam = errors.New("invitation: url has no oob parameter")
)

// Compact strips insignificant whitespace. Key order and string escapes are
// left exactly as the agent produced them.
func Compact(invitation json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(invitation)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyInvitation
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("invitation: invalid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode returns the unpadded URL-safe base64 form of the compacted invitation.
func Encode(invitation json.RawMessage) (string, error) {
	compact, err := Compact(invitation)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(compact), nil
}

// BuildConnectionURL produces <baseURL>?oob=<encoded>.
func BuildConnectionURL(baseURL string, invitation json.RawMessage) (string, error) {
	if baseURL == "" {
		return "", errors.New("invitation: base url is empty")
	}
	encoded, err := Encode(invitation)
	if err != nil {
		return "", err
	}
	return baseURL + "?" + QueryParam + "=" + encoded, nil
}

// Decode reverses Encode, accepting both padded and unpadded input.
func Decode(encoded string) ([]byte, error) {
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invitation: invalid base64: %w", err)
	}
	if !json.Valid(data) {
		return nil, errors.New("invitation: decoded payload is not JSON")
	}
	return data, nil
}

// DecodeConnectionURL extracts and decodes the invitation of a connection URL.
func DecodeConnectionURL(connectionURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(connectionURL))
	if err != nil {
		return nil, fmt.Errorf("invitation: invalid url: %w", err)
	}
	encoded := u.Query().Get(QueryParam)
	if encoded == "" {
		return nil, ErrMissingParam
	}
	return Decode(encoded)
}
