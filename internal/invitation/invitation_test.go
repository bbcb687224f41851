package invitation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	knownInvitation = `{
  "@type": "https://didcomm.org/out-of-band/1.1/invitation",
  "@id": "31dc04d4-40a9-43c3-bc2f-65312b49f37e",
  "label": "Unit Test Label",
  "handshake_protocols": ["https://didcomm.org/didexchange/1.0"],
  "services": ["did:sov:GeLsnrSj8Xofy6B9T5MMTi"]
}`
	knownURL = "https://92ce-80-40-22-48.ngrok-free.app" +
		"?oob=eyJAdHlwZSI6Imh0dHBzOi8vZGlkY29tbS5vcmcvb3V0LW9mLWJhbmQvMS4xL2ludml0YXRpb24iLCJAaWQiOiIzMWRjMDRkNC00MGE5LTQzYzMtYmMyZi02NTMxMmI0OWYzN2UiLCJsYWJlbCI6IlVuaXQgVGVzdCBMYWJlbCIsImhhbmRzaGFrZV9wcm90b2NvbHMiOlsiaHR0cHM6Ly9kaWRjb21tLm9yZy9kaWRleGNoYW5nZS8xLjAiXSwic2VydmljZXMiOlsiZGlkOnNvdjpHZUxzbnJTajhYb2Z5NkI5VDVNTVRpIl19"
)

func TestBuildConnectionURL_KnownInvitation(t *testing.T) {
	got, err := BuildConnectionURL("https://92ce-80-40-22-48.ngrok-free.app", json.RawMessage(knownInvitation))
	require.NoError(t, err)
	assert.Equal(t, knownURL, got)
	assert.False(t, strings.HasSuffix(got, "="), "no base64 padding")
}

func TestDecodeConnectionURL(t *testing.T) {
	data, err := DecodeConnectionURL(knownURL)
	require.NoError(t, err)

	compact, err := Compact(json.RawMessage(knownInvitation))
	require.NoError(t, err)
	assert.Equal(t, string(compact), string(data))

	_, err = DecodeConnectionURL("https://example.org/?foo=bar")
	assert.ErrorIs(t, err, ErrMissingParam)
}

func TestDecode_AcceptsPadding(t *testing.T) {
	enc, err := Encode(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	for len(enc)%4 != 0 {
		enc += "="
	}
	data, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestEncode_KeepsKeyOrder(t *testing.T) {
	enc, err := Encode(json.RawMessage(`{ "z": 1, "a": [ 1, 2 ], "m": {"y": true, "b": null} }`))
	require.NoError(t, err)
	data, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":[1,2],"m":{"y":true,"b":null}}`, string(data))
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyInvitation)
	_, err = Encode(json.RawMessage("null"))
	assert.ErrorIs(t, err, ErrEmptyInvitation)
	_, err = Encode(json.RawMessage(`{"a":`))
	assert.Error(t, err)
	_, err = BuildConnectionURL("", json.RawMessage(`{}`))
	assert.Error(t, err)
	_, err = Decode("!!!")
	assert.Error(t, err)
}

func TestConnectionURLRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(build(base, I)) equals compact(I)", prop.ForAll(
		func(fields map[string]string, label string) bool {
			doc := map[string]interface{}{"label": label, "fields": fields}
			pretty, err := json.MarshalIndent(doc, "", "    ")
			if err != nil {
				return false
			}
			link, err := BuildConnectionURL("https://wallet.example.org/connect", pretty)
			if err != nil {
				return false
			}
			if strings.Count(link, "=") != 1 {
				return false
			}
			decoded, err := DecodeConnectionURL(link)
			if err != nil {
				return false
			}
			expected, err := Compact(pretty)
			if err != nil {
				return false
			}
			return string(decoded) == string(expected)
		},
		gen.MapOf(gen.AlphaString(), gen.AnyString()),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
