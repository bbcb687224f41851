package acapy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcome is the normalized result of one admin API call: either a decoded
// JSON body (Err == nil) or a classified failure (Body == nil).
type Outcome struct {
	Status int
	Body   json.RawMessage
	Err    *Error
}

// Success builds a successful outcome.
func Success(status int, body json.RawMessage) Outcome {
	return Outcome{Status: status, Body: body}
}

// Failure builds a failed outcome; Status mirrors the error's status.
func Failure(err *Error) Outcome {
	return Outcome{Status: err.Status, Err: err}
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Error returns the failure as an error, or nil on success.
func (o Outcome) Error() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

// Decode unmarshals the success body into v.
func (o Outcome) Decode(v interface{}) error {
	if o.Err != nil {
		return o.Err
	}
	if err := json.Unmarshal(o.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Pretty renders the body with two-space indentation, keeping key order, or
// the failure sentence.
func (o Outcome) Pretty() string {
	if o.Err != nil {
		return o.Err.Text()
	}
	return PrettyJSON(o.Body)
}

// PrettyJSON indents raw JSON without reordering keys. Invalid input is
// returned unchanged.
func PrettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
