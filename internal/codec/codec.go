// Package codec implements the wire message formats used by the request
// broker: requests, responses (success and error), request-notifications,
// and pub/sub messages. All functions are pure — no network I/O, no state.
package codec

import (
	"encoding/json"
	"fmt"
)

// DecodeError wraps a malformed-input failure. Callers treat it as protocol
// damage: log a warning, never crash the participant.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Request is the wire shape of a client request.
type Request struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Response is the wire shape of a worker response, branching on Ok.
type Response struct {
	ID       string          `json:"id"`
	Ok       bool            `json:"ok"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *WireError      `json:"error,omitempty"`
}

// WireError is the normalized form of a user-raised error: flattened to a
// plain record before transport. Methods and non-enumerable state are lost
// by design.
type WireError struct {
	Message string         `json:"message"`
	Name    string         `json:"name,omitempty"`
	Stack   string         `json:"stack,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Error makes *WireError usable as an error value, so a handler may return
// one directly and have it transported unchanged.
func (e *WireError) Error() string { return e.Message }

// PubSubMessage is the wire shape of a fan-out publish. ID is used only for
// logging/tracing, never for correctness.
type PubSubMessage struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}

// ComposeRequest serializes a request for a given id and arbitrary payload.
func ComposeRequest(id string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal request data: %w", err)
	}
	return json.Marshal(Request{ID: id, Data: raw})
}

// ParseRequest parses a composed request. A missing id is a decode error; an
// unknown top-level field is silently ignored by encoding/json.
func ParseRequest(b []byte) (id string, data json.RawMessage, err error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return "", nil, &DecodeError{Kind: "request", Err: err}
	}
	if r.ID == "" {
		return "", nil, &DecodeError{Kind: "request", Err: fmt.Errorf("missing id")}
	}
	return r.ID, r.Data, nil
}

// ComposeResponse serializes a successful response for a request id.
func ComposeResponse(id string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal response value: %w", err)
	}
	return json.Marshal(Response{ID: id, Ok: true, Response: raw})
}

// ComposeError serializes a failure response, normalizing err into a plain
// record. A *WireError passed directly is transported as-is; any other
// error is flattened by NormalizeError.
func ComposeError(id string, err error) ([]byte, error) {
	we := NormalizeError(err)
	return json.Marshal(Response{ID: id, Ok: false, Error: we})
}

// NormalizeError flattens a user-raised error into a WireError. Structured
// errors exposing a Fields() map[string]any, Name() string, or Stack()
// string method contribute those. Every other error carries its Error()
// string as Message and its Go type name (%T) as Name, unless a Name()
// method overrides it.
func NormalizeError(err error) *WireError {
	if err == nil {
		return &WireError{Message: ""}
	}
	if we, ok := err.(*WireError); ok {
		return we
	}
	out := &WireError{Message: err.Error(), Name: fmt.Sprintf("%T", err)}
	if n, ok := err.(interface{ Name() string }); ok {
		out.Name = n.Name()
	}
	if s, ok := err.(interface{ Stack() string }); ok {
		out.Stack = s.Stack()
	}
	if f, ok := err.(interface{ Fields() map[string]any }); ok {
		out.Fields = f.Fields()
	}
	return out
}

// ParseResponse parses a composed response, branching on the ok field.
func ParseResponse(b []byte) (id string, ok bool, response json.RawMessage, wireErr *WireError, err error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return "", false, nil, nil, &DecodeError{Kind: "response", Err: err}
	}
	if r.ID == "" {
		return "", false, nil, nil, &DecodeError{Kind: "response", Err: fmt.Errorf("missing id")}
	}
	return r.ID, r.Ok, r.Response, r.Error, nil
}

// ComposeNotification serializes the (empty) request-notification payload.
// Its only purpose is to wake up idle workers; it carries no data.
func ComposeNotification() []byte {
	return []byte("{}")
}

// ComposePubSubMessage serializes a fan-out message with a fresh publish id.
func ComposePubSubMessage(id string, message any) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal pubsub message: %w", err)
	}
	return json.Marshal(PubSubMessage{ID: id, Message: raw})
}

// ParsePubSubMessage parses a composed fan-out message.
func ParsePubSubMessage(b []byte) (id string, message json.RawMessage, err error) {
	var m PubSubMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return "", nil, &DecodeError{Kind: "pubsub", Err: err}
	}
	if m.ID == "" {
		return "", nil, &DecodeError{Kind: "pubsub", Err: fmt.Errorf("missing id")}
	}
	return m.ID, m.Message, nil
}
