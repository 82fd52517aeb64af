// Package protocol defines the host-link frames exchanged between the
// mmbridge core and the JavaScript runtime hosting the application.
//
// All frames are JSON-encoded with a "type" discriminator field. This
// package is intentionally free of external dependencies so it can be
// shared by the bridge, the Go facade and gomobile bindings alike.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is the interface implemented by all host-link frames.
// Each frame type corresponds to a JSON object with a "type" discriminator field.
type Frame interface {
	// FrameType returns the wire-format type string (e.g. "call", "event").
	FrameType() string
}

// HelloFrame is the first frame a JS runtime sends after connecting. Until
// it arrives the bridge does not consider the session a live context.
type HelloFrame struct {
	Client   string `json:"client,omitempty"`
	Platform string `json:"platform,omitempty"`
	APILevel int    `json:"apiLevel,omitempty"`
}

func (HelloFrame) FrameType() string { return "hello" }

// CallFrame invokes a bridge method. ID correlates the reply.
type CallFrame struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

func (CallFrame) FrameType() string { return "call" }

// ResultFrame resolves a call successfully.
type ResultFrame struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (ResultFrame) FrameType() string { return "result" }

// ErrorFrame rejects a call.
type ErrorFrame struct {
	ID    string       `json:"id"`
	Error ErrorPayload `json:"error"`
}

func (ErrorFrame) FrameType() string { return "error" }

// EventFrame carries a native event to the JS runtime. Data is whatever
// the event's payload shape is: an object, an array, a scalar or absent.
type EventFrame struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (EventFrame) FrameType() string { return "event" }

// ErrorPayload is the uniform error shape surfaced to JS for every
// failure, native or bridge-internal.
type ErrorPayload struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Domain      string `json:"domain,omitempty"`
}

func (e *ErrorPayload) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Description, e.Domain)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// frameTypes maps wire-format type strings to factory functions
// that produce zero-value pointers of the corresponding frame type.
var frameTypes = map[string]func() Frame{
	"hello":  func() Frame { return &HelloFrame{} },
	"call":   func() Frame { return &CallFrame{} },
	"result": func() Frame { return &ResultFrame{} },
	"error":  func() Frame { return &ErrorFrame{} },
	"event":  func() Frame { return &EventFrame{} },
}

// Marshal serializes a Frame to JSON, injecting the "type" discriminator field.
func Marshal(f Frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame payload: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("re-decoding frame payload: %w", err)
	}

	typeBytes, err := json.Marshal(f.FrameType())
	if err != nil {
		return nil, fmt.Errorf("marshaling frame type: %w", err)
	}
	obj["type"] = typeBytes

	return json.Marshal(obj)
}

// Unmarshal deserializes a JSON frame, using the "type" discriminator
// to decode into the correct concrete Frame type.
func Unmarshal(data []byte) (Frame, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame envelope: %w", err)
	}

	factory, ok := frameTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown frame type: %q", env.Type)
	}

	f := factory()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decoding %q frame: %w", env.Type, err)
	}

	return f, nil
}
