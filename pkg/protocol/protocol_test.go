package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMarshal_InjectsType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"hello", HelloFrame{Client: "rn", Platform: "android", APILevel: 33}, "hello"},
		{"call", CallFrame{ID: "1", Method: "getUser"}, "call"},
		{"result", ResultFrame{ID: "1", Result: json.RawMessage(`{"a":1}`)}, "result"},
		{"error", ErrorFrame{ID: "1", Error: ErrorPayload{Code: "X", Description: "boom"}}, "error"},
		{"event", EventFrame{Name: EventTokenReceived, Data: json.RawMessage(`"tok"`)}, "event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := Marshal(tt.frame)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}

			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("decoding envelope: %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("type = %q, want %q", env.Type, tt.want)
			}

			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if got.FrameType() != tt.want {
				t.Errorf("FrameType() = %q, want %q", got.FrameType(), tt.want)
			}
		})
	}
}

func TestUnmarshal_EventKeepsArrayPayload(t *testing.T) {
	t.Parallel()

	data := []byte(`{"type":"event","name":"actionTapped","data":[{"messageId":"m1"},"reply","hi"]}`)
	f, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	ev, ok := f.(*EventFrame)
	if !ok {
		t.Fatalf("Unmarshal() returned %T, want *EventFrame", f)
	}

	var payload []any
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(payload) != 3 {
		t.Fatalf("payload length = %d, want 3", len(payload))
	}
	if payload[1] != "reply" {
		t.Errorf("payload[1] = %v, want reply", payload[1])
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"not json", `{`, "decoding frame envelope"},
		{"unknown type", `{"type":"bogus"}`, "unknown frame type"},
		{"bad field", `{"type":"call","id":5}`, `decoding "call" frame`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Unmarshal([]byte(tt.input))
			if err == nil {
				t.Fatal("Unmarshal() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestErrorPayload_Error(t *testing.T) {
	t.Parallel()

	e := &ErrorPayload{Code: "404", Description: "not found", Domain: "com.infobip"}
	if got := e.Error(); got != "404: not found (com.infobip)" {
		t.Errorf("Error() = %q", got)
	}

	e.Domain = ""
	if got := e.Error(); got != "404: not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsInternal(t *testing.T) {
	t.Parallel()

	for _, name := range PublicEvents {
		if IsInternal(name) {
			t.Errorf("IsInternal(%q) = true, want false", name)
		}
	}
	if !IsInternal(EventJwtRequested) {
		t.Error("IsInternal(jwtRequested) = false, want true")
	}
	if !IsInternal(EventStorageFind) {
		t.Error("IsInternal(messageStorage.find) = false, want true")
	}
}
