package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/sdk/sim"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

func newTestTable(t *testing.T) (*Table, *Local, *sim.SDK) {
	t.Helper()

	native := sim.New(config.PlatformAndroid, nil)
	local := NewLocal()
	deps := service.NativeDeps(native, native, native, nil)
	deps.Cache = eventcache.NewMemoryStore()
	svc := service.New(service.Config{Platform: config.PlatformAndroid, Emitter: local}, deps)
	table := New(svc, nil)
	local.Bind(table)
	local.Open()
	t.Cleanup(func() {
		local.Close() //nolint:errcheck
		svc.Destroy()
	})
	return table, local, native
}

func TestTable_coversEveryMethod(t *testing.T) {
	t.Parallel()

	table, _, _ := newTestTable(t)
	names := table.Names()
	want := []string{
		protocol.MethodInit, protocol.MethodAddListener, protocol.MethodPersonalize,
		protocol.MethodDepersonalizeInstallation, protocol.MethodFetchInboxMessagesWithoutToken,
		protocol.MethodDefaultStorageDeleteAll, protocol.MethodProvideFindResult,
		protocol.MethodProvideFindAllResult, protocol.MethodSetJwt, protocol.MethodSetJwtError,
		protocol.MethodSetChatExceptionHandler, protocol.MethodEnableCalls, protocol.MethodDisableCalls,
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, w := range want {
		if !have[w] {
			t.Errorf("method %q missing from table", w)
		}
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Names() not sorted at %d: %q >= %q", i, names[i-1], names[i])
		}
	}
}

func TestTable_call(t *testing.T) {
	t.Parallel()

	table, _, _ := newTestTable(t)
	ctx := context.Background()

	if _, err := table.Call(ctx, protocol.MethodInit, json.RawMessage(`{"applicationCode":"app"}`)); err != nil {
		t.Fatalf("init error: %v", err)
	}

	res, err := table.Call(ctx, protocol.MethodPersonalize, json.RawMessage(
		`{"userIdentity":{"externalUserId":"u-1"},"userAttributes":{"firstName":"A"}}`))
	if err != nil {
		t.Fatalf("personalize error: %v", err)
	}
	var user sdk.User
	if err := json.Unmarshal(res, &user); err != nil {
		t.Fatalf("decoding personalize result: %v", err)
	}
	if user.ExternalUserID != "u-1" || user.FirstName != "A" {
		t.Errorf("personalize result = %+v", user)
	}

	res, err = table.Call(ctx, protocol.MethodSubmitEvent, json.RawMessage(`{"definitionId":"purchase"}`))
	if err != nil {
		t.Fatalf("submitEvent error: %v", err)
	}
	if string(res) != "null" {
		t.Errorf("submitEvent result = %s, want null", res)
	}

	res, err = table.Call(ctx, protocol.MethodCallsAvailable, nil)
	if err != nil || string(res) != "true" {
		t.Errorf("callsAvailable = %s, %v", res, err)
	}
}

func TestTable_errors(t *testing.T) {
	t.Parallel()

	table, _, _ := newTestTable(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		args   string
		code   string
	}{
		{"unknown method", "teleport", ``, protocol.CodeUnknownMethod},
		{"malformed args", protocol.MethodMarkMessagesSeen, `{"messageIds":7}`, protocol.CodeInvalidArgument},
		{"missing configuration", protocol.MethodInit, ``, protocol.CodeInvalidConfiguration},
		{"missing application code", protocol.MethodInit, `{}`, protocol.CodeInvalidConfiguration},
		{"chat before init", protocol.MethodShowChat, `{}`, protocol.CodeNotInitialized},
		{"listener without name", protocol.MethodAddListener, `{}`, protocol.CodeInvalidArgument},
		{"jwt with nothing pending", protocol.MethodSetJwt, `{"token":"t"}`, protocol.CodeNoPendingRequest},
		{"late find result", protocol.MethodProvideFindResult, `{"result":null}`, protocol.CodeNoPendingRequest},
		{"native error", protocol.MethodGetUser, ``, "NOT_INITIALIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Call(ctx, tt.method, json.RawMessage(tt.args))
			if err == nil {
				t.Fatalf("%s succeeded, want %s", tt.method, tt.code)
			}
			if got := ToPayload(err).Code; got != tt.code {
				t.Errorf("%s error code = %q, want %q (%v)", tt.method, got, tt.code, err)
			}
		})
	}
}

func TestToPayload(t *testing.T) {
	t.Parallel()

	native := &sdk.Error{Code: "AMBIGUOUS", Description: "two users", Domain: "sdk"}
	remote := &protocol.ErrorPayload{Code: "X", Description: "from host"}

	tests := []struct {
		name string
		err  error
		want protocol.ErrorPayload
	}{
		{"native", fmt.Errorf("native personalize: %w", native), protocol.ErrorPayload{Code: "AMBIGUOUS", Description: "two users", Domain: "sdk"}},
		{"remote payload", remote, *remote},
		{"calls unavailable", calls.ErrCallsUnavailable, protocol.ErrorPayload{Code: protocol.CodeCallsUnavailable, Description: calls.ErrCallsUnavailable.Error(), Domain: protocol.Domain}},
		{"chat unavailable", service.ErrChatUnavailable, protocol.ErrorPayload{Code: protocol.CodeChatUnavailable, Description: service.ErrChatUnavailable.Error(), Domain: protocol.Domain}},
		{"destroyed", service.ErrDestroyed, protocol.ErrorPayload{Code: protocol.CodeDestroyed, Description: service.ErrDestroyed.Error(), Domain: protocol.Domain}},
		{"timeout", context.DeadlineExceeded, protocol.ErrorPayload{Code: protocol.CodeTimeout, Description: context.DeadlineExceeded.Error(), Domain: protocol.Domain}},
		{"other", errors.New("boom"), protocol.ErrorPayload{Code: protocol.CodeInternal, Description: "boom", Domain: protocol.Domain}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ToPayload(tt.err); *got != tt.want {
				t.Errorf("ToPayload() = %+v, want %+v", *got, tt.want)
			}
		})
	}
	if ToPayload(nil) != nil {
		t.Error("ToPayload(nil) != nil")
	}
}

func TestPromise_resolve(t *testing.T) {
	t.Parallel()

	table, _, _ := newTestTable(t)
	p := NewPromise(table)
	ctx := context.Background()

	f := p.Resolve(ctx, &protocol.CallFrame{ID: "1", Method: protocol.MethodInit, Args: json.RawMessage(`{"applicationCode":"app"}`)})
	if res, ok := f.(*protocol.ResultFrame); !ok || res.ID != "1" {
		t.Fatalf("Resolve(init) = %#v, want result frame", f)
	}

	f = p.Resolve(ctx, &protocol.CallFrame{ID: "2", Method: "nope"})
	ef, ok := f.(*protocol.ErrorFrame)
	if !ok || ef.ID != "2" || ef.Error.Code != protocol.CodeUnknownMethod {
		t.Errorf("Resolve(nope) = %#v, want UNKNOWN_METHOD error frame", f)
	}
}

func TestCallbacks(t *testing.T) {
	t.Parallel()

	table, _, _ := newTestTable(t)
	cb := NewCallbacks(context.Background(), table)

	type outcome struct {
		res json.RawMessage
		err *protocol.ErrorPayload
	}
	run := func(method, args string) outcome {
		ch := make(chan outcome, 2)
		cb.Call(method, json.RawMessage(args),
			func(res json.RawMessage) { ch <- outcome{res: res} },
			func(err *protocol.ErrorPayload) { ch <- outcome{err: err} },
		)
		select {
		case o := <-ch:
			return o
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: no callback", method)
			return outcome{}
		}
	}

	if o := run(protocol.MethodGetUser, ``); o.err == nil || o.err.Code != "NOT_INITIALIZED" {
		t.Errorf("getUser before init = %+v", o)
	}
	if o := run(protocol.MethodInit, `{"applicationCode":"app"}`); o.err != nil {
		t.Fatalf("init error: %v", o.err)
	}
	if o := run(protocol.MethodGetInstallation, ``); o.err != nil || len(o.res) == 0 {
		t.Errorf("getInstallation = %+v", o)
	}
}

func TestLocal_eventsFlowAfterListener(t *testing.T) {
	t.Parallel()

	table, local, native := newTestTable(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := local.Call(ctx, protocol.MethodAddListener, json.RawMessage(`{"event":"tokenReceived"}`)); err != nil {
		t.Fatalf("addListener error: %v", err)
	}
	if _, err := local.Call(ctx, protocol.MethodInit, json.RawMessage(`{"applicationCode":"app"}`)); err != nil {
		t.Fatalf("init error: %v", err)
	}

	ev, err := local.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Name != protocol.EventTokenReceived {
		t.Errorf("Next() = %s, want tokenReceived", ev.Name)
	}

	native.Tap(sdk.Message{MessageID: "m-1"})
	if _, err := table.Call(ctx, protocol.MethodAddListener, json.RawMessage(`{"event":"notificationTapped"}`)); err != nil {
		t.Fatalf("addListener error: %v", err)
	}
	ev, err = local.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Name != protocol.EventNotificationTapped || string(ev.Data) != `{"messageId":"m-1"}` {
		t.Errorf("Next() = %s %s", ev.Name, ev.Data)
	}
}

func TestLocal_close(t *testing.T) {
	t.Parallel()

	_, local, _ := newTestTable(t)
	if err := local.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if local.Live() {
		t.Error("Live() after Close")
	}
	if err := local.Emit(context.Background(), "x", nil); !errors.Is(err, eventcache.ErrNoContext) {
		t.Errorf("Emit() after Close error = %v", err)
	}
	if _, err := local.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Close error = %v", err)
	}
	if _, err := local.Call(context.Background(), protocol.MethodGetUser, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Call() after Close error = %v", err)
	}
}
