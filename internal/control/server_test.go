package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

type fakeBackend struct {
	mu       sync.Mutex
	injected []sdk.Broadcast
	flushErr error
}

func (f *fakeBackend) Status(context.Context) Status {
	return Status{
		Service: service.Status{
			State:      "active",
			Platform:   "android",
			Configured: true,
			Cache:      eventcache.Status{Initialized: true, Pending: 2},
		},
		Listen:        "127.0.0.1:7420",
		Session:       &protocol.HelloFrame{Client: "rn", Platform: "android"},
		UptimeSeconds: 42.5,
	}
}

func (f *fakeBackend) Pending(context.Context) ([]eventcache.Entry, error) {
	return []eventcache.Entry{
		{Seq: 1, Name: protocol.EventTokenReceived, Data: json.RawMessage(`"tok"`), RecordedAt: time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)},
		{Seq: 2, Name: protocol.EventRegistrationUpdated, Data: json.RawMessage(`"reg"`)},
	}, nil
}

func (f *fakeBackend) Flush(context.Context) (int, error) {
	if f.flushErr != nil {
		return 0, f.flushErr
	}
	return 2, nil
}

func (f *fakeBackend) Inject(b sdk.Broadcast) {
	f.mu.Lock()
	f.injected = append(f.injected, b)
	f.mu.Unlock()
}

func startServer(t *testing.T, backend Backend) *Client {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, backend, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Stop() }) //nolint:errcheck
	return NewClient(socketPath)
}

func TestServer_status(t *testing.T) {
	t.Parallel()

	c := startServer(t, &fakeBackend{})

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Service.State != "active" || !status.Service.Configured {
		t.Errorf("Service = %+v", status.Service)
	}
	if status.Service.Cache.Pending != 2 {
		t.Errorf("Cache.Pending = %d, want 2", status.Service.Cache.Pending)
	}
	if status.Session == nil || status.Session.Client != "rn" {
		t.Errorf("Session = %+v, want client rn", status.Session)
	}
	if status.UptimeSeconds != 42.5 {
		t.Errorf("UptimeSeconds = %v, want 42.5", status.UptimeSeconds)
	}
}

func TestServer_cache(t *testing.T) {
	t.Parallel()

	c := startServer(t, &fakeBackend{})

	entries, err := c.Pending()
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(Pending()) = %d, want 2", len(entries))
	}
	if entries[0].Name != protocol.EventTokenReceived || string(entries[0].Data) != `"tok"` {
		t.Errorf("entries[0] = %+v", entries[0])
	}

	n, err := c.Flush()
	if err != nil || n != 2 {
		t.Errorf("Flush() = %d, %v; want 2, nil", n, err)
	}
}

func TestServer_flushError(t *testing.T) {
	t.Parallel()

	c := startServer(t, &fakeBackend{flushErr: errors.New("no live context")})

	_, err := c.Flush()
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Flush() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusConflict || se.Message != "no live context" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestServer_inject(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	c := startServer(t, backend)

	b := sdk.Broadcast{Action: "org.infobip.mobile.messaging.REGISTRATION_ACQUIRED", Extras: map[string]any{"registrationId": "tok"}}
	if err := c.Inject(b); err != nil {
		t.Fatalf("Inject() error: %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.injected) != 1 || backend.injected[0].Action != b.Action {
		t.Fatalf("injected = %+v", backend.injected)
	}
	if backend.injected[0].Extras["registrationId"] != "tok" {
		t.Errorf("extras = %v", backend.injected[0].Extras)
	}

	var se *StatusError
	if err := c.Inject(sdk.Broadcast{}); !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("Inject(empty) error = %v, want 400", err)
	}
}

func TestClient_noServer(t *testing.T) {
	t.Parallel()

	c := NewClient(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if _, err := c.Status(); err == nil {
		t.Fatal("expected error when server is not running, got nil")
	}
}
