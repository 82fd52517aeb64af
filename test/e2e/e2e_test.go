//go:build e2e

// Package e2e runs end-to-end tests against a real mmbridge binary.
//
// Each test builds mmbridge, starts `mmbridge serve` with the simulated
// native SDK and drives it the way a JS runtime would, over the host link,
// while native events are injected with `mmbridge emit`.
//
// Run with: go test -tags e2e -v -timeout 120s ./test/e2e/
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/hostlink"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

const authToken = "e2e-token"

// bridge is one running `mmbridge serve`.
type bridge struct {
	bin     string
	cfgPath string
	url     string
	home    string
}

// projectRoot returns the absolute path to the project root.
func projectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := filepath.Abs(filepath.Join(dir, "..", ".."))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("project root not found (no go.mod at %s)", root)
	}
	return root
}

func buildBinary(t *testing.T, root string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "mmbridge")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/mmbridge")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, out)
	}
	return bin
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// startBridge writes a config for platform and runs `mmbridge serve`
// until the test ends.
func startBridge(t *testing.T, platform string) *bridge {
	t.Helper()
	root := projectRoot(t)
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Bridge.Platform = platform
	cfg.Bridge.Listen = freeAddr(t)
	cfg.Bridge.Path = "/link"
	cfg.Bridge.AuthToken = authToken
	cfg.Bridge.ControlSocket = filepath.Join(dir, "control.sock")
	cfg.Cache.Backend = config.CacheFile
	cfg.Persist.Mode = config.PersistNone

	b := &bridge{
		bin:     buildBinary(t, root),
		cfgPath: filepath.Join(dir, "config.toml"),
		url:     "ws://" + cfg.Bridge.Listen + cfg.Bridge.Path,
		home:    dir,
	}
	if err := config.SaveConfig(b.cfgPath, cfg); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var logs bytes.Buffer
	cmd := b.command("serve", "-v")
	cmd.Stderr = &logs
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting serve: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			cmd.Process.Kill()
		}
		if t.Failed() {
			t.Logf("=== serve logs ===\n%s", logs.String())
		}
	})

	b.waitForStatus(t, 15*time.Second)
	return b
}

func (b *bridge) command(args ...string) *exec.Cmd {
	cmd := exec.Command(b.bin, append([]string{"--config", b.cfgPath}, args...)...)
	cmd.Env = append(os.Environ(), "XDG_DATA_HOME="+filepath.Join(b.home, "data"))
	return cmd
}

// run runs an mmbridge subcommand and returns its stdout.
func (b *bridge) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := b.command(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s\nstderr: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// waitForStatus polls `mmbridge status` until the control socket answers.
func (b *bridge) waitForStatus(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := b.run(t, "status"); err == nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("timed out waiting for mmbridge serve")
}

func (b *bridge) connect(t *testing.T, ctx context.Context) *hostlink.Client {
	t.Helper()
	c := hostlink.NewClient(hostlink.ClientConfig{
		URL:   b.url,
		Token: authToken,
		Hello: protocol.HelloFrame{Client: "e2e", Platform: "test"},
	})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connecting host link: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func call(t *testing.T, ctx context.Context, c *hostlink.Client, method string, args any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("encoding %s args: %v", method, err)
	}
	res, err := c.Call(ctx, method, raw)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return res
}

// nextEvent waits for the next event called name, skipping others.
func nextEvent(t *testing.T, ctx context.Context, c *hostlink.Client, name string) protocol.EventFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if ev.Name == name {
			return ev
		}
	}
}

// --- Tests ---

// TestE2E_CachedEventsReplay verifies that events raised before JS listens
// are cached by the running bridge and replayed once a listener is added.
func TestE2E_CachedEventsReplay(t *testing.T) {
	b := startBridge(t, config.PlatformAndroid)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := b.connect(t, ctx)
	call(t, ctx, c, protocol.MethodInit, map[string]any{"applicationCode": "e2e-app"})

	if _, err := b.run(t, "emit", protocol.EventMessageReceived, "--data", `{"message":{"messageId":"m-e2e","body":"hello"}}`); err != nil {
		t.Fatalf("emit: %v", err)
	}

	out, err := b.run(t, "cache")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if !strings.Contains(out, protocol.EventMessageReceived) {
		t.Fatalf("cache output does not list the message:\n%s", out)
	}

	call(t, ctx, c, protocol.MethodAddListener, map[string]any{"event": protocol.EventMessageReceived})
	ev := nextEvent(t, ctx, c, protocol.EventMessageReceived)
	if !strings.Contains(string(ev.Data), "m-e2e") {
		t.Errorf("replayed data = %s, want message m-e2e", ev.Data)
	}

	out, err = b.run(t, "cache")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if !strings.Contains(out, "No cached events") {
		t.Errorf("cache not drained after replay:\n%s", out)
	}
}

// TestE2E_LiveDelivery verifies that events raised while a listener is
// attached reach JS directly and that status reports the session.
func TestE2E_LiveDelivery(t *testing.T) {
	b := startBridge(t, config.PlatformIOS)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := b.connect(t, ctx)
	call(t, ctx, c, protocol.MethodInit, map[string]any{"applicationCode": "e2e-app"})
	call(t, ctx, c, protocol.MethodAddListener, map[string]any{"event": protocol.EventTokenReceived})

	if _, err := b.run(t, "emit", protocol.EventTokenReceived, "--data", `{"registrationId":"tok-e2e"}`); err != nil {
		t.Fatalf("emit: %v", err)
	}
	for {
		ev := nextEvent(t, ctx, c, protocol.EventTokenReceived)
		if strings.Contains(string(ev.Data), "tok-e2e") {
			break
		}
	}

	out, err := b.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"ios", "e2e"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}
