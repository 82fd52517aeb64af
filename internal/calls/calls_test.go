package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
)

type fakeWebRTC struct {
	enabled     []string
	chatEnabled []string
	disabled    int
	err         error
}

func (f *fakeWebRTC) EnableCalls(_ context.Context, id, identity string) error {
	f.enabled = append(f.enabled, id+"/"+identity)
	return f.err
}

func (f *fakeWebRTC) EnableChatCalls(_ context.Context, id string) error {
	f.chatEnabled = append(f.chatEnabled, id)
	return f.err
}

func (f *fakeWebRTC) DisableCalls(context.Context) error {
	f.disabled++
	return f.err
}

var errNotInit = errors.New("not initialized")

func source(cfg *config.Configuration) ConfigurationFunc {
	return func() (*config.Configuration, error) {
		if cfg == nil {
			return nil, errNotInit
		}
		return cfg, nil
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	var c Capability = Unavailable{}
	if c.Available() {
		t.Error("Available() = true")
	}
	ctx := context.Background()
	for name, err := range map[string]error{
		"EnableCalls":     c.EnableCalls(ctx, "me"),
		"EnableChatCalls": c.EnableChatCalls(ctx),
		"DisableCalls":    c.DisableCalls(ctx),
	} {
		if !errors.Is(err, ErrCallsUnavailable) {
			t.Errorf("%s() error = %v, want ErrCallsUnavailable", name, err)
		}
	}
}

func TestSDK_readsConfigurationLazily(t *testing.T) {
	t.Parallel()

	var current *config.Configuration
	rtc := &fakeWebRTC{}
	c := New(rtc, func() (*config.Configuration, error) { return source(current)() }, nil, nil)
	ctx := context.Background()

	if err := c.EnableCalls(ctx, "alice"); !errors.Is(err, errNotInit) {
		t.Fatalf("EnableCalls() before init error = %v, want errNotInit", err)
	}

	current = &config.Configuration{ApplicationCode: "app"}
	if err := c.EnableCalls(ctx, "alice"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnableCalls() without webRTCUI error = %v, want ErrNotConfigured", err)
	}

	current = &config.Configuration{ApplicationCode: "app", WebRTCUI: &config.WebRTCUIConfig{ConfigurationID: "cfg-9"}}
	if err := c.EnableCalls(ctx, "alice"); err != nil {
		t.Fatalf("EnableCalls() error: %v", err)
	}
	if err := c.EnableChatCalls(ctx); err != nil {
		t.Fatalf("EnableChatCalls() error: %v", err)
	}
	if err := c.DisableCalls(ctx); err != nil {
		t.Fatalf("DisableCalls() error: %v", err)
	}

	if len(rtc.enabled) != 1 || rtc.enabled[0] != "cfg-9/alice" {
		t.Errorf("EnableCalls forwarded %v", rtc.enabled)
	}
	if len(rtc.chatEnabled) != 1 || rtc.chatEnabled[0] != "cfg-9" {
		t.Errorf("EnableChatCalls forwarded %v", rtc.chatEnabled)
	}
	if rtc.disabled != 1 {
		t.Errorf("DisableCalls forwarded %d times", rtc.disabled)
	}
}

func TestSDK_wrapsNativeError(t *testing.T) {
	t.Parallel()

	native := errors.New("permission denied")
	cfg := &config.Configuration{ApplicationCode: "app", WebRTCUI: &config.WebRTCUIConfig{ConfigurationID: "cfg"}}
	c := New(&fakeWebRTC{err: native}, source(cfg), nil, nil)

	if err := c.EnableCalls(context.Background(), "x"); !errors.Is(err, native) {
		t.Errorf("EnableCalls() error = %v, want wrapped native error", err)
	}
}

func TestPreflight_hostCandidates(t *testing.T) {
	t.Parallel()

	p := NewPreflighter(config.CallsConfig{PreflightTimeout: config.Duration{Duration: 5 * time.Second}}, nil)
	report, err := p.Run(context.Background())
	if errors.Is(err, ErrNoCandidates) {
		t.Skip("no non-loopback interfaces to gather host candidates from")
	}
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.ByType["host"] == 0 {
		t.Errorf("Run() gathered no host candidates: %+v", report)
	}
}

func TestPreflight_cancelled(t *testing.T) {
	t.Parallel()

	p := NewPreflighter(config.CallsConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Gathering may finish before the select observes ctx; either outcome
	// is acceptable as long as Run returns.
	_, err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Run() error = %v", err)
	}
}
