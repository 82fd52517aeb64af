// Package mobilemessaging is the JS-side API of the bridge: what an app
// running in a JS runtime calls, expressed in Go. It talks to the bridge
// through a Transport (in-process or over the host link), validates
// configuration before anything reaches native code, fans events out to
// subscribers and answers the bridge's internal requests (custom message
// storage, chat JWTs, chat exceptions).
package mobilemessaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// Types shared with the bridge.
type (
	Configuration      = config.Configuration
	Message            = sdk.Message
	User               = sdk.User
	Installation       = sdk.Installation
	UserIdentity       = sdk.UserIdentity
	PersonalizeContext = sdk.PersonalizeContext
	CustomEvent        = sdk.CustomEvent
	InboxFilter        = sdk.InboxFilter
	Inbox              = sdk.Inbox
	ChatException      = sdk.ChatException

	// Error is how every bridge and native failure is reported.
	Error = protocol.ErrorPayload
)

// ErrNotInitialized is returned by features that need a successful Init.
var ErrNotInitialized = errors.New("mobile messaging is not initialized")

// Transport carries calls to the bridge and events back. Call failures
// are *Error.
type Transport interface {
	Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)
	Next(ctx context.Context) (protocol.EventFrame, error)
}

// MobileMessaging is the facade. Create it with New and run its event
// pump with Run.
type MobileMessaging struct {
	t        Transport
	platform string
	perms    PermissionRequester
	log      *slog.Logger

	mu        sync.Mutex
	cfg       *Configuration
	storage   MessageStorage
	subs      map[string][]*Subscription
	listening map[string]bool
	jwt       JwtProvider
	exception func(ChatException)
}

// Option configures New.
type Option func(*MobileMessaging)

// WithPlatform sets the host platform, config.PlatformAndroid or
// config.PlatformIOS. Android-only behavior is skipped otherwise.
func WithPlatform(platform string) Option {
	return func(m *MobileMessaging) { m.platform = platform }
}

// WithPermissionRequester sets how Android runtime permissions are asked.
func WithPermissionRequester(r PermissionRequester) Option {
	return func(m *MobileMessaging) { m.perms = r }
}

// WithLogger sets the logger. If unset, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(m *MobileMessaging) { m.log = l }
}

// New returns a facade over t.
func New(t Transport, opts ...Option) *MobileMessaging {
	m := &MobileMessaging{
		t:         t,
		subs:      make(map[string][]*Subscription),
		listening: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "mobilemessaging")
	return m
}

// InitOption configures Init.
type InitOption func(*initOptions)

type initOptions struct {
	storage any
}

// WithMessageStorage makes s the SDK's message store. s must implement
// every method of MessageStorage; Init reports the missing ones.
func WithMessageStorage(s any) InitOption {
	return func(o *initOptions) { o.storage = s }
}

// Init validates cfg and initializes the native SDK. Configuration errors
// are reported before anything is sent to the bridge.
func (m *MobileMessaging) Init(ctx context.Context, cfg *Configuration, opts ...InitOption) error {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	if cfg == nil {
		return &config.ValidationError{Field: "configuration", Reason: "is required"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	var storage MessageStorage
	if o.storage != nil {
		s, err := checkStorage(o.storage)
		if err != nil {
			return err
		}
		storage = s
	}

	cfg = cfg.Clone()
	cfg.MessageStorage = storage != nil

	if m.platform == config.PlatformAndroid && cfg.GeofencingEnabled {
		granted, err := m.RequestLocationPermission(ctx)
		if err != nil {
			return err
		}
		if !granted {
			return errors.New("geofencing requires the location permission, which was not granted")
		}
	}

	m.mu.Lock()
	m.storage = storage
	m.mu.Unlock()

	// Storage start is raised while the SDK initializes.
	if storage != nil {
		for _, name := range []string{protocol.EventStorageStart, protocol.EventStorageStop, protocol.EventStorageSave} {
			if err := m.listen(ctx, name); err != nil {
				return err
			}
		}
	}

	if err := m.call(ctx, protocol.MethodInit, cfg, nil); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.log.Info("initialized", "custom_storage", storage != nil, "default_storage", cfg.DefaultMessageStorage)
	return nil
}

// Configuration returns the configuration Init succeeded with.
func (m *MobileMessaging) Configuration() (*Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, ErrNotInitialized
	}
	return m.cfg.Clone(), nil
}

// Run pumps events from the bridge until ctx ends or the transport closes.
// Handlers run on Run's goroutine in subscription order.
func (m *MobileMessaging) Run(ctx context.Context) error {
	for {
		ev, err := m.t.Next(ctx)
		if err != nil {
			return err
		}
		if protocol.IsInternal(ev.Name) {
			m.handleInternal(ctx, ev)
			continue
		}
		m.dispatch(Event{Name: ev.Name, Data: ev.Data})
	}
}

func (m *MobileMessaging) handleInternal(ctx context.Context, ev protocol.EventFrame) {
	switch ev.Name {
	case protocol.EventStorageStart, protocol.EventStorageStop, protocol.EventStorageSave,
		protocol.EventStorageFind, protocol.EventStorageFindAll:
		m.handleStorage(ctx, ev)
	case protocol.EventJwtRequested:
		m.handleJwtRequest(ctx)
	case protocol.EventChatException:
		m.handleChatException(ev)
	}
}

// call sends args as JSON and decodes the result into out.
func (m *MobileMessaging) call(ctx context.Context, method string, args, out any) error {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s arguments: %w", method, err)
		}
		raw = b
	}

	res, err := m.t.Call(ctx, method, raw)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 || string(res) == "null" {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// listen asks the bridge to deliver name, once per name.
func (m *MobileMessaging) listen(ctx context.Context, name string) error {
	m.mu.Lock()
	done := m.listening[name]
	m.mu.Unlock()
	if done {
		return nil
	}

	if err := m.call(ctx, protocol.MethodAddListener, module.ListenerArgs{Event: name}, nil); err != nil {
		return fmt.Errorf("listening for %s: %w", name, err)
	}
	m.mu.Lock()
	m.listening[name] = true
	m.mu.Unlock()
	return nil
}
