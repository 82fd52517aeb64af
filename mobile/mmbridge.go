// Package mobile provides a gomobile-compatible API for the mmbridge
// service. It is compiled to an Android AAR or an iOS framework via
// `gomobile bind`.
//
// All exported types and methods work within gomobile's type restrictions:
// only basic types (string, int, bool, []byte, error) and interfaces with
// methods using those types cross the boundary. Structured values travel
// as JSON strings.
//
// Usage from Kotlin/Android:
//
//	val bridge = Mobile.newBridge(configTOML, filesDir.path, nativeSdk)
//	bridge.setLogger(logCallback)
//	bridge.start()
//	bridge.attachSink(jsEvents)      // when the JS runtime is ready
//	bridge.call("init", cfgJSON, cb) // every JS method call
//	bridge.broadcast(action, extras) // every SDK broadcast
//	bridge.stop()
package mobile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/looper"
	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// Logger receives log messages from the Go core. Implement this interface
// in Kotlin or Swift and pass it to Bridge.SetLogger().
//
// Level values: 0=Debug, 1=Info, 2=Warn, 3=Error
type Logger interface {
	Log(level int, msg string)
}

// NativeSDK calls into the real Mobile Messaging SDK. method is an SDK
// method name such as "saveUser"; args and the result are JSON.
//
// A failure should be returned as an error whose message is a JSON object
// {"code": ..., "description": ..., "domain": ...} so JS sees the SDK's own
// error code. Any other message is reported as an internal error.
type NativeSDK interface {
	Invoke(method string, argsJSON string) (string, error)
}

// EventSink is the live JS context. OnEvent must not block.
type EventSink interface {
	OnEvent(name string, dataJSON string)
}

// Callback receives the outcome of one Bridge.Call. Exactly one method is
// called, from a background thread.
type Callback interface {
	OnSuccess(resultJSON string)
	OnError(errorJSON string)
}

// JwtCallback is the SDK's continuation for one JWT request.
type JwtCallback interface {
	OnJwt(token string)
	OnError(message string)
}

// Bridge is one mmbridge instance inside a host app. Create it with
// NewBridge, then call Start.
type Bridge struct {
	cfg     *config.Config
	dataDir string
	native  NativeSDK
	logger  Logger

	mu         sync.Mutex
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	log        *slog.Logger
	remote     *sdk.Remote
	broadcasts *sdk.Broadcaster
	svc        *service.Service
	table      *module.Table
	shim       *module.Callbacks
	cache      eventcache.Store
	main       *looper.Looper
	sink       EventSink
}

// NewBridge creates a Bridge from a TOML configuration string with the
// same structure as the mmbridge config.toml file. An empty string uses
// the defaults. dataDir holds the event cache and the persisted app
// configuration; the host's private files directory is a good choice.
func NewBridge(configTOML, dataDir string, native NativeSDK) (*Bridge, error) {
	if native == nil {
		return nil, fmt.Errorf("native SDK is required")
	}

	cfg := config.DefaultConfig()
	if configTOML != "" {
		parsed, err := config.ParseTOML(configTOML)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		cfg = parsed
	}
	if dataDir == "" && (cfg.Cache.Backend != config.CacheMemory || cfg.Persist.Mode != config.PersistNone) {
		return nil, fmt.Errorf("data directory is required for cache backend %q and persist mode %q", cfg.Cache.Backend, cfg.Persist.Mode)
	}

	return &Bridge{cfg: cfg, dataDir: dataDir, native: native}, nil
}

// SetLogger sets a callback for log messages from the Go core.
// Must be called before Start().
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Platform returns the configured platform, "android" or "ios".
func (b *Bridge) Platform() string {
	return b.cfg.Bridge.Platform
}

// Start builds the service and registers it for SDK broadcasts. It does
// not block.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bridge is already running")
	}

	var logger *slog.Logger
	if b.logger != nil {
		logger = slog.New(&mobileLogHandler{callback: b.logger})
	} else {
		logger = slog.Default()
	}

	cache, err := eventcache.Open(b.cfg.Cache, b.dataDir)
	if err != nil {
		return fmt.Errorf("opening event cache: %w", err)
	}
	configurations, err := config.OpenStore(b.cfg.Persist, b.dataDir)
	if err != nil {
		cache.Close() //nolint:errcheck
		return fmt.Errorf("opening configuration store: %w", err)
	}

	b.remote = sdk.NewRemote(sdk.InvokerFunc(b.invoke))
	b.broadcasts = sdk.NewBroadcaster()
	b.main = looper.New(logger)
	b.cache = cache

	var rtc sdk.WebRTC
	var preflight *calls.Preflighter
	if b.cfg.Calls.Enabled {
		rtc = b.remote
		preflight = calls.NewPreflighter(b.cfg.Calls, logger)
	}
	deps := service.NativeDeps(b.remote, b.broadcasts, rtc, preflight)
	deps.Cache = cache
	deps.Configurations = configurations
	deps.Poster = b.main

	b.svc = service.New(service.Config{
		Platform:   b.cfg.Bridge.Platform,
		Emitter:    sinkEmitter{b},
		CacheLimit: b.cfg.Cache.Limit,
		Storage:    b.cfg.Storage,
		Logger:     logger,
	}, deps)
	if err := b.svc.RegisterReceivers(); err != nil {
		b.main.Close()
		cache.Close() //nolint:errcheck
		return fmt.Errorf("registering receivers: %w", err)
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.table = module.New(b.svc, logger)
	b.shim = module.NewCallbacks(b.ctx, b.table)
	b.log = logger.With("component", "mobile")
	b.running = true
	b.log.Info("bridge started", "platform", b.cfg.Bridge.Platform, "cache", b.cfg.Cache.Backend)
	return nil
}

// Restore re-initializes the SDK with the persisted app configuration,
// for a process that starts without the JS layer (a push wakes the app).
// It reports false when nothing was persisted.
func (b *Bridge) Restore() (bool, error) {
	svc, ctx, err := b.service()
	if err != nil {
		return false, err
	}
	return svc.Restore(ctx)
}

// Stop tears the bridge down. Cached events stay in the cache backend for
// the next start. Safe to call from any thread.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.sink = nil
	svc, cancel, main, cache := b.svc, b.cancel, b.main, b.cache
	b.mu.Unlock()

	cancel()
	svc.Destroy()
	main.Close()
	if err := cache.Close(); err != nil {
		b.log.Warn("closing event cache", "error", err)
	}
	b.log.Info("bridge stopped")
}

// IsRunning returns whether the bridge is started.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// AttachSink makes sink the live JS context. Events cached while no
// context was live are replayed as JS adds listeners. A sink replacing
// another starts without listeners.
func (b *Bridge) AttachSink(sink EventSink) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bridge is not running")
	}
	replacing := b.sink != nil
	table := b.table
	b.mu.Unlock()

	if replacing {
		table.Detach()
	}

	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()

	table.Attach()
	return nil
}

// DetachSink is called when the JS context goes away, e.g. on a reload.
func (b *Bridge) DetachSink() {
	b.mu.Lock()
	if b.sink == nil {
		b.mu.Unlock()
		return
	}
	b.sink = nil
	table := b.table
	b.mu.Unlock()

	table.Detach()
}

// Call runs a JS method asynchronously. argsJSON may be empty for methods
// without arguments. errorJSON has the fields code, description and domain.
func (b *Bridge) Call(method, argsJSON string, cb Callback) {
	b.mu.Lock()
	shim := b.shim
	running := b.running
	b.mu.Unlock()

	if !running {
		go cb.OnError(encodeError(&protocol.ErrorPayload{
			Code:        protocol.CodeDestroyed,
			Description: "bridge is not running",
			Domain:      protocol.Domain,
		}))
		return
	}

	var args json.RawMessage
	if argsJSON != "" {
		args = json.RawMessage(argsJSON)
	}
	shim.Call(method, args,
		func(res json.RawMessage) {
			if len(res) == 0 {
				res = json.RawMessage("null")
			}
			cb.OnSuccess(string(res))
		},
		func(p *protocol.ErrorPayload) {
			cb.OnError(encodeError(p))
		})
}

// Broadcast feeds a native SDK broadcast (Android intent action or iOS
// notification name) into the bridge. extrasJSON is a JSON object or
// empty.
func (b *Bridge) Broadcast(action, extrasJSON string) error {
	b.mu.Lock()
	src := b.broadcasts
	b.mu.Unlock()
	if src == nil {
		return fmt.Errorf("bridge is not running")
	}

	var extras map[string]any
	if extrasJSON != "" {
		if err := json.Unmarshal([]byte(extrasJSON), &extras); err != nil {
			return fmt.Errorf("parsing extras of %s: %w", action, err)
		}
	}
	src.Send(sdk.Broadcast{Action: action, Extras: extras})
	return nil
}

// RequestJwt is called by the chat SDK when it needs a user token. It
// reports false when JS has not installed a JWT provider.
func (b *Bridge) RequestJwt(cb JwtCallback) bool {
	b.mu.Lock()
	remote := b.remote
	b.mu.Unlock()
	if remote == nil {
		return false
	}
	return remote.ProvideJwt(jwtAdapter{cb})
}

// RaiseChatException hands a chat exception to the JS handler. It reports
// false when the SDK should show its default UI instead.
func (b *Bridge) RaiseChatException(exceptionJSON string) (bool, error) {
	b.mu.Lock()
	remote := b.remote
	b.mu.Unlock()
	if remote == nil {
		return false, fmt.Errorf("bridge is not running")
	}

	var ex sdk.ChatException
	if err := json.Unmarshal([]byte(exceptionJSON), &ex); err != nil {
		return false, fmt.Errorf("parsing chat exception: %w", err)
	}
	return remote.RaiseChatException(ex), nil
}

// StorageStart tells the JS message store the SDK starts using it.
func (b *Bridge) StorageStart() {
	if s := b.store(); s != nil {
		s.Start()
	}
}

// StorageStop tells the JS message store the SDK is done with it.
func (b *Bridge) StorageStop() {
	if s := b.store(); s != nil {
		s.Stop()
	}
}

// StorageSave hands new messages, a JSON array, to the JS message store.
func (b *Bridge) StorageSave(messagesJSON string) error {
	s := b.store()
	if s == nil {
		return fmt.Errorf("no custom message storage is configured")
	}
	var msgs []sdk.Message
	if err := json.Unmarshal([]byte(messagesJSON), &msgs); err != nil {
		return fmt.Errorf("parsing messages: %w", err)
	}
	s.Save(msgs)
	return nil
}

// StorageFind asks the JS message store for one message. It blocks until
// JS answers or the find timeout passes, and returns the message JSON or
// an empty string. Call it from a background thread.
func (b *Bridge) StorageFind(messageID string) string {
	s := b.store()
	if s == nil {
		return ""
	}
	msg, ok := s.Find(b.context(), messageID)
	if !ok {
		return ""
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return ""
	}
	return string(data)
}

// StorageFindAll asks the JS message store for every message. It returns
// a JSON array, or an empty string when JS gave no usable answer.
func (b *Bridge) StorageFindAll() string {
	s := b.store()
	if s == nil {
		return ""
	}
	msgs, ok := s.FindAll(b.context())
	if !ok {
		return ""
	}
	if msgs == nil {
		msgs = []sdk.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return ""
	}
	return string(data)
}

// GetStatus returns a JSON-encoded status of the service. Returns an empty
// JSON object "{}" if the bridge is not running.
func (b *Bridge) GetStatus() string {
	svc, ctx, err := b.service()
	if err != nil {
		return "{}"
	}
	data, err := json.Marshal(svc.Status(ctx))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// GetPendingEvents returns the cached events as a JSON array.
func (b *Bridge) GetPendingEvents() string {
	svc, ctx, err := b.service()
	if err != nil {
		return "[]"
	}
	entries, err := svc.Pending(ctx)
	if err != nil || len(entries) == 0 {
		return "[]"
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Flush replays every cached event to the attached sink and returns how
// many were delivered.
func (b *Bridge) Flush() (int, error) {
	svc, ctx, err := b.service()
	if err != nil {
		return 0, err
	}
	return svc.Flush(ctx)
}

// --- Internal helpers ---

func (b *Bridge) service() (*service.Service, context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil, nil, fmt.Errorf("bridge is not running")
	}
	return b.svc, b.ctx, nil
}

func (b *Bridge) store() sdk.MessageStore {
	b.mu.Lock()
	remote := b.remote
	b.mu.Unlock()
	if remote == nil {
		return nil
	}
	return remote.Store()
}

func (b *Bridge) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// invoke adapts NativeSDK to sdk.Invoker.
func (b *Bridge) invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := b.native.Invoke(method, string(args))
	if err != nil {
		return nil, decodeNativeError(err)
	}
	if res == "" {
		return nil, nil
	}
	return json.RawMessage(res), nil
}

// decodeNativeError recovers an *sdk.Error from a host error message.
func decodeNativeError(err error) error {
	var native sdk.Error
	if jsonErr := json.Unmarshal([]byte(err.Error()), &native); jsonErr == nil && native.Code != "" {
		return &native
	}
	return err
}

func encodeError(p *protocol.ErrorPayload) string {
	data, err := json.Marshal(p)
	if err != nil {
		return `{"code":"INTERNAL_ERROR","domain":"mmbridge"}`
	}
	return string(data)
}

// sinkEmitter is the service's view of the attached EventSink.
type sinkEmitter struct {
	b *Bridge
}

func (e sinkEmitter) Emit(_ context.Context, name string, data json.RawMessage) error {
	e.b.mu.Lock()
	sink := e.b.sink
	e.b.mu.Unlock()
	if sink == nil {
		return eventcache.ErrNoContext
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	sink.OnEvent(name, string(data))
	return nil
}

func (e sinkEmitter) Live() bool {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	return e.b.sink != nil
}

// jwtAdapter bridges the mobile.JwtCallback interface to sdk.JwtCallback.
// The SDK side reports errors as values, the host side as messages.
type jwtAdapter struct {
	cb JwtCallback
}

func (a jwtAdapter) OnJwt(token string) { a.cb.OnJwt(token) }

func (a jwtAdapter) OnError(err error) {
	if err == nil {
		err = errors.New("jwt request failed")
	}
	a.cb.OnError(err.Error())
}

// mobileLogHandler adapts Go's slog to the mobile Logger callback.
type mobileLogHandler struct {
	callback Logger
	attrs    []slog.Attr
	groups   []string
}

func (h *mobileLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *mobileLogHandler) Handle(_ context.Context, r slog.Record) error {
	// Debug=0, Info=1, Warn=2, Error=3
	var level int
	switch {
	case r.Level < slog.LevelInfo:
		level = 0
	case r.Level < slog.LevelWarn:
		level = 1
	case r.Level < slog.LevelError:
		level = 2
	default:
		level = 3
	}

	msg := r.Message
	for _, a := range h.attrs {
		msg += " " + a.Key + "=" + a.Value.String()
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		msg += " " + prefix + a.Key + "=" + a.Value.String()
		return true
	})

	h.callback.Log(level, msg)
	return nil
}

func (h *mobileLogHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// WithAttrs qualifies attrs with the groups open at this point.
func (h *mobileLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.prefix()
	out := append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		out = append(out, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &mobileLogHandler{
		callback: h.callback,
		attrs:    out,
		groups:   h.groups,
	}
}

func (h *mobileLogHandler) WithGroup(name string) slog.Handler {
	return &mobileLogHandler{
		callback: h.callback,
		attrs:    h.attrs,
		groups:   append(append([]string(nil), h.groups...), name),
	}
}
