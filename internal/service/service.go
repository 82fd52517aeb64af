// Package service is the bridge service shared by every module shim. It
// owns the event dispatcher, the replay buffer, the JWT queue and the
// custom storage adapter, and forwards everything else to the native SDK.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/events"
	"github.com/kuuji/mmbridge/internal/jwtqueue"
	"github.com/kuuji/mmbridge/internal/msgstorage"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

var (
	// ErrNotInitialized is returned by features that need the
	// configuration accepted by Init.
	ErrNotInitialized = errors.New("mobile messaging is not initialized, call init first")

	// ErrDestroyed is returned once Destroy has run.
	ErrDestroyed = errors.New("bridge service is destroyed")

	// ErrDefaultStorageDisabled is returned by default storage calls when
	// init did not enable it.
	ErrDefaultStorageDisabled = errors.New("default message storage is not enabled")

	// ErrInvalidArgument wraps argument validation failures.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrChatUnavailable is returned by chat features when the native chat
	// module is not linked in.
	ErrChatUnavailable = errors.New("in-app chat is not available in this build")
)

// State is the lifecycle state of a Service.
type State int

// Lifecycle states, in order.
const (
	StateConstructed State = iota
	StateRegistered
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Service.
type Config struct {
	// Platform selects the native identifier table.
	Platform string

	// Emitter reaches the live JS context. Nil means no context is ever
	// live and every event is cached.
	Emitter eventcache.Emitter

	// CacheLimit caps the event cache; zero is unbounded.
	CacheLimit int

	Storage config.StorageConfig

	Logger *slog.Logger
}

// Status is a snapshot of the service for the control API.
type Status struct {
	State          string            `json:"state"`
	Platform       string            `json:"platform"`
	Configured     bool              `json:"configured"`
	Cache          eventcache.Status `json:"cache"`
	JwtPending     int               `json:"jwtPending"`
	CallsAvailable bool              `json:"callsAvailable"`
}

// Service is the shared bridge service.
type Service struct {
	deps     Deps
	platform string
	emitter  eventcache.Emitter
	log      *slog.Logger

	buffer     *eventcache.Buffer
	dispatcher *events.Dispatcher
	jwt        *jwtqueue.Queue
	storage    *msgstorage.Adapter
	calls      calls.Capability

	configuration atomic.Pointer[config.Configuration]

	mu         sync.Mutex
	state      State
	unregister func()
}

// New builds a Service in the constructed state.
func New(cfg Config, deps Deps) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = detached{}
	}
	if deps.Broadcasts == nil {
		deps.Broadcasts = noBroadcasts{}
	}

	s := &Service{
		deps:     deps,
		platform: cfg.Platform,
		emitter:  emitter,
		log:      logger.With("component", "service"),
	}
	s.buffer = eventcache.New(deps.Cache, emitter, cfg.CacheLimit, logger)
	s.dispatcher = events.NewDispatcher(cfg.Platform, s.buffer, logger)
	s.jwt = jwtqueue.New(s.notifyJwt, deps.Poster, logger)
	s.storage = msgstorage.New(s.buffer, emitter, msgstorage.Options{
		FindTimeout:    cfg.Storage.FindTimeout.Duration,
		FindAllTimeout: cfg.Storage.FindAllTimeout.Duration,
		Logger:         logger,
	})
	if deps.Calls != nil {
		s.calls = deps.Calls(s.Configuration)
	} else {
		s.calls = calls.Unavailable{}
	}
	return s
}

func (s *Service) notifyJwt() error {
	if !s.emitter.Live() {
		return eventcache.ErrNoContext
	}
	return s.emitter.Emit(context.Background(), protocol.EventJwtRequested, nil)
}

// State returns the lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RegisterReceivers subscribes the dispatcher to native broadcasts. It is
// a no-op when already registered.
func (s *Service) RegisterReceivers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked()
}

func (s *Service) registerLocked() error {
	switch s.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateConstructed:
		s.unregister = s.deps.Broadcasts.RegisterReceiver(s.dispatcher.Receive)
		s.state = StateRegistered
		s.log.Debug("broadcast receivers registered")
	}
	return nil
}

// Init validates cfg, initializes the native SDK and makes the service
// active. The custom storage adapter is handed to the SDK when
// cfg.MessageStorage is set.
func (s *Service) Init(ctx context.Context, cfg *config.Configuration) error {
	if cfg == nil {
		return &config.ValidationError{Field: "configuration", Reason: "is required"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registerLocked(); err != nil {
		return err
	}

	var store sdk.MessageStore
	if cfg.MessageStorage {
		store = s.storage
	}
	if err := s.deps.Messaging.Init(ctx, cfg, store); err != nil {
		return err
	}

	s.configuration.Store(cfg.Clone())
	s.buffer.SetInitialized(true)
	s.state = StateActive

	if s.deps.Configurations != nil {
		if err := s.deps.Configurations.Save(cfg); err != nil {
			s.log.Warn("persisting configuration failed", "error", err)
		}
	}
	if n, err := s.buffer.ReplayAttached(ctx); err != nil {
		s.log.Warn("replaying events cached during init", "error", err)
	} else if n > 0 {
		s.log.Debug("replayed events cached during init", "count", n)
	}

	s.log.Info("initialized",
		"chat", cfg.InAppChatEnabled,
		"custom_storage", cfg.MessageStorage,
		"default_storage", cfg.DefaultMessageStorage,
	)
	return nil
}

// Restore re-runs Init with the persisted configuration, as a host does
// when the process restarts without the JS layer. It reports false when
// nothing was persisted.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.deps.Configurations == nil {
		return false, nil
	}
	cfg, err := s.deps.Configurations.Load()
	if errors.Is(err, config.ErrNoConfiguration) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading persisted configuration: %w", err)
	}
	if err := s.Init(ctx, cfg); err != nil {
		return false, fmt.Errorf("restoring configuration: %w", err)
	}
	return true, nil
}

// Configuration returns a copy of the configuration accepted by Init.
func (s *Service) Configuration() (*config.Configuration, error) {
	cfg := s.configuration.Load()
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	return cfg.Clone(), nil
}

// Destroy unregisters the receivers and clears the initialized flag.
// Cached events are kept for the next service.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return
	}
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}
	if s.deps.Chat != nil {
		s.deps.Chat.SetJwtProvider(nil)
		s.deps.Chat.SetExceptionHandler(nil)
	}
	s.buffer.Reset()
	s.state = StateDestroyed
	s.log.Info("destroyed")
}

// AddListener marks JS listeners attached and replays cached events of
// that name.
func (s *Service) AddListener(ctx context.Context, name string) (int, error) {
	n, err := s.buffer.AddListener(ctx, name)
	if err != nil {
		return n, fmt.Errorf("replaying %s: %w", name, err)
	}
	if n > 0 {
		s.log.Debug("replayed cached events", "event", name, "count", n)
	}
	return n, nil
}

// AttachContext is called when a JS context connects. A JWT request left
// pending by a previous context is prompted again.
func (s *Service) AttachContext() {
	s.jwt.Reprompt()
}

// DetachContext is called when the JS context goes away; its listeners go
// with it.
func (s *Service) DetachContext() {
	s.buffer.DetachListeners()
}

// Status reports the service state.
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		State:          s.State().String(),
		Platform:       s.platform,
		Configured:     s.configuration.Load() != nil,
		Cache:          s.buffer.Status(ctx),
		JwtPending:     s.jwt.Len(),
		CallsAvailable: s.calls.Available(),
	}
}

// Pending lists the cached events, oldest first.
func (s *Service) Pending(ctx context.Context) ([]eventcache.Entry, error) {
	return s.buffer.Pending(ctx)
}

// Flush replays every cached event to the live JS context.
func (s *Service) Flush(ctx context.Context) (int, error) {
	return s.buffer.Flush(ctx)
}

// SetJwtProvider installs or removes the JWT queue as the chat's token
// provider.
func (s *Service) SetJwtProvider(enabled bool) error {
	c, err := s.chatModule()
	if err != nil {
		return err
	}
	if enabled {
		c.SetJwtProvider(s.jwt.Request)
		return nil
	}
	c.SetJwtProvider(nil)
	return nil
}

// SetJwt resolves the oldest pending JWT request with token.
func (s *Service) SetJwt(token string) error {
	return s.jwt.ResumeWithJwt(token)
}

// SetJwtError rejects the oldest pending JWT request.
func (s *Service) SetJwtError(message string) error {
	if message == "" {
		message = "JWT provider failed"
	}
	return s.jwt.ResumeWithError(errors.New(message))
}

// SetChatExceptionHandler routes chat exceptions to JS when enabled; when
// disabled the SDK shows its default UI.
func (s *Service) SetChatExceptionHandler(enabled bool) error {
	c, err := s.chatModule()
	if err != nil {
		return err
	}
	if !enabled {
		c.SetExceptionHandler(nil)
		return nil
	}
	c.SetExceptionHandler(func(ex sdk.ChatException) {
		data, err := json.Marshal(ex)
		if err != nil {
			s.log.Error("encoding chat exception", "error", err)
			return
		}
		s.buffer.RecordOrDeliver(context.Background(), protocol.EventChatException, data)
	})
	return nil
}

// chatModule is chat without the Init requirement: handlers may be set
// before init.
func (s *Service) chatModule() (sdk.Chat, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if s.deps.Chat == nil {
		return nil, ErrChatUnavailable
	}
	return s.deps.Chat, nil
}

// ProvideFindResult answers the pending custom storage Find.
func (s *Service) ProvideFindResult(raw json.RawMessage) error {
	return s.storage.ProvideFindResult(raw)
}

// ProvideFindAllResult answers the pending custom storage FindAll.
func (s *Service) ProvideFindAllResult(raw json.RawMessage) error {
	return s.storage.ProvideFindAllResult(raw)
}

// Receive feeds one native broadcast to the dispatcher, bypassing the
// broadcast source. The control API uses it to inject events.
func (s *Service) Receive(b sdk.Broadcast) {
	s.dispatcher.Receive(b)
}
