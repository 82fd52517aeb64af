package eventcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoContext is returned by an Emitter when no JS context is connected.
var ErrNoContext = errors.New("no live JS context")

// Emitter delivers events to the live JS context.
type Emitter interface {
	Emit(ctx context.Context, name string, data json.RawMessage) error
	Live() bool
}

// Status describes the buffer for status reporting.
type Status struct {
	Initialized       bool `json:"initialized"`
	ListenersAttached bool `json:"listenersAttached"`
	Live              bool `json:"live"`
	Pending           int  `json:"pending"`
}

// Buffer delivers events to JS when it can and caches them when it cannot.
// All delivery goes through one mutex, so a replay in progress cannot be
// overtaken by a newer event.
type Buffer struct {
	store   Store
	emitter Emitter
	limit   int
	log     *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	initialized bool
	listening   bool
	names       map[string]bool
}

// New returns a Buffer caching into store (nil disables caching) and
// delivering through emitter. At most limit entries are kept.
func New(store Store, emitter Emitter, limit int, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		store:   store,
		emitter: emitter,
		limit:   limit,
		log:     logger.With("component", "eventcache"),
		now:     time.Now,
		names:   make(map[string]bool),
	}
}

// SetInitialized records whether the bridge finished init.
func (b *Buffer) SetInitialized(v bool) {
	b.mu.Lock()
	b.initialized = v
	b.mu.Unlock()
}

// DetachListeners marks the JS listeners as gone, as when the JS context
// reloads. Events are cached until the next AddListener.
func (b *Buffer) DetachListeners() {
	b.mu.Lock()
	b.listening = false
	clear(b.names)
	b.mu.Unlock()
}

// Reset clears both flags. It is called when the bridge is destroyed.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.initialized = false
	b.listening = false
	clear(b.names)
	b.mu.Unlock()
}

// ListenersAttached reports whether JS has called AddListener.
func (b *Buffer) ListenersAttached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// RecordOrDeliver emits the event when the bridge is initialized, a JS
// context is live and listeners are attached; otherwise the event is
// cached. Failures are logged and never returned.
func (b *Buffer) RecordOrDeliver(ctx context.Context, name string, data json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized && b.listening && b.emitter.Live() {
		err := b.emitter.Emit(ctx, name, data)
		if err == nil {
			return
		}
		b.log.Warn("delivery failed, caching event", "event", name, "error", err)
	}
	b.record(ctx, name, data)
}

func (b *Buffer) record(ctx context.Context, name string, data json.RawMessage) {
	if b.store == nil {
		b.log.Warn("no event cache and no JS context, discarding event", "event", name)
		return
	}
	e, err := b.store.Append(ctx, Entry{Name: name, Data: data, RecordedAt: b.now()})
	if err != nil {
		b.log.Error("caching event failed, dropping it", "event", name, "error", err)
		return
	}
	b.log.Debug("event cached", "event", name, "seq", e.Seq)

	if b.limit > 0 {
		evicted, err := b.store.Trim(ctx, b.limit)
		if err != nil {
			b.log.Error("trimming event cache", "error", err)
		} else if evicted > 0 {
			b.log.Warn("event cache full, evicted oldest events", "evicted", evicted, "limit", b.limit)
		}
	}
}

// AddListener marks listeners as attached and replays every cached event
// called name, oldest first. Replayed entries are removed from the cache.
// It returns how many events were replayed.
func (b *Buffer) AddListener(ctx context.Context, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listening = true
	b.names[name] = true
	return b.replay(ctx, func(e Entry) bool { return e.Name == name })
}

// ReplayAttached replays cached events for every name JS already listens
// to. It is used once init completes, for events raised during init.
func (b *Buffer) ReplayAttached(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.listening {
		return 0, nil
	}
	return b.replay(ctx, func(e Entry) bool { return b.names[e.Name] })
}

// Flush replays every cached event regardless of name, provided a JS
// context is live.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replay(ctx, func(Entry) bool { return true })
}

// replay must be called with b.mu held. It stops at the first failed
// emission; the rest stay cached in order.
func (b *Buffer) replay(ctx context.Context, match func(Entry) bool) (int, error) {
	if b.store == nil || !b.emitter.Live() {
		return 0, nil
	}
	entries, err := b.store.List(ctx)
	if err != nil {
		return 0, err
	}

	var delivered []int64
	for _, e := range entries {
		if !match(e) {
			continue
		}
		if err := b.emitter.Emit(ctx, e.Name, e.Data); err != nil {
			b.log.Warn("replay interrupted", "event", e.Name, "seq", e.Seq, "error", err)
			break
		}
		delivered = append(delivered, e.Seq)
	}
	if len(delivered) == 0 {
		return 0, nil
	}
	if err := b.store.Delete(ctx, delivered); err != nil {
		return len(delivered), err
	}
	b.log.Info("replayed cached events", "count", len(delivered))
	return len(delivered), nil
}

// Pending returns the cached entries, oldest first.
func (b *Buffer) Pending(ctx context.Context) ([]Entry, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.List(ctx)
}

// Status reports the buffer state.
func (b *Buffer) Status(ctx context.Context) Status {
	b.mu.Lock()
	st := Status{
		Initialized:       b.initialized,
		ListenersAttached: b.listening,
		Live:              b.emitter.Live(),
	}
	b.mu.Unlock()

	if entries, err := b.Pending(ctx); err == nil {
		st.Pending = len(entries)
	}
	return st
}
