// Package msgstorage lets a JS-implemented message store serve as the
// native SDK's custom message storage.
//
// Lifecycle and save notifications are fire-and-forget events routed
// through the replay buffer. Lookups are rendezvous: the adapter emits a
// request to the live JS context and waits for JS to hand the answer back
// through ProvideFindResult or ProvideFindAllResult.
package msgstorage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// ErrNoPendingRequest is returned when JS answers a lookup nobody is
// waiting for, usually because it already timed out.
var ErrNoPendingRequest = errors.New("no pending storage lookup")

// Recorder queues fire-and-forget events for JS.
type Recorder interface {
	RecordOrDeliver(ctx context.Context, name string, data json.RawMessage)
}

// Emitter sends an event to the live JS context right away.
type Emitter interface {
	Emit(ctx context.Context, name string, data json.RawMessage) error
}

// Options tunes an Adapter. Zero values take defaults.
type Options struct {
	// FindTimeout bounds Find. Defaults to 30s.
	FindTimeout time.Duration

	// FindAllTimeout bounds FindAll; zero waits for JS or the caller's
	// context.
	FindAllTimeout time.Duration

	// After replaces time.After in tests.
	After func(time.Duration) <-chan time.Time

	Logger *slog.Logger
}

type pending struct {
	id string
	ch chan json.RawMessage
}

// Adapter implements sdk.MessageStore on top of a JS store.
type Adapter struct {
	rec            Recorder
	emit           Emitter
	findTimeout    time.Duration
	findAllTimeout time.Duration
	after          func(time.Duration) <-chan time.Time
	log            *slog.Logger

	// findMu admits one Find at a time; findAllMu does the same for FindAll.
	findMu    sync.Mutex
	findAllMu sync.Mutex

	mu      sync.Mutex
	find    *pending
	findAll *pending
}

var _ sdk.MessageStore = (*Adapter)(nil)

// New returns an Adapter recording lifecycle events through rec and
// emitting lookups through emit.
func New(rec Recorder, emit Emitter, opts Options) *Adapter {
	if opts.FindTimeout <= 0 {
		opts.FindTimeout = config.DefaultFindTimeout
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		rec:            rec,
		emit:           emit,
		findTimeout:    opts.FindTimeout,
		findAllTimeout: opts.FindAllTimeout,
		after:          opts.After,
		log:            opts.Logger.With("component", "msgstorage"),
	}
}

// Start tells the JS store the SDK is starting to use it.
func (a *Adapter) Start() {
	a.rec.RecordOrDeliver(context.Background(), protocol.EventStorageStart, nil)
}

// Stop tells the JS store the SDK is done with it.
func (a *Adapter) Stop() {
	a.rec.RecordOrDeliver(context.Background(), protocol.EventStorageStop, nil)
}

// Save hands new messages to the JS store.
func (a *Adapter) Save(messages []sdk.Message) {
	if len(messages) == 0 {
		return
	}
	data, err := json.Marshal(messages)
	if err != nil {
		a.log.Error("encoding messages to save", "error", err)
		return
	}
	a.rec.RecordOrDeliver(context.Background(), protocol.EventStorageSave, data)
}

// Find asks the JS store for one message. It reports false when JS does
// not answer within the find timeout, answers with nothing or garbage,
// answers for another id, or when ctx ends first.
func (a *Adapter) Find(ctx context.Context, messageID string) (sdk.Message, bool) {
	a.findMu.Lock()
	defer a.findMu.Unlock()

	id, _ := json.Marshal(messageID)
	raw, ok := a.await(ctx, &a.find, messageID, protocol.EventStorageFind, id, a.findTimeout)
	if !ok {
		return sdk.Message{}, false
	}

	var msg *sdk.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.log.Warn("malformed find result", "message_id", messageID, "error", err)
		return sdk.Message{}, false
	}
	if msg == nil {
		return sdk.Message{}, false
	}
	if msg.MessageID != messageID {
		a.log.Warn("find result for another message", "want", messageID, "got", msg.MessageID)
		return sdk.Message{}, false
	}
	return *msg, true
}

// FindAll asks the JS store for every message it holds.
func (a *Adapter) FindAll(ctx context.Context) ([]sdk.Message, bool) {
	a.findAllMu.Lock()
	defer a.findAllMu.Unlock()

	raw, ok := a.await(ctx, &a.findAll, "", protocol.EventStorageFindAll, nil, a.findAllTimeout)
	if !ok {
		return nil, false
	}

	var msgs []sdk.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		a.log.Warn("malformed findAll result", "error", err)
		return nil, false
	}
	return msgs, true
}

// ProvideFindResult delivers JS's answer to the outstanding Find.
func (a *Adapter) ProvideFindResult(raw json.RawMessage) error {
	return a.resolve(&a.find, raw, protocol.EventStorageFind)
}

// ProvideFindAllResult delivers JS's answer to the outstanding FindAll.
func (a *Adapter) ProvideFindAllResult(raw json.RawMessage) error {
	return a.resolve(&a.findAll, raw, protocol.EventStorageFindAll)
}

// await registers a pending slot, emits the request and waits for the
// answer. A zero timeout waits without bound.
func (a *Adapter) await(ctx context.Context, slot **pending, id, event string, data json.RawMessage, timeout time.Duration) (json.RawMessage, bool) {
	p := &pending{id: id, ch: make(chan json.RawMessage, 1)}
	a.mu.Lock()
	*slot = p
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if *slot == p {
			*slot = nil
		}
		a.mu.Unlock()
	}()

	if err := a.emit.Emit(ctx, event, data); err != nil {
		a.log.Warn("could not reach JS store", "event", event, "error", err)
		return nil, false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		expired = a.after(timeout)
	}
	select {
	case raw := <-p.ch:
		return raw, true
	case <-expired:
		a.log.Warn("JS store did not answer in time", "event", event, "message_id", id, "timeout", timeout)
		return nil, false
	case <-ctx.Done():
		a.log.Debug("storage lookup cancelled", "event", event, "error", ctx.Err())
		return nil, false
	}
}

func (a *Adapter) resolve(slot **pending, raw json.RawMessage, event string) error {
	a.mu.Lock()
	p := *slot
	*slot = nil
	a.mu.Unlock()

	if p == nil {
		a.log.Debug("dropping late storage result", "event", event)
		return ErrNoPendingRequest
	}
	p.ch <- raw
	return nil
}
