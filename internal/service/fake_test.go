package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/sdk/sim"
)

type emitted struct {
	name string
	data json.RawMessage
}

// fakeEmitter plays the JS context. onEmit runs in its own goroutine,
// like a JS handler answering asynchronously.
type fakeEmitter struct {
	mu     sync.Mutex
	live   bool
	got    []emitted
	onEmit func(name string, data json.RawMessage)
}

func (f *fakeEmitter) Emit(_ context.Context, name string, data json.RawMessage) error {
	f.mu.Lock()
	if !f.live {
		f.mu.Unlock()
		return eventcache.ErrNoContext
	}
	f.got = append(f.got, emitted{name: name, data: data})
	on := f.onEmit
	f.mu.Unlock()

	if on != nil {
		go on(name, data)
	}
	return nil
}

func (f *fakeEmitter) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeEmitter) setLive(v bool) {
	f.mu.Lock()
	f.live = v
	f.mu.Unlock()
}

func (f *fakeEmitter) setOnEmit(fn func(name string, data json.RawMessage)) {
	f.mu.Lock()
	f.onEmit = fn
	f.mu.Unlock()
}

func (f *fakeEmitter) named(name string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.got {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// newTestService returns a service over the simulator with a live JS
// context and an in-memory event cache.
func newTestService(t *testing.T, platform string) (*Service, *sim.SDK, *fakeEmitter) {
	t.Helper()

	native := sim.New(platform, nil)
	em := &fakeEmitter{live: true}
	deps := NativeDeps(native, native, native, nil)
	deps.Cache = eventcache.NewMemoryStore()
	svc := New(Config{
		Platform:   platform,
		Emitter:    em,
		CacheLimit: config.DefaultCacheLimit,
	}, deps)
	t.Cleanup(svc.Destroy)
	return svc, native, em
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
