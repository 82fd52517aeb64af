package service

import (
	"context"
	"encoding/json"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/looper"
	"github.com/kuuji/mmbridge/internal/sdk"
)

// Native is the full native SDK surface a host links in.
type Native interface {
	sdk.Messaging
	sdk.Chat
	sdk.DefaultStorage
}

// Deps holds the collaborators of a Service. Tests swap any of them for
// fakes.
type Deps struct {
	Messaging  sdk.Messaging
	Chat       sdk.Chat
	Storage    sdk.DefaultStorage
	Broadcasts sdk.BroadcastSource

	// Calls builds the calls capability around the service's
	// configuration. Nil means the native calls module is not linked.
	Calls func(cfg calls.ConfigurationFunc) calls.Capability

	// Configurations persists the accepted configuration. Nil keeps it
	// in memory only.
	Configurations config.ConfigurationStore

	// Cache holds events that could not be delivered. Nil discards them.
	Cache eventcache.Store

	// Poster runs JWT callbacks on the main thread. Nil runs them inline.
	Poster looper.Poster
}

// NativeDeps returns Deps backed by one native SDK and its broadcast
// source. rtc may be nil when the calls module is absent.
func NativeDeps(native Native, src sdk.BroadcastSource, rtc sdk.WebRTC, preflight *calls.Preflighter) Deps {
	d := Deps{
		Messaging:  native,
		Chat:       native,
		Storage:    native,
		Broadcasts: src,
	}
	if rtc != nil {
		d.Calls = func(cfg calls.ConfigurationFunc) calls.Capability {
			return calls.New(rtc, cfg, preflight, nil)
		}
	}
	return d
}

// detached is the emitter of a service with no JS context.
type detached struct{}

func (detached) Emit(context.Context, string, json.RawMessage) error { return eventcache.ErrNoContext }
func (detached) Live() bool                                          { return false }

// noBroadcasts is used when no broadcast source is configured.
type noBroadcasts struct{}

func (noBroadcasts) RegisterReceiver(func(sdk.Broadcast)) func() { return func() {} }
