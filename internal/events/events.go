// Package events maps native SDK broadcasts to the JS events applications
// subscribe to, and serializes their payloads into JSON.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// ErrUnknownAction is returned by Translate for identifiers outside the
// mapping table.
var ErrUnknownAction = errors.New("unknown native event identifier")

// Event is a translated JS event ready for delivery.
type Event struct {
	Name string
	Data json.RawMessage
}

// payloadFunc builds the JS payload from broadcast extras. A nil result
// means the event carries no data.
type payloadFunc func(extras map[string]any) (any, error)

type route struct {
	name    string
	payload payloadFunc
}

var routes = map[sdk.Kind]route{
	sdk.KindMessageReceived:                   {protocol.EventMessageReceived, extra(sdk.ExtraMessage)},
	sdk.KindNotificationTapped:                {protocol.EventNotificationTapped, extra(sdk.ExtraMessage)},
	sdk.KindTokenReceived:                     {protocol.EventTokenReceived, stringExtra(sdk.ExtraRegistrationID)},
	sdk.KindRegistrationUpdated:               {protocol.EventRegistrationUpdated, stringExtra(sdk.ExtraRegistrationID)},
	sdk.KindInstallationUpdated:               {protocol.EventInstallationUpdated, extra(sdk.ExtraInstallation)},
	sdk.KindUserUpdated:                       {protocol.EventUserUpdated, extra(sdk.ExtraUser)},
	sdk.KindPersonalized:                      {protocol.EventPersonalized, extra(sdk.ExtraUser)},
	sdk.KindDepersonalized:                    {protocol.EventDepersonalized, none},
	sdk.KindActionTapped:                      {protocol.EventActionTapped, actionTapped},
	sdk.KindGeofenceEntered:                   {protocol.EventGeofenceEntered, geofenceEntered},
	sdk.KindChatAvailabilityUpdated:           {protocol.EventChatAvailabilityUpdated, boolExtra(sdk.ExtraChatAvailable)},
	sdk.KindChatUnreadCounterUpdated:          {protocol.EventChatUnreadCounterUpdated, intExtra(sdk.ExtraUnreadCount)},
	sdk.KindChatViewStateChanged:              {protocol.EventChatViewStateChanged, stringExtra(sdk.ExtraViewState)},
	sdk.KindChatConfigurationSynced:           {protocol.EventChatConfigurationSynced, none},
	sdk.KindChatLivechatRegistrationIDUpdated: {protocol.EventChatLivechatRegistrationIDUpdated, stringExtra(sdk.ExtraLivechatRegistrationID)},
}

// NameOf returns the JS event name for a native kind.
func NameOf(k sdk.Kind) (string, bool) {
	r, ok := routes[k]
	return r.name, ok
}

// Table returns the native identifier to JS event name mapping of platform.
func Table(platform string) map[string]string {
	out := make(map[string]string, len(routes))
	for k, r := range routes {
		if action := sdk.ActionFor(platform, k); action != "" {
			out[action] = r.name
		}
	}
	return out
}

// Translate resolves b on platform and serializes its payload.
func Translate(platform string, b sdk.Broadcast) (Event, error) {
	k, ok := sdk.KindOf(platform, b.Action)
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownAction, b.Action)
	}
	r := routes[k]

	payload, err := r.payload(b.Extras)
	if err != nil {
		return Event{}, fmt.Errorf("building %s payload: %w", r.name, err)
	}
	if payload == nil {
		return Event{Name: r.name}, nil
	}
	data, err := marshalSafe(payload)
	if err != nil {
		return Event{}, fmt.Errorf("serializing %s payload: %w", r.name, err)
	}
	return Event{Name: r.name, Data: data}, nil
}

// marshalSafe normalizes v through a JSON round trip so that only plain
// JSON values reach the JS side.
func marshalSafe(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return json.Marshal(plain)
}

func none(map[string]any) (any, error) { return nil, nil }

func extra(key string) payloadFunc {
	return func(extras map[string]any) (any, error) {
		v, ok := extras[key]
		if !ok || v == nil {
			return nil, fmt.Errorf("missing extra %q", key)
		}
		return v, nil
	}
}

func stringExtra(key string) payloadFunc {
	return func(extras map[string]any) (any, error) {
		s, ok := extras[key].(string)
		if !ok {
			return nil, fmt.Errorf("extra %q is not a string", key)
		}
		return s, nil
	}
}

func boolExtra(key string) payloadFunc {
	return func(extras map[string]any) (any, error) {
		b, ok := extras[key].(bool)
		if !ok {
			return nil, fmt.Errorf("extra %q is not a bool", key)
		}
		return b, nil
	}
}

func intExtra(key string) payloadFunc {
	return func(extras map[string]any) (any, error) {
		switch n := extras[key].(type) {
		case int:
			return n, nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case json.Number:
			return n.Int64()
		}
		return nil, fmt.Errorf("extra %q is not a number", key)
	}
}

// actionTapped delivers [message, actionId] with the input text appended as
// a third element when the user typed one.
func actionTapped(extras map[string]any) (any, error) {
	msg, err := extra(sdk.ExtraMessage)(extras)
	if err != nil {
		return nil, err
	}
	actionID, err := stringExtra(sdk.ExtraActionID)(extras)
	if err != nil {
		return nil, err
	}
	out := []any{msg, actionID}
	if text, _ := extras[sdk.ExtraInputText].(string); text != "" {
		out = append(out, text)
	}
	return out, nil
}

// geofenceEntered delivers the message object with the entered area under
// "geo".
func geofenceEntered(extras map[string]any) (any, error) {
	msg, err := extra(sdk.ExtraMessage)(extras)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("message is not an object: %w", err)
	}
	if geo, ok := extras[sdk.ExtraGeo]; ok {
		obj[sdk.ExtraGeo] = geo
	}
	return obj, nil
}

// Sink receives translated events. The replay buffer implements it.
type Sink interface {
	RecordOrDeliver(ctx context.Context, name string, data json.RawMessage)
}

// Dispatcher turns native broadcasts into JS events. Receive is synchronous,
// so broadcasts from one source reach the sink in the order they were
// raised.
type Dispatcher struct {
	platform string
	sink     Sink
	log      *slog.Logger
}

// NewDispatcher returns a Dispatcher for platform's identifiers.
func NewDispatcher(platform string, sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		platform: platform,
		sink:     sink,
		log:      logger.With("component", "events"),
	}
}

// Receive handles one broadcast. Unknown identifiers are ignored and
// payload failures drop the event; neither reaches the caller.
func (d *Dispatcher) Receive(b sdk.Broadcast) {
	ev, err := Translate(d.platform, b)
	if errors.Is(err, ErrUnknownAction) {
		d.log.Debug("ignoring unmapped broadcast", "action", b.Action)
		return
	}
	if err != nil {
		d.log.Error("dropping event", "action", b.Action, "error", err)
		return
	}
	d.sink.RecordOrDeliver(context.Background(), ev.Name, ev.Data)
}
