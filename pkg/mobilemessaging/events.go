package mobilemessaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kuuji/mmbridge/pkg/protocol"
)

// Event is one event delivered to subscribers.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s carries no payload", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

// ActionTap is the payload of actionTapped.
type ActionTap struct {
	Message   Message
	ActionID  string
	InputText string
}

// ActionTap decodes an actionTapped payload, [message, actionId] with an
// optional trailing input text.
func (e Event) ActionTap() (ActionTap, error) {
	var parts []json.RawMessage
	if err := e.Decode(&parts); err != nil {
		return ActionTap{}, err
	}
	if len(parts) < 2 {
		return ActionTap{}, fmt.Errorf("%s payload has %d elements, want at least 2", e.Name, len(parts))
	}

	var tap ActionTap
	if err := json.Unmarshal(parts[0], &tap.Message); err != nil {
		return ActionTap{}, fmt.Errorf("decoding message: %w", err)
	}
	if err := json.Unmarshal(parts[1], &tap.ActionID); err != nil {
		return ActionTap{}, fmt.Errorf("decoding action id: %w", err)
	}
	if len(parts) > 2 {
		if err := json.Unmarshal(parts[2], &tap.InputText); err != nil {
			return ActionTap{}, fmt.Errorf("decoding input text: %w", err)
		}
	}
	return tap, nil
}

// Handler receives events.
type Handler func(ev Event)

// Listener is the legacy handler form. Values passed to Register must be
// comparable so Unregister can find them; pointer types are.
type Listener interface {
	OnEvent(ev Event)
}

// Subscription is the handle Subscribe returns.
type Subscription struct {
	id       string
	name     string
	handler  Handler
	listener Listener
}

// Name returns the subscribed event name.
func (s *Subscription) Name() string { return s.name }

// ErrEmptyEventName is returned when subscribing without an event name.
var ErrEmptyEventName = errors.New("event name is required")

// Subscribe calls h for every name event. The first subscription to a
// name asks the bridge for it, which replays events cached until then.
func (m *MobileMessaging) Subscribe(ctx context.Context, name string, h Handler) (*Subscription, error) {
	if name == "" {
		return nil, ErrEmptyEventName
	}
	if h == nil {
		return nil, errors.New("handler is required")
	}
	return m.subscribe(ctx, &Subscription{id: uuid.NewString(), name: name, handler: h})
}

// Unsubscribe releases sub. It is a no-op for a released handle.
func (m *MobileMessaging) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(sub.name, func(s *Subscription) bool { return s.id == sub.id })
}

// Register is the legacy form of Subscribe.
func (m *MobileMessaging) Register(ctx context.Context, name string, l Listener) error {
	if name == "" {
		return ErrEmptyEventName
	}
	if l == nil {
		return errors.New("listener is required")
	}
	_, err := m.subscribe(ctx, &Subscription{id: uuid.NewString(), name: name, listener: l})
	return err
}

// Unregister removes every registration of l for name.
func (m *MobileMessaging) Unregister(name string, l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(name, func(s *Subscription) bool { return s.listener != nil && s.listener == l })
}

func (m *MobileMessaging) subscribe(ctx context.Context, sub *Subscription) (*Subscription, error) {
	// Handlers go in first so a replay triggered by listen finds them.
	m.mu.Lock()
	m.subs[sub.name] = append(m.subs[sub.name], sub)
	m.mu.Unlock()

	if err := m.listen(ctx, sub.name); err != nil {
		m.Unsubscribe(sub)
		return nil, err
	}
	return sub, nil
}

// remove drops the subscriptions of name matching match. m.mu must be held.
func (m *MobileMessaging) remove(name string, match func(*Subscription) bool) {
	subs := m.subs[name]
	kept := subs[:0]
	for _, s := range subs {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	clear(subs[len(kept):])
	if len(kept) == 0 {
		delete(m.subs, name)
		return
	}
	m.subs[name] = kept
}

func (m *MobileMessaging) dispatch(ev Event) {
	m.mu.Lock()
	subs := append([]*Subscription(nil), m.subs[ev.Name]...)
	m.mu.Unlock()

	if len(subs) == 0 {
		m.log.Debug("event without subscribers", "event", ev.Name)
		return
	}
	for _, s := range subs {
		if s.handler != nil {
			s.handler(ev)
		} else {
			s.listener.OnEvent(ev)
		}
	}
}

// PublicEvents lists the event names apps can subscribe to.
func PublicEvents() []string {
	return append([]string(nil), protocol.PublicEvents...)
}
