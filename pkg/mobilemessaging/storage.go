package mobilemessaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// MessageStorage is an app-supplied message store. Find returns nil when
// the message is unknown.
type MessageStorage interface {
	Start()
	Stop()
	Save(messages []Message)
	Find(ctx context.Context, messageID string) (*Message, error)
	FindAll(ctx context.Context) ([]Message, error)
}

// StorageError reports a message store missing required methods.
type StorageError struct {
	Missing []string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("messageStorage is missing required methods: %s", strings.Join(e.Missing, ", "))
}

// checkStorage reports every MessageStorage method s lacks.
func checkStorage(s any) (MessageStorage, error) {
	var missing []string
	if _, ok := s.(interface{ Start() }); !ok {
		missing = append(missing, "Start")
	}
	if _, ok := s.(interface{ Stop() }); !ok {
		missing = append(missing, "Stop")
	}
	if _, ok := s.(interface{ Save([]Message) }); !ok {
		missing = append(missing, "Save")
	}
	if _, ok := s.(interface {
		Find(context.Context, string) (*Message, error)
	}); !ok {
		missing = append(missing, "Find")
	}
	if _, ok := s.(interface {
		FindAll(context.Context) ([]Message, error)
	}); !ok {
		missing = append(missing, "FindAll")
	}
	if len(missing) > 0 {
		return nil, &StorageError{Missing: missing}
	}
	return s.(MessageStorage), nil
}

func (m *MobileMessaging) handleStorage(ctx context.Context, ev protocol.EventFrame) {
	m.mu.Lock()
	s := m.storage
	m.mu.Unlock()
	if s == nil {
		m.log.Warn("storage event without a message storage", "event", ev.Name)
		return
	}

	switch ev.Name {
	case protocol.EventStorageStart:
		s.Start()
	case protocol.EventStorageStop:
		s.Stop()
	case protocol.EventStorageSave:
		var msgs []Message
		if err := json.Unmarshal(ev.Data, &msgs); err != nil {
			m.log.Warn("dropping malformed save", "error", err)
			return
		}
		s.Save(msgs)
	case protocol.EventStorageFind:
		var id string
		if err := json.Unmarshal(ev.Data, &id); err != nil {
			m.log.Warn("malformed find request", "error", err)
			go m.answer(ctx, protocol.MethodProvideFindResult, nil)
			return
		}
		// The native side waits on the answer; answer off the pump.
		go func() {
			msg, err := s.Find(ctx, id)
			if err != nil {
				m.log.Warn("message storage find failed", "message_id", id, "error", err)
				msg = nil
			}
			m.answer(ctx, protocol.MethodProvideFindResult, msg)
		}()
	case protocol.EventStorageFindAll:
		go func() {
			msgs, err := s.FindAll(ctx)
			if err != nil {
				m.log.Warn("message storage findAll failed", "error", err)
				msgs = nil
			}
			if msgs == nil {
				msgs = []Message{}
			}
			m.answer(ctx, protocol.MethodProvideFindAllResult, msgs)
		}()
	}
}

func (m *MobileMessaging) answer(ctx context.Context, method string, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		m.log.Error("encoding storage answer", "method", method, "error", err)
		data = json.RawMessage("null")
	}
	if err := m.call(ctx, method, module.ResultArgs{Result: data}, nil); err != nil {
		m.log.Warn("storage answer rejected", "method", method, "error", err)
	}
}

// DefaultStorage is the SDK's built-in message store.
type DefaultStorage struct {
	m *MobileMessaging
}

// DefaultMessageStorage returns the built-in store, or nil unless it was
// enabled at Init.
func (m *MobileMessaging) DefaultMessageStorage() *DefaultStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil || !m.cfg.DefaultMessageStorage {
		return nil
	}
	return &DefaultStorage{m: m}
}

// Find returns the stored message, or nil.
func (d *DefaultStorage) Find(ctx context.Context, messageID string) (*Message, error) {
	var msg *Message
	if err := d.m.call(ctx, protocol.MethodDefaultStorageFind, module.MessageIDArgs{MessageID: messageID}, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// FindAll returns every stored message.
func (d *DefaultStorage) FindAll(ctx context.Context) ([]Message, error) {
	var msgs []Message
	if err := d.m.call(ctx, protocol.MethodDefaultStorageFindAll, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Delete removes one message.
func (d *DefaultStorage) Delete(ctx context.Context, messageID string) error {
	return d.m.call(ctx, protocol.MethodDefaultStorageDelete, module.MessageIDArgs{MessageID: messageID}, nil)
}

// DeleteAll empties the store.
func (d *DefaultStorage) DeleteAll(ctx context.Context) error {
	return d.m.call(ctx, protocol.MethodDefaultStorageDeleteAll, nil, nil)
}
