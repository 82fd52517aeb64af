// Package sdk describes the native Mobile Messaging SDK as the bridge sees
// it: the data it exchanges, the calls it accepts and the broadcasts it
// raises. Real SDKs sit behind a mobile host (see Remote); tests and the
// development server use the in-memory simulator in sdk/sim.
package sdk

import (
	"context"
	"errors"
	"sync"

	"github.com/kuuji/mmbridge/internal/config"
)

// ErrUnsupported is returned when the linked SDK lacks an operation.
var ErrUnsupported = errors.New("operation not supported by the native SDK")

// Messaging is the core push/user/installation API.
type Messaging interface {
	Init(ctx context.Context, cfg *config.Configuration, store MessageStore) error

	SaveUser(ctx context.Context, user User) (User, error)
	FetchUser(ctx context.Context) (User, error)
	GetUser(ctx context.Context) (User, error)

	SaveInstallation(ctx context.Context, inst Installation) (Installation, error)
	FetchInstallation(ctx context.Context) (Installation, error)
	GetInstallation(ctx context.Context) (Installation, error)
	SetInstallationAsPrimary(ctx context.Context, pushRegistrationID string, primary bool) ([]Installation, error)
	DepersonalizeInstallation(ctx context.Context, pushRegistrationID string) ([]Installation, error)

	Personalize(ctx context.Context, pc PersonalizeContext) (User, error)
	Depersonalize(ctx context.Context) (string, error)

	MarkMessagesSeen(ctx context.Context, messageIDs []string) ([]string, error)
	SubmitEvent(ctx context.Context, ev CustomEvent) error
	SubmitEventImmediately(ctx context.Context, ev CustomEvent) error

	FetchInboxMessages(ctx context.Context, token, externalUserID string, filter InboxFilter) (Inbox, error)
	FetchInboxMessagesWithoutToken(ctx context.Context, externalUserID string, filter InboxFilter) (Inbox, error)
	SetInboxMessagesSeen(ctx context.Context, externalUserID string, messageIDs []string) ([]string, error)

	ShowDialogForError(ctx context.Context, code int) error
}

// JwtCallback receives the outcome of one JWT request. The native SDK
// expects it to be resolved on the main thread.
type JwtCallback interface {
	OnJwt(token string)
	OnError(err error)
}

// JwtProvider is installed on the chat SDK; it is called every time the
// chat needs a fresh user token.
type JwtProvider func(cb JwtCallback)

// ExceptionHandler receives chat UI exceptions.
type ExceptionHandler func(ex ChatException)

// Chat is the in-app chat API.
type Chat interface {
	ShowChat(ctx context.Context, presentingOptions map[string]any) error
	ShowThreadsList(ctx context.Context) error
	SetChatCustomization(ctx context.Context, customization map[string]any) error
	SetWidgetTheme(ctx context.Context, theme string) error
	SetLanguage(ctx context.Context, language string) error
	SendContextualData(ctx context.Context, data, strategy string) error
	GetMessageCounter(ctx context.Context) (int, error)
	ResetMessageCounter(ctx context.Context) error

	// SetJwtProvider installs p; nil removes it.
	SetJwtProvider(p JwtProvider)
	// SetExceptionHandler installs h; nil restores the SDK's default UI.
	SetExceptionHandler(h ExceptionHandler)
}

// DefaultStorage is the SDK's built-in message store.
type DefaultStorage interface {
	Find(ctx context.Context, messageID string) (*Message, error)
	FindAll(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, messageID string) error
	DeleteAll(ctx context.Context) error
}

// WebRTC is the optional calls module.
type WebRTC interface {
	EnableCalls(ctx context.Context, configurationID, identity string) error
	EnableChatCalls(ctx context.Context, configurationID string) error
	DisableCalls(ctx context.Context) error
}

// MessageStore is what the SDK calls when the app brings its own message
// storage. Find and FindAll report false when no answer was obtained.
type MessageStore interface {
	Start()
	Stop()
	Save(messages []Message)
	Find(ctx context.Context, messageID string) (Message, bool)
	FindAll(ctx context.Context) ([]Message, bool)
}

// Broadcast is a native event: an Android broadcast action or an iOS
// notification name plus its extras.
type Broadcast struct {
	Action string         `json:"action"`
	Extras map[string]any `json:"extras,omitempty"`
}

// Extra keys carried by broadcasts.
const (
	ExtraMessage                = "message"
	ExtraRegistrationID         = "registrationId"
	ExtraInstallation           = "installation"
	ExtraUser                   = "user"
	ExtraActionID               = "actionId"
	ExtraInputText              = "inputText"
	ExtraGeo                    = "geo"
	ExtraUnreadCount            = "unreadMessagesCounter"
	ExtraChatAvailable          = "isChatAvailable"
	ExtraViewState              = "chatViewState"
	ExtraLivechatRegistrationID = "livechatRegistrationId"
)

// BroadcastSource delivers native broadcasts to registered receivers.
type BroadcastSource interface {
	RegisterReceiver(fn func(Broadcast)) (unregister func())
}

// Broadcaster is a BroadcastSource fed by Send. Receivers run synchronously
// in registration order, so a single sender's broadcasts stay ordered.
type Broadcaster struct {
	mu        sync.RWMutex
	next      int
	receivers map[int]func(Broadcast)
	order     []int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{receivers: make(map[int]func(Broadcast))}
}

// RegisterReceiver adds fn and returns a function removing it.
func (b *Broadcaster) RegisterReceiver(fn func(Broadcast)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.receivers[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.receivers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Send delivers br to every receiver and reports how many received it.
func (b *Broadcaster) Send(br Broadcast) int {
	b.mu.RLock()
	fns := make([]func(Broadcast), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.receivers[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(br)
	}
	return len(fns)
}
