package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuuji/mmbridge/internal/sdk"
)

// ErrNoJwtProvider is returned by RequestJwt when the app installed none.
var ErrNoJwtProvider = errors.New("no JWT provider installed")

// Deliver simulates a push arriving: the message is stored (default
// storage, custom storage, inbox when it has a topic) and MESSAGE_RECEIVED
// is raised. A missing id is generated.
func (s *SDK) Deliver(msg sdk.Message) sdk.Message {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.ReceivedTimestamp == 0 {
		msg.ReceivedTimestamp = s.now().UnixMilli()
	}

	s.mu.Lock()
	cfg := s.cfg
	store := s.store
	if cfg != nil && cfg.DefaultMessageStorage {
		s.messages[msg.MessageID] = msg
	}
	if msg.Topic != "" {
		s.inbox = append(s.inbox, msg)
	}
	if msg.Chat {
		s.unread++
	}
	unread := s.unread
	s.mu.Unlock()

	if store != nil {
		store.Save([]sdk.Message{msg})
	}
	s.raise(sdk.KindMessageReceived, map[string]any{sdk.ExtraMessage: msg})
	if msg.Chat {
		s.raise(sdk.KindChatUnreadCounterUpdated, map[string]any{sdk.ExtraUnreadCount: unread})
	}
	return msg
}

// Tap simulates the user tapping a notification.
func (s *SDK) Tap(msg sdk.Message) {
	s.raise(sdk.KindNotificationTapped, map[string]any{sdk.ExtraMessage: msg})
}

// TapAction simulates the user tapping a notification action button.
// inputText is only carried when non-empty.
func (s *SDK) TapAction(msg sdk.Message, actionID, inputText string) {
	extras := map[string]any{sdk.ExtraMessage: msg, sdk.ExtraActionID: actionID}
	if inputText != "" {
		extras[sdk.ExtraInputText] = inputText
	}
	s.raise(sdk.KindActionTapped, extras)
}

// EnterGeofence simulates the device entering a geofenced area.
func (s *SDK) EnterGeofence(msg sdk.Message, area map[string]any) {
	s.raise(sdk.KindGeofenceEntered, map[string]any{sdk.ExtraMessage: msg, sdk.ExtraGeo: area})
}

// Lookup asks the custom message store for id, the way the SDK does when a
// notification references a stored message.
func (s *SDK) Lookup(ctx context.Context, id string) (sdk.Message, bool) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return sdk.Message{}, false
	}
	return store.Find(ctx, id)
}

// LookupAll asks the custom message store for everything it holds.
func (s *SDK) LookupAll(ctx context.Context) ([]sdk.Message, bool) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return nil, false
	}
	return store.FindAll(ctx)
}

// RequestJwt simulates the chat asking for a user token. It blocks until
// the provider's callback fires or ctx ends.
func (s *SDK) RequestJwt(ctx context.Context) (string, error) {
	s.mu.Lock()
	p := s.jwt
	s.mu.Unlock()
	if p == nil {
		return "", ErrNoJwtProvider
	}

	cb := &jwtWaiter{done: make(chan struct{})}
	p(cb)

	select {
	case <-cb.done:
		return cb.token, cb.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type jwtWaiter struct {
	done  chan struct{}
	token string
	err   error
}

func (w *jwtWaiter) OnJwt(token string) {
	w.token = token
	close(w.done)
}

func (w *jwtWaiter) OnError(err error) {
	w.err = err
	close(w.done)
}

// RaiseChatException simulates a chat UI failure. It reports whether an
// app handler took it; otherwise the SDK would show its default alert.
func (s *SDK) RaiseChatException(ex sdk.ChatException) bool {
	s.mu.Lock()
	h := s.onException
	s.mu.Unlock()
	if h == nil {
		s.log.Info("chat exception shown with default UI", "code", ex.Code, "name", ex.Name)
		return false
	}
	h(ex)
	return true
}

// ChangeChatView simulates the chat navigating between views.
func (s *SDK) ChangeChatView(state string) {
	s.raise(sdk.KindChatViewStateChanged, map[string]any{sdk.ExtraViewState: state})
}

// SyncChatConfiguration simulates the chat widget configuration arriving.
func (s *SDK) SyncChatConfiguration() {
	s.raise(sdk.KindChatConfigurationSynced, nil)
}

// UpdateLivechatRegistration simulates livechat assigning a registration id.
func (s *SDK) UpdateLivechatRegistration(id string) {
	s.raise(sdk.KindChatLivechatRegistrationIDUpdated, map[string]any{sdk.ExtraLivechatRegistrationID: id})
}

func (s *SDK) chatEnabled() error {
	cfg, err := s.requireInit()
	if err != nil {
		return err
	}
	if !cfg.InAppChatEnabled {
		return &sdk.Error{Code: "CHAT_DISABLED", Description: "in-app chat is not enabled in the configuration", Domain: Domain}
	}
	return nil
}

func (s *SDK) ShowChat(context.Context, map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chatEnabled(); err != nil {
		return err
	}
	s.chatShown++
	return nil
}

func (s *SDK) ShowThreadsList(ctx context.Context) error {
	return s.ShowChat(ctx, nil)
}

func (s *SDK) SetChatCustomization(_ context.Context, customization map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chatEnabled(); err != nil {
		return err
	}
	if len(customization) == 0 {
		return &sdk.Error{Code: "INVALID_CUSTOMIZATION", Description: "customization is empty", Domain: Domain}
	}
	return nil
}

func (s *SDK) SetWidgetTheme(_ context.Context, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return nil
}

func (s *SDK) SetLanguage(_ context.Context, language string) error {
	if language == "" {
		return &sdk.Error{Code: "INVALID_LANGUAGE", Description: "language is required", Domain: Domain}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = language
	return nil
}

func (s *SDK) SendContextualData(_ context.Context, data, strategy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chatEnabled(); err != nil {
		return err
	}
	switch strategy {
	case "", "ALL", "ACTIVE", "ALL_PLUS_NEW":
	default:
		return &sdk.Error{Code: "INVALID_STRATEGY", Description: fmt.Sprintf("unknown multithread strategy %q", strategy), Domain: Domain}
	}
	s.contextual = append(s.contextual, data)
	return nil
}

func (s *SDK) GetMessageCounter(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread, nil
}

func (s *SDK) ResetMessageCounter(context.Context) error {
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()
	s.raise(sdk.KindChatUnreadCounterUpdated, map[string]any{sdk.ExtraUnreadCount: 0})
	return nil
}

func (s *SDK) SetJwtProvider(p sdk.JwtProvider) {
	s.mu.Lock()
	s.jwt = p
	s.mu.Unlock()
}

func (s *SDK) SetExceptionHandler(h sdk.ExceptionHandler) {
	s.mu.Lock()
	s.onException = h
	s.mu.Unlock()
}

func (s *SDK) storageEnabled() error {
	cfg, err := s.requireInit()
	if err != nil {
		return err
	}
	if !cfg.DefaultMessageStorage {
		return &sdk.Error{Code: "STORAGE_DISABLED", Description: errNoStorage.Error(), Domain: Domain}
	}
	return nil
}

func (s *SDK) Find(_ context.Context, messageID string) (*sdk.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storageEnabled(); err != nil {
		return nil, err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *SDK) FindAll(context.Context) ([]sdk.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storageEnabled(); err != nil {
		return nil, err
	}
	return sortedMessages(s.messages), nil
}

func (s *SDK) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storageEnabled(); err != nil {
		return err
	}
	delete(s.messages, messageID)
	return nil
}

func (s *SDK) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storageEnabled(); err != nil {
		return err
	}
	s.messages = make(map[string]sdk.Message)
	return nil
}

func (s *SDK) EnableCalls(_ context.Context, configurationID, identity string) error {
	if configurationID == "" {
		return &sdk.Error{Code: "INVALID_CONFIGURATION_ID", Description: "configurationId is required", Domain: Domain}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return err
	}
	s.callsEnabled = true
	s.log.Info("calls enabled", "configuration_id", configurationID, "identity", identity)
	return nil
}

func (s *SDK) EnableChatCalls(ctx context.Context, configurationID string) error {
	s.mu.Lock()
	err := s.chatEnabled()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.EnableCalls(ctx, configurationID, "")
}

func (s *SDK) DisableCalls(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.callsEnabled {
		return &sdk.Error{Code: "CALLS_NOT_ENABLED", Description: "calls are not enabled", Domain: Domain}
	}
	s.callsEnabled = false
	return nil
}

// Snapshot is a read-only view of the simulator state, used by tests and
// the status endpoint.
type Snapshot struct {
	Initialized    bool      `json:"initialized"`
	User           sdk.User  `json:"user"`
	Registration   string    `json:"pushRegistrationId,omitempty"`
	StoredMessages int       `json:"storedMessages"`
	InboxMessages  int       `json:"inboxMessages"`
	Events         int       `json:"events"`
	Unread         int       `json:"unread"`
	Language       string    `json:"language,omitempty"`
	Theme          string    `json:"theme,omitempty"`
	ChatShown      int       `json:"chatShown"`
	CallsEnabled   bool      `json:"callsEnabled"`
	Contextual     []string  `json:"contextualData,omitempty"`
	TakenAt        time.Time `json:"takenAt"`
}

// Snapshot returns the current state.
func (s *SDK) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Initialized:    s.cfg != nil,
		User:           s.user,
		Registration:   s.installation.PushRegistrationID,
		StoredMessages: len(s.messages),
		InboxMessages:  len(s.inbox),
		Events:         len(s.events),
		Unread:         s.unread,
		Language:       s.language,
		Theme:          s.theme,
		ChatShown:      s.chatShown,
		CallsEnabled:   s.callsEnabled,
		Contextual:     append([]string(nil), s.contextual...),
		TakenAt:        s.now(),
	}
}
