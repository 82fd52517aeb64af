package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kuuji/mmbridge/internal/config"
)

// Invoker performs one named call into the native SDK. Arguments and
// results are JSON. Native failures should be returned as *Error.
type Invoker interface {
	Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	return f(ctx, method, args)
}

// Remote implements the SDK interfaces on top of an Invoker, for hosts
// where the real SDK lives on the other side of a language boundary.
// Callbacks the SDK makes into the bridge (message store, JWT provider,
// chat exceptions) are kept here and reached through the accessors.
type Remote struct {
	inv Invoker

	mu        sync.RWMutex
	store     MessageStore
	jwt       JwtProvider
	exception ExceptionHandler
}

var (
	_ Messaging      = (*Remote)(nil)
	_ Chat           = (*Remote)(nil)
	_ DefaultStorage = (*Remote)(nil)
	_ WebRTC         = (*Remote)(nil)
)

// NewRemote returns a Remote calling inv.
func NewRemote(inv Invoker) *Remote {
	return &Remote{inv: inv}
}

func (r *Remote) call(ctx context.Context, method string, args, out any) error {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s arguments: %w", method, err)
		}
		raw = b
	}

	res, err := r.inv.Invoke(ctx, method, raw)
	if err != nil {
		return fmt.Errorf("native %s: %w", method, err)
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// Store returns the message store passed to Init, if any.
func (r *Remote) Store() MessageStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

// ProvideJwt forwards a native JWT request to the installed provider. It
// reports false when no provider is installed.
func (r *Remote) ProvideJwt(cb JwtCallback) bool {
	r.mu.RLock()
	p := r.jwt
	r.mu.RUnlock()
	if p == nil {
		return false
	}
	p(cb)
	return true
}

// RaiseChatException forwards ex to the installed handler. It reports
// false when the SDK should show its default UI instead.
func (r *Remote) RaiseChatException(ex ChatException) bool {
	r.mu.RLock()
	h := r.exception
	r.mu.RUnlock()
	if h == nil {
		return false
	}
	h(ex)
	return true
}

func (r *Remote) Init(ctx context.Context, cfg *config.Configuration, store MessageStore) error {
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()
	return r.call(ctx, "init", cfg, nil)
}

func (r *Remote) SaveUser(ctx context.Context, user User) (User, error) {
	var out User
	err := r.call(ctx, "saveUser", user, &out)
	return out, err
}

func (r *Remote) FetchUser(ctx context.Context) (User, error) {
	var out User
	err := r.call(ctx, "fetchUser", nil, &out)
	return out, err
}

func (r *Remote) GetUser(ctx context.Context) (User, error) {
	var out User
	err := r.call(ctx, "getUser", nil, &out)
	return out, err
}

func (r *Remote) SaveInstallation(ctx context.Context, inst Installation) (Installation, error) {
	var out Installation
	err := r.call(ctx, "saveInstallation", inst, &out)
	return out, err
}

func (r *Remote) FetchInstallation(ctx context.Context) (Installation, error) {
	var out Installation
	err := r.call(ctx, "fetchInstallation", nil, &out)
	return out, err
}

func (r *Remote) GetInstallation(ctx context.Context) (Installation, error) {
	var out Installation
	err := r.call(ctx, "getInstallation", nil, &out)
	return out, err
}

func (r *Remote) SetInstallationAsPrimary(ctx context.Context, pushRegistrationID string, primary bool) ([]Installation, error) {
	var out []Installation
	args := map[string]any{"pushRegistrationId": pushRegistrationID, "primary": primary}
	err := r.call(ctx, "setInstallationAsPrimary", args, &out)
	return out, err
}

func (r *Remote) DepersonalizeInstallation(ctx context.Context, pushRegistrationID string) ([]Installation, error) {
	var out []Installation
	args := map[string]any{"pushRegistrationId": pushRegistrationID}
	err := r.call(ctx, "depersonalizeInstallation", args, &out)
	return out, err
}

func (r *Remote) Personalize(ctx context.Context, pc PersonalizeContext) (User, error) {
	var out User
	err := r.call(ctx, "personalize", pc, &out)
	return out, err
}

func (r *Remote) Depersonalize(ctx context.Context) (string, error) {
	var out string
	err := r.call(ctx, "depersonalize", nil, &out)
	return out, err
}

func (r *Remote) MarkMessagesSeen(ctx context.Context, messageIDs []string) ([]string, error) {
	var out []string
	err := r.call(ctx, "markMessagesSeen", messageIDs, &out)
	return out, err
}

func (r *Remote) SubmitEvent(ctx context.Context, ev CustomEvent) error {
	return r.call(ctx, "submitEvent", ev, nil)
}

func (r *Remote) SubmitEventImmediately(ctx context.Context, ev CustomEvent) error {
	return r.call(ctx, "submitEventImmediately", ev, nil)
}

func (r *Remote) FetchInboxMessages(ctx context.Context, token, externalUserID string, filter InboxFilter) (Inbox, error) {
	var out Inbox
	args := map[string]any{"token": token, "externalUserId": externalUserID, "filter": filter}
	err := r.call(ctx, "fetchInboxMessages", args, &out)
	return out, err
}

func (r *Remote) FetchInboxMessagesWithoutToken(ctx context.Context, externalUserID string, filter InboxFilter) (Inbox, error) {
	var out Inbox
	args := map[string]any{"externalUserId": externalUserID, "filter": filter}
	err := r.call(ctx, "fetchInboxMessagesWithoutToken", args, &out)
	return out, err
}

func (r *Remote) SetInboxMessagesSeen(ctx context.Context, externalUserID string, messageIDs []string) ([]string, error) {
	var out []string
	args := map[string]any{"externalUserId": externalUserID, "messageIds": messageIDs}
	err := r.call(ctx, "setInboxMessagesSeen", args, &out)
	return out, err
}

func (r *Remote) ShowDialogForError(ctx context.Context, code int) error {
	return r.call(ctx, "showDialogForError", map[string]any{"code": code}, nil)
}

func (r *Remote) ShowChat(ctx context.Context, presentingOptions map[string]any) error {
	return r.call(ctx, "showChat", presentingOptions, nil)
}

func (r *Remote) ShowThreadsList(ctx context.Context) error {
	return r.call(ctx, "showThreadsList", nil, nil)
}

func (r *Remote) SetChatCustomization(ctx context.Context, customization map[string]any) error {
	return r.call(ctx, "setChatCustomization", customization, nil)
}

func (r *Remote) SetWidgetTheme(ctx context.Context, theme string) error {
	return r.call(ctx, "setWidgetTheme", map[string]any{"theme": theme}, nil)
}

func (r *Remote) SetLanguage(ctx context.Context, language string) error {
	return r.call(ctx, "setLanguage", map[string]any{"language": language}, nil)
}

func (r *Remote) SendContextualData(ctx context.Context, data, strategy string) error {
	return r.call(ctx, "sendContextualData", map[string]any{"data": data, "strategy": strategy}, nil)
}

func (r *Remote) GetMessageCounter(ctx context.Context) (int, error) {
	var out int
	err := r.call(ctx, "getMessageCounter", nil, &out)
	return out, err
}

func (r *Remote) ResetMessageCounter(ctx context.Context) error {
	return r.call(ctx, "resetMessageCounter", nil, nil)
}

func (r *Remote) SetJwtProvider(p JwtProvider) {
	r.mu.Lock()
	r.jwt = p
	r.mu.Unlock()
}

func (r *Remote) SetExceptionHandler(h ExceptionHandler) {
	r.mu.Lock()
	r.exception = h
	r.mu.Unlock()
}

func (r *Remote) Find(ctx context.Context, messageID string) (*Message, error) {
	var out *Message
	err := r.call(ctx, "defaultMessageStorage.find", map[string]any{"messageId": messageID}, &out)
	return out, err
}

func (r *Remote) FindAll(ctx context.Context) ([]Message, error) {
	var out []Message
	err := r.call(ctx, "defaultMessageStorage.findAll", nil, &out)
	return out, err
}

func (r *Remote) Delete(ctx context.Context, messageID string) error {
	return r.call(ctx, "defaultMessageStorage.delete", map[string]any{"messageId": messageID}, nil)
}

func (r *Remote) DeleteAll(ctx context.Context) error {
	return r.call(ctx, "defaultMessageStorage.deleteAll", nil, nil)
}

func (r *Remote) EnableCalls(ctx context.Context, configurationID, identity string) error {
	return r.call(ctx, "enableCalls", map[string]any{"configurationId": configurationID, "identity": identity}, nil)
}

func (r *Remote) EnableChatCalls(ctx context.Context, configurationID string) error {
	return r.call(ctx, "enableChatCalls", map[string]any{"configurationId": configurationID}, nil)
}

func (r *Remote) DisableCalls(ctx context.Context) error {
	return r.call(ctx, "disableCalls", nil, nil)
}
