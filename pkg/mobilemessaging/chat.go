package mobilemessaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// JwtProvider returns a fresh chat JWT. It may block on network calls.
type JwtProvider func(ctx context.Context) (string, error)

// Contextual data strategies.
const (
	StrategyAll        = "ALL"
	StrategyActive     = "ACTIVE"
	StrategyAllPlusNew = "ALL_PLUS_NEW"
)

// ShowChat opens the chat UI.
func (m *MobileMessaging) ShowChat(ctx context.Context, presentingOptions map[string]any) error {
	if presentingOptions == nil {
		presentingOptions = map[string]any{}
	}
	return m.call(ctx, protocol.MethodShowChat, presentingOptions, nil)
}

// ShowThreadsList opens the chat threads list.
func (m *MobileMessaging) ShowThreadsList(ctx context.Context) error {
	return m.call(ctx, protocol.MethodShowThreadsList, nil, nil)
}

// SetChatCustomization applies chat UI customization.
func (m *MobileMessaging) SetChatCustomization(ctx context.Context, customization map[string]any) error {
	return m.call(ctx, protocol.MethodSetChatCustomization, customization, nil)
}

// SetupChatSettings is the older name of SetChatCustomization.
func (m *MobileMessaging) SetupChatSettings(ctx context.Context, settings map[string]any) error {
	return m.SetChatCustomization(ctx, settings)
}

// SetWidgetTheme selects a chat widget theme by name.
func (m *MobileMessaging) SetWidgetTheme(ctx context.Context, theme string) error {
	return m.call(ctx, protocol.MethodSetWidgetTheme, module.ThemeArgs{Theme: theme}, nil)
}

// SetLanguage sets the chat language as a locale such as "en-US".
func (m *MobileMessaging) SetLanguage(ctx context.Context, language string) error {
	return m.call(ctx, protocol.MethodSetLanguage, module.LanguageArgs{Language: language}, nil)
}

// SendContextualData attaches data to the chat. An empty strategy leaves
// the choice to the SDK.
func (m *MobileMessaging) SendContextualData(ctx context.Context, data, strategy string) error {
	return m.call(ctx, protocol.MethodSendContextualData, module.ContextualDataArgs{Data: data, Strategy: strategy}, nil)
}

// GetMessageCounter returns the number of unread chat messages.
func (m *MobileMessaging) GetMessageCounter(ctx context.Context) (int, error) {
	var n int
	err := m.call(ctx, protocol.MethodGetMessageCounter, nil, &n)
	return n, err
}

// ResetMessageCounter sets the unread chat message count to zero.
func (m *MobileMessaging) ResetMessageCounter(ctx context.Context) error {
	return m.call(ctx, protocol.MethodResetMessageCounter, nil, nil)
}

// SetJwtProvider installs p as the source of chat JWTs. A nil p removes
// the provider.
func (m *MobileMessaging) SetJwtProvider(ctx context.Context, p JwtProvider) error {
	m.mu.Lock()
	m.jwt = p
	m.mu.Unlock()
	return m.call(ctx, protocol.MethodSetJwtProvider, module.EnabledArgs{Enabled: p != nil}, nil)
}

// SetChatExceptionHandler routes chat exceptions to h instead of the
// SDK's default UI. A nil h restores the default.
func (m *MobileMessaging) SetChatExceptionHandler(ctx context.Context, h func(ChatException)) error {
	m.mu.Lock()
	m.exception = h
	m.mu.Unlock()

	if h != nil {
		if err := m.listen(ctx, protocol.EventChatException); err != nil {
			return err
		}
	}
	return m.call(ctx, protocol.MethodSetChatExceptionHandler, module.EnabledArgs{Enabled: h != nil}, nil)
}

func (m *MobileMessaging) handleJwtRequest(ctx context.Context) {
	m.mu.Lock()
	p := m.jwt
	m.mu.Unlock()

	// The provider may do a network round trip.
	go func() {
		if p == nil {
			m.answerJwt(ctx, "", errors.New("no JWT provider is set"))
			return
		}
		token, err := p(ctx)
		m.answerJwt(ctx, token, err)
	}()
}

func (m *MobileMessaging) answerJwt(ctx context.Context, token string, err error) {
	var callErr error
	if err != nil {
		callErr = m.call(ctx, protocol.MethodSetJwtError, module.JwtErrorArgs{Message: err.Error()}, nil)
	} else {
		callErr = m.call(ctx, protocol.MethodSetJwt, module.JwtArgs{Token: token}, nil)
	}
	if callErr != nil {
		m.log.Warn("jwt answer rejected", "error", callErr)
	}
}

func (m *MobileMessaging) handleChatException(ev protocol.EventFrame) {
	m.mu.Lock()
	h := m.exception
	m.mu.Unlock()
	if h == nil {
		return
	}

	var ex ChatException
	if err := json.Unmarshal(ev.Data, &ex); err != nil {
		m.log.Warn("malformed chat exception", "error", err)
		return
	}
	h(ex)
}

// WebRTCUI controls in-app calls.
type WebRTCUI struct {
	m *MobileMessaging
}

// WebRTCUI returns the calls API.
func (m *MobileMessaging) WebRTCUI() *WebRTCUI {
	return &WebRTCUI{m: m}
}

// Available reports whether the calls module is present in the host.
func (w *WebRTCUI) Available(ctx context.Context) (bool, error) {
	var ok bool
	err := w.m.call(ctx, protocol.MethodCallsAvailable, nil, &ok)
	return ok, err
}

// EnableCalls registers identity for incoming calls.
func (w *WebRTCUI) EnableCalls(ctx context.Context, identity string) error {
	return w.m.call(ctx, protocol.MethodEnableCalls, module.IdentityArgs{Identity: identity}, nil)
}

// EnableChatCalls enables calls started from the chat.
func (w *WebRTCUI) EnableChatCalls(ctx context.Context) error {
	return w.m.call(ctx, protocol.MethodEnableChatCalls, nil, nil)
}

// DisableCalls stops receiving calls.
func (w *WebRTCUI) DisableCalls(ctx context.Context) error {
	return w.m.call(ctx, protocol.MethodDisableCalls, nil, nil)
}
