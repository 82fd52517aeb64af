package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuuji/mmbridge/internal/sdk"
)

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

// alive returns ErrDestroyed once Destroy has run. Every forward checks it
// so nothing reaches the native SDK after teardown.
func (s *Service) alive() error {
	if s.State() == StateDestroyed {
		return ErrDestroyed
	}
	return nil
}

func (s *Service) messaging() (sdk.Messaging, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	return s.deps.Messaging, nil
}

// chat returns the chat module once Init has accepted a configuration.
func (s *Service) chat() (sdk.Chat, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if s.configuration.Load() == nil {
		return nil, ErrNotInitialized
	}
	if s.deps.Chat == nil {
		return nil, ErrChatUnavailable
	}
	return s.deps.Chat, nil
}

func (s *Service) defaultStorage() (sdk.DefaultStorage, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	cfg := s.configuration.Load()
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	if !cfg.DefaultMessageStorage || s.deps.Storage == nil {
		return nil, ErrDefaultStorageDisabled
	}
	return s.deps.Storage, nil
}

// User and installation.

// SaveUser updates the user on the server and returns the merged result.
func (s *Service) SaveUser(ctx context.Context, user sdk.User) (sdk.User, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.User{}, err
	}
	return m.SaveUser(ctx, user)
}

// FetchUser fetches the user from the server.
func (s *Service) FetchUser(ctx context.Context) (sdk.User, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.User{}, err
	}
	return m.FetchUser(ctx)
}

// GetUser returns the locally cached user.
func (s *Service) GetUser(ctx context.Context) (sdk.User, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.User{}, err
	}
	return m.GetUser(ctx)
}

// SaveInstallation updates the installation on the server.
func (s *Service) SaveInstallation(ctx context.Context, inst sdk.Installation) (sdk.Installation, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.Installation{}, err
	}
	return m.SaveInstallation(ctx, inst)
}

// FetchInstallation fetches the installation from the server.
func (s *Service) FetchInstallation(ctx context.Context) (sdk.Installation, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.Installation{}, err
	}
	return m.FetchInstallation(ctx)
}

// GetInstallation returns the locally cached installation.
func (s *Service) GetInstallation(ctx context.Context) (sdk.Installation, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.Installation{}, err
	}
	return m.GetInstallation(ctx)
}

// SetInstallationAsPrimary marks an installation of the user as primary.
func (s *Service) SetInstallationAsPrimary(ctx context.Context, pushRegistrationID string, primary bool) ([]sdk.Installation, error) {
	if pushRegistrationID == "" {
		return nil, invalid(errors.New("pushRegistrationId is required"))
	}
	m, err := s.messaging()
	if err != nil {
		return nil, err
	}
	return m.SetInstallationAsPrimary(ctx, pushRegistrationID, primary)
}

// DepersonalizeInstallation detaches another installation from the user.
func (s *Service) DepersonalizeInstallation(ctx context.Context, pushRegistrationID string) ([]sdk.Installation, error) {
	if pushRegistrationID == "" {
		return nil, invalid(errors.New("pushRegistrationId is required"))
	}
	m, err := s.messaging()
	if err != nil {
		return nil, err
	}
	return m.DepersonalizeInstallation(ctx, pushRegistrationID)
}

// Personalization.

// Personalize ties the installation to a user identity.
func (s *Service) Personalize(ctx context.Context, pc sdk.PersonalizeContext) (sdk.User, error) {
	if err := pc.Validate(); err != nil {
		return sdk.User{}, invalid(err)
	}
	m, err := s.messaging()
	if err != nil {
		return sdk.User{}, err
	}
	return m.Personalize(ctx, pc)
}

// Depersonalize returns SUCCESS, or PENDING when the server is unreachable.
func (s *Service) Depersonalize(ctx context.Context) (string, error) {
	m, err := s.messaging()
	if err != nil {
		return "", err
	}
	return m.Depersonalize(ctx)
}

// Messages, events and inbox.

// MarkMessagesSeen reports messages as seen and returns their ids.
func (s *Service) MarkMessagesSeen(ctx context.Context, messageIDs []string) ([]string, error) {
	m, err := s.messaging()
	if err != nil {
		return nil, err
	}
	return m.MarkMessagesSeen(ctx, messageIDs)
}

// SubmitEvent queues a custom event for batched delivery.
func (s *Service) SubmitEvent(ctx context.Context, ev sdk.CustomEvent) error {
	if err := ev.Validate(); err != nil {
		return invalid(err)
	}
	m, err := s.messaging()
	if err != nil {
		return err
	}
	return m.SubmitEvent(ctx, ev)
}

// SubmitEventImmediately sends a custom event right away.
func (s *Service) SubmitEventImmediately(ctx context.Context, ev sdk.CustomEvent) error {
	if err := ev.Validate(); err != nil {
		return invalid(err)
	}
	m, err := s.messaging()
	if err != nil {
		return err
	}
	return m.SubmitEventImmediately(ctx, ev)
}

// FetchInboxMessages fetches the inbox of externalUserID with a JWT.
func (s *Service) FetchInboxMessages(ctx context.Context, token, externalUserID string, filter sdk.InboxFilter) (sdk.Inbox, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.Inbox{}, err
	}
	return m.FetchInboxMessages(ctx, token, externalUserID, filter)
}

// FetchInboxMessagesWithoutToken fetches the inbox with the application
// code instead of a JWT.
func (s *Service) FetchInboxMessagesWithoutToken(ctx context.Context, externalUserID string, filter sdk.InboxFilter) (sdk.Inbox, error) {
	m, err := s.messaging()
	if err != nil {
		return sdk.Inbox{}, err
	}
	return m.FetchInboxMessagesWithoutToken(ctx, externalUserID, filter)
}

// SetInboxMessagesSeen marks inbox messages as seen.
func (s *Service) SetInboxMessagesSeen(ctx context.Context, externalUserID string, messageIDs []string) ([]string, error) {
	m, err := s.messaging()
	if err != nil {
		return nil, err
	}
	return m.SetInboxMessagesSeen(ctx, externalUserID, messageIDs)
}

// ShowDialogForError shows the Play Services resolution dialog. Android only.
func (s *Service) ShowDialogForError(ctx context.Context, code int) error {
	m, err := s.messaging()
	if err != nil {
		return err
	}
	return m.ShowDialogForError(ctx, code)
}

// Default message storage.

// DefaultStorageFind returns the stored message with messageID, or nil.
func (s *Service) DefaultStorageFind(ctx context.Context, messageID string) (*sdk.Message, error) {
	st, err := s.defaultStorage()
	if err != nil {
		return nil, err
	}
	return st.Find(ctx, messageID)
}

// DefaultStorageFindAll returns every stored message.
func (s *Service) DefaultStorageFindAll(ctx context.Context) ([]sdk.Message, error) {
	st, err := s.defaultStorage()
	if err != nil {
		return nil, err
	}
	return st.FindAll(ctx)
}

// DefaultStorageDelete removes one stored message.
func (s *Service) DefaultStorageDelete(ctx context.Context, messageID string) error {
	st, err := s.defaultStorage()
	if err != nil {
		return err
	}
	return st.Delete(ctx, messageID)
}

// DefaultStorageDeleteAll empties the default storage.
func (s *Service) DefaultStorageDeleteAll(ctx context.Context) error {
	st, err := s.defaultStorage()
	if err != nil {
		return err
	}
	return st.DeleteAll(ctx)
}

// In-app chat.

// ShowChat opens the chat screen.
func (s *Service) ShowChat(ctx context.Context, presentingOptions map[string]any) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.ShowChat(ctx, presentingOptions)
}

// ShowThreadsList opens the chat on its threads list.
func (s *Service) ShowThreadsList(ctx context.Context) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.ShowThreadsList(ctx)
}

// SetChatCustomization applies colors and strings to the chat screen.
func (s *Service) SetChatCustomization(ctx context.Context, customization map[string]any) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.SetChatCustomization(ctx, customization)
}

// SetWidgetTheme selects a widget theme by name.
func (s *Service) SetWidgetTheme(ctx context.Context, theme string) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.SetWidgetTheme(ctx, theme)
}

// SetLanguage sets the chat language, e.g. "en-US".
func (s *Service) SetLanguage(ctx context.Context, language string) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.SetLanguage(ctx, language)
}

// SendContextualData attaches metadata to the conversation.
func (s *Service) SendContextualData(ctx context.Context, data, strategy string) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.SendContextualData(ctx, data, strategy)
}

// GetMessageCounter returns the unread chat message count.
func (s *Service) GetMessageCounter(ctx context.Context) (int, error) {
	c, err := s.chat()
	if err != nil {
		return 0, err
	}
	return c.GetMessageCounter(ctx)
}

// ResetMessageCounter zeroes the unread chat message count.
func (s *Service) ResetMessageCounter(ctx context.Context) error {
	c, err := s.chat()
	if err != nil {
		return err
	}
	return c.ResetMessageCounter(ctx)
}

// Calls.

// CallsAvailable reports whether the native calls module is linked in.
func (s *Service) CallsAvailable() bool { return s.calls.Available() }

// EnableCalls registers identity for incoming WebRTC calls.
func (s *Service) EnableCalls(ctx context.Context, identity string) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.calls.EnableCalls(ctx, identity)
}

// EnableChatCalls enables calls started from the chat.
func (s *Service) EnableChatCalls(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.calls.EnableChatCalls(ctx)
}

// DisableCalls stops receiving calls.
func (s *Service) DisableCalls(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.calls.DisableCalls(ctx)
}
