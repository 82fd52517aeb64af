package mobilemessaging

import (
	"context"

	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// SaveUser sends user data to the server and returns the stored user.
func (m *MobileMessaging) SaveUser(ctx context.Context, user User) (User, error) {
	var out User
	err := m.call(ctx, protocol.MethodSaveUser, user, &out)
	return out, err
}

// FetchUser fetches the user from the server.
func (m *MobileMessaging) FetchUser(ctx context.Context) (User, error) {
	var out User
	err := m.call(ctx, protocol.MethodFetchUser, nil, &out)
	return out, err
}

// GetUser returns the locally cached user.
func (m *MobileMessaging) GetUser(ctx context.Context) (User, error) {
	var out User
	err := m.call(ctx, protocol.MethodGetUser, nil, &out)
	return out, err
}

// SaveInstallation sends installation data to the server.
func (m *MobileMessaging) SaveInstallation(ctx context.Context, inst Installation) (Installation, error) {
	var out Installation
	err := m.call(ctx, protocol.MethodSaveInstallation, inst, &out)
	return out, err
}

// FetchInstallation fetches the installation from the server.
func (m *MobileMessaging) FetchInstallation(ctx context.Context) (Installation, error) {
	var out Installation
	err := m.call(ctx, protocol.MethodFetchInstallation, nil, &out)
	return out, err
}

// GetInstallation returns the locally cached installation.
func (m *MobileMessaging) GetInstallation(ctx context.Context) (Installation, error) {
	var out Installation
	err := m.call(ctx, protocol.MethodGetInstallation, nil, &out)
	return out, err
}

// SetInstallationAsPrimary marks the installation with pushRegistrationID
// as the user's primary device and returns all the user's installations.
func (m *MobileMessaging) SetInstallationAsPrimary(ctx context.Context, pushRegistrationID string, primary bool) ([]Installation, error) {
	var out []Installation
	err := m.call(ctx, protocol.MethodSetInstallationAsPrimary, module.InstallationArgs{PushRegistrationID: pushRegistrationID, Primary: primary}, &out)
	return out, err
}

// DepersonalizeInstallation detaches another installation of the user
// and returns the remaining ones.
func (m *MobileMessaging) DepersonalizeInstallation(ctx context.Context, pushRegistrationID string) ([]Installation, error) {
	var out []Installation
	err := m.call(ctx, protocol.MethodDepersonalizeInstallation, module.InstallationArgs{PushRegistrationID: pushRegistrationID}, &out)
	return out, err
}

// Personalize ties the installation to a user identity.
func (m *MobileMessaging) Personalize(ctx context.Context, pc PersonalizeContext) (User, error) {
	var out User
	err := m.call(ctx, protocol.MethodPersonalize, pc, &out)
	return out, err
}

// Depersonalize returns SUCCESS, or PENDING when the server is not
// reachable yet.
func (m *MobileMessaging) Depersonalize(ctx context.Context) (string, error) {
	var out string
	err := m.call(ctx, protocol.MethodDepersonalize, nil, &out)
	return out, err
}

// MarkMessagesSeen reports messages as seen and returns their IDs.
func (m *MobileMessaging) MarkMessagesSeen(ctx context.Context, messageIDs ...string) ([]string, error) {
	var out []string
	err := m.call(ctx, protocol.MethodMarkMessagesSeen, module.MessageIDsArgs{MessageIDs: messageIDs}, &out)
	return out, err
}

// SubmitEvent queues a custom event for batched delivery.
func (m *MobileMessaging) SubmitEvent(ctx context.Context, ev CustomEvent) error {
	return m.call(ctx, protocol.MethodSubmitEvent, ev, nil)
}

// SubmitEventImmediately sends a custom event right away.
func (m *MobileMessaging) SubmitEventImmediately(ctx context.Context, ev CustomEvent) error {
	return m.call(ctx, protocol.MethodSubmitEventImmediately, ev, nil)
}

// FetchInboxMessages fetches the inbox of externalUserID with a JWT.
func (m *MobileMessaging) FetchInboxMessages(ctx context.Context, token, externalUserID string, filter InboxFilter) (Inbox, error) {
	var out Inbox
	err := m.call(ctx, protocol.MethodFetchInboxMessages, module.InboxArgs{Token: token, ExternalUserID: externalUserID, Filter: filter}, &out)
	return out, err
}

// FetchInboxMessagesWithoutToken fetches the inbox with the application
// code instead of a JWT.
func (m *MobileMessaging) FetchInboxMessagesWithoutToken(ctx context.Context, externalUserID string, filter InboxFilter) (Inbox, error) {
	var out Inbox
	err := m.call(ctx, protocol.MethodFetchInboxMessagesWithoutToken, module.InboxArgs{ExternalUserID: externalUserID, Filter: filter}, &out)
	return out, err
}

// SetInboxMessagesSeen marks inbox messages of externalUserID as seen.
func (m *MobileMessaging) SetInboxMessagesSeen(ctx context.Context, externalUserID string, messageIDs ...string) ([]string, error) {
	var out []string
	err := m.call(ctx, protocol.MethodSetInboxMessagesSeen, module.InboxSeenArgs{ExternalUserID: externalUserID, MessageIDs: messageIDs}, &out)
	return out, err
}

// ShowDialogForError shows the SDK's resolution dialog for a Play
// Services error code. Android only.
func (m *MobileMessaging) ShowDialogForError(ctx context.Context, code int) error {
	return m.call(ctx, protocol.MethodShowDialogForError, module.DialogArgs{Code: code}, nil)
}
