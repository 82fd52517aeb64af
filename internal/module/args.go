package module

import (
	"encoding/json"

	"github.com/kuuji/mmbridge/internal/sdk"
)

// Argument objects of the methods that take more than one value. Methods
// taking a single object (init, saveUser, personalize, ...) receive that
// object directly.

type ListenerArgs struct {
	Event string `json:"event"`
}

type InstallationArgs struct {
	PushRegistrationID string `json:"pushRegistrationId"`
	Primary            bool   `json:"primary,omitempty"`
}

type MessageIDArgs struct {
	MessageID string `json:"messageId"`
}

type MessageIDsArgs struct {
	MessageIDs []string `json:"messageIds"`
}

type InboxArgs struct {
	Token          string          `json:"token,omitempty"`
	ExternalUserID string          `json:"externalUserId"`
	Filter         sdk.InboxFilter `json:"filter,omitempty"`
}

type InboxSeenArgs struct {
	ExternalUserID string   `json:"externalUserId"`
	MessageIDs     []string `json:"messageIds"`
}

type DialogArgs struct {
	Code int `json:"code"`
}

type ThemeArgs struct {
	Theme string `json:"theme"`
}

type LanguageArgs struct {
	Language string `json:"language"`
}

type ContextualDataArgs struct {
	Data     string `json:"data"`
	Strategy string `json:"strategy,omitempty"`
}

type EnabledArgs struct {
	Enabled bool `json:"enabled"`
}

type JwtArgs struct {
	Token string `json:"token"`
}

type JwtErrorArgs struct {
	Message string `json:"message,omitempty"`
}

type IdentityArgs struct {
	Identity string `json:"identity"`
}

// ResultArgs carries a custom storage answer; Result may be null.
type ResultArgs struct {
	Result json.RawMessage `json:"result"`
}
