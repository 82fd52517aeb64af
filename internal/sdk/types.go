package sdk

import (
	"errors"
	"fmt"
)

// Message is a push or inbox message as the native SDK reports it.
type Message struct {
	MessageID         string         `json:"messageId"`
	Title             string         `json:"title,omitempty"`
	Body              string         `json:"body,omitempty"`
	Sound             string         `json:"sound,omitempty"`
	Vibrate           bool           `json:"vibrate,omitempty"`
	Icon              string         `json:"icon,omitempty"`
	Silent            bool           `json:"silent,omitempty"`
	Category          string         `json:"category,omitempty"`
	From              string         `json:"from,omitempty"`
	ReceivedTimestamp int64          `json:"receivedTimestamp,omitempty"`
	SeenDate          int64          `json:"seenDate,omitempty"`
	ContentURL        string         `json:"contentUrl,omitempty"`
	Seen              bool           `json:"seen,omitempty"`
	Geo               bool           `json:"geo,omitempty"`
	Chat              bool           `json:"chat,omitempty"`
	BrowserURL        string         `json:"browserUrl,omitempty"`
	Deeplink          string         `json:"deeplink,omitempty"`
	Topic             string         `json:"topic,omitempty"`
	CustomPayload     map[string]any `json:"customPayload,omitempty"`
}

// User is the person the installation is personalized with.
type User struct {
	ExternalUserID   string         `json:"externalUserId,omitempty"`
	FirstName        string         `json:"firstName,omitempty"`
	LastName         string         `json:"lastName,omitempty"`
	MiddleName       string         `json:"middleName,omitempty"`
	Gender           string         `json:"gender,omitempty"`
	Birthday         string         `json:"birthday,omitempty"`
	Type             string         `json:"type,omitempty"`
	Phones           []string       `json:"phones,omitempty"`
	Emails           []string       `json:"emails,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	CustomAttributes map[string]any `json:"customAttributes,omitempty"`
	Installations    []Installation `json:"installations,omitempty"`
}

// Installation is one device registration.
type Installation struct {
	PushRegistrationID        string         `json:"pushRegistrationId,omitempty"`
	IsPrimaryDevice           bool           `json:"isPrimaryDevice,omitempty"`
	IsPushRegistrationEnabled bool           `json:"isPushRegistrationEnabled,omitempty"`
	NotificationsEnabled      bool           `json:"notificationsEnabled,omitempty"`
	GeoEnabled                bool           `json:"geoEnabled,omitempty"`
	SDKVersion                string         `json:"sdkVersion,omitempty"`
	AppVersion                string         `json:"appVersion,omitempty"`
	OS                        string         `json:"os,omitempty"`
	OSVersion                 string         `json:"osVersion,omitempty"`
	DeviceManufacturer        string         `json:"deviceManufacturer,omitempty"`
	DeviceModel               string         `json:"deviceModel,omitempty"`
	DeviceSecure              bool           `json:"deviceSecure,omitempty"`
	Language                  string         `json:"language,omitempty"`
	DeviceTimezoneOffset      string         `json:"deviceTimezoneOffset,omitempty"`
	ApplicationUserID         string         `json:"applicationUserId,omitempty"`
	DeviceName                string         `json:"deviceName,omitempty"`
	CustomAttributes          map[string]any `json:"customAttributes,omitempty"`
}

// UserIdentity identifies the person to personalize with.
type UserIdentity struct {
	Phones         []string `json:"phones,omitempty"`
	Emails         []string `json:"emails,omitempty"`
	ExternalUserID string   `json:"externalUserId,omitempty"`
}

// PersonalizeContext is the argument of personalize.
type PersonalizeContext struct {
	UserIdentity       UserIdentity   `json:"userIdentity"`
	UserAttributes     map[string]any `json:"userAttributes,omitempty"`
	ForceDepersonalize bool           `json:"forceDepersonalize,omitempty"`
	KeepAsLead         bool           `json:"keepAsLead,omitempty"`
}

// Validate requires at least one identity field.
func (p PersonalizeContext) Validate() error {
	id := p.UserIdentity
	if len(id.Phones) == 0 && len(id.Emails) == 0 && id.ExternalUserID == "" {
		return errors.New("userIdentity requires phones, emails or externalUserId")
	}
	return nil
}

// CustomEvent is a custom analytics event.
type CustomEvent struct {
	DefinitionID string         `json:"definitionId"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Validate requires a definition id.
func (e CustomEvent) Validate() error {
	if e.DefinitionID == "" {
		return errors.New("definitionId is required")
	}
	return nil
}

// InboxFilter narrows an inbox fetch.
type InboxFilter struct {
	FromDateTime string   `json:"fromDateTime,omitempty"`
	ToDateTime   string   `json:"toDateTime,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// Inbox is the result of an inbox fetch.
type Inbox struct {
	CountTotal          int       `json:"countTotal"`
	CountUnread         int       `json:"countUnread"`
	CountTotalFiltered  *int      `json:"countTotalFiltered,omitempty"`
	CountUnreadFiltered *int      `json:"countUnreadFiltered,omitempty"`
	Messages            []Message `json:"messages"`
}

// ChatException is raised by the chat UI and forwarded to the app handler.
type ChatException struct {
	Code     int    `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Depersonalize outcomes.
const (
	DepersonalizeSuccess = "SUCCESS"
	DepersonalizePending = "PENDING"
)

// Error is a failure reported by the native SDK.
type Error struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Domain      string `json:"domain,omitempty"`
}

func (e *Error) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("native error %s (%s): %s", e.Code, e.Domain, e.Description)
	}
	return fmt.Sprintf("native error %s: %s", e.Code, e.Description)
}
