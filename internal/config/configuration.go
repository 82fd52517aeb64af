package config

import (
	"fmt"
)

// Configuration is the app-supplied settings object passed to init. It is
// JSON on the wire and owned by the bridge service instance once accepted.
type Configuration struct {
	ApplicationCode           string `json:"applicationCode"`
	GeofencingEnabled         bool   `json:"geofencingEnabled,omitempty"`
	InAppChatEnabled          bool   `json:"inAppChatEnabled,omitempty"`
	FullFeaturedInAppsEnabled bool   `json:"fullFeaturedInAppsEnabled,omitempty"`
	LoggingEnabled            bool   `json:"loggingEnabled,omitempty"`

	// MessageStorage is set when the app supplies its own JS message store.
	MessageStorage bool `json:"messageStorage,omitempty"`

	// DefaultMessageStorage enables the SDK's built-in message store.
	DefaultMessageStorage bool `json:"defaultMessageStorage,omitempty"`

	IOS                    *IOSSettings           `json:"ios,omitempty"`
	Android                *AndroidSettings       `json:"android,omitempty"`
	PrivacySettings        *PrivacySettings       `json:"privacySettings,omitempty"`
	NotificationCategories []NotificationCategory `json:"notificationCategories,omitempty"`
	WebRTCUI               *WebRTCUIConfig        `json:"webRTCUI,omitempty"`
}

// IOSSettings are only consulted on iOS.
type IOSSettings struct {
	NotificationTypes                    []string `json:"notificationTypes,omitempty"`
	ForceCleanup                         bool     `json:"forceCleanup,omitempty"`
	RegisteringForRemoteNotificationsOff bool     `json:"registeringForRemoteNotificationsDisabled,omitempty"`
	OverridingNotificationCenterOff      bool     `json:"overridingNotificationCenterDelegateDisabled,omitempty"`
	UnregisteringForRemoteNotifications  bool     `json:"unregisteringForRemoteNotificationsEnabled,omitempty"`
}

// AndroidSettings are only consulted on Android.
type AndroidSettings struct {
	NotificationIcon           string            `json:"notificationIcon,omitempty"`
	MultipleNotifications      bool              `json:"multipleNotifications,omitempty"`
	NotificationAccentColor    string            `json:"notificationAccentColor,omitempty"`
	FirebaseOptions            map[string]string `json:"firebaseOptions,omitempty"`
	WithoutDefaultNotifChannel bool              `json:"withoutDefaultNotificationChannel,omitempty"`
	NotificationChannelID      string            `json:"notificationChannelId,omitempty"`
	NotificationChannelName    string            `json:"notificationChannelName,omitempty"`
	NotificationSoundFileName  string            `json:"notificationSound,omitempty"`
}

// PrivacySettings restrict what the SDK and the bridge persist or send.
type PrivacySettings struct {
	ApplicationCodePersistingDisabled bool `json:"applicationCodePersistingDisabled,omitempty"`
	UserDataPersistingDisabled        bool `json:"userDataPersistingDisabled,omitempty"`
	CarrierInfoSendingDisabled        bool `json:"carrierInfoSendingDisabled,omitempty"`
	SystemInfoSendingDisabled         bool `json:"systemInfoSendingDisabled,omitempty"`
}

// NotificationCategory groups interactive notification actions.
type NotificationCategory struct {
	Identifier string               `json:"identifier"`
	Actions    []NotificationAction `json:"actions,omitempty"`
}

// NotificationAction is a button on an interactive notification.
type NotificationAction struct {
	Identifier                 string `json:"identifier"`
	Title                      string `json:"title,omitempty"`
	Foreground                 bool   `json:"foreground,omitempty"`
	AuthenticationRequired     bool   `json:"authenticationRequired,omitempty"`
	MoRequired                 bool   `json:"moRequired,omitempty"`
	Destructive                bool   `json:"destructive,omitempty"`
	Icon                       string `json:"icon,omitempty"`
	TextInputActionButtonTitle string `json:"textInputActionButtonTitle,omitempty"`
	TextInputPlaceholder       string `json:"textInputPlaceholder,omitempty"`
}

// WebRTCUIConfig enables the calls UI.
type WebRTCUIConfig struct {
	ConfigurationID string `json:"configurationId"`
}

// ValidationError reports the first configuration field that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Validate checks the fields init cannot proceed without.
func (c *Configuration) Validate() error {
	if c.ApplicationCode == "" {
		return &ValidationError{Field: "applicationCode", Reason: "is required"}
	}
	for i, cat := range c.NotificationCategories {
		if cat.Identifier == "" {
			return &ValidationError{Field: fmt.Sprintf("notificationCategories[%d].identifier", i), Reason: "is required"}
		}
		for j, a := range cat.Actions {
			if a.Identifier == "" {
				return &ValidationError{Field: fmt.Sprintf("notificationCategories[%d].actions[%d].identifier", i, j), Reason: "is required"}
			}
		}
	}
	if c.WebRTCUI != nil && c.WebRTCUI.ConfigurationID == "" {
		return &ValidationError{Field: "webRTCUI.configurationId", Reason: "is required"}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate the held configuration.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := *c
	if c.IOS != nil {
		ios := *c.IOS
		ios.NotificationTypes = append([]string(nil), c.IOS.NotificationTypes...)
		out.IOS = &ios
	}
	if c.Android != nil {
		a := *c.Android
		if c.Android.FirebaseOptions != nil {
			a.FirebaseOptions = make(map[string]string, len(c.Android.FirebaseOptions))
			for k, v := range c.Android.FirebaseOptions {
				a.FirebaseOptions[k] = v
			}
		}
		out.Android = &a
	}
	if c.PrivacySettings != nil {
		p := *c.PrivacySettings
		out.PrivacySettings = &p
	}
	if c.NotificationCategories != nil {
		out.NotificationCategories = make([]NotificationCategory, len(c.NotificationCategories))
		for i, cat := range c.NotificationCategories {
			cat.Actions = append([]NotificationAction(nil), cat.Actions...)
			out.NotificationCategories[i] = cat
		}
	}
	if c.WebRTCUI != nil {
		w := *c.WebRTCUI
		out.WebRTCUI = &w
	}
	return &out
}

// persistable returns the copy written to disk, honouring the privacy
// settings that forbid keeping the application code.
func (c *Configuration) persistable() *Configuration {
	out := c.Clone()
	if out.PrivacySettings != nil && out.PrivacySettings.ApplicationCodePersistingDisabled {
		out.ApplicationCode = ""
	}
	return out
}
