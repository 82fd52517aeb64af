package sdk

import "github.com/kuuji/mmbridge/internal/config"

// Kind is a platform-neutral native event kind. Each platform names it
// differently: a broadcast action on Android, a notification name on iOS.
type Kind int

// Native event kinds.
const (
	KindMessageReceived Kind = iota + 1
	KindNotificationTapped
	KindTokenReceived
	KindRegistrationUpdated
	KindInstallationUpdated
	KindUserUpdated
	KindPersonalized
	KindDepersonalized
	KindActionTapped
	KindGeofenceEntered
	KindChatAvailabilityUpdated
	KindChatUnreadCounterUpdated
	KindChatViewStateChanged
	KindChatConfigurationSynced
	KindChatLivechatRegistrationIDUpdated
)

// Kinds lists every Kind.
var Kinds = []Kind{
	KindMessageReceived,
	KindNotificationTapped,
	KindTokenReceived,
	KindRegistrationUpdated,
	KindInstallationUpdated,
	KindUserUpdated,
	KindPersonalized,
	KindDepersonalized,
	KindActionTapped,
	KindGeofenceEntered,
	KindChatAvailabilityUpdated,
	KindChatUnreadCounterUpdated,
	KindChatViewStateChanged,
	KindChatConfigurationSynced,
	KindChatLivechatRegistrationIDUpdated,
}

const (
	androidPrefix     = "org.infobip.mobile.messaging."
	androidChatPrefix = "org.infobip.mobile.messaging.chat."
	iosPrefix         = "com.mobile-messaging.notification."
	iosChatPrefix     = "com.mobile-messaging.chat."
)

var androidActions = map[Kind]string{
	KindMessageReceived:                   androidPrefix + "MESSAGE_RECEIVED",
	KindNotificationTapped:                androidPrefix + "NOTIFICATION_TAPPED",
	KindTokenReceived:                     androidPrefix + "REGISTRATION_ACQUIRED",
	KindRegistrationUpdated:               androidPrefix + "REGISTRATION_CREATED",
	KindInstallationUpdated:               androidPrefix + "INSTALLATION_UPDATED",
	KindUserUpdated:                       androidPrefix + "USER_UPDATED",
	KindPersonalized:                      androidPrefix + "PERSONALIZED",
	KindDepersonalized:                    androidPrefix + "DEPERSONALIZED",
	KindActionTapped:                      androidPrefix + "NOTIFICATION_ACTION_TAPPED",
	KindGeofenceEntered:                   androidPrefix + "geo.GEOFENCE_AREA_ENTERED",
	KindChatAvailabilityUpdated:           androidChatPrefix + "IN_APP_CHAT_AVAILABILITY_UPDATED",
	KindChatUnreadCounterUpdated:          androidChatPrefix + "UNREAD_MESSAGES_COUNTER_UPDATED",
	KindChatViewStateChanged:              androidChatPrefix + "CHAT_VIEW_CHANGED",
	KindChatConfigurationSynced:           androidChatPrefix + "CHAT_CONFIGURATION_SYNCED",
	KindChatLivechatRegistrationIDUpdated: androidChatPrefix + "LIVECHAT_REGISTRATION_ID_UPDATED",
}

var iosActions = map[Kind]string{
	KindMessageReceived:                   iosPrefix + "message-received",
	KindNotificationTapped:                iosPrefix + "notification-tapped",
	KindTokenReceived:                     iosPrefix + "device-token-received",
	KindRegistrationUpdated:               iosPrefix + "registration-updated",
	KindInstallationUpdated:               iosPrefix + "installation-synced",
	KindUserUpdated:                       iosPrefix + "user-synced",
	KindPersonalized:                      iosPrefix + "personalized",
	KindDepersonalized:                    iosPrefix + "depersonalized",
	KindActionTapped:                      iosPrefix + "action-tapped",
	KindGeofenceEntered:                   "com.mobile-messaging.geo.region-entered",
	KindChatAvailabilityUpdated:           iosChatPrefix + "availability-updated",
	KindChatUnreadCounterUpdated:          iosChatPrefix + "unread-messages-counter-updated",
	KindChatViewStateChanged:              iosChatPrefix + "view-state-changed",
	KindChatConfigurationSynced:           iosChatPrefix + "configuration-synced",
	KindChatLivechatRegistrationIDUpdated: iosChatPrefix + "livechat-registration-id-updated",
}

// ActionFor returns the native identifier of k on platform, or "" when the
// platform is unknown.
func ActionFor(platform string, k Kind) string {
	switch platform {
	case config.PlatformAndroid:
		return androidActions[k]
	case config.PlatformIOS:
		return iosActions[k]
	}
	return ""
}

// KindOf resolves a native identifier on platform.
func KindOf(platform, action string) (Kind, bool) {
	var table map[Kind]string
	switch platform {
	case config.PlatformAndroid:
		table = androidActions
	case config.PlatformIOS:
		table = iosActions
	default:
		return 0, false
	}
	for k, a := range table {
		if a == action {
			return k, true
		}
	}
	return 0, false
}
