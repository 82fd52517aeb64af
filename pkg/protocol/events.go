package protocol

// Public event names delivered to JS subscribers.
const (
	EventMessageReceived     = "messageReceived"
	EventNotificationTapped  = "notificationTapped"
	EventTokenReceived       = "tokenReceived"
	EventRegistrationUpdated = "registrationUpdated"
	EventInstallationUpdated = "installationUpdated"
	EventUserUpdated         = "userUpdated"
	EventPersonalized        = "personalized"
	EventDepersonalized      = "depersonalized"
	EventGeofenceEntered     = "geofenceEntered"
	EventActionTapped        = "actionTapped"

	EventChatAvailabilityUpdated           = "inAppChat.availabilityUpdated"
	EventChatUnreadCounterUpdated          = "inAppChat.unreadMessageCounterUpdated"
	EventChatViewStateChanged              = "inAppChat.viewStateChanged"
	EventChatConfigurationSynced           = "inAppChat.configurationSynced"
	EventChatLivechatRegistrationIDUpdated = "inAppChat.livechatRegistrationIdUpdated"
)

// Internal events consumed by the facade itself rather than app handlers.
const (
	EventJwtRequested   = "inAppChat.internal.jwtRequested"
	EventChatException  = "inAppChat.internal.exceptionReceived"
	EventStorageStart   = "messageStorage.start"
	EventStorageStop    = "messageStorage.stop"
	EventStorageSave    = "messageStorage.save"
	EventStorageFind    = "messageStorage.find"
	EventStorageFindAll = "messageStorage.findAll"
)

// PublicEvents lists every event name an application may subscribe to.
var PublicEvents = []string{
	EventMessageReceived,
	EventNotificationTapped,
	EventTokenReceived,
	EventRegistrationUpdated,
	EventInstallationUpdated,
	EventUserUpdated,
	EventPersonalized,
	EventDepersonalized,
	EventGeofenceEntered,
	EventActionTapped,
	EventChatAvailabilityUpdated,
	EventChatUnreadCounterUpdated,
	EventChatViewStateChanged,
	EventChatConfigurationSynced,
	EventChatLivechatRegistrationIDUpdated,
}

// IsInternal reports whether name is consumed by the facade.
func IsInternal(name string) bool {
	switch name {
	case EventJwtRequested, EventChatException,
		EventStorageStart, EventStorageStop, EventStorageSave,
		EventStorageFind, EventStorageFindAll:
		return true
	}
	return false
}
