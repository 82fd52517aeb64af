package protocol

// Bridge methods the JS runtime calls.
const (
	MethodInit            = "init"
	MethodAddListener     = "addListener"
	MethodRemoveListeners = "removeListeners"

	MethodSaveUser                       = "saveUser"
	MethodFetchUser                      = "fetchUser"
	MethodGetUser                        = "getUser"
	MethodSaveInstallation               = "saveInstallation"
	MethodFetchInstallation              = "fetchInstallation"
	MethodGetInstallation                = "getInstallation"
	MethodSetInstallationAsPrimary       = "setInstallationAsPrimary"
	MethodDepersonalizeInstallation      = "depersonalizeInstallation"
	MethodPersonalize                    = "personalize"
	MethodDepersonalize                  = "depersonalize"
	MethodMarkMessagesSeen               = "markMessagesSeen"
	MethodSubmitEvent                    = "submitEvent"
	MethodSubmitEventImmediately         = "submitEventImmediately"
	MethodFetchInboxMessages             = "fetchInboxMessages"
	MethodFetchInboxMessagesWithoutToken = "fetchInboxMessagesWithoutToken"
	MethodSetInboxMessagesSeen           = "setInboxMessagesSeen"
	MethodShowDialogForError             = "showDialogForError"

	MethodDefaultStorageFind      = "defaultMessageStorage_find"
	MethodDefaultStorageFindAll   = "defaultMessageStorage_findAll"
	MethodDefaultStorageDelete    = "defaultMessageStorage_delete"
	MethodDefaultStorageDeleteAll = "defaultMessageStorage_deleteAll"

	MethodProvideFindResult    = "messageStorage_provideFindResult"
	MethodProvideFindAllResult = "messageStorage_provideFindAllResult"

	MethodShowChat                = "showChat"
	MethodShowThreadsList         = "showThreadsList"
	MethodSetChatCustomization    = "setChatCustomization"
	MethodSetWidgetTheme          = "setWidgetTheme"
	MethodSetLanguage             = "setLanguage"
	MethodSendContextualData      = "sendContextualData"
	MethodGetMessageCounter       = "getMessageCounter"
	MethodResetMessageCounter     = "resetMessageCounter"
	MethodSetJwtProvider          = "setJwtProvider"
	MethodSetJwt                  = "inAppChat_setJwt"
	MethodSetJwtError             = "inAppChat_setJwtError"
	MethodSetChatExceptionHandler = "setChatExceptionHandler"

	MethodCallsAvailable  = "callsAvailable"
	MethodEnableCalls     = "enableCalls"
	MethodEnableChatCalls = "enableChatCalls"
	MethodDisableCalls    = "disableCalls"
)

// Error codes of bridge-internal failures. Native failures keep the code
// the SDK reported.
const (
	CodeInvalidConfiguration   = "INVALID_CONFIGURATION"
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeNotInitialized         = "NOT_INITIALIZED"
	CodeDestroyed              = "DESTROYED"
	CodeUnknownMethod          = "UNKNOWN_METHOD"
	CodeNoPendingRequest       = "NO_PENDING_REQUEST"
	CodeDefaultStorageDisabled = "DEFAULT_STORAGE_DISABLED"
	CodeCallsUnavailable       = "CALLS_UNAVAILABLE"
	CodeChatUnavailable        = "CHAT_UNAVAILABLE"
	CodeCallsNotConfigured     = "CALLS_NOT_CONFIGURED"
	CodeNoContext              = "NO_CONTEXT"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL_ERROR"
)

// Domain is set on errors raised by the bridge itself.
const Domain = "mmbridge"
