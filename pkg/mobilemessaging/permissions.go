package mobilemessaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuuji/mmbridge/internal/config"
)

// Android runtime permissions the SDK needs.
const (
	PermissionPostNotifications  = "android.permission.POST_NOTIFICATIONS"
	PermissionFineLocation       = "android.permission.ACCESS_FINE_LOCATION"
	PermissionBackgroundLocation = "android.permission.ACCESS_BACKGROUND_LOCATION"
)

// Android API levels where the permission model changed.
const (
	apiLevelBackgroundLocation = 29
	apiLevelPostNotifications  = 33
)

// ErrNoPermissionRequester is returned when Android permissions are needed
// but no requester was configured.
var ErrNoPermissionRequester = errors.New("no permission requester configured")

// PermissionRequester asks the Android user for runtime permissions.
type PermissionRequester interface {
	// APILevel is the device's Android API level.
	APILevel() int

	// Request shows the system prompt for permissions and reports which
	// were granted.
	Request(ctx context.Context, permissions ...string) (map[string]bool, error)
}

// RequestPostNotificationsPermission asks for the notification permission
// on Android 13 and later. Elsewhere notifications need no runtime grant.
func (m *MobileMessaging) RequestPostNotificationsPermission(ctx context.Context) (bool, error) {
	if m.platform != config.PlatformAndroid {
		return true, nil
	}
	if m.perms == nil {
		return false, ErrNoPermissionRequester
	}
	if m.perms.APILevel() < apiLevelPostNotifications {
		return true, nil
	}
	return m.request(ctx, PermissionPostNotifications)
}

// RequestLocationPermission asks for the location permissions geofencing
// needs. From Android 10 background location is a separate prompt, shown
// only after fine location is granted.
func (m *MobileMessaging) RequestLocationPermission(ctx context.Context) (bool, error) {
	if m.platform != config.PlatformAndroid {
		return true, nil
	}
	if m.perms == nil {
		return false, ErrNoPermissionRequester
	}

	granted, err := m.request(ctx, PermissionFineLocation)
	if err != nil || !granted {
		return false, err
	}
	if m.perms.APILevel() < apiLevelBackgroundLocation {
		return true, nil
	}
	return m.request(ctx, PermissionBackgroundLocation)
}

func (m *MobileMessaging) request(ctx context.Context, permission string) (bool, error) {
	res, err := m.perms.Request(ctx, permission)
	if err != nil {
		return false, fmt.Errorf("requesting %s: %w", permission, err)
	}
	m.log.Debug("permission requested", "permission", permission, "granted", res[permission])
	return res[permission], nil
}
