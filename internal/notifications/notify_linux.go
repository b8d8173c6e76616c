//go:build linux

package notifications

import (
	"github.com/gen2brain/beeep"
	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"

	urgencyCritical byte = 2
)

// sendUrgent posts a critical notification, which desktop servers keep on
// screen until dismissed. Falls back to beeep without a session bus.
func sendUrgent(title, message string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return beeep.Alert(title, message, "")
	}

	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(urgencyCritical),
		"sound-name":    dbus.MakeVariant("dialog-warning"),
		"desktop-entry": dbus.MakeVariant("glucose-calculator"),
	}
	obj := conn.Object(notifyDest, dbus.ObjectPath(notifyPath))
	// app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout (0 = never)
	call := obj.Call(notifyMethod, 0, appName, uint32(0), "", title, message, []string{}, hints, int32(0))
	if call.Err != nil {
		return beeep.Alert(title, message, "")
	}
	return nil
}
