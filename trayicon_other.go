//go:build !windows

package main

// trayIcon returns the PNG bytes used by non-Windows trays.
func trayIcon() []byte {
	return appIconPNG
}

// Outside Windows the tray has no click hook; the Open menu item covers it.
func subclassSystray(func()) {}

// isAppWindowVisible cannot see the native window here, so a toggle always shows it.
func isAppWindowVisible() (visible bool, minimized bool) {
	return false, false
}
