//go:build windows

package main

import (
	_ "embed"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

//go:embed build/windows/icon.ico
var trayIconICO []byte

// trayIcon returns the ICO bytes the Windows tray expects.
func trayIcon() []byte {
	return trayIconICO
}

var (
	user32dll          = windows.NewLazySystemDLL("User32.dll")
	pFindWindowW       = user32dll.NewProc("FindWindowW")
	pIsWindowVisible   = user32dll.NewProc("IsWindowVisible")
	pIsIconic          = user32dll.NewProc("IsIconic")
	pCallWindowProcW   = user32dll.NewProc("CallWindowProcW")
	pSetWindowLongPtrW = user32dll.NewProc("SetWindowLongPtrW")
	pSetWindowLongW    = user32dll.NewProc("SetWindowLongW")
)

const (
	wmSystrayMsg    = 0x0400 + 1 // WM_USER+1, set by systray-on-wails
	wmLButtonUp     = 0x0202
	wmLButtonDblClk = 0x0203
	gwlpWndProc     = ^uintptr(3) // GWLP_WNDPROC (-4)
)

// traySubclass swaps the tray window procedure: left double-click toggles
// the window, left single-click is swallowed, everything else (the right
// click menu) goes to the original procedure.
type traySubclass struct {
	orig     uintptr
	onToggle func()
}

var (
	tray     traySubclass
	trayOnce sync.Once
)

func (t *traySubclass) proc(hWnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	if msg == wmSystrayMsg {
		switch lParam {
		case wmLButtonDblClk:
			if t.onToggle != nil {
				go t.onToggle()
			}
			return 0
		case wmLButtonUp:
			return 0
		}
	}
	ret, _, _ := pCallWindowProcW.Call(t.orig, hWnd, uintptr(msg), wParam, lParam)
	return ret
}

// subclassSystray must run from the systray ready callback, once the hidden
// "SystrayClass" window exists.
func subclassSystray(toggle func()) {
	trayOnce.Do(func() {
		className, _ := windows.UTF16PtrFromString("SystrayClass")
		hwnd, _, _ := pFindWindowW.Call(uintptr(unsafe.Pointer(className)), 0)
		if hwnd == 0 {
			Log.Debug("tray: systray window not found")
			return
		}
		tray.onToggle = toggle
		tray.orig = setWindowLongPtr(hwnd, gwlpWndProc, syscall.NewCallback(tray.proc))
	})
}

// setWindowLongPtr falls back to SetWindowLongW on 32-bit user32.
func setWindowLongPtr(hwnd, index, value uintptr) uintptr {
	proc := pSetWindowLongW
	if pSetWindowLongPtrW.Find() == nil {
		proc = pSetWindowLongPtrW
	}
	ret, _, _ := proc.Call(hwnd, index, value)
	return ret
}

// isAppWindowVisible reads the real window state, which HideWindowOnClose
// keeps out of the Wails runtime's view.
func isAppWindowVisible() (visible bool, minimized bool) {
	title, _ := windows.UTF16PtrFromString(AppName)
	hwnd, _, _ := pFindWindowW.Call(0, uintptr(unsafe.Pointer(title)))
	if hwnd == 0 {
		return false, false
	}
	v, _, _ := pIsWindowVisible.Call(hwnd)
	m, _, _ := pIsIconic.Call(hwnd)
	return v != 0, m != 0
}
