//go:build windows

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"
)

var (
	kernel32        = syscall.NewLazyDLL("kernel32.dll")
	procCreateMutex = kernel32.NewProc("CreateMutexW")
	user32          = syscall.NewLazyDLL("user32.dll")
	procSetFGWindow = user32.NewProc("SetForegroundWindow")
	procShowWindow  = user32.NewProc("ShowWindow")
)

// ensureSingleInstance exits if another Nooforge window is running, after
// bringing that window to the front. Returns a cleanup function.
func ensureSingleInstance() func() {
	mutexName, _ := syscall.UTF16PtrFromString("Global\\Nooforge_SingleInstance")

	handle, _, err := procCreateMutex.Call(0, 0, uintptr(unsafe.Pointer(mutexName)))
	if handle == 0 {
		fmt.Println("Nooforge: cannot create instance mutex")
		os.Exit(1)
	}
	if err == syscall.ERROR_ALREADY_EXISTS {
		fmt.Println("Nooforge is already running")
		bringExistingWindowToFront()
		os.Exit(0)
	}

	lockPath := filepath.Join(AppDataDir(), "nooforge.lock")
	lockFile, _ := os.Create(lockPath)
	if lockFile != nil {
		fmt.Fprintf(lockFile, "%d", os.Getpid())
	}

	return func() {
		syscall.CloseHandle(syscall.Handle(handle))
		if lockFile != nil {
			lockFile.Close()
		}
		os.Remove(lockPath)
	}
}

func bringExistingWindowToFront() {
	title, _ := syscall.UTF16PtrFromString(AppName)
	hwnd, _, _ := pFindWindowW.Call(0, uintptr(unsafe.Pointer(title)))
	if hwnd != 0 {
		const swRestore = 9
		procShowWindow.Call(hwnd, swRestore)
		procSetFGWindow.Call(hwnd)
	}
}
