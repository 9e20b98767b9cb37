//go:build !windows

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ensureSingleInstance exits if another Nooforge window is running.
// Returns a cleanup function to call on exit.
func ensureSingleInstance() func() {
	lockPath := filepath.Join(AppDataDir(), "nooforge.lock")

	if pid, ok := readLockPID(lockPath); ok && pid != os.Getpid() {
		// On Unix, FindProcess always succeeds; signal 0 probes liveness.
		if process, err := os.FindProcess(pid); err == nil {
			if err := process.Signal(syscall.Signal(0)); err == nil {
				fmt.Println("Nooforge is already running")
				os.Exit(0)
			}
		}
	}

	if lockFile, err := os.Create(lockPath); err == nil {
		fmt.Fprintf(lockFile, "%d", os.Getpid())
		lockFile.Close()
	}

	return func() {
		os.Remove(lockPath)
	}
}

func readLockPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid, err == nil && pid > 0
}
