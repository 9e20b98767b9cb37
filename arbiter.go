package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// ChannelToggler arms or disarms the host-native drop channel. Calls must
// be idempotent: enabling an enabled channel is a no-op for the host.
type ChannelToggler interface {
	SetNativeDropEnabled(ctx context.Context, enabled bool) error
}

// ChannelMode is which drop channel currently receives drags.
type ChannelMode int

const (
	ChannelNative  ChannelMode = iota // host intercepts drags, delivers file paths
	ChannelDomOnly                    // host stands down, HTML5 drop reaches the DOM
)

func (m ChannelMode) String() string {
	if m == ChannelDomOnly {
		return "dom"
	}
	return "native"
}

// DragDescriptor is what the drop surface reports about a hovering drag.
type DragDescriptor struct {
	Types     []string `json:"types"`
	FileCount int      `json:"fileCount"`
}

type dragKind int

const (
	dragUnknown dragKind = iota
	dragTextOnly
	dragFiles
)

func classifyDrag(d DragDescriptor) dragKind {
	var hasText, hasFiles bool
	for _, t := range d.Types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "text/plain", "text/uri-list", "text":
			hasText = true
		case "files":
			hasFiles = true
		}
	}
	if d.FileCount > 0 {
		hasFiles = true
	}
	switch {
	case hasFiles:
		return dragFiles
	case hasText:
		return dragTextOnly
	default:
		return dragUnknown
	}
}

// ChannelArbiter keeps the native channel armed by default and disarms it
// for the duration of a text-only drag (an editor dragging a path span), so
// the DOM drop can see the payload. It re-arms after any drop and whenever
// a files-bearing drag hovers.
//
// At most one host call is in flight. A request arriving meanwhile is
// dropped: hover fires continuously and the next tick re-evaluates.
type ChannelArbiter struct {
	host     ChannelToggler
	onChange func(ChannelMode)

	mu          sync.Mutex
	nativeArmed bool

	toggling atomic.Bool
}

// NewChannelArbiter starts in ChannelNative, matching the host's default.
// A nil host only tracks state.
func NewChannelArbiter(host ChannelToggler, onChange func(ChannelMode)) *ChannelArbiter {
	return &ChannelArbiter{host: host, onChange: onChange, nativeArmed: true}
}

// Hover re-evaluates the armed channel for a drag over the drop surface.
func (a *ChannelArbiter) Hover(ctx context.Context, d DragDescriptor) {
	switch classifyDrag(d) {
	case dragTextOnly:
		a.setNative(ctx, false)
	case dragFiles:
		a.setNative(ctx, true)
	}
}

// DropCompleted re-arms the native channel after any drop.
func (a *ChannelArbiter) DropCompleted(ctx context.Context) {
	a.setNative(ctx, true)
}

// NativeArmed reports the last state the host confirmed.
func (a *ChannelArbiter) NativeArmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nativeArmed
}

// Mode is NativeArmed expressed as a ChannelMode.
func (a *ChannelArbiter) Mode() ChannelMode {
	if a.NativeArmed() {
		return ChannelNative
	}
	return ChannelDomOnly
}

// setNative asks the host to switch channels. It reports whether a host
// call was made and succeeded.
func (a *ChannelArbiter) setNative(ctx context.Context, enabled bool) bool {
	if a.NativeArmed() == enabled {
		return false
	}
	if !a.toggling.CompareAndSwap(false, true) {
		return false
	}
	defer a.toggling.Store(false)

	// Re-check under the guard; a toggle may have landed between the two.
	if a.NativeArmed() == enabled {
		return false
	}

	if a.host != nil {
		if err := a.host.SetNativeDropEnabled(ctx, enabled); err != nil {
			Log.Warn("arbiter: set native drop failed", "enabled", enabled, "error", err)
			return false
		}
	}

	a.mu.Lock()
	a.nativeArmed = enabled
	a.mu.Unlock()

	mode := ChannelNative
	if !enabled {
		mode = ChannelDomOnly
	}
	Log.Debug("arbiter: channel switched", "mode", mode)
	if a.onChange != nil {
		a.onChange(mode)
	}
	return true
}
