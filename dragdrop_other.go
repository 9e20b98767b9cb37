//go:build !windows

package main

import (
	"context"
	"errors"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/options"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// wailsDropHost uses the Wails runtime file-drop hook as the native channel.
// Disarming removes the hook so the drop falls through to the page.
type wailsDropHost struct {
	dropSubscribers

	mu    sync.Mutex
	ctx   context.Context
	armed bool
}

func newNativeDropHost() nativeDropHost {
	return &wailsDropHost{}
}

// dragAndDropOptions keeps webview drops enabled so the DOM channel works
// alongside the runtime hook.
func dragAndDropOptions() *options.DragAndDrop {
	return &options.DragAndDrop{
		EnableFileDrop:     true,
		DisableWebViewDrop: false,
	}
}

func (h *wailsDropHost) install(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	return h.SetNativeDropEnabled(ctx, true)
}

func (h *wailsDropHost) uninstall() {
	_ = h.SetNativeDropEnabled(context.Background(), false)
}

// SetNativeDropEnabled implements ChannelToggler.
func (h *wailsDropHost) SetNativeDropEnabled(_ context.Context, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx == nil {
		return errors.New("native drop host not installed")
	}
	if h.armed == enabled {
		return nil
	}
	if enabled {
		wailsRuntime.OnFileDrop(h.ctx, func(x, y int, paths []string) {
			Log.Debug("dragdrop: runtime file drop", "count", len(paths))
			go h.publish(paths)
		})
	} else {
		wailsRuntime.OnFileDropOff(h.ctx)
	}
	h.armed = enabled
	return nil
}
