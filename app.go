package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
	"github.com/ra1phdd/systray-on-wails"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed build/appicon.png
var appIconPNG []byte

const backendWatchInterval = 30 * time.Second

// IngestApp is the Wails application binding struct.
// Methods on this struct are exposed to the frontend via window.go.main.IngestApp.
type IngestApp struct {
	ctx     context.Context
	cfgMu   sync.Mutex // guards cfg once discovery is running
	cfg     *AppConfig
	events  eventSink
	backend *backendRef
	host    nativeDropHost
	capture *captureBridge
	coord   *DropCoordinator
	text    *ingestSlot

	stopWatch context.CancelFunc
}

// NewIngestApp wires the drop pipeline to backend and host.
func NewIngestApp(cfg *AppConfig, backend BackendInvoker, host nativeDropHost) *IngestApp {
	a := &IngestApp{cfg: cfg, backend: newBackendRef(backend), host: host}
	a.capture = newCaptureBridge(func() eventSink { return a.events })
	a.text = newIngestSlot("text", OpIngestText, a.backend, func(s IngestSnapshot) {
		a.events.textStatus(s)
	})

	var toggler ChannelToggler
	if host != nil {
		toggler = host
	}
	a.coord = NewDropCoordinator(CoordinatorOptions{
		Host:           toggler,
		Backend:        a.backend,
		Capture:        a.capture,
		Debounce:       cfg.DropDebounce(),
		CaptureTimeout: cfg.CaptureTimeout(),
		OnFileStatus:   a.onFileStatus,
		OnChannel:      func(m ChannelMode) { a.events.channelMode(m) },
	})
	return a
}

// mount starts the pipeline; startup calls it with the Wails context.
func (a *IngestApp) mount(ctx context.Context, events eventSink) error {
	a.ctx = ctx
	a.events = events

	var notifier NativeDropNotifier
	if a.host != nil {
		notifier = a.host
	}
	if err := a.coord.Mount(ctx, notifier); err != nil {
		return err
	}

	if a.cfg.DiscoverBackend && !a.cfg.UseMock() {
		watchCtx, cancel := context.WithCancel(ctx)
		a.stopWatch = cancel
		go watchBackend(watchCtx, backendWatchInterval, a.useBackendURL)
	}
	return nil
}

// unmount stops discovery and tears the pipeline down.
func (a *IngestApp) unmount() {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	a.coord.Unmount()
}

// startup is called when the Wails app starts.
func (a *IngestApp) startup(ctx context.Context) {
	Log.Debug("app: startup", "backend", a.cfg.Backend, "url", a.cfg.BackendURL)
	beeep.AppName = AppName

	events := func(name string, data ...any) {
		wailsRuntime.EventsEmit(ctx, name, data...)
	}
	if err := a.mount(ctx, events); err != nil {
		Log.Error("app: mount failed", "error", err)
	}
	a.initSystray()
}

// onDomReady installs the native drop target once the webview window exists.
func (a *IngestApp) onDomReady(ctx context.Context) {
	if a.host == nil {
		return
	}
	if err := a.host.install(ctx); err != nil {
		Log.Warn("app: native drop unavailable, DOM channel only", "error", err)
		return
	}
	Log.Info("app: native drop channel armed")
}

// shutdown is called when the Wails app is closing.
func (a *IngestApp) shutdown(ctx context.Context) {
	w, h := wailsRuntime.WindowGetSize(ctx)
	a.cfgMu.Lock()
	if w > 0 && h > 0 {
		a.cfg.WindowWidth = w
		a.cfg.WindowHeight = h
	}
	err := SaveConfig(a.cfg)
	a.cfgMu.Unlock()
	if err != nil {
		Log.Error("app: save config failed", "error", err)
	}

	a.unmount()
	if a.host != nil {
		a.host.uninstall()
	}
	systray.Quit()
}

// useBackendURL switches to a discovered backend. It runs on the discovery
// goroutine.
func (a *IngestApp) useBackendURL(u string) {
	a.cfgMu.Lock()
	if a.cfg.BackendURL == u {
		a.cfgMu.Unlock()
		return
	}
	a.cfg.BackendURL = u
	timeout := a.cfg.BackendTimeout()
	a.cfgMu.Unlock()

	a.backend.set(newHTTPBackend(u, timeout))
	a.events.emit(EventBackendURL, u)
}

func (a *IngestApp) onFileStatus(s IngestSnapshot) {
	a.events.fileStatus(s)
	if s.Busy || !a.cfg.IsNotify() {
		return
	}
	switch s.Status {
	case StatusOK:
		go a.notify("Ingested", filepath.Base(filepath.FromSlash(s.Input)))
	case StatusError:
		go a.notify("Ingestion failed", s.Result)
	}
}

func (a *IngestApp) notify(title, body string) {
	if err := beeep.Notify(title, body, ""); err != nil {
		Log.Debug("app: notification failed", "error", err)
	}
}

// showWindow brings the application window to the foreground.
func (a *IngestApp) showWindow() {
	wailsRuntime.Show(a.ctx)
	wailsRuntime.WindowUnminimise(a.ctx)
}

// toggleWindow shows the window if hidden/minimized, hides it if visible.
func (a *IngestApp) toggleWindow() {
	visible, minimized := isAppWindowVisible()
	if visible && !minimized {
		wailsRuntime.Hide(a.ctx)
	} else {
		a.showWindow()
	}
}

// initSystray sets up the tray icon. Double-click toggles the window.
func (a *IngestApp) initSystray() {
	systray.Register(func() {
		systray.SetIcon(trayIcon())
		systray.SetTooltip(fmt.Sprintf("%s v%s", AppName, AppVersion))

		mShow := systray.AddMenuItem("Open", "Show the Nooforge window")
		mPick := systray.AddMenuItem("Ingest file…", "Choose a file to ingest")
		mQuit := systray.AddMenuItem("Quit", "Quit Nooforge")

		subclassSystray(a.toggleWindow)

		go func() {
			for {
				select {
				case <-mShow.ClickedCh:
					a.showWindow()
				case <-mPick.ClickedCh:
					a.showWindow()
					if _, err := a.PickFile(); err != nil {
						Log.Warn("app: file dialog failed", "error", err)
					}
				case <-mQuit.ClickedCh:
					wailsRuntime.Quit(a.ctx)
					return
				}
			}
		}()
	}, nil)
}

// DragOver reports the types of a drag hovering the drop surface.
func (a *IngestApp) DragOver(types []string, fileCount int) string {
	a.coord.DragOver(a.ctx, DragDescriptor{Types: types, FileCount: fileCount})
	return a.coord.ChannelMode().String()
}

// Drop handles a DOM drop. It may wait for the capture surface, so the
// frontend must keep answering dnd:capture-read while the call is pending.
func (a *IngestApp) Drop(payload DomDropPayload) int {
	return a.coord.Drop(a.ctx, domTransfer{payload: payload})
}

// CaptureText answers a dnd:capture-read request.
func (a *IngestApp) CaptureText(token, text string) bool {
	return a.capture.deliver(token, text)
}

// Paste feeds pasted text into the drop pipeline.
func (a *IngestApp) Paste(text string) int {
	return a.coord.Paste(text)
}

// PasteFromClipboard reads the OS clipboard on the host side, for webviews
// that refuse clipboard access to the page.
func (a *IngestApp) PasteFromClipboard() (int, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read clipboard: %w", err)
	}
	return a.coord.Paste(text), nil
}

// PickFile opens a native file dialog and ingests the chosen file.
func (a *IngestApp) PickFile() (string, error) {
	path, err := wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Choose a file to ingest",
	})
	if err != nil {
		return "", err
	}
	if path != "" {
		a.coord.PickedFile(path)
	}
	return path, nil
}

// IngestText sends a text blob to the backend. Reports false when the text
// is empty or an ingestion is already running.
func (a *IngestApp) IngestText(text string) bool {
	return a.text.run(a.ctx, strings.TrimSpace(text))
}

// Rag asks the backend a question over the ingested corpus.
func (a *IngestApp) Rag(question string) (string, error) {
	return a.query(OpRag, question)
}

// Search runs a semantic search over the ingested corpus.
func (a *IngestApp) Search(query string) (string, error) {
	return a.query(OpSearch, query)
}

func (a *IngestApp) query(op Operation, q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", errors.New("empty query")
	}
	res, err := a.backend.Invoke(a.ctx, op, q)
	if err != nil {
		Log.Warn("app: query failed", "op", op, "error", err)
		return "", errors.New(formatBackendError(err))
	}
	return res, nil
}

// FileStatus returns the file ingestion panel state.
func (a *IngestApp) FileStatus() IngestSnapshot {
	return a.coord.FileStatus()
}

// TextStatus returns the text ingestion panel state.
func (a *IngestApp) TextStatus() IngestSnapshot {
	return a.text.Snapshot()
}

// SetLogLevel changes the log level from the UI.
func (a *IngestApp) SetLogLevel(level string) {
	SetLogLevel(level)
	a.cfgMu.Lock()
	a.cfg.LogLevel = GetLogLevel()
	a.cfgMu.Unlock()
}

// GetAppInfo returns application info for the frontend.
func (a *IngestApp) GetAppInfo() map[string]interface{} {
	a.cfgMu.Lock()
	backend, backendURL := a.cfg.Backend, a.cfg.BackendURL
	a.cfgMu.Unlock()
	return map[string]interface{}{
		"name":       AppName,
		"version":    AppVersion,
		"backend":    backend,
		"backendUrl": backendURL,
		"logLevel":   GetLogLevel(),
		"channel":    a.coord.ChannelMode().String(),
	}
}
