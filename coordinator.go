package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCaptureTimeout = 500 * time.Millisecond

// NativeDropNotifier delivers raw path strings from the host's own drop
// channel. The returned func unsubscribes and is safe to call repeatedly.
type NativeDropNotifier interface {
	OnNativeDrop(fn func(paths []string)) (unsubscribe func())
}

// DataTransfer is the DOM drop payload.
type DataTransfer interface {
	GetData(format string) string
	Items() []TransferItem
}

// TransferItem is one DataTransferItem. Reading a string item is
// asynchronous in the webview, hence the context.
type TransferItem interface {
	Kind() string
	ReadString(ctx context.Context) (string, error)
}

// CaptureSurface is the invisible contenteditable behind the drop target.
// Some editors deliver their drag only by pasting into an editable element;
// ReadAfterPaste yields one event-loop turn and returns what landed there.
type CaptureSurface interface {
	ReadAfterPaste(ctx context.Context) (string, error)
	Clear(ctx context.Context)
}

// standardSlots are read in order; the first non-empty one wins.
var standardSlots = []string{"text/uri-list", "text/plain", "text"}

// CoordinatorOptions wires a DropCoordinator to its collaborators.
type CoordinatorOptions struct {
	Host           ChannelToggler
	Backend        BackendInvoker
	Capture        CaptureSurface // optional
	Debounce       time.Duration
	CaptureTimeout time.Duration
	OnFileStatus   func(IngestSnapshot)
	OnChannel      func(ChannelMode)
}

// DropCoordinator routes every ingress (native notification, DOM drop,
// paste, file picker) into one DropBatcher and sends each flushed path to
// the backend behind a busy gate. It lives between Mount and Unmount of the
// drop surface.
type DropCoordinator struct {
	arbiter        *ChannelArbiter
	files          *ingestSlot
	capture        CaptureSurface
	debounce       time.Duration
	captureTimeout time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	batcher     *DropBatcher
	unsubscribe func()
	inflight    sync.WaitGroup
}

// NewDropCoordinator creates an unmounted coordinator.
func NewDropCoordinator(opts CoordinatorOptions) *DropCoordinator {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	return &DropCoordinator{
		arbiter:        NewChannelArbiter(opts.Host, opts.OnChannel),
		files:          newIngestSlot("file", OpIngestFile, opts.Backend, opts.OnFileStatus),
		capture:        opts.Capture,
		debounce:       opts.Debounce,
		captureTimeout: opts.CaptureTimeout,
	}
}

// Mount subscribes to native drops and opens the coordinator for ingress.
func (c *DropCoordinator) Mount(ctx context.Context, notifier NativeDropNotifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.batcher != nil {
		return errors.New("drop coordinator already mounted")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.batcher = NewDropBatcher(c.debounce, c.ingest)
	if notifier != nil {
		mountCtx := c.ctx
		c.unsubscribe = notifier.OnNativeDrop(func(paths []string) {
			c.NativeDrop(mountCtx, paths)
		})
	}
	Log.Debug("coordinator: mounted")
	return nil
}

// Unmount releases the native subscription, drops any open batch, cancels
// an in-flight ingestion and waits for it to return. Safe to call twice.
func (c *DropCoordinator) Unmount() {
	c.mu.Lock()
	if c.batcher == nil {
		c.mu.Unlock()
		return
	}
	c.batcher.Close()
	c.batcher = nil
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.cancel()
	c.mu.Unlock()

	c.inflight.Wait()
	Log.Debug("coordinator: unmounted")
}

func (c *DropCoordinator) currentBatcher() *DropBatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batcher
}

// DragOver feeds a hover over the drop surface to the channel arbiter.
func (c *DropCoordinator) DragOver(ctx context.Context, d DragDescriptor) {
	c.arbiter.Hover(ctx, d)
}

// NativeDrop forwards each host-delivered path individually.
func (c *DropCoordinator) NativeDrop(ctx context.Context, paths []string) int {
	defer c.arbiter.DropCompleted(ctx)

	b := c.currentBatcher()
	if b == nil {
		return 0
	}
	now := time.Now()
	n := 0
	for _, p := range paths {
		if b.Add(RawCandidate{Text: p, Origin: OriginNative, At: now}) {
			n++
		}
	}
	Log.Debug("coordinator: native drop", "paths", len(paths), "kept", n)
	return n
}

// Drop extracts the payload of a DOM drop. It tries the standard text
// slots, then string items, then the capture surface, stopping at the first
// tier that yields anything. Returns the number of candidates forwarded.
func (c *DropCoordinator) Drop(ctx context.Context, dt DataTransfer) int {
	defer c.arbiter.DropCompleted(ctx)

	b := c.currentBatcher()
	if b == nil {
		return 0
	}

	if dt != nil {
		if lines := standardSlotLines(dt); len(lines) > 0 {
			return c.forward(b, OriginDrop, lines, "slots")
		}
		if lines := c.readStringItems(ctx, dt.Items()); len(lines) > 0 {
			return c.forward(b, OriginDrop, lines, "items")
		}
	}

	if c.capture == nil {
		Log.Debug("coordinator: drop carried nothing readable")
		return 0
	}
	lines := c.readCapture(ctx)
	if len(lines) == 0 {
		Log.Debug("coordinator: fallback capture got empty content")
		return 0
	}
	return c.forward(b, OriginFallback, lines, "capture")
}

// Paste forwards clipboard text line by line, exactly like a drop.
func (c *DropCoordinator) Paste(text string) int {
	b := c.currentBatcher()
	if b == nil {
		return 0
	}
	return c.forward(b, OriginPaste, usableLines(text), "paste")
}

// PickedFile forwards a path chosen in the file dialog.
func (c *DropCoordinator) PickedFile(path string) bool {
	b := c.currentBatcher()
	if b == nil || path == "" {
		return false
	}
	return b.Add(RawCandidate{Text: path, Origin: OriginPicker, At: time.Now()})
}

// FileStatus is the observable state of file ingestion.
func (c *DropCoordinator) FileStatus() IngestSnapshot {
	return c.files.Snapshot()
}

// ChannelMode reports which drop channel is armed.
func (c *DropCoordinator) ChannelMode() ChannelMode {
	return c.arbiter.Mode()
}

func (c *DropCoordinator) forward(b *DropBatcher, origin Origin, lines []string, tier string) int {
	now := time.Now()
	n := 0
	for _, l := range lines {
		if b.Add(RawCandidate{Text: l, Origin: origin, At: now}) {
			n++
		}
	}
	Log.Debug("coordinator: forwarded", "tier", tier, "lines", len(lines), "kept", n)
	return n
}

// ingest is the batcher's flush callback. It runs on the timer goroutine.
func (c *DropCoordinator) ingest(res DropResult) {
	c.mu.Lock()
	if c.batcher == nil {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	if len(res.Alternatives) > 0 {
		Log.Info("coordinator: several files in one drop, using the first",
			"batch", res.BatchID, "path", res.Path, "ignored", res.Alternatives)
	}
	c.files.run(ctx, res.Path)
}

// readStringItems reads every string item concurrently and joins them in item
// order. Items from the Wails bridge were already read by the view, so their
// ReadString returns at once; the fan-out only matters for transfers whose
// items resolve lazily.
func (c *DropCoordinator) readStringItems(ctx context.Context, items []TransferItem) []string {
	var strItems []TransferItem
	for _, it := range items {
		if it != nil && it.Kind() == "string" {
			strItems = append(strItems, it)
		}
	}
	if len(strItems) == 0 {
		return nil
	}

	results := make([]string, len(strItems))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range strItems {
		g.Go(func() error {
			s, err := it.ReadString(gctx)
			if err != nil {
				Log.Debug("coordinator: item read failed", "index", i, "error", err)
				return nil
			}
			results[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return usableLines(strings.Join(results, "\n"))
}

func (c *DropCoordinator) readCapture(ctx context.Context) []string {
	cctx, cancel := context.WithTimeout(ctx, c.captureTimeout)
	defer cancel()

	raw, err := c.capture.ReadAfterPaste(cctx)
	c.capture.Clear(ctx)
	if err != nil {
		Log.Debug("coordinator: capture read failed", "error", err)
		return nil
	}
	Log.Debug("coordinator: fallback capture raw", "raw", raw)
	return usableLines(raw)
}

// standardSlotLines reads the first non-empty standard text slot.
func standardSlotLines(dt DataTransfer) []string {
	for _, format := range standardSlots {
		text := dt.GetData(format)
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines := usableLines(text)
		if format == "text/uri-list" {
			lines = dropURIListComments(lines)
		}
		return lines
	}
	return nil
}

// usableLines splits text into lines, dropping blanks and the blocked-drag
// sentinel.
func usableLines(text string) []string {
	var out []string
	for _, l := range splitLines(text) {
		if l != blockedDragSentinel {
			out = append(out, l)
		}
	}
	return out
}

// dropURIListComments removes text/uri-list comment lines.
func dropURIListComments(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		if !strings.HasPrefix(l, "#") {
			out = append(out, l)
		}
	}
	return out
}
