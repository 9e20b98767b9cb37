package main

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EventCaptureClear asks the frontend to empty the capture surface.
const EventCaptureClear = "dnd:capture-clear"

// captureBridge is the CaptureSurface living in the webview. A read emits
// EventCaptureRead with a token; the frontend yields one tick, reads the
// contenteditable and answers through IngestApp.CaptureText.
type captureBridge struct {
	events func() eventSink

	mu      sync.Mutex
	pending map[string]chan string
}

func newCaptureBridge(events func() eventSink) *captureBridge {
	return &captureBridge{events: events, pending: make(map[string]chan string)}
}

// ReadAfterPaste implements CaptureSurface.
func (c *captureBridge) ReadAfterPaste(ctx context.Context) (string, error) {
	token := uuid.NewString()
	ch := make(chan string, 1)

	c.mu.Lock()
	c.pending[token] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
	}()

	c.events().emit(EventCaptureRead, token)

	select {
	case text := <-ch:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Clear implements CaptureSurface.
func (c *captureBridge) Clear(context.Context) {
	c.events().emit(EventCaptureClear)
}

// deliver hands the frontend's answer to the waiting read. Unknown or late
// tokens are dropped.
func (c *captureBridge) deliver(token, text string) bool {
	c.mu.Lock()
	ch, ok := c.pending[token]
	delete(c.pending, token)
	c.mu.Unlock()
	if !ok {
		Log.Debug("capture: stale answer", "token", token)
		return false
	}
	ch <- text
	return true
}

// domTransfer adapts the serialised drop payload to DataTransfer.
type domTransfer struct {
	payload DomDropPayload
}

func (d domTransfer) GetData(format string) string {
	if v, ok := d.payload.Data[format]; ok {
		return v
	}
	for k, v := range d.payload.Data {
		if strings.EqualFold(k, format) {
			return v
		}
	}
	return ""
}

func (d domTransfer) Items() []TransferItem {
	items := make([]TransferItem, 0, len(d.payload.Items))
	for _, it := range d.payload.Items {
		items = append(items, domItem{kind: it.Kind, text: it.Text})
	}
	return items
}

// domItem is an item whose string content the frontend already read.
type domItem struct {
	kind string
	text string
}

func (i domItem) Kind() string { return i.kind }

func (i domItem) ReadString(context.Context) (string, error) { return i.text, nil }
