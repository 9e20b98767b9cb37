package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransfer struct {
	data  map[string]string
	items []TransferItem
}

func (f fakeTransfer) GetData(format string) string { return f.data[format] }
func (f fakeTransfer) Items() []TransferItem        { return f.items }

type fakeItem struct {
	kind  string
	text  string
	err   error
	delay time.Duration
}

func (f fakeItem) Kind() string { return f.kind }

func (f fakeItem) ReadString(ctx context.Context) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

// fakeCapture returns text, or blocks until ctx ends when block is set.
type fakeCapture struct {
	text    string
	block   bool
	reads   atomic.Int32
	cleared atomic.Int32
}

func (f *fakeCapture) ReadAfterPaste(ctx context.Context) (string, error) {
	f.reads.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, nil
}

func (f *fakeCapture) Clear(context.Context) { f.cleared.Add(1) }

type fakeNotifier struct {
	mu           sync.Mutex
	fn           func([]string)
	unsubscribed int
}

func (f *fakeNotifier) OnNativeDrop(fn func([]string)) func() {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.fn = nil
			f.unsubscribed++
			f.mu.Unlock()
		})
	}
}

func (f *fakeNotifier) fire(paths ...string) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(paths)
	}
}

type coordFixture struct {
	coord    *DropCoordinator
	backend  *fakeBackend
	host     *fakeToggler
	capture  *fakeCapture
	notifier *fakeNotifier

	mu       sync.Mutex
	statuses []IngestSnapshot
}

func newCoordFixture(t *testing.T, backend *fakeBackend, capture *fakeCapture) *coordFixture {
	t.Helper()
	if backend == nil {
		backend = &fakeBackend{}
	}
	f := &coordFixture{
		backend:  backend,
		host:     &fakeToggler{},
		capture:  capture,
		notifier: &fakeNotifier{},
	}
	opts := CoordinatorOptions{
		Host:           f.host,
		Backend:        backend,
		Debounce:       20 * time.Millisecond,
		CaptureTimeout: 50 * time.Millisecond,
		OnFileStatus: func(s IngestSnapshot) {
			f.mu.Lock()
			f.statuses = append(f.statuses, s)
			f.mu.Unlock()
		},
	}
	if capture != nil {
		opts.Capture = capture
	}
	f.coord = NewDropCoordinator(opts)
	require.NoError(t, f.coord.Mount(context.Background(), f.notifier))
	t.Cleanup(f.coord.Unmount)
	return f
}

func (f *coordFixture) waitCalls(t *testing.T, n int) []fakeCall {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.backend.Calls()) >= n }, time.Second, 5*time.Millisecond)
	return f.backend.Calls()
}

func (f *coordFixture) waitIdle(t *testing.T) IngestSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.coord.FileStatus()
		return !s.Busy && s.Status != StatusIdle
	}, time.Second, 5*time.Millisecond)
	return f.coord.FileStatus()
}

func TestCoordinatorNativeDrop(t *testing.T) {
	f := newCoordFixture(t, &fakeBackend{result: "ok-result"}, nil)

	n := f.coord.NativeDrop(context.Background(), []string{`C:\docs\a.txt`, `C:\docs\b.txt`})
	assert.Equal(t, 2, n)

	calls := f.waitCalls(t, 1)
	assert.Equal(t, []fakeCall{{Op: OpIngestFile, Input: "C:/docs/a.txt"}}, calls)

	snap := f.waitIdle(t)
	assert.Equal(t, StatusOK, snap.Status)
	assert.Equal(t, "Success", snap.Title)
	assert.Equal(t, "ok-result", snap.Result)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.statuses, 2)
	assert.Equal(t, StatusLoading, f.statuses[0].Status)
	assert.True(t, f.statuses[0].Busy)
	assert.Equal(t, StatusOK, f.statuses[1].Status)
}

func TestCoordinatorNotifierSubscription(t *testing.T) {
	f := newCoordFixture(t, nil, nil)

	f.notifier.fire("file:///D:/x/y.md")
	calls := f.waitCalls(t, 1)
	assert.Equal(t, "D:/x/y.md", calls[0].Input)
}

func TestCoordinatorDropStandardSlots(t *testing.T) {
	f := newCoordFixture(t, nil, &fakeCapture{text: "C:/never.txt"})

	dt := fakeTransfer{data: map[string]string{
		"text/uri-list": "# dragged from editor\nfile:///C:/x/y.txt\n",
		"text/plain":    "C:/ignored.txt",
	}}
	assert.Equal(t, 1, f.coord.Drop(context.Background(), dt))

	calls := f.waitCalls(t, 1)
	assert.Equal(t, "C:/x/y.txt", calls[0].Input)
	assert.Zero(t, f.capture.reads.Load(), "capture surface is the last resort")
}

func TestCoordinatorDropFallsBackToPlainText(t *testing.T) {
	f := newCoordFixture(t, nil, nil)

	dt := fakeTransfer{data: map[string]string{"text/uri-list": "  ", "text/plain": `E:\a.txt`}}
	assert.Equal(t, 1, f.coord.Drop(context.Background(), dt))
	assert.Equal(t, "E:/a.txt", f.waitCalls(t, 1)[0].Input)
}

func TestCoordinatorDropStringItems(t *testing.T) {
	f := newCoordFixture(t, nil, &fakeCapture{text: "C:/never.txt"})

	dt := fakeTransfer{items: []TransferItem{
		fakeItem{kind: "file"},
		fakeItem{kind: "string", text: `[{"resource":{"fsPath":"c:\\proj\\main.go"}}]`, delay: 10 * time.Millisecond},
		fakeItem{kind: "string", err: errors.New("gone")},
		fakeItem{kind: "string", text: "C:/proj/other.go"},
	}}
	assert.Equal(t, 2, f.coord.Drop(context.Background(), dt))

	calls := f.waitCalls(t, 1)
	assert.Equal(t, "C:/proj/main.go", calls[0].Input, "item order is kept even when reads finish out of order")
	assert.Zero(t, f.capture.reads.Load())
}

func TestCoordinatorDropCaptureSurface(t *testing.T) {
	capture := &fakeCapture{text: "\"D:\\notes\\todo.md\"\n"}
	f := newCoordFixture(t, nil, capture)

	dt := fakeTransfer{data: map[string]string{"text/plain": blockedDragSentinel}}
	assert.Equal(t, 1, f.coord.Drop(context.Background(), dt))

	assert.Equal(t, "D:/notes/todo.md", f.waitCalls(t, 1)[0].Input)
	assert.EqualValues(t, 1, capture.reads.Load())
	assert.EqualValues(t, 1, capture.cleared.Load())
}

func TestCoordinatorDropCaptureTimeout(t *testing.T) {
	capture := &fakeCapture{block: true}
	f := newCoordFixture(t, nil, capture)

	start := time.Now()
	assert.Zero(t, f.coord.Drop(context.Background(), fakeTransfer{}))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.EqualValues(t, 1, capture.cleared.Load())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, f.backend.Calls())
}

func TestCoordinatorDropWithoutCapture(t *testing.T) {
	f := newCoordFixture(t, nil, nil)
	assert.Zero(t, f.coord.Drop(context.Background(), nil))
	assert.Zero(t, f.coord.Drop(context.Background(), fakeTransfer{}))
}

func TestCoordinatorCoalescesNativeAndDom(t *testing.T) {
	f := newCoordFixture(t, nil, nil)
	ctx := context.Background()

	f.coord.NativeDrop(ctx, []string{`C:\a.txt`})
	f.coord.Drop(ctx, fakeTransfer{data: map[string]string{"text/uri-list": "file:///C:/a.txt"}})

	f.waitCalls(t, 1)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, f.backend.Calls(), 1)
}

func TestCoordinatorBusyGate(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	f := newCoordFixture(t, backend, nil)
	ctx := context.Background()

	f.coord.NativeDrop(ctx, []string{"C:/first.txt"})
	<-backend.entered
	assert.True(t, f.coord.FileStatus().Busy)

	// A second drop flushes while the first call is in flight and is ignored.
	f.coord.NativeDrop(ctx, []string{"C:/second.txt"})
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, backend.Calls(), 1)

	close(backend.block)
	snap := f.waitIdle(t)
	assert.Equal(t, "C:/first.txt", snap.Input)
	assert.Len(t, backend.Calls(), 1)
}

func TestCoordinatorUnusableDropKeepsStatus(t *testing.T) {
	f := newCoordFixture(t, &fakeBackend{result: "indexed"}, nil)

	f.coord.PickedFile("C:/first.txt")
	before := f.waitIdle(t)
	require.Equal(t, StatusOK, before.Status)

	dt := fakeTransfer{data: map[string]string{"text/plain": "hello world\nhttps://example.com/x"}}
	assert.Equal(t, 2, f.coord.Drop(context.Background(), dt))

	// Wait past the batch window: nothing usable means no ingestion and no status change.
	assert.Never(t, func() bool { return f.coord.FileStatus() != before }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, f.backend.Calls(), 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.statuses, 2)
}

func TestCoordinatorBackendError(t *testing.T) {
	backend := &fakeBackend{err: &BackendError{Op: OpIngestFile, StatusCode: 422, Body: "unsupported type\n"}}
	f := newCoordFixture(t, backend, nil)

	f.coord.PickedFile("C:/a.exe")
	snap := f.waitIdle(t)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "Error", snap.Title)
	assert.Equal(t, "ingest_file: backend returned HTTP 422: unsupported type", snap.Result)
}

func TestCoordinatorChannelArbitration(t *testing.T) {
	f := newCoordFixture(t, nil, nil)
	ctx := context.Background()

	f.coord.DragOver(ctx, textDrag)
	assert.Equal(t, ChannelDomOnly, f.coord.ChannelMode())

	f.coord.Drop(ctx, fakeTransfer{data: map[string]string{"text/plain": "C:/a.txt"}})
	assert.Equal(t, ChannelNative, f.coord.ChannelMode(), "any drop re-arms")

	f.coord.DragOver(ctx, textDrag)
	f.coord.NativeDrop(ctx, nil)
	assert.Equal(t, ChannelNative, f.coord.ChannelMode())

	assert.Equal(t, []bool{false, true, false, true}, f.host.Calls())
}

func TestCoordinatorPasteAndPicker(t *testing.T) {
	f := newCoordFixture(t, nil, nil)

	assert.Equal(t, 2, f.coord.Paste("not a path\r\nC:/pasted.txt\n"+blockedDragSentinel))
	assert.Equal(t, "C:/pasted.txt", f.waitCalls(t, 1)[0].Input)
	f.waitIdle(t)

	assert.False(t, f.coord.PickedFile(""))
	assert.True(t, f.coord.PickedFile(`D:\picked.bin`))
	assert.Equal(t, "D:/picked.bin", f.waitCalls(t, 2)[1].Input)
}

func TestCoordinatorUnmount(t *testing.T) {
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}
	coord := NewDropCoordinator(CoordinatorOptions{Backend: backend, Debounce: 20 * time.Millisecond})

	require.NoError(t, coord.Mount(context.Background(), notifier))
	assert.Error(t, coord.Mount(context.Background(), notifier), "double mount")

	coord.NativeDrop(context.Background(), []string{"C:/pending.txt"})
	coord.Unmount()
	coord.Unmount()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, backend.Calls(), "open batch is dropped on unmount")
	assert.Equal(t, 1, notifier.unsubscribed)
	assert.Zero(t, coord.Drop(context.Background(), fakeTransfer{data: map[string]string{"text/plain": "C:/late.txt"}}))
	assert.Zero(t, coord.Paste("C:/late.txt"))
	assert.False(t, coord.PickedFile("C:/late.txt"))

	// Remounting starts a fresh batcher.
	require.NoError(t, coord.Mount(context.Background(), notifier))
	defer coord.Unmount()
	coord.PickedFile("C:/again.txt")
	require.Eventually(t, func() bool { return len(backend.Calls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoordinatorUnmountCancelsIngestion(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	coord := NewDropCoordinator(CoordinatorOptions{Backend: backend, Debounce: 10 * time.Millisecond})
	require.NoError(t, coord.Mount(context.Background(), nil))

	coord.PickedFile("C:/slow.txt")
	<-backend.entered

	done := make(chan struct{})
	go func() {
		coord.Unmount()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unmount did not return")
	}

	snap := coord.FileStatus()
	assert.False(t, snap.Busy)
	assert.Equal(t, StatusError, snap.Status)
}

func TestUsableLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, usableLines("a\n"+blockedDragSentinel+"\r\n b "))
	assert.Equal(t, []string{"file:///C:/a"}, dropURIListComments([]string{"#c", "file:///C:/a"}))
}
