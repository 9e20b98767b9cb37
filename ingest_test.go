package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestSlotRun(t *testing.T) {
	backend := &fakeBackend{result: `{"ok":true}`}
	var seen []IngestSnapshot
	slot := newIngestSlot("text", OpIngestText, backend, func(s IngestSnapshot) { seen = append(seen, s) })

	assert.Equal(t, IngestSnapshot{Status: StatusIdle, Title: "Ready"}, slot.Snapshot())
	assert.False(t, slot.run(context.Background(), ""), "empty input is ignored")
	assert.Empty(t, backend.Calls())

	require.True(t, slot.run(context.Background(), "hello"))
	assert.Equal(t, []fakeCall{{Op: OpIngestText, Input: "hello"}}, backend.Calls())

	require.Len(t, seen, 2)
	assert.Equal(t, IngestSnapshot{Busy: true, Status: StatusLoading, Title: "Loading…", Input: "hello"}, seen[0])
	assert.Equal(t, IngestSnapshot{Status: StatusOK, Title: "Success", Result: `{"ok":true}`, Input: "hello"}, seen[1])
}

func TestIngestSlotError(t *testing.T) {
	slot := newIngestSlot("file", OpIngestFile, &fakeBackend{err: errors.New("connection refused")}, nil)
	require.True(t, slot.run(context.Background(), "C:/a.txt"))

	snap := slot.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "connection refused", snap.Result)
}

func TestIngestSlotIgnoresWhileBusy(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	slot := newIngestSlot("text", OpIngestText, backend, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slot.run(context.Background(), "first")
	}()
	<-backend.entered

	assert.False(t, slot.run(context.Background(), "second"))
	close(backend.block)
	wg.Wait()

	assert.Len(t, backend.Calls(), 1)
	assert.Equal(t, "first", slot.Snapshot().Input)
	assert.True(t, slot.run(context.Background(), "third"), "gate reopens after completion")
}

func TestFormatBackendError(t *testing.T) {
	assert.Empty(t, formatBackendError(nil))
	assert.Equal(t, "rag: backend returned HTTP 500", formatBackendError(&BackendError{Op: OpRag, StatusCode: 500}))
	assert.Equal(t, "backend did not answer in time", formatBackendError(context.DeadlineExceeded))
	assert.Equal(t, "boom", formatBackendError(errors.New("boom")))
}
