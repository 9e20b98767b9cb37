package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Operation is a logical backend call.
type Operation string

const (
	OpIngestFile Operation = "ingest_file"
	OpIngestText Operation = "ingest_text"
	OpRag        Operation = "rag"
	OpSearch     Operation = "search"
)

// BackendInvoker performs one backend operation on a canonical path or a
// text blob. The result string is opaque.
type BackendInvoker interface {
	Invoke(ctx context.Context, op Operation, input string) (string, error)
}

// BackendError is returned when the backend answers with a non-2xx status.
type BackendError struct {
	Op         Operation
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: backend returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned HTTP %d: %s", e.Op, e.StatusCode, body)
}

// formatBackendError turns an invocation failure into display text.
func formatBackendError(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "backend did not answer in time"
	}
	return err.Error()
}

// ingestSlot is one ingestion panel: a busy gate plus the status shown to
// the user. While a call is in flight further runs are ignored, not queued.
type ingestSlot struct {
	name     string
	op       Operation
	backend  BackendInvoker
	onChange func(IngestSnapshot)

	mu   sync.Mutex
	snap IngestSnapshot
}

func newIngestSlot(name string, op Operation, backend BackendInvoker, onChange func(IngestSnapshot)) *ingestSlot {
	return &ingestSlot{
		name:     name,
		op:       op,
		backend:  backend,
		onChange: onChange,
		snap:     IngestSnapshot{Status: StatusIdle, Title: "Ready"},
	}
}

// Snapshot returns a copy of the current state.
func (s *ingestSlot) Snapshot() IngestSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// run invokes the backend unless a call is already in flight. It blocks
// until the call finishes and reports whether it ran.
func (s *ingestSlot) run(ctx context.Context, input string) bool {
	if input == "" {
		return false
	}

	s.mu.Lock()
	if s.snap.Busy {
		s.mu.Unlock()
		Log.Info("ingest: busy, ignoring request", "slot", s.name, "input", input)
		return false
	}
	s.snap = IngestSnapshot{Busy: true, Status: StatusLoading, Title: "Loading…", Input: input}
	s.mu.Unlock()
	s.notify()

	Log.Debug("ingest: invoke", "slot", s.name, "op", s.op, "input", input)
	res, err := s.backend.Invoke(ctx, s.op, input)

	s.mu.Lock()
	if err != nil {
		Log.Error("ingest: backend call failed", "slot", s.name, "op", s.op, "error", err)
		s.snap = IngestSnapshot{Status: StatusError, Title: "Error", Result: formatBackendError(err), Input: input}
	} else {
		Log.Debug("ingest: backend call done", "slot", s.name, "op", s.op, "bytes", len(res))
		s.snap = IngestSnapshot{Status: StatusOK, Title: "Success", Result: res, Input: input}
	}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *ingestSlot) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}
