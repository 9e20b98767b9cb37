package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	defaultBackendURL  = "http://127.0.0.1:8090"
	defaultRagLimit    = 5
	defaultSearchLimit = 10
)

// httpBackend talks to the local ingestion server.
type httpBackend struct {
	baseURL string
	client  *http.Client
}

// newHTTPBackend builds a client that never goes through a proxy (the server
// is on localhost or the LAN) and sticks to HTTP/1.1. Calls are rare and
// long, so connections are not kept alive between them.
func newHTTPBackend(baseURL string, timeout time.Duration) *httpBackend {
	if baseURL == "" {
		baseURL = defaultBackendURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:             nil,
		ForceAttemptHTTP2: false,
		DisableKeepAlives: true,
	}
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Invoke implements BackendInvoker.
func (b *httpBackend) Invoke(ctx context.Context, op Operation, input string) (string, error) {
	var (
		req *http.Request
		err error
	)
	switch op {
	case OpIngestFile:
		req, err = b.ingestFileRequest(ctx, input)
	case OpIngestText:
		req, err = b.jsonRequest(ctx, "/api/ingest/text", map[string]any{"text": input})
	case OpRag:
		req, err = b.jsonRequest(ctx, "/api/rag", map[string]any{"q": input, "limit": defaultRagLimit})
	case OpSearch:
		q := url.Values{}
		q.Set("q", input)
		q.Set("limit", fmt.Sprintf("%d", defaultSearchLimit))
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/search?"+q.Encode(), nil)
	default:
		return "", fmt.Errorf("unknown backend operation %q", op)
	}
	if err != nil {
		return "", err
	}
	return b.do(op, req)
}

func (b *httpBackend) do(op Operation, req *http.Request) (string, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &BackendError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

func (b *httpBackend) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req, nil
}

// ingestFileRequest reads the file behind a canonical path and uploads it as
// multipart part "file", along with a BLAKE2b-256 digest the server can use
// to skip content it has already ingested.
func (b *httpBackend) ingestFileRequest(ctx context.Context, canonical string) (*http.Request, error) {
	localPath := filepath.FromSlash(canonical)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read file failed: %w", err)
	}
	sum := blake2b.Sum256(data)

	name := filepath.Base(localPath)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "file.bin"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("digest", hex.EncodeToString(sum[:])); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/ingest/file", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// mockBackend answers with canned JSON so the UI can be exercised without
// the ingestion server.
type mockBackend struct {
	latency time.Duration
}

func (m *mockBackend) Invoke(ctx context.Context, op Operation, input string) (string, error) {
	if m.latency > 0 {
		t := time.NewTimer(m.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	var v any
	switch op {
	case OpIngestText:
		v = map[string]any{
			"status":          "success",
			"processed_chars": len([]rune(input)),
			"segments":        (len([]rune(input)) + 99) / 100,
			"message":         fmt.Sprintf("Text processed (%d chars)", len([]rune(input))),
		}
	case OpIngestFile:
		v = map[string]any{
			"status":   "success",
			"file":     input,
			"size_kb":  42,
			"segments": 15,
			"message":  fmt.Sprintf("File %s ingested", input),
		}
	case OpRag:
		v = map[string]any{
			"answer":  fmt.Sprintf("Mock answer for %q.", input),
			"context": "Source: doc1.txt\nFirst context fragment.\n---\n\nSource: doc2.txt\nSecond context fragment.",
		}
	case OpSearch:
		results := make([]map[string]any, 0, 5)
		for i := 0; i < 5; i++ {
			results = append(results, map[string]any{
				"id":      i + 1,
				"score":   0.95 - float64(i)*0.1,
				"source":  fmt.Sprintf("document_%d.txt", i+1),
				"snippet": fmt.Sprintf("Fragment containing %q...", input),
			})
		}
		v = map[string]any{"query": input, "total": len(results), "results": results}
	default:
		return "", fmt.Errorf("unknown command: %s", op)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// backendRef is a BackendInvoker whose target can be swapped, so discovery
// can point running slots at a newly found server.
type backendRef struct {
	mu      sync.RWMutex
	current BackendInvoker
}

func newBackendRef(b BackendInvoker) *backendRef {
	return &backendRef{current: b}
}

func (r *backendRef) Invoke(ctx context.Context, op Operation, input string) (string, error) {
	r.mu.RLock()
	b := r.current
	r.mu.RUnlock()
	return b.Invoke(ctx, op, input)
}

func (r *backendRef) set(b BackendInvoker) {
	r.mu.Lock()
	r.current = b
	r.mu.Unlock()
}

// newBackend picks the invoker the config asks for.
func newBackend(cfg *AppConfig) BackendInvoker {
	if cfg.UseMock() {
		return &mockBackend{latency: 300 * time.Millisecond}
	}
	return newHTTPBackend(cfg.BackendURL, cfg.BackendTimeout())
}
