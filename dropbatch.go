package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultDropDebounce is how long a batch stays open after its first
// candidate. One physical drop fires several events (native + DOM + items)
// within a few milliseconds of each other.
const defaultDropDebounce = 50 * time.Millisecond

// DropBatcher coalesces the raw candidates of one logical drop into a single
// canonical path. The first Add opens a batch and starts the timer; later
// adds join it without pushing the deadline out. When the timer fires the
// batch is normalized and exactly one path (the first to arrive) is handed
// to onFlush.
type DropBatcher struct {
	delay     time.Duration
	onFlush   func(DropResult)
	normalize func(string) (string, bool)

	mu      sync.Mutex
	timer   *time.Timer // non-nil while a batch is open
	batchID string
	batch   []RawCandidate
	seen    map[string]struct{}
	closed  bool
}

// NewDropBatcher creates a batcher that calls onFlush from the timer
// goroutine once per non-empty batch.
func NewDropBatcher(delay time.Duration, onFlush func(DropResult)) *DropBatcher {
	if delay <= 0 {
		delay = defaultDropDebounce
	}
	return &DropBatcher{
		delay:     delay,
		onFlush:   onFlush,
		normalize: normalizeDropPath,
		seen:      make(map[string]struct{}),
	}
}

// Add puts a candidate into the live batch, opening one if needed. Empty
// strings and the blocked-drag sentinel are discarded; so are repeats of a
// raw string already in the batch. Returns whether the candidate was kept.
func (b *DropBatcher) Add(c RawCandidate) bool {
	text := strings.TrimSpace(c.Text)
	if text == "" || text == blockedDragSentinel {
		Log.Debug("dropbatch: discarded candidate", "origin", c.Origin, "raw", c.Text)
		return false
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if _, dup := b.seen[c.Text]; dup {
		return false
	}
	b.seen[c.Text] = struct{}{}
	b.batch = append(b.batch, c)

	if b.timer == nil {
		b.batchID = uuid.NewString()
		b.timer = time.AfterFunc(b.delay, b.flush)
		Log.Debug("dropbatch: batch opened", "batch", b.batchID, "origin", c.Origin)
	}
	return true
}

// AddLines splits text on line breaks and adds every non-empty line.
// Returns how many lines were kept.
func (b *DropBatcher) AddLines(origin Origin, text string) int {
	now := time.Now()
	n := 0
	for _, line := range splitLines(text) {
		if b.Add(RawCandidate{Text: line, Origin: origin, At: now}) {
			n++
		}
	}
	return n
}

// Open reports whether a batch is currently accumulating.
func (b *DropBatcher) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timer != nil
}

// Close stops a pending timer and drops the open batch. Later adds are
// rejected.
func (b *DropBatcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.batch = nil
	b.seen = make(map[string]struct{})
}

func (b *DropBatcher) flush() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	batchID := b.batchID
	batch := b.batch
	b.batch = nil
	b.seen = make(map[string]struct{})
	b.timer = nil
	b.mu.Unlock()

	result, ok := b.resolve(batchID, batch)
	if !ok {
		raws := make([]string, len(batch))
		for i, c := range batch {
			raws[i] = c.Text
		}
		Log.Info("dropbatch: nothing usable in batch", "batch", batchID, "raw", raws)
		return
	}

	Log.Info("dropbatch: final path", "batch", batchID, "path", result.Path,
		"candidates", result.Candidates, "discarded", len(result.Alternatives))
	if b.onFlush != nil {
		b.onFlush(result)
	}
}

// resolve normalizes a batch in arrival order and picks the first
// canonical path.
func (b *DropBatcher) resolve(batchID string, batch []RawCandidate) (DropResult, bool) {
	seen := make(map[string]bool, len(batch))
	var paths []string
	for _, c := range batch {
		p, ok := b.normalize(c.Text)
		if !ok {
			Log.Debug("dropbatch: rejected candidate", "batch", batchID, "origin", c.Origin, "raw", c.Text)
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return DropResult{}, false
	}
	return DropResult{
		BatchID:      batchID,
		Path:         paths[0],
		Alternatives: paths[1:],
		Candidates:   len(batch),
	}, true
}

// splitLines splits on \n or \r\n and drops blank lines.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
