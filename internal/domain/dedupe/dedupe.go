// Package dedupe remembers recently processed frame ids so a retried frame
// is answered without running the state machine twice.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 100_000

// Deduper records seen frame keys.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen. An empty id is never recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a frame that failed can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// ring is a bounded FIFO set: once full, the oldest id is evicted first.
// maxSize <= 0 means unbounded (map only, no eviction).
type ring struct {
	mu      sync.Mutex
	seen    map[string]int
	slots   []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ring{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.slots = make([]string, d.maxSize)
	}
	return d
}

func (d *ring) SeenAndRecord(_ context.Context, id string) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[id] = -1
		return false
	}

	pos := d.next
	if old := d.slots[pos]; old != "" {
		if at, ok := d.seen[old]; ok && at == pos {
			delete(d.seen, old)
		}
	}
	d.slots[pos] = id
	d.seen[id] = pos
	d.next = (pos + 1) % d.maxSize
	return false
}

func (d *ring) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if pos >= 0 {
		d.slots[pos] = ""
	}
}

func (d *ring) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Key scopes a frame id to its subject.
func Key(subjectID, frameID string) string {
	if frameID == "" {
		return ""
	}
	return subjectID + "\x00" + frameID
}

type noop struct{}

// NewNoopDeduper returns a Deduper that remembers nothing; every frame is new.
func NewNoopDeduper() Deduper { return noop{} }

func (noop) SeenAndRecord(context.Context, string) bool { return false }
func (noop) Unrecord(context.Context, string)           {}
func (noop) Size() int                                  { return 0 }
