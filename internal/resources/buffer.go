package resources

import "sync"

// Buffer is a tracked byte slice with a single owner. Releasing it drops the
// reference held by the tracker entry so the memory can be reclaimed, and any
// later Bytes call returns nil.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	id    string
	label string

	tracker *Tracker
}

// TrackBuffer registers data as a buffer resource.
func (t *Tracker) TrackBuffer(data []byte, label string) *Buffer {
	b := &Buffer{data: data, label: label, tracker: t}
	b.id = t.Track(KindBuffer, b.drop, "")
	return b
}

// ID returns the tracker id of the buffer.
func (b *Buffer) ID() string { return b.id }

// Label returns the label given at tracking time.
func (b *Buffer) Label() string { return b.label }

// Bytes returns the buffer contents, or nil once released.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Len returns the current length in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Released reports whether the buffer has been released.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data == nil
}

// Release hands the buffer back to the tracker. Safe to call more than once.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.tracker.Release(b.id)
}

func (b *Buffer) drop() error {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
	return nil
}
