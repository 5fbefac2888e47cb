package memory

import "sync"

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// Buffer is a growable in-process Backing. It stands in for guest memory
// where no engine instance exists, such as unit tests of host functions.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// NewBuffer returns a Buffer of size bytes.
func NewBuffer(size uint32) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) Size() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.data))
}

func (b *Buffer) Read(offset, byteCount uint32) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(b.data)) {
		return nil, false
	}
	return b.data[offset:end:end], true
}

func (b *Buffer) Write(offset uint32, v []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(b.data)) {
		return false
	}
	copy(b.data[offset:], v)
	return true
}

// Grow extends the buffer by pages and returns the previous page count.
// Slices handed out before the call no longer alias the buffer.
func (b *Buffer) Grow(pages uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := uint32(len(b.data) / PageSize)
	grown := make([]byte, len(b.data)+int(pages)*PageSize)
	copy(grown, b.data)
	b.data = grown
	return prev
}
