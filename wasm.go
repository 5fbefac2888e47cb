package wasihost

// Memory represents a guest's linear memory as seen by host functions.
// Every access is bounds-checked against the current size.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Clock is the time source handed to a session.
// Monotonic must never go backwards within a session.
type Clock interface {
	// Realtime returns nanoseconds since the Unix epoch.
	Realtime() int64
	// Monotonic returns nanoseconds since an arbitrary fixed point.
	Monotonic() int64
}
