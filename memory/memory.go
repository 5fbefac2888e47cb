// Package memory provides a bounds-checked accessor over guest linear memory.
package memory

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"

	wasihost "github.com/wippyai/wasi-host"
	"github.com/wippyai/wasi-host/errors"
)

// Backing is the subset of api.Memory the accessor needs.
// The extent returned by Size may change between calls when the guest grows memory.
type Backing interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

var _ Backing = (api.Memory)(nil)

// Accessor implements wasihost.Memory over a Backing.
// It never caches the backing buffer: every call re-reads the current size.
type Accessor struct {
	mem Backing
}

var (
	_ wasihost.Memory      = (*Accessor)(nil)
	_ wasihost.MemorySizer = (*Accessor)(nil)
)

// New wraps mem. A nil mem yields an accessor with size zero.
func New(mem Backing) *Accessor {
	return &Accessor{mem: mem}
}

// FromModule returns an accessor over the module's exported memory.
func FromModule(mod api.Module) *Accessor {
	if mod == nil {
		return New(nil)
	}
	mem := mod.Memory()
	if mem == nil {
		return New(nil)
	}
	return New(mem)
}

// Size returns the current memory size in bytes.
func (a *Accessor) Size() uint32 {
	if a.mem == nil {
		return 0
	}
	return a.mem.Size()
}

// Check verifies that [offset, offset+length) lies inside current memory.
func (a *Accessor) Check(offset, length uint32) error {
	return a.check(offset, length)
}

func (a *Accessor) check(offset, length uint32) error {
	size := a.Size()
	if uint64(offset)+uint64(length) > uint64(size) {
		return errors.OutOfBounds(uint64(offset), uint64(length), size)
	}
	return nil
}

// Span validates a signed offset/length pair and narrows it to 32 bits.
func Span(offset, length int64) (uint32, uint32, error) {
	if offset < 0 || offset > math.MaxUint32 {
		return 0, 0, errors.InvalidOffset(offset)
	}
	if length < 0 || length > math.MaxUint32 {
		return 0, 0, errors.New(errors.PhaseSyscall, errors.KindInvalidOffset).
			Value(length).
			Detail("length %d is not representable", length).
			Build()
	}
	return uint32(offset), uint32(length), nil
}

// ReadSpan is Read for signed offsets.
func (a *Accessor) ReadSpan(offset, length int64) ([]byte, error) {
	off, n, err := Span(offset, length)
	if err != nil {
		return nil, err
	}
	return a.Read(off, n)
}

// Read returns a copy of length bytes at offset.
func (a *Accessor) Read(offset uint32, length uint32) ([]byte, error) {
	if err := a.check(offset, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	view, ok := a.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(uint64(offset), uint64(length), a.Size())
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Write copies data to offset. Nothing is written unless the whole range fits.
func (a *Accessor) Write(offset uint32, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return errors.OutOfBounds(uint64(offset), uint64(len(data)), a.Size())
	}
	if err := a.check(offset, uint32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if !a.mem.Write(offset, data) {
		return errors.OutOfBounds(uint64(offset), uint64(len(data)), a.Size())
	}
	return nil
}

func (a *Accessor) ReadU8(offset uint32) (uint8, error) {
	b, err := a.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (a *Accessor) ReadU16(offset uint32) (uint16, error) {
	b, err := a.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (a *Accessor) ReadU32(offset uint32) (uint32, error) {
	b, err := a.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a *Accessor) ReadU64(offset uint32) (uint64, error) {
	b, err := a.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (a *Accessor) WriteU8(offset uint32, value uint8) error {
	return a.Write(offset, []byte{value})
}

func (a *Accessor) WriteU16(offset uint32, value uint16) error {
	return a.Write(offset, binary.LittleEndian.AppendUint16(nil, value))
}

func (a *Accessor) WriteU32(offset uint32, value uint32) error {
	return a.Write(offset, binary.LittleEndian.AppendUint32(nil, value))
}

func (a *Accessor) WriteU64(offset uint32, value uint64) error {
	return a.Write(offset, binary.LittleEndian.AppendUint64(nil, value))
}
