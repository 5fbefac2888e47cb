package memory

import (
	"bytes"

	"github.com/wippyai/wasi-host/errors"
)

// MaxStringScan bounds the NUL search of ReadNullableString.
const MaxStringScan = 1 << 20

// Iovec is a guest (pointer, length) buffer descriptor.
type Iovec struct {
	Ptr uint32
	Len uint32
}

// IovecSize is the encoded size of one iovec.
const IovecSize = 8

// ReadString reads length bytes at offset as a string.
func (a *Accessor) ReadString(offset, length uint32) (string, error) {
	b, err := a.Read(offset, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadNullableString reads a NUL-terminated string starting at offset.
// The terminator must lie within memory and within MaxStringScan bytes.
func (a *Accessor) ReadNullableString(offset uint32) (string, error) {
	size := a.Size()
	if offset >= size {
		return "", errors.OutOfBounds(uint64(offset), 1, size)
	}
	n := size - offset
	if n > MaxStringScan {
		n = MaxStringScan
	}
	b, err := a.Read(offset, n)
	if err != nil {
		return "", err
	}
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", errors.New(errors.PhaseSyscall, errors.KindOutOfBounds).
			Value(offset).
			Detail("unterminated string at %d", offset).
			Build()
	}
	return string(b[:i]), nil
}

// ReadStringList reads count pointers at listPtr and the NUL-terminated
// strings they point to. This is the inverse of WriteStringList.
func (a *Accessor) ReadStringList(listPtr, count uint32) ([]string, error) {
	if uint64(listPtr)+uint64(count)*4 > uint64(a.Size()) {
		return nil, errors.OutOfBounds(uint64(listPtr), uint64(count)*4, a.Size())
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := a.ReadU32(listPtr + i*4)
		if err != nil {
			return nil, err
		}
		s, err := a.ReadNullableString(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StringListSize returns the number of entries and the buffer size needed
// to store them NUL-terminated.
func StringListSize(list []string) (count, bufSize uint32) {
	for _, s := range list {
		bufSize += uint32(len(s)) + 1
	}
	return uint32(len(list)), bufSize
}

// WriteStringList writes the pointer array at listPtr and the packed
// NUL-terminated strings at bufPtr. Both regions are validated before
// anything is written.
func (a *Accessor) WriteStringList(list []string, listPtr, bufPtr uint32) error {
	count, bufSize := StringListSize(list)
	if err := a.check(listPtr, count*4); err != nil {
		return err
	}
	if err := a.check(bufPtr, bufSize); err != nil {
		return err
	}

	ptrs := make([]byte, 0, count*4)
	buf := make([]byte, 0, bufSize)
	for _, s := range list {
		p := bufPtr + uint32(len(buf))
		ptrs = append(ptrs, byte(p), byte(p>>8), byte(p>>16), byte(p>>24))
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	if err := a.Write(listPtr, ptrs); err != nil {
		return err
	}
	return a.Write(bufPtr, buf)
}

// ReadIovecs decodes count iovecs at offset.
func (a *Accessor) ReadIovecs(offset, count uint32) ([]Iovec, error) {
	if uint64(count)*IovecSize > uint64(^uint32(0)) {
		return nil, errors.OutOfBounds(uint64(offset), uint64(count)*IovecSize, a.Size())
	}
	raw, err := a.Read(offset, count*IovecSize)
	if err != nil {
		return nil, err
	}
	out := make([]Iovec, count)
	for i := range out {
		b := raw[i*IovecSize:]
		out[i] = Iovec{
			Ptr: uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24,
			Len: uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24,
		}
	}
	return out, nil
}

// Gather concatenates the guest bytes referenced by iovs.
func (a *Accessor) Gather(iovs []Iovec) ([]byte, error) {
	for _, iov := range iovs {
		if err := a.check(iov.Ptr, iov.Len); err != nil {
			return nil, err
		}
	}
	var out []byte
	for _, iov := range iovs {
		b, err := a.Read(iov.Ptr, iov.Len)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Scatter distributes data over iovs in order and returns the bytes placed.
// Every destination is validated before the first byte is written.
func (a *Accessor) Scatter(iovs []Iovec, data []byte) (uint32, error) {
	for _, iov := range iovs {
		if err := a.check(iov.Ptr, iov.Len); err != nil {
			return 0, err
		}
	}
	var n uint32
	for _, iov := range iovs {
		if len(data) == 0 {
			break
		}
		chunk := data
		if uint32(len(chunk)) > iov.Len {
			chunk = chunk[:iov.Len]
		}
		if err := a.Write(iov.Ptr, chunk); err != nil {
			return n, err
		}
		data = data[len(chunk):]
		n += uint32(len(chunk))
	}
	return n, nil
}

// Capacity returns the total length of iovs, saturating at MaxUint32.
func Capacity(iovs []Iovec) uint32 {
	var total uint64
	for _, iov := range iovs {
		total += uint64(iov.Len)
	}
	if total > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(total)
}
