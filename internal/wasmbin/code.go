package wasmbin

import "bytes"

const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opI32Load     = 0x28
	opI32Store    = 0x36
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32Add      = 0x6a

	blockEmpty = 0x40
)

// Code is a function body under construction. The final end opcode is
// appended by Module.Bytes.
type Code struct {
	buf bytes.Buffer
}

// NewCode returns an empty body.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	if c == nil {
		return nil
	}
	return c.buf.Bytes()
}

func (c *Code) op(b ...byte) *Code {
	c.buf.Write(b)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(opI32Const)
	putS64(&c.buf, int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf.WriteByte(opI64Const)
	putS64(&c.buf, v)
	return c
}

func (c *Code) Call(idx uint32) *Code {
	c.buf.WriteByte(opCall)
	putU32(&c.buf, idx)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.buf.WriteByte(opLocalGet)
	putU32(&c.buf, idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.buf.WriteByte(opLocalSet)
	putU32(&c.buf, idx)
	return c
}

// I32Load loads from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.buf.Write([]byte{opI32Load, 2})
	putU32(&c.buf, offset)
	return c
}

// I32Store stores the top value at the address below it plus offset.
func (c *Code) I32Store(offset uint32) *Code {
	c.buf.Write([]byte{opI32Store, 2})
	putU32(&c.buf, offset)
	return c
}

func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) I32Eqz() *Code      { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code       { return c.op(opI32Eq) }
func (c *Code) I32Add() *Code      { return c.op(opI32Add) }
func (c *Code) MemoryGrow() *Code  { return c.op(opMemoryGrow, 0x00) }
func (c *Code) Block() *Code       { return c.op(opBlock, blockEmpty) }
func (c *Code) Loop() *Code        { return c.op(opLoop, blockEmpty) }
func (c *Code) If() *Code          { return c.op(opIf, blockEmpty) }
func (c *Code) End() *Code         { return c.op(opEnd) }

func (c *Code) Br(depth uint32) *Code {
	c.buf.WriteByte(opBr)
	putU32(&c.buf, depth)
	return c
}

func (c *Code) BrIf(depth uint32) *Code {
	c.buf.WriteByte(opBrIf)
	putU32(&c.buf, depth)
	return c
}
