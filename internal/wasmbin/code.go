package wasmbin

// Opcodes used by the code builder.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0b
	OpBr          byte = 0x0c
	OpBrIf        byte = 0x0d
	OpReturn      byte = 0x0f
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpLocalTee    byte = 0x22
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Load     byte = 0x28
	OpI32Store    byte = 0x36
	OpMemorySize  byte = 0x3f
	OpMemoryGrow  byte = 0x40
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpI32Eqz      byte = 0x45
	OpI32Eq       byte = 0x46
	OpI32LeU      byte = 0x4d
	OpI32Add      byte = 0x6a
	OpI32Sub      byte = 0x6b
	OpI32Shl      byte = 0x74
	OpPrefixFC    byte = 0xfc
	blockEmpty    byte = 0x40
	memoryCopy    byte = 0x0a
)

// Code builds a function body.
type Code struct {
	w Writer
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.w.Bytes() }

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) opU32(b byte, v uint32) *Code {
	c.w.Byte(b)
	c.w.WriteU32(v)
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.opU32(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.opU32(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.opU32(OpLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.opU32(OpGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.opU32(OpGlobalSet, i) }
func (c *Code) Call(i uint32) *Code      { return c.opU32(OpCall, i) }
func (c *Code) Br(depth uint32) *Code    { return c.opU32(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code  { return c.opU32(OpBrIf, depth) }

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteI32(v)
	return c
}

func (c *Code) I32Add() *Code      { return c.op(OpI32Add) }
func (c *Code) I32Sub() *Code      { return c.op(OpI32Sub) }
func (c *Code) I32Shl() *Code      { return c.op(OpI32Shl) }
func (c *Code) I32Eq() *Code       { return c.op(OpI32Eq) }
func (c *Code) I32Eqz() *Code      { return c.op(OpI32Eqz) }
func (c *Code) I32LeU() *Code      { return c.op(OpI32LeU) }
func (c *Code) Drop() *Code        { return c.op(OpDrop) }
func (c *Code) Return() *Code      { return c.op(OpReturn) }
func (c *Code) Unreachable() *Code { return c.op(OpUnreachable) }
func (c *Code) Else() *Code        { return c.op(OpElse) }
func (c *Code) End() *Code         { return c.op(OpEnd) }

// Block opens a block with no result.
func (c *Code) Block() *Code { return c.op(OpBlock).op(blockEmpty) }

// Loop opens a loop with no result.
func (c *Code) Loop() *Code { return c.op(OpLoop).op(blockEmpty) }

// If opens an if with no result.
func (c *Code) If() *Code { return c.op(OpIf).op(blockEmpty) }

// IfResult opens an if producing a value of type t.
func (c *Code) IfResult(t ValType) *Code { return c.op(OpIf).op(byte(t)) }

// I32Load loads from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.w.Byte(OpI32Load)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// I32Store stores to the address on the stack plus offset.
func (c *Code) I32Store(offset uint32) *Code {
	c.w.Byte(OpI32Store)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// MemorySize pushes the memory size in pages.
func (c *Code) MemorySize() *Code { return c.op(OpMemorySize).op(0x00) }

// MemoryGrow grows memory by the page count on the stack.
func (c *Code) MemoryGrow() *Code { return c.op(OpMemoryGrow).op(0x00) }

// MemoryCopy copies within memory 0 (dst, src, n on the stack).
func (c *Code) MemoryCopy() *Code {
	c.w.Byte(OpPrefixFC)
	c.w.WriteU32(uint32(memoryCopy))
	c.w.Byte(0x00, 0x00)
	return c
}
