// Package chunk defines the bytecode chunk: a flat instruction byte
// array, a parallel per-byte source-line table, and a constant pool.
//
// Unlike an instruction-struct array, every opcode and its operand bytes
// live inline in one []byte, which is what lets jump patching rewrite
// two raw bytes in place and lets the VM dispatch with a simple
// "read one byte, switch on it" loop. lines has exactly one entry per
// byte of code (invariant 2 in the data model), not one per instruction,
// so a multi-byte instruction's operand bytes repeat the instruction's
// own line.
//
// Grounded on clox's chunk.c (original_source/src/chunk.c) for the
// flat-byte-array shape the spec requires; the doc-comment density and
// opcode-table layout follow kristofer-smog/pkg/bytecode/bytecode.go,
// adapted from that package's Instruction{Op,Operand} struct array to
// the flat-byte encoding spec.md §4.F mandates.
package chunk

import "ember/pkg/value"

// Op is a single bytecode instruction opcode.
type Op byte

const (
	OpConstant Op = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
)

var opNames = [...]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "OP_UNKNOWN"
}

// Chunk is a self-contained bytecode unit owned by one Function.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

// New returns an empty chunk with the teacher's initial-capacity-8,
// double-on-overflow growth strategy (Go slices already amortize this;
// the explicit prealloc keeps early appends allocation-free).
func New() *Chunk {
	return &Chunk{
		Code:  make([]byte, 0, 8),
		Lines: make([]int, 0, 8),
	}
}

// Write appends one raw byte (an opcode or an operand byte) with its
// source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp is a typed convenience over Write for opcodes.
func (c *Chunk) WriteOp(op Op, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends val to the constant pool and returns its index.
// Callers that allocate val just before this call are responsible for
// having pinned it first (see pkg/vm's package doc comment on the
// allocator-GC hazard) — Chunk itself performs no
// allocation that could trigger collection.
func (c *Chunk) AddConstant(val value.Value) int {
	c.Constants = append(c.Constants, val)
	return len(c.Constants) - 1
}

// MaxConstants is the short-operand addressing limit: constants at index
// <= 255 are addressable by a single byte operand (invariant 4).
const MaxConstants = 256
