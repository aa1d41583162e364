// Non-interactive bytecode disassembler and per-instruction execution
// trace, gated by the -trace CLI flag. Grounded on clox's debug.c
// (original_source/src/debug.c) for the per-opcode operand formatting;
// the overall "one line per instruction, stack snapshot before it"
// texture follows kristofer-smog/pkg/vm/debugger.go, adapted from that
// package's interactive breakpoint-driven prompt to a plain trace
// stream (the spec calls for observability, not an interactive
// debugger).
package vm

import (
	"fmt"
	"strings"

	"ember/pkg/chunk"
	"ember/pkg/value"
)

// DisassembleChunk renders every instruction in ch, labelled name.
func DisassembleChunk(ch *chunk.Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	for offset < len(ch.Code) {
		line, next := DisassembleInstruction(ch, offset)
		b.WriteString(line)
		b.WriteByte('\n')
		offset = next
	}
	return b.String()
}

// DisassembleInstruction formats the instruction at offset and returns
// the offset of the next one.
func DisassembleInstruction(ch *chunk.Chunk, offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	if offset > 0 && ch.Lines[offset] == ch.Lines[offset-1] {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", ch.Lines[offset])
	}

	op := chunk.Op(ch.Code[offset])
	switch op {
	case chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
		chunk.OpClass, chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpMethod, chunk.OpGetSuper:
		return constantInstr(&b, op, ch, offset)
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpCall:
		return byteInstr(&b, op, ch, offset)
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		return invokeInstr(&b, op, ch, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstr(&b, op, 1, ch, offset)
	case chunk.OpLoop:
		return jumpInstr(&b, op, -1, ch, offset)
	case chunk.OpClosure:
		return closureInstr(&b, ch, offset)
	default:
		simpleName(&b, op)
		return b.String(), offset + 1
	}
}

// simpleName formats a no-operand opcode (OP_ADD, OP_RETURN, ...): just
// its name, no constant/slot/jump-target suffix.
func simpleName(b *strings.Builder, op chunk.Op) { fmt.Fprintf(b, "%s", op) }

func constantInstr(b *strings.Builder, op chunk.Op, ch *chunk.Chunk, offset int) (string, int) {
	idx := ch.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'", op, idx, value.Print(ch.Constants[idx]))
	return b.String(), offset + 2
}

func byteInstr(b *strings.Builder, op chunk.Op, ch *chunk.Chunk, offset int) (string, int) {
	slot := ch.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d", op, slot)
	return b.String(), offset + 2
}

func invokeInstr(b *strings.Builder, op chunk.Op, ch *chunk.Chunk, offset int) (string, int) {
	idx := ch.Code[offset+1]
	argCount := ch.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'", op, argCount, idx, value.Print(ch.Constants[idx]))
	return b.String(), offset + 3
}

func jumpInstr(b *strings.Builder, op chunk.Op, sign int, ch *chunk.Chunk, offset int) (string, int) {
	jump := int(ch.Code[offset+1])<<8 | int(ch.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(b, "%-16s %4d -> %d", op, offset, target)
	return b.String(), offset + 3
}

func closureInstr(b *strings.Builder, ch *chunk.Chunk, offset int) (string, int) {
	offset++
	idx := ch.Code[offset]
	offset++
	fmt.Fprintf(b, "%-16s %4d '%s'", chunk.OpClosure, idx, value.Print(ch.Constants[idx]))

	fn := value.AsFunction(ch.Constants[idx].AsObj())
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := ch.Code[offset]
		index := ch.Code[offset+1]
		offset += 2
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(b, "\n%04d      |                     %s %d", offset-2, kind, index)
	}
	return b.String(), offset
}
