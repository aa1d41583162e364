package compiler

import (
	"testing"

	"github.com/rs/zerolog"

	"ember/pkg/chunk"
	"ember/pkg/gc"
	"ember/pkg/table"
)

func newEnv() (*table.Table, *gc.Collector) {
	strings := table.New()
	return strings, gc.New(strings, zerolog.Nop())
}

func compileOK(t *testing.T, source string) *chunk.Chunk {
	t.Helper()
	strings, collector := newEnv()
	fn, errs := Compile(source, strings, collector)
	if errs != nil {
		t.Fatalf("unexpected compile errors for %q: %v", source, errs)
	}
	return fn.Chunk.(*chunk.Chunk)
}

func TestCompileSimpleExpressionStatement(t *testing.T) {
	ch := compileOK(t, "1 + 2;")
	wantOps := []chunk.Op{chunk.OpConstant, chunk.OpConstant, chunk.OpAdd, chunk.OpPop, chunk.OpNil, chunk.OpReturn}
	assertOps(t, ch, wantOps)
}

func TestCompilePrintStatement(t *testing.T) {
	ch := compileOK(t, `print "hi";`)
	wantOps := []chunk.Op{chunk.OpConstant, chunk.OpPrint, chunk.OpNil, chunk.OpReturn}
	assertOps(t, ch, wantOps)
}

// operandWidth is the number of operand bytes following each opcode,
// mirroring the encoding pkg/vm's dispatch loop (and pkg/vm/debug.go's
// disassembler) expect. OpClosure is variable-width and handled
// separately by callers that need to walk past it.
func operandWidth(op chunk.Op) int {
	switch op {
	case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetGlobal,
		chunk.OpDefineGlobal, chunk.OpSetGlobal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
		chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper, chunk.OpCall,
		chunk.OpClass, chunk.OpMethod:
		return 1
	case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop, chunk.OpInvoke, chunk.OpSuperInvoke:
		return 2
	default:
		return 0
	}
}

// extractOps walks ch and returns just the opcode sequence, skipping
// operand bytes. It stops (rather than panics) at the first OpClosure,
// since that instruction's width depends on the referenced function's
// upvalue count.
func extractOps(ch *chunk.Chunk) []chunk.Op {
	var ops []chunk.Op
	offset := 0
	for offset < len(ch.Code) {
		op := chunk.Op(ch.Code[offset])
		ops = append(ops, op)
		if op == chunk.OpClosure {
			break
		}
		offset += 1 + operandWidth(op)
	}
	return ops
}

func TestCompileVarDeclarationAtTopLevelUsesGlobals(t *testing.T) {
	ch := compileOK(t, "var x = 1;")
	found := false
	for i := 0; i < len(ch.Code); i++ {
		if chunk.Op(ch.Code[i]) == chunk.OpDefineGlobal {
			found = true
		}
	}
	if !found {
		t.Error("top-level var declaration should emit OP_DEFINE_GLOBAL")
	}
}

func TestCompileLocalDoesNotEmitGlobalOps(t *testing.T) {
	ch := compileOK(t, "{ var x = 1; print x; }")
	for i := 0; i < len(ch.Code); i++ {
		op := chunk.Op(ch.Code[i])
		if op == chunk.OpDefineGlobal || op == chunk.OpGetGlobal {
			t.Error("a block-scoped local should never touch the globals table")
		}
	}
}

func TestUndefinedVariableIsNotACompileError(t *testing.T) {
	// Referencing an undefined global is a runtime error, not a compile
	// error: the compiler can't know what will be defined by the time
	// this line executes.
	if _, errs := Compile("print undefined_name;", table.New(), gc.New(table.New(), zerolog.Nop())); errs != nil {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
}

func TestSyntaxErrorIsReported(t *testing.T) {
	_, errs := Compile("var = 1;", table.New(), gc.New(table.New(), zerolog.Nop()))
	if errs == nil {
		t.Fatal("expected a compile error for a missing variable name")
	}
}

func TestUnterminatedBlockIsReported(t *testing.T) {
	_, errs := Compile("{ var x = 1;", table.New(), gc.New(table.New(), zerolog.Nop()))
	if errs == nil {
		t.Fatal("expected a compile error for an unterminated block")
	}
}

func TestReturnOutsideFunctionIsReported(t *testing.T) {
	_, errs := Compile("return 1;", table.New(), gc.New(table.New(), zerolog.Nop()))
	if errs == nil {
		t.Fatal("expected a compile error for return at top level")
	}
}

func TestFunctionDeclarationEmitsClosure(t *testing.T) {
	ch := compileOK(t, "fun greet() { print \"hi\"; }")
	found := false
	for i := 0; i < len(ch.Code); i++ {
		if chunk.Op(ch.Code[i]) == chunk.OpClosure {
			found = true
		}
	}
	if !found {
		t.Error("a function declaration should emit OP_CLOSURE")
	}
}

func TestClassDeclarationEmitsClassAndMethod(t *testing.T) {
	ch := compileOK(t, "class Greeter { hello() { print \"hi\"; } }")
	var sawClass, sawMethod bool
	for i := 0; i < len(ch.Code); i++ {
		switch chunk.Op(ch.Code[i]) {
		case chunk.OpClass:
			sawClass = true
		case chunk.OpMethod:
			sawMethod = true
		}
	}
	if !sawClass || !sawMethod {
		t.Errorf("expected OP_CLASS and OP_METHOD, sawClass=%v sawMethod=%v", sawClass, sawMethod)
	}
}

func TestTooManyLocalsIsReported(t *testing.T) {
	src := "{\n"
	for i := 0; i < maxLocals+1; i++ {
		src += "var a" + itoa(i) + " = 0;\n"
	}
	src += "}\n"
	_, errs := Compile(src, table.New(), gc.New(table.New(), zerolog.Nop()))
	if errs == nil {
		t.Fatal("expected an error once local count exceeds the limit")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func assertOps(t *testing.T, ch *chunk.Chunk, want []chunk.Op) {
	t.Helper()
	got := extractOps(ch)
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i, op := range want {
		if got[i] != op {
			t.Errorf("op %d = %s, want %s", i, got[i], op)
		}
	}
}
