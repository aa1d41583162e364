// Package vm implements the stack-based bytecode interpreter: the value
// stack, call frames, globals/intern tables, upvalue capture/closing,
// and the calling convention for closures, classes, and natives.
//
// Grounded on clox's vm.c (original_source/src/vm.c) for the dispatch
// loop, calling convention, and the allocator-GC hazard discipline
// (every value created by NewXxx is pinned via vm.pin before the
// tracking call that might trigger a collection; it is unpinned either
// once it is reachable from a root or right after that call when nothing
// allocates before it is stored on the stack, in a table, or in an
// intrusive list that the collector already walks as a root). The
// overall package shape —
// one VM struct driving Interpret/run, zerolog for cycle and lifecycle
// diagnostics — follows kristofer-smog/pkg/vm/vm.go.
package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ember/pkg/chunk"
	"ember/pkg/compiler"
	"ember/pkg/gc"
	"ember/pkg/table"
	"ember/pkg/value"
)

// FramesMax bounds call depth; StackMax is FramesMax slots of 256
// values each, matching clox's fixed-size stack.
const (
	FramesMax = 64
	StackMax  = FramesMax * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer into that closure's chunk, and the base slot of
// its locals within the shared value stack.
type CallFrame struct {
	closure   *value.ClosureObj
	ip        int
	slotsBase int
}

// CompileError wraps every diagnostic a failed compile produced.
type CompileError struct {
	Errors []string
}

func (e *CompileError) Error() string { return strings.Join(e.Errors, "\n") }

// VM owns all interpreter state for one program run.
type VM struct {
	stack    []value.Value
	stackTop int

	frames     []CallFrame
	frameCount int

	globals *table.Table
	strings *table.Table
	gc      *gc.Collector

	openUpvalues *value.UpvalueObj
	initString   *value.StringObj
	pinned       []*value.Obj

	stdout io.Writer
	stderr io.Writer
	trace  bool
	log    zerolog.Logger
}

// New constructs a VM ready to Interpret programs. stdout receives
// OP_PRINT output; stderr receives trace lines and is where the caller
// is expected to write the formatted error on failure. logger drives
// ambient diagnostics (GC cycles, native registration); pass
// zerolog.Nop() for silence.
func New(stdout, stderr io.Writer, logger zerolog.Logger, trace bool) *VM {
	vm := &VM{
		stack:   make([]value.Value, StackMax),
		frames:  make([]CallFrame, FramesMax),
		globals: table.New(),
		strings: table.New(),
		stdout:  stdout,
		stderr:  stderr,
		trace:   trace,
		log:     logger,
	}
	vm.gc = gc.New(vm.strings, logger)
	vm.gc.SetBlackener(vm.blacken)
	vm.gc.AddRootValues(vm.stackRoots)
	vm.gc.AddRootValues(vm.globalValueRoots)
	vm.gc.AddRootObjects(vm.globalKeyRoots)
	vm.gc.AddRootObjects(vm.frameRoots)
	vm.gc.AddRootObjects(vm.openUpvalueRoots)
	vm.gc.AddRootObjects(vm.cachedStringRoots)
	vm.gc.AddRootObjects(vm.pinnedRoots)

	vm.initString = vm.intern("init")
	vm.defineNatives()
	vm.log.Debug().Msg("vm initialized")
	return vm
}

// SetStressGC forwards to the collector, forcing a cycle on every
// growing allocation.
func (vm *VM) SetStressGC(enabled bool) { vm.gc.SetStressMode(enabled) }

// GCCycles reports how many collections have run so far, for tests and
// diagnostics.
func (vm *VM) GCCycles() int { return vm.gc.Cycles }

// Interpret compiles and runs one program. A compile failure returns
// *CompileError; a runtime failure returns *RuntimeError; both satisfy
// error.
func (vm *VM) Interpret(source string) error {
	fn, errs := compiler.Compile(source, vm.strings, vm.gc)
	if errs != nil {
		return &CompileError{Errors: errs}
	}

	vm.pin(&fn.Obj)
	closure := value.NewClosure(fn)
	vm.pin(&closure.Obj)
	vm.gc.Track(&closure.Obj, int64(32+8*len(closure.Upvalues)))
	vm.unpin()
	vm.unpin()

	vm.push(value.FromObj(&closure.Obj))
	if err := vm.callValue(value.FromObj(&closure.Obj), 0); err != nil {
		return err
	}
	return vm.run()
}

// --- stack primitives ---

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// pin/unpin protect a not-yet-rooted object across the window between
// its allocation and the moment it lands on the stack, in a table, or
// in an intrusive list the collector already scans. Calls must nest
// like a stack (pin, ..., unpin) since unpin always pops the most
// recent entry.
func (vm *VM) pin(o *value.Obj) { vm.pinned = append(vm.pinned, o) }
func (vm *VM) unpin()           { vm.pinned = vm.pinned[:len(vm.pinned)-1] }

// --- string interning ---

func (vm *VM) intern(s string) *value.StringObj {
	hash := value.FNV1a(s)
	if existing := vm.strings.FindString(s, hash); existing != nil {
		return existing
	}
	so := value.NewString(s)
	vm.pin(&so.Obj)
	vm.gc.Track(&so.Obj, int64(24+len(s)))
	vm.unpin()
	vm.strings.Set(so, value.Bool(true))
	return so
}

// --- GC wiring ---

func (vm *VM) stackRoots() []value.Value       { return vm.stack[:vm.stackTop] }
func (vm *VM) globalValueRoots() []value.Value { return vm.globals.Values() }

func (vm *VM) globalKeyRoots() []*value.Obj {
	keys := vm.globals.Keys()
	objs := make([]*value.Obj, len(keys))
	for i, k := range keys {
		objs[i] = &k.Obj
	}
	return objs
}

func (vm *VM) frameRoots() []*value.Obj {
	objs := make([]*value.Obj, 0, vm.frameCount)
	for i := 0; i < vm.frameCount; i++ {
		objs = append(objs, &vm.frames[i].closure.Obj)
	}
	return objs
}

func (vm *VM) openUpvalueRoots() []*value.Obj {
	var objs []*value.Obj
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		objs = append(objs, &uv.Obj)
	}
	return objs
}

func (vm *VM) cachedStringRoots() []*value.Obj {
	if vm.initString == nil {
		return nil
	}
	return []*value.Obj{&vm.initString.Obj}
}

func (vm *VM) pinnedRoots() []*value.Obj { return vm.pinned }

// blacken implements gc.Blackener: given an object that just turned
// gray, it returns every Value and Obj reference it holds.
func (vm *VM) blacken(o *value.Obj) (vals []value.Value, objs []*value.Obj) {
	switch o.Kind {
	case value.KindString, value.KindNative:
		return nil, nil
	case value.KindUpvalue:
		uv := value.AsUpvalue(o)
		if !uv.IsOpen {
			vals = append(vals, uv.Closed)
		}
		return vals, nil
	case value.KindFunction:
		fn := value.AsFunction(o)
		if fn.Name != nil {
			objs = append(objs, &fn.Name.Obj)
		}
		vals = append(vals, functionChunk(fn).Constants...)
		return vals, objs
	case value.KindClosure:
		co := value.AsClosure(o)
		objs = append(objs, &co.Function.Obj)
		for _, uv := range co.Upvalues {
			if uv != nil {
				objs = append(objs, &uv.Obj)
			}
		}
		return vals, objs
	case value.KindClass:
		cl := value.AsClass(o)
		objs = append(objs, &cl.Name.Obj)
		for k, v := range cl.Methods {
			objs = append(objs, &k.Obj)
			vals = append(vals, v)
		}
		return vals, objs
	case value.KindInstance:
		in := value.AsInstance(o)
		objs = append(objs, &in.Class.Obj)
		for k, v := range in.Fields {
			objs = append(objs, &k.Obj)
			vals = append(vals, v)
		}
		return vals, objs
	case value.KindBoundMethod:
		bm := value.AsBoundMethod(o)
		vals = append(vals, bm.Receiver)
		objs = append(objs, &bm.Method.Obj)
		return vals, objs
	}
	return nil, nil
}

// --- calling convention ---

func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.IsObj() {
		switch callee.AsObj().Kind {
		case value.KindClosure:
			return vm.call(value.AsClosure(callee.AsObj()), argCount)
		case value.KindNative:
			native := value.AsNative(callee.AsObj())
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := native.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return nil
		case value.KindClass:
			class := value.AsClass(callee.AsObj())
			inst := value.NewInstance(class)
			vm.pin(&inst.Obj)
			vm.gc.Track(&inst.Obj, 48)
			vm.unpin()
			vm.stack[vm.stackTop-argCount-1] = value.FromObj(&inst.Obj)
			if initializer, ok := class.Methods[vm.initString]; ok {
				return vm.call(value.AsClosure(initializer.AsObj()), argCount)
			} else if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case value.KindBoundMethod:
			bound := value.AsBoundMethod(callee.AsObj())
			vm.stack[vm.stackTop-argCount-1] = bound.Receiver
			return vm.call(bound.Method, argCount)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *value.ClosureObj, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	return nil
}

func (vm *VM) invoke(name *value.StringObj, argCount int) error {
	receiver := vm.peek(argCount)
	if !receiver.IsObjKind(value.KindInstance) {
		return vm.runtimeError("Only instances have methods.")
	}
	instance := value.AsInstance(receiver.AsObj())
	if field, ok := instance.Fields[name]; ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ClassObj, name *value.StringObj, argCount int) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(value.AsClosure(method.AsObj()), argCount)
}

func (vm *VM) bindMethod(class *value.ClassObj, name *value.StringObj) (*value.BoundMethodObj, bool) {
	method, ok := class.Methods[name]
	if !ok {
		return nil, false
	}
	bound := value.NewBoundMethod(vm.peek(0), value.AsClosure(method.AsObj()))
	vm.pin(&bound.Obj)
	vm.gc.Track(&bound.Obj, 32)
	vm.unpin()
	return bound, true
}

func (vm *VM) captureUpvalue(slot int) *value.UpvalueObj {
	var prev *value.UpvalueObj
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > slot {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.Slot == slot {
		return cur
	}
	created := value.NewUpvalue(slot)
	vm.pin(&created.Obj)
	vm.gc.Track(&created.Obj, 32)
	vm.unpin()
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.Slot]
		uv.IsOpen = false
		vm.openUpvalues = uv.NextOpen
	}
}

func (vm *VM) defineMethod(name *value.StringObj) {
	method := vm.peek(0)
	class := value.AsClass(vm.peek(1).AsObj())
	class.Methods[name] = method
	vm.pop()
}

func (vm *VM) numericBinary(op func(a, b float64) value.Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop()
	a := vm.pop()
	vm.push(op(a.AsNumber(), b.AsNumber()))
	return nil
}

func (vm *VM) add() error {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case a.IsNumber() && b.IsNumber():
		bv, av := vm.pop(), vm.pop()
		vm.push(value.Number(av.AsNumber() + bv.AsNumber()))
		return nil
	case a.IsObjKind(value.KindString) && b.IsObjKind(value.KindString):
		bv, av := vm.pop(), vm.pop()
		concat := value.AsString(av.AsObj()).Chars + value.AsString(bv.AsObj()).Chars
		hash := value.FNV1a(concat)
		if existing := vm.strings.FindString(concat, hash); existing != nil {
			vm.push(value.FromObj(&existing.Obj))
			return nil
		}
		so := value.NewString(concat)
		vm.pin(&so.Obj)
		vm.gc.Track(&so.Obj, int64(24+len(concat)))
		vm.unpin()
		vm.strings.Set(so, value.Bool(true))
		vm.push(value.FromObj(&so.Obj))
		return nil
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

// --- error reporting ---

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	err := runtimeErrorf(format, args...)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := vm.frames[i]
		fn := frame.closure.Function
		line := 0
		if ch := functionChunk(fn); frame.ip-1 >= 0 && frame.ip-1 < len(ch.Lines) {
			line = ch.Lines[frame.ip-1]
		}
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		err.Frames = append(err.Frames, StackFrame{FunctionName: name, Line: line})
	}
	vm.resetStack()
	return err
}

// functionChunk asserts the *chunk.Chunk hiding behind a FunctionObj's
// interface{} Chunk field (pkg/value can't import pkg/chunk directly, see
// value.go). A failed assertion means some FunctionObj reached the VM
// without ever passing through the compiler's pushFunction/endFunction,
// which is a bug in the compiler, not a malformed program, so it panics
// rather than surfacing as a RuntimeError.
func functionChunk(fn *value.FunctionObj) *chunk.Chunk {
	ch, ok := fn.Chunk.(*chunk.Chunk)
	if !ok {
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		panic(errors.Wrapf(errInvalidChunk, "function %q", name))
	}
	return ch
}

var errInvalidChunk = errors.New("vm: FunctionObj.Chunk is not a *chunk.Chunk")

// --- the dispatch loop ---

func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]
	ch := functionChunk(frame.closure.Function)

	readByte := func() byte {
		b := ch.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi, lo := ch.Code[frame.ip], ch.Code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value { return ch.Constants[readByte()] }
	readString := func() *value.StringObj { return value.AsString(readConstant().AsObj()) }

	for {
		if vm.trace {
			vm.printTrace(ch, frame.ip)
		}

		switch op := chunk.Op(readByte()); op {
		case chunk.OpConstant:
			vm.push(readConstant())
		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			vm.push(vm.stack[frame.slotsBase+int(readByte())])
		case chunk.OpSetLocal:
			vm.stack[frame.slotsBase+int(readByte())] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case chunk.OpGetUpvalue:
			uv := frame.closure.Upvalues[readByte()]
			if uv.IsOpen {
				vm.push(vm.stack[uv.Slot])
			} else {
				vm.push(uv.Closed)
			}
		case chunk.OpSetUpvalue:
			uv := frame.closure.Upvalues[readByte()]
			if uv.IsOpen {
				vm.stack[uv.Slot] = vm.peek(0)
			} else {
				uv.Closed = vm.peek(0)
			}

		case chunk.OpGetProperty:
			if !vm.peek(0).IsObjKind(value.KindInstance) {
				return vm.runtimeError("Only instances have properties.")
			}
			instance := value.AsInstance(vm.peek(0).AsObj())
			name := readString()
			if v, ok := instance.Fields[name]; ok {
				vm.pop()
				vm.push(v)
				break
			}
			if bound, ok := vm.bindMethod(instance.Class, name); ok {
				vm.pop()
				vm.push(value.FromObj(&bound.Obj))
				break
			}
			return vm.runtimeError("Undefined property '%s'.", name.Chars)
		case chunk.OpSetProperty:
			if !vm.peek(1).IsObjKind(value.KindInstance) {
				return vm.runtimeError("Only instances have fields.")
			}
			instance := value.AsInstance(vm.peek(1).AsObj())
			name := readString()
			instance.Fields[name] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)
		case chunk.OpGetSuper:
			name := readString()
			superclass := value.AsClass(vm.pop().AsObj())
			bound, ok := vm.bindMethod(superclass, name)
			if !ok {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}
			vm.pop()
			vm.push(value.FromObj(&bound.Obj))

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}
		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}
		case chunk.OpNot:
			vm.push(value.Bool(vm.pop().Falsey()))
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout, value.Print(vm.pop()))

		case chunk.OpJump:
			frame.ip += readShort()
		case chunk.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).Falsey() {
				frame.ip += offset
			}
		case chunk.OpLoop:
			frame.ip -= readShort()

		case chunk.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			ch = functionChunk(frame.closure.Function)
		case chunk.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			ch = functionChunk(frame.closure.Function)
		case chunk.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			superclass := value.AsClass(vm.pop().AsObj())
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
			ch = functionChunk(frame.closure.Function)

		case chunk.OpClosure:
			fn := value.AsFunction(readConstant().AsObj())
			closure := value.NewClosure(fn)
			vm.pin(&closure.Obj)
			vm.gc.Track(&closure.Obj, int64(32+8*len(closure.Upvalues)))
			vm.unpin()
			vm.push(value.FromObj(&closure.Obj))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()
		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			ch = functionChunk(frame.closure.Function)

		case chunk.OpClass:
			name := readString()
			class := value.NewClass(name)
			vm.pin(&class.Obj)
			vm.gc.Track(&class.Obj, 48)
			vm.unpin()
			vm.push(value.FromObj(&class.Obj))
		case chunk.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsObjKind(value.KindClass) {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := value.AsClass(vm.peek(0).AsObj())
			superclass := value.AsClass(superVal.AsObj())
			for k, v := range superclass.Methods {
				subclass.Methods[k] = v
			}
			vm.pop()
		case chunk.OpMethod:
			vm.defineMethod(readString())

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) printTrace(ch *chunk.Chunk, ip int) {
	var b strings.Builder
	b.WriteString("          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(&b, "[ %s ]", value.Print(vm.stack[i]))
	}
	line, _ := DisassembleInstruction(ch, ip)
	fmt.Fprintln(vm.stderr, b.String())
	fmt.Fprintln(vm.stderr, line)
}
