// Package value implements the tagged Value union and the heap object
// kinds that back it.
//
// A Value is a small sum type: Nil, Bool, Number, or Obj (a reference to
// a heap-allocated object). Heap objects all share a common Obj header —
// a kind tag, a mark bit used by the collector in pkg/gc, and an
// intrusive Next pointer threading every live object into one list. That
// list, not any Go-level reachability, is what the collector sweeps.
//
// Equality follows the host's double semantics for numbers (so NaN !=
// NaN), value equality for Bool and Nil, and reference identity for
// every Obj kind — including String, where reference identity is made
// equivalent to content equality by interning (see pkg/table).
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which heap object variant an Obj payload holds.
type Kind byte

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Obj is the common header every heap object embeds. The mark bit and
// Next link are owned by pkg/gc; nothing else should mutate them.
type Obj struct {
	Kind    Kind
	Marked  bool
	Next    *Obj
	payload interface{}
}

// Value is the tagged union that flows through the compiler and VM.
type Value struct {
	tag    tag
	number float64
	boolean bool
	obj    *Obj
}

type tag byte

const (
	tagNil tag = iota
	tagBool
	tagNumber
	tagObj
)

// Nil is the singleton nil value.
var Nil = Value{tag: tagNil}

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{tag: tagBool, boolean: b} }

// Number constructs a numeric Value.
func Number(n float64) Value { return Value{tag: tagNumber, number: n} }

// FromObj wraps a heap object reference in a Value.
func FromObj(o *Obj) Value { return Value{tag: tagObj, obj: o} }

func (v Value) IsNil() bool    { return v.tag == tagNil }
func (v Value) IsBool() bool   { return v.tag == tagBool }
func (v Value) IsNumber() bool { return v.tag == tagNumber }
func (v Value) IsObj() bool    { return v.tag == tagObj }

func (v Value) AsBool() bool     { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() *Obj       { return v.obj }

func (v Value) IsObjKind(k Kind) bool { return v.tag == tagObj && v.obj.Kind == k }

// Falsey implements the language's falsiness rule: nil and false are
// false, everything else — including 0 and "" — is true.
func (v Value) Falsey() bool {
	switch v.tag {
	case tagNil:
		return true
	case tagBool:
		return !v.boolean
	default:
		return false
	}
}

// Equal implements the equality rules from the data model: same variant
// required, numbers by ==, booleans by value, nil equals nil, objects by
// reference identity (strings included, since they are interned).
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case tagNil:
		return true
	case tagBool:
		return a.boolean == b.boolean
	case tagNumber:
		return a.number == b.number
	case tagObj:
		return a.obj == b.obj
	}
	return false
}

// --- heap object payloads ---

// StringObj is an interned, immutable byte sequence.
type StringObj struct {
	Obj
	Chars string
	Hash  uint32
}

// NewString builds a raw (not-yet-interned) StringObj; callers normally
// go through a Table's intern path rather than calling this directly.
func NewString(s string) *StringObj {
	so := &StringObj{Chars: s, Hash: FNV1a(s)}
	so.Obj.Kind = KindString
	so.Obj.payload = so
	return so
}

// FNV1a computes the 32-bit FNV-1a hash the spec mandates for strings.
func FNV1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// FunctionObj is a compiled function: arity, upvalue count, optional
// name, and its owned chunk. Chunk is declared as `interface{}` here to
// avoid an import cycle with pkg/chunk; the VM asserts it back to
// *chunk.Chunk (the compiler keeps its own typed reference while
// building the function).
type FunctionObj struct {
	Obj
	Arity        int
	UpvalueCount int
	Name         *StringObj // nil for the top-level script
	Chunk        interface{}
}

func NewFunction() *FunctionObj {
	fo := &FunctionObj{}
	fo.Obj.Kind = KindFunction
	fo.Obj.payload = fo
	return fo
}

// NativeFn is the signature every native callable implements.
type NativeFn func(args []Value) (Value, error)

// NativeObj wraps a host-provided callable.
type NativeObj struct {
	Obj
	Name string
	Fn   NativeFn
}

func NewNative(name string, fn NativeFn) *NativeObj {
	no := &NativeObj{Name: name, Fn: fn}
	no.Obj.Kind = KindNative
	no.Obj.payload = no
	return no
}

// UpvalueObj is either open (Slot is the absolute index of the captured
// variable in the VM's value stack) or closed (Closed holds the captured
// value and Slot no longer applies).
type UpvalueObj struct {
	Obj
	Slot   int // absolute stack slot while open; meaningless once closed
	Closed Value
	IsOpen bool
	NextOpen *UpvalueObj // intrusive list, strictly decreasing by Slot
}

func NewUpvalue(slot int) *UpvalueObj {
	uo := &UpvalueObj{Slot: slot, IsOpen: true, Closed: Nil}
	uo.Obj.Kind = KindUpvalue
	uo.Obj.payload = uo
	return uo
}

// ClosureObj pairs a FunctionObj with its captured upvalues.
type ClosureObj struct {
	Obj
	Function *FunctionObj
	Upvalues []*UpvalueObj
}

func NewClosure(fn *FunctionObj) *ClosureObj {
	co := &ClosureObj{Function: fn, Upvalues: make([]*UpvalueObj, fn.UpvalueCount)}
	co.Obj.Kind = KindClosure
	co.Obj.payload = co
	return co
}

// ClassObj is a class: its name and a methods table mapping selector to
// a Value wrapping a *ClosureObj.
type ClassObj struct {
	Obj
	Name    *StringObj
	Methods map[*StringObj]Value
}

func NewClass(name *StringObj) *ClassObj {
	co := &ClassObj{Name: name, Methods: make(map[*StringObj]Value)}
	co.Obj.Kind = KindClass
	co.Obj.payload = co
	return co
}

// InstanceObj is an object instance: its class and a dynamically-growing
// fields table.
type InstanceObj struct {
	Obj
	Class  *ClassObj
	Fields map[*StringObj]Value
}

func NewInstance(class *ClassObj) *InstanceObj {
	io := &InstanceObj{Class: class, Fields: make(map[*StringObj]Value)}
	io.Obj.Kind = KindInstance
	io.Obj.payload = io
	return io
}

// BoundMethodObj pairs a receiver with the closure a property lookup
// resolved to.
type BoundMethodObj struct {
	Obj
	Receiver Value
	Method   *ClosureObj
}

func NewBoundMethod(receiver Value, method *ClosureObj) *BoundMethodObj {
	bo := &BoundMethodObj{Receiver: receiver, Method: method}
	bo.Obj.Kind = KindBoundMethod
	bo.Obj.payload = bo
	return bo
}

// --- accessors back from the generic Obj header to typed payloads ---

func AsString(o *Obj) *StringObj           { return o.payload.(*StringObj) }
func AsFunction(o *Obj) *FunctionObj       { return o.payload.(*FunctionObj) }
func AsNative(o *Obj) *NativeObj           { return o.payload.(*NativeObj) }
func AsClosure(o *Obj) *ClosureObj         { return o.payload.(*ClosureObj) }
func AsUpvalue(o *Obj) *UpvalueObj         { return o.payload.(*UpvalueObj) }
func AsClass(o *Obj) *ClassObj             { return o.payload.(*ClassObj) }
func AsInstance(o *Obj) *InstanceObj       { return o.payload.(*InstanceObj) }
func AsBoundMethod(o *Obj) *BoundMethodObj { return o.payload.(*BoundMethodObj) }

// Print renders a Value exactly as OP_PRINT and the REPL should: nil,
// true/false, shortest round-trip numbers, raw string bytes, <fn NAME>
// or <script>, <native fn>, the class name, "NAME instance", and
// closures/bound methods printing as their underlying function.
func Print(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObj():
		return printObj(v.AsObj())
	}
	return "<invalid value>"
}

func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func printObj(o *Obj) string {
	switch o.Kind {
	case KindString:
		return AsString(o).Chars
	case KindFunction:
		fn := AsFunction(o)
		if fn.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", fn.Name.Chars)
	case KindNative:
		return "<native fn>"
	case KindClosure:
		return printFunctionRef(AsClosure(o).Function)
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return AsClass(o).Name.Chars
	case KindInstance:
		return fmt.Sprintf("%s instance", AsInstance(o).Class.Name.Chars)
	case KindBoundMethod:
		return printFunctionRef(AsBoundMethod(o).Method.Function)
	}
	return "<unknown>"
}

func printFunctionRef(fn *FunctionObj) string {
	if fn.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", fn.Name.Chars)
}

// TypeName returns a short human-readable type name. The VM's runtime
// error messages do not include it.
func TypeName(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return "boolean"
	case v.IsNumber():
		return "number"
	case v.IsObj():
		return strings.ToLower(v.AsObj().Kind.String())
	}
	return "unknown"
}
