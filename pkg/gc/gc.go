// Package gc implements the tri-colour mark-sweep collector.
//
// Every heap object (pkg/value.Obj) is threaded onto one intrusive list
// owned by a Collector as it's allocated. A cycle runs when allocation
// pressure (bytesAllocated) crosses nextGC: mark roots, drain a gray
// worklist (blackening each object's outgoing references), prune the
// intern table of any key that wasn't marked, sweep the objects list,
// then set the next threshold to twice the surviving bytes (never below
// the initial 1 MiB). There is no moving or compaction — objects
// keep stable addresses for their whole lifetime.
//
// Grounded on clox's memory.c (original_source/src/memory.c) for the
// algorithm; the teacher repo has no analogue since it simply leans on
// Go's own collector. Cycle-boundary logging is grounded on the
// zerolog usage in the pack's other bytecode-VM example
// (rex_claude/internal/runtime/runtime.go).
package gc

import (
	"github.com/rs/zerolog"

	"ember/pkg/table"
	"ember/pkg/value"
)

const initialNextGC = 1 << 20 // 1 MiB

// Blackener is implemented by the VM/compiler side: given an object that
// just turned gray, it returns the Values and raw Objs that object
// references, so the collector can gray them in turn. The collector
// stays ignorant of VM-specific kinds beyond the Kind tag dispatch that
// pkg/value already exposes.
type Blackener func(o *value.Obj) (vals []value.Value, objs []*value.Obj)

// RootProvider is called at the start of every cycle to obtain the
// current set of root values (VM stack, globals, cached strings, ...).
type RootProvider func() []value.Value

// ObjRootProvider is the Obj-typed analogue, used for roots that are
// bare object references rather than tagged Values (the open-upvalue
// list, and every Function on the active compiler chain).
type ObjRootProvider func() []*value.Obj

// Collector owns the intrusive object list and drives collection.
type Collector struct {
	objects        *value.Obj
	bytesAllocated int64
	nextGC         int64
	gray           []*value.Obj
	strings        *table.Table
	blacken        Blackener
	valueRoots     []RootProvider
	objRoots       []ObjRootProvider
	stress         bool
	log            zerolog.Logger

	// compilerFnRoots/compilerPinnedRoots hold the single active
	// Compiler's root providers, mirroring clox's markCompilerRoots
	// walking one `current` pointer rather than an ever-growing list:
	// a Compile call installs these for its own duration and clears
	// them on return, so a long-lived REPL doesn't accumulate one pair
	// of closures per line compiled.
	compilerFnRoots     ObjRootProvider
	compilerPinnedRoots ObjRootProvider

	// Cycle stats, exposed for tests and diagnostics.
	Cycles int
}

// New creates a collector. strings is the intern table to prune before
// sweep; logger may be the zero value (zerolog.Nop()) for silent use.
func New(strings *table.Table, logger zerolog.Logger) *Collector {
	return &Collector{
		strings: strings,
		nextGC:  initialNextGC,
		log:     logger,
	}
}

// SetBlackener installs the callback used to trace an object's outgoing
// references during mark. Must be called before any Collect.
func (c *Collector) SetBlackener(b Blackener) { c.blacken = b }

// AddRootValues registers a source of Value roots (e.g. "the VM's value
// stack from base to stackTop", "globals' keys and values").
func (c *Collector) AddRootValues(fn RootProvider) {
	c.valueRoots = append(c.valueRoots, fn)
}

// AddRootObjects registers a permanent source of raw Obj roots (e.g.
// "the VM's open upvalue list"). Use SetCompilerRoots instead for a
// root source whose lifetime is scoped to one Compile call.
func (c *Collector) AddRootObjects(fn ObjRootProvider) {
	c.objRoots = append(c.objRoots, fn)
}

// SetCompilerRoots installs the currently-compiling Compiler's root
// providers (its active function-nesting chain and its allocation-hazard
// pins), replacing whatever was installed before. Call with (nil, nil)
// once compilation finishes so a finished Compiler's closures stop being
// walked on every future cycle.
func (c *Collector) SetCompilerRoots(fnRoots, pinnedRoots ObjRootProvider) {
	c.compilerFnRoots = fnRoots
	c.compilerPinnedRoots = pinnedRoots
}

// SetStressMode forces a collection on every growing allocation, as the
// spec's "stress GC build flag" describes.
func (c *Collector) SetStressMode(enabled bool) { c.stress = enabled }

// Track links a freshly allocated object onto the objects list and
// accounts its size. size is the caller's best estimate of the object's
// footprint; it only drives collection pacing, not correctness.
func (c *Collector) Track(o *value.Obj, size int64) {
	o.Next = c.objects
	c.objects = o
	c.bytesAllocated += size
	if c.stress || c.bytesAllocated > c.nextGC {
		c.Collect()
	}
}

// BytesAllocated reports the current accounted heap size.
func (c *Collector) BytesAllocated() int64 { return c.bytesAllocated }

// Collect runs one full mark-sweep cycle.
func (c *Collector) Collect() {
	before := c.bytesAllocated
	c.markRoots()
	c.traceReferences()
	if c.strings != nil {
		c.strings.RemoveUnmarked()
	}
	freed := c.sweep()
	c.nextGC = c.bytesAllocated * 2
	if c.nextGC < initialNextGC {
		c.nextGC = initialNextGC
	}
	c.Cycles++
	c.log.Debug().
		Int64("before_bytes", before).
		Int64("after_bytes", c.bytesAllocated).
		Int64("freed_bytes", freed).
		Int64("next_gc", c.nextGC).
		Int("cycle", c.Cycles).
		Msg("gc cycle complete")
}

func (c *Collector) markRoots() {
	for _, fn := range c.valueRoots {
		for _, v := range fn() {
			c.markValue(v)
		}
	}
	for _, fn := range c.objRoots {
		for _, o := range fn() {
			c.markObject(o)
		}
	}
	if c.compilerFnRoots != nil {
		for _, o := range c.compilerFnRoots() {
			c.markObject(o)
		}
	}
	if c.compilerPinnedRoots != nil {
		for _, o := range c.compilerPinnedRoots() {
			c.markObject(o)
		}
	}
}

func (c *Collector) markValue(v value.Value) {
	if v.IsObj() {
		c.markObject(v.AsObj())
	}
}

func (c *Collector) markObject(o *value.Obj) {
	if o == nil || o.Marked {
		return
	}
	o.Marked = true
	c.gray = append(c.gray, o)
}

func (c *Collector) traceReferences() {
	for len(c.gray) > 0 {
		n := len(c.gray) - 1
		o := c.gray[n]
		c.gray = c.gray[:n]
		if c.blacken == nil {
			continue
		}
		vals, objs := c.blacken(o)
		for _, v := range vals {
			c.markValue(v)
		}
		for _, ref := range objs {
			c.markObject(ref)
		}
	}
}

func (c *Collector) sweep() int64 {
	var prev *value.Obj
	obj := c.objects
	var freed int64
	for obj != nil {
		if obj.Marked {
			obj.Marked = false
			prev = obj
			obj = obj.Next
			continue
		}
		unreached := obj
		obj = obj.Next
		if prev != nil {
			prev.Next = obj
		} else {
			c.objects = obj
		}
		freed += objectSize(unreached)
	}
	c.bytesAllocated -= freed
	if c.bytesAllocated < 0 {
		c.bytesAllocated = 0
	}
	return freed
}

// objectSize is a rough per-kind footprint estimate, good enough to
// drive collection pacing.
func objectSize(o *value.Obj) int64 {
	switch o.Kind {
	case value.KindString:
		return int64(24 + len(value.AsString(o).Chars))
	case value.KindFunction:
		return 64
	case value.KindNative:
		return 32
	case value.KindClosure:
		co := value.AsClosure(o)
		return int64(32 + 8*len(co.Upvalues))
	case value.KindUpvalue:
		return 32
	case value.KindClass:
		return 48
	case value.KindInstance:
		return 48
	case value.KindBoundMethod:
		return 32
	default:
		return 16
	}
}
