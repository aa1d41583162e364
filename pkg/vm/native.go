// Native function registration. Grounded on clox's native_defs.c
// (original_source/src/native_defs.c) for the registry-table shape and
// the clock() native itself; kristofer-smog has no equivalent since its
// primitives are dispatched inline inside send() rather than registered
// as first-class callables.
package vm

import (
	"time"

	"ember/pkg/value"
)

// defineNatives installs every builtin native function into globals.
func (vm *VM) defineNatives() {
	natives := map[string]value.NativeFn{
		"clock": nativeClock,
	}
	for name, fn := range natives {
		vm.defineNative(name, fn)
	}
	vm.log.Debug().Int("count", len(natives)).Msg("native functions registered")
}

func (vm *VM) defineNative(name string, fn value.NativeFn) {
	no := value.NewNative(name, fn)
	vm.pin(&no.Obj)
	vm.gc.Track(&no.Obj, 32)
	nameObj := vm.intern(name)
	vm.globals.Set(nameObj, value.FromObj(&no.Obj))
	vm.unpin()
}

// nativeClock returns the number of seconds since process start, the
// language's only clock source.
func nativeClock(_ []value.Value) (value.Value, error) {
	return value.Number(time.Since(processStart).Seconds()), nil
}

var processStart = time.Now()
