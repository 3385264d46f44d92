package category

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrScriptSecurity is raised inside scripts that touch a disabled global
var ErrScriptSecurity = errors.New("operation not allowed in category scripts")

// hardenRuntime removes host-escape globals and freezes the built-in
// prototypes so one rule script cannot tamper with the next run.
func hardenRuntime(vm *goja.Runtime) error {
	disabled := []string{
		"require", "module", "exports", "process", "global",
		"__dirname", "__filename", "Buffer", "setImmediate", "clearImmediate",
	}
	for _, name := range disabled {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if err := vm.Set("eval", func(goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(fmt.Errorf("%w: eval", ErrScriptSecurity)))
	}); err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}

	freeze, err := vm.RunString(`(function(obj) {
		if (obj) {
			Object.freeze(obj);
			if (obj.prototype) { Object.freeze(obj.prototype); }
		}
	})`)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freezeFn, ok := goja.AssertFunction(freeze)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}

	for _, name := range []string{"Object", "Array", "Function", "String", "Number", "Boolean", "RegExp", "Math", "JSON"} {
		if obj := vm.Get(name); obj != nil && !goja.IsUndefined(obj) {
			if _, err := freezeFn(goja.Undefined(), obj); err != nil {
				return fmt.Errorf("failed to freeze %s: %w", name, err)
			}
		}
	}
	return nil
}
