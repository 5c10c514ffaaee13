package script

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"

	"github.com/caffeineduck/deltabundle/logger"
)

var errForeignModule = errors.New("module belongs to a different host")

// VM is a Host backed by a single goja runtime. One VM plays the role of a
// page: every engine sharing the VM sees the same globals. A VM must only be
// used from one goroutine at a time.
type VM struct {
	rt      *goja.Runtime
	console io.Writer
	log     *logger.Logger
}

// VMOption configures a VM.
type VMOption func(*VM)

// WithConsole routes console.log, console.warn and console.error output from
// modules to w. Without it console calls are discarded.
func WithConsole(w io.Writer) VMOption {
	return func(vm *VM) {
		vm.console = w
	}
}

// WithLogger sets the logger compile failures are reported to.
func WithLogger(l *logger.Logger) VMOption {
	return func(vm *VM) {
		vm.log = l
	}
}

// NewVM creates a fresh runtime.
func NewVM(opts ...VMOption) *VM {
	vm := &VM{rt: goja.New(), console: io.Discard}
	for _, opt := range opts {
		opt(vm)
	}
	vm.log = logger.OrNop(vm.log)
	vm.installConsole()
	return vm
}

// Runtime exposes the underlying goja runtime.
func (vm *VM) Runtime() *goja.Runtime {
	return vm.rt
}

// Eval runs src as a script in the VM's global scope.
func (vm *VM) Eval(name, src string) (goja.Value, error) {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}
	return vm.rt.RunProgram(prg)
}

// Compile wraps body in a function expression taking params and evaluates
// it. The locator becomes the program name shown in stack traces.
func (vm *VM) Compile(params []string, body, locator string) (Unit, error) {
	src := FunctionSource(params, body)
	prg, err := goja.Compile(locator, "("+src+")", false)
	if err != nil {
		vm.log.Debug("compile failed", "locator", locator, "error", err)
		return nil, err
	}
	v, err := vm.rt.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s: not a function", locator)
	}
	return &gojaUnit{vm: vm, fn: fn, source: src}, nil
}

// NewModule creates {id, exports: {}}.
func (vm *VM) NewModule(id string) Module {
	obj := vm.rt.NewObject()
	_ = obj.Set("id", id)
	_ = obj.Set("exports", vm.rt.NewObject())
	return &gojaModule{vm: vm, id: id, obj: obj}
}

func (vm *VM) installConsole() {
	console := vm.rt.NewObject()
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		fmt.Fprintln(vm.console, strings.Join(parts, " "))
		return goja.Undefined()
	}
	for _, name := range []string{"log", "info", "warn", "error"} {
		_ = console.Set(name, write)
	}
	_ = vm.rt.Set("console", console)
}

// FunctionSource renders params and body as the canonical function text
// units report from Source.
func FunctionSource(params []string, body string) string {
	return "function(" + strings.Join(params, ", ") + ") {\n" + body + "\n}"
}

type gojaModule struct {
	vm  *VM
	id  string
	obj *goja.Object
}

func (m *gojaModule) ID() string { return m.id }

func (m *gojaModule) Exports() Value {
	return m.obj.Get("exports")
}

// Object returns the JavaScript module object.
func (m *gojaModule) Object() *goja.Object {
	return m.obj
}

type gojaUnit struct {
	vm     *VM
	fn     goja.Callable
	source string
}

func (u *gojaUnit) Source() string { return u.source }

func (u *gojaUnit) Call(require Require, m Module) error {
	mod, ok := m.(*gojaModule)
	if !ok || mod.vm != u.vm {
		return errForeignModule
	}
	rt := u.vm.rt
	req := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := require(call.Argument(0).String())
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(v)
	})
	exports := mod.obj.Get("exports")
	_, err := u.fn(exports, req, mod.obj, exports)
	return err
}
