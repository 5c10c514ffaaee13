// Package script defines the narrow interface between deltabundle and the
// runtime that turns module source text into executable units.
//
// Compiling server-delivered text is a trust boundary: the bundle server is
// assumed to be non-adversarial. Use the wazero-based executor package when
// bundles must run without ambient capabilities.
package script

// Params is the parameter list every module function is compiled with.
var Params = []string{"require", "module", "exports"}

// Value is a runtime value, such as a module's exports object. Its concrete
// type depends on the Host.
type Value = any

// Require resolves an import specifier to the exports of the module it names.
type Require func(specifier string) (Value, error)

// Module is the per-module object handed to a unit as its module argument.
type Module interface {
	ID() string
	// Exports returns the current value of module.exports. A unit may replace
	// it, so callers must not hold on to an earlier result.
	Exports() Value
}

// Unit is a compiled module function.
type Unit interface {
	// Call invokes the unit as fn.call(exports, require, module, exports).
	Call(require Require, m Module) error
	// Source returns the function text the unit was compiled from.
	Source() string
}

// Compiler turns a parameter list and function body into a Unit. locator
// names the compiled code in stack traces.
type Compiler interface {
	Compile(params []string, body, locator string) (Unit, error)
}

// Host is a runtime that can both compile units and create the module
// objects passed to them. Units only accept modules from their own host.
type Host interface {
	Compiler
	NewModule(id string) Module
}
