package executor

import "github.com/caffeineduck/deltabundle/bundle"

// Language is a WASM interpreter build that can run a program given as
// source text.
type Language interface {
	// Name identifies the interpreter. It is the cache key for the compiled
	// module.
	Name() string

	// Module returns the interpreter's WASM binary.
	Module() []byte

	// WrapCode prepends the host-call prelude to code.
	WrapCode(code string) string

	// Args returns the interpreter's command line for running wrappedCode.
	Args(wrappedCode string) []string
}

// BundleLanguage is a Language that can render a whole bundle as one
// program.
type BundleLanguage interface {
	Language
	Program(b *bundle.Bundle) (string, error)
}
