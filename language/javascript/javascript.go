// Package javascript runs bundles in a QuickJS WASI build.
package javascript

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/codec"
)

//go:embed prelude.js
var prelude string

// JavaScript implements executor.BundleLanguage over a QuickJS WASI binary.
type JavaScript struct {
	wasm []byte
	name string
}

// New returns a language adapter for the given interpreter binary.
func New(wasm []byte) *JavaScript {
	return &JavaScript{
		wasm: wasm,
		name: fmt.Sprintf("javascript-%016x", xxhash.Sum64(wasm)),
	}
}

// Load reads the interpreter binary from path.
func Load(path string) (*JavaScript, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load interpreter: %w", err)
	}
	return New(wasm), nil
}

// Name identifies the interpreter build, so two binaries never share a
// compiled module.
func (j *JavaScript) Name() string {
	return j.name
}

// Module returns the QuickJS WASM binary.
func (j *JavaScript) Module() []byte {
	return j.wasm
}

// WrapCode prepends the host-call prelude to code.
func (j *JavaScript) WrapCode(code string) string {
	return Prelude() + "\n" + code
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (j *JavaScript) Args(wrappedCode string) []string {
	return []string{"qjs", "--std", "-e", wrappedCode}
}

// Program renders b as a script that starts it with the prelude's engine.
// Module functions are emitted as code; names and aliases as JSON.
func (j *JavaScript) Program(b *bundle.Bundle) (string, error) {
	return Program(b)
}

// Prelude returns the JavaScript that defines the host-call bridge and the
// in-sandbox module engine.
func Prelude() string {
	return prelude
}

// Program renders b as a call to __deltabundle_start.
func Program(b *bundle.Bundle) (string, error) {
	var sb strings.Builder

	entry := b.Entry
	if entry == nil {
		entry = []string{}
	}
	if err := writeJSON(&sb, "__deltabundle_start({\"version\": ", b.Version); err != nil {
		return "", err
	}
	if err := writeJSON(&sb, ", \"entry\": ", entry); err != nil {
		return "", err
	}
	sb.WriteString(", \"modules\": {")

	names := make([]string, 0, len(b.Modules))
	for name := range b.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		rec := b.Modules[name]
		src, err := codec.ModuleSource(rec)
		if err != nil {
			return "", &codec.CompileError{Module: name, Err: err}
		}
		// Only function-shaped sources are spliced into the program.
		if _, err := codec.ParseFunction(src); err != nil {
			return "", &codec.CompileError{Module: name, Err: err}
		}
		sep := "\n"
		if i > 0 {
			sep = ",\n"
		}
		if err := writeJSON(&sb, sep, name); err != nil {
			return "", err
		}
		sb.WriteString(": [")
		sb.WriteString(src)
		deps := rec.Deps
		if deps == nil {
			deps = map[string]string{}
		}
		if err := writeJSON(&sb, ", ", deps); err != nil {
			return "", err
		}
		sb.WriteString("]")
	}
	sb.WriteString("\n}});\n")
	return sb.String(), nil
}

func writeJSON(sb *strings.Builder, prefix string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sb.WriteString(prefix)
	sb.Write(data)
	return nil
}
