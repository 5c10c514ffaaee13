package codec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/caffeineduck/deltabundle/script"
)

var (
	// function [name](params) { body }. The body runs to the last closing
	// brace so nested braces stay in it.
	functionPattern   = regexp.MustCompile(`(?s)^function\b[^(]*\(([^)]*)\)\s*\{(.*)\}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	locatorPattern    = regexp.MustCompile(`//#\s*sourceURL=`)
	declaredLocator   = regexp.MustCompile(`//#\s*sourceURL=[ \t]*(\S+)`)

	errNotFunction = errors.New("module must be a single function expression")
)

// CompileError reports module source that could not be turned into a unit.
type CompileError struct {
	Module string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile module %q: %v", e.Module, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Function is a module function split into its parameter list and body.
type Function struct {
	Params []string
	Body   string
}

// ParseFunction splits src, which must be exactly one function expression,
// into parameters and the trimmed body between its outermost braces.
func ParseFunction(src string) (Function, error) {
	m := functionPattern.FindStringSubmatch(strings.TrimSpace(src))
	if m == nil {
		return Function{}, errNotFunction
	}
	var params []string
	if raw := strings.TrimSpace(m[1]); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if !identifierPattern.MatchString(p) {
				return Function{}, fmt.Errorf("invalid parameter %q", p)
			}
			params = append(params, p)
		}
	}
	return Function{Params: params, Body: strings.TrimSpace(m[2])}, nil
}

func (f Function) String() string {
	return script.FunctionSource(f.Params, f.Body)
}

// HasLocator reports whether body already declares a sourceURL comment.
func HasLocator(body string) bool {
	return locatorPattern.MatchString(body)
}

// DeclaredLocator returns the sourceURL body declares, if any.
func DeclaredLocator(body string) (string, bool) {
	m := declaredLocator.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}
