package resolver

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/script"
)

var errNotCompiled = errors.New("module has no compiled unit")

// Engine resolves and executes the modules of one bundle. It is not safe for
// concurrent use; module bodies run synchronously on the caller's goroutine.
type Engine struct {
	host  script.Host
	table map[string]*bundle.Record
	cache map[string]script.Module
	outer Resolver
	slot  *Slot
	log   *logger.Logger

	hasOuter bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithOuter sets the resolver consulted after the current one, instead of
// whatever was installed in the slot before this engine.
func WithOuter(r Resolver) Option {
	return func(e *Engine) {
		e.outer = r
		e.hasOuter = true
	}
}

// WithSlot sets the slot the engine installs itself into. A nil slot makes
// the engine standalone: it neither installs itself nor forwards to a
// current resolver.
func WithSlot(s *Slot) Option {
	return func(e *Engine) {
		e.slot = s
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an engine over modules and installs it as the slot's current
// resolver. The previously installed resolver becomes the engine's outer
// chaining hook unless WithOuter was given.
func New(host script.Host, modules map[string]*bundle.Record, opts ...Option) *Engine {
	e := &Engine{
		host:  host,
		table: modules,
		cache: make(map[string]script.Module),
		slot:  DefaultSlot,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrNop(e.log)
	if e.table == nil {
		e.table = make(map[string]*bundle.Record)
	}
	if e.slot != nil {
		prev := e.slot.Install(e)
		if !e.hasOuter {
			e.outer = prev
		}
	}
	return e
}

// Start creates an engine for b and runs its entry modules.
func Start(host script.Host, b *bundle.Bundle, opts ...Option) (*Engine, error) {
	e := New(host, b.Modules, opts...)
	return e, e.Run(b.Entry)
}

// Run starts from a fresh execution cache and resolves each entry name in
// order.
func (e *Engine) Run(entry []string) error {
	e.cache = make(map[string]script.Module)
	for _, name := range entry {
		if _, err := e.Resolve(name, false); err != nil {
			return err
		}
	}
	e.log.Debug("entry modules executed", "entry", entry, "instantiated", len(e.cache))
	return nil
}

// Require resolves name as a top-level import.
func (e *Engine) Require(name string) (script.Value, error) {
	return e.Resolve(name, false)
}

// Resolve returns the exports of name, executing its unit on first use.
func (e *Engine) Resolve(name string, delegated bool) (script.Value, error) {
	if m, ok := e.cache[name]; ok {
		return m.Exports(), nil
	}

	if rec, ok := e.table[name]; ok {
		if rec.Unit == nil {
			return nil, fmt.Errorf("execute %s: %w", name, errNotCompiled)
		}
		m := e.host.NewModule(name)
		// Registered before the body runs so circular imports see the
		// partially populated exports instead of recursing.
		e.cache[name] = m
		err := rec.Unit.Call(func(specifier string) (script.Value, error) {
			return e.Resolve(rec.Resolve(specifier), false)
		}, m)
		if err != nil {
			return m.Exports(), fmt.Errorf("execute %s: %w", name, err)
		}
		return m.Exports(), nil
	}

	if !delegated && e.slot != nil {
		if cur := e.slot.Current(); cur != nil && cur != Resolver(e) {
			return cur.Resolve(name, true)
		}
	}
	if e.outer != nil {
		return e.outer.Resolve(name, true)
	}
	return nil, &NotFoundError{Name: name}
}

// Instantiated reports whether name has been executed by this engine since
// the last Run.
func (e *Engine) Instantiated(name string) bool {
	_, ok := e.cache[name]
	return ok
}
