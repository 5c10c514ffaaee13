// Package codec converts between the textual bundle format and bundles whose
// modules are compiled into executable units.
//
// The wire format is JSON:
//
//	{"version": v, "entry": [name...], "modules": {name: [source, {specifier: name}]}}
//
// Diff payloads carry "from" and "to" instead of "version", may omit
// "entry", and use null as a module value to mark a deleted module.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/caffeineduck/deltabundle/bundle"
	"github.com/caffeineduck/deltabundle/logger"
	"github.com/caffeineduck/deltabundle/script"
)

// Codec compiles modules while decoding and renders them back while
// encoding.
type Codec struct {
	compiler script.Compiler
	root     string
	log      *logger.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithRoot sets the root module locators are built from. A trailing
// separator is added if missing.
func WithRoot(root string) Option {
	return func(c *Codec) {
		c.root = NormalizeRoot(root)
	}
}

// WithLogger sets the codec's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Codec) {
		c.log = l
	}
}

// New returns a codec that compiles module bodies with compiler.
func New(compiler script.Compiler, opts ...Option) *Codec {
	c := &Codec{compiler: compiler}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log)
	return c
}

// Root returns the normalized locator root.
func (c *Codec) Root() string { return c.root }

type wirePayload struct {
	Version bundle.Version         `json:"version"`
	From    bundle.Version         `json:"from"`
	To      bundle.Version         `json:"to"`
	Entry   []string               `json:"entry"`
	Modules map[string]*wireRecord `json:"modules"`
}

type wireBundle struct {
	Version bundle.Version        `json:"version"`
	Entry   []string              `json:"entry"`
	Modules map[string]wireRecord `json:"modules"`
}

// wireRecord is the [source, aliases] tuple.
type wireRecord struct {
	Source string
	Deps   map[string]string
}

func (r *wireRecord) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return errors.New("module must be a [source, aliases] pair")
	}
	if len(tuple) == 0 || len(tuple) > 2 {
		return fmt.Errorf("module must be a [source, aliases] pair, got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Source); err != nil {
		return errors.New("module source must be a string")
	}
	if len(tuple) == 2 {
		if err := json.Unmarshal(tuple[1], &r.Deps); err != nil {
			return errors.New("module aliases must be an object")
		}
	}
	return nil
}

func (r wireRecord) MarshalJSON() ([]byte, error) {
	deps := r.Deps
	if deps == nil {
		deps = map[string]string{}
	}
	return json.Marshal([]any{r.Source, deps})
}

// Deserialize decodes text and compiles every present module. Blank text
// yields a nil payload. Tombstones are kept as nil records.
func (c *Codec) Deserialize(text string) (*bundle.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var w wirePayload
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	p := &bundle.Payload{
		Version: w.Version,
		From:    w.From,
		To:      w.To,
		Entry:   w.Entry,
		Modules: make(map[string]*bundle.Record, len(w.Modules)),
	}
	for _, name := range sortedKeys(w.Modules) {
		wr := w.Modules[name]
		if wr == nil {
			p.Modules[name] = nil
			continue
		}
		rec, err := c.compile(name, wr)
		if err != nil {
			return nil, err
		}
		p.Modules[name] = rec
	}
	c.log.Debug("payload decoded", "version", p.Target(), "from", p.From, "modules", len(p.Modules))
	return p, nil
}

func (c *Codec) compile(name string, wr *wireRecord) (*bundle.Record, error) {
	fn, err := ParseFunction(wr.Source)
	if err != nil {
		return nil, &CompileError{Module: name, Err: err}
	}
	// Never overwrite a locator the source declares itself.
	locator := c.Locator(name)
	if HasLocator(fn.Body) {
		if declared, ok := DeclaredLocator(fn.Body); ok {
			locator = declared
		}
	} else {
		fn.Body += "\n//# sourceURL=" + locator
	}
	unit, err := c.compiler.Compile(fn.Params, fn.Body, locator)
	if err != nil {
		return nil, &CompileError{Module: name, Err: err}
	}
	deps := wr.Deps
	if deps == nil {
		deps = map[string]string{}
	}
	return &bundle.Record{Source: wr.Source, Deps: deps, Unit: unit}, nil
}

// Serialize encodes b in the cache format. Compiled modules are written as
// their parsed parameters and body, so decoding the result compiles the same
// body again instead of a wrapped copy of it.
func (c *Codec) Serialize(b *bundle.Bundle) (string, error) {
	w := wireBundle{
		Version: b.Version,
		Entry:   b.Entry,
		Modules: make(map[string]wireRecord, len(b.Modules)),
	}
	if w.Entry == nil {
		w.Entry = []string{}
	}
	for name, rec := range b.Modules {
		if rec == nil {
			continue
		}
		src, err := ModuleSource(rec)
		if err != nil {
			return "", &CompileError{Module: name, Err: err}
		}
		w.Modules[name] = wireRecord{Source: src, Deps: rec.Deps}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}
	return string(data), nil
}

// ModuleSource returns the function text to persist for rec.
func ModuleSource(rec *bundle.Record) (string, error) {
	if rec.Unit == nil {
		return rec.Source, nil
	}
	fn, err := ParseFunction(rec.Unit.Source())
	if err != nil {
		return "", err
	}
	return fn.String(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
