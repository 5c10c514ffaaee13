// Package bundle holds the in-memory bundle model and the diff applicator.
package bundle

import (
	"errors"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/caffeineduck/deltabundle/script"
)

// ErrEmptyPayload is returned when a full bundle was required but the server
// sent nothing.
var ErrEmptyPayload = errors.New("empty bundle payload")

// Version identifies a payload revision. The wire format allows strings and
// numbers; both are kept as their textual form, so 1 and "1" are equal.
// The zero value means "no version".
type Version string

func (v Version) IsZero() bool { return v == "" }

func (v Version) String() string { return string(v) }

func (v Version) MarshalJSON() ([]byte, error) {
	if v == "" {
		return []byte("null"), nil
	}
	if isNumber(string(v)) {
		return []byte(v), nil
	}
	return json.Marshal(string(v))
}

func (v *Version) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Version(s)
	case isNumber(string(data)):
		*v = Version(data)
	default:
		return errors.New("version must be a string or a number")
	}
	return nil
}

func isNumber(s string) bool {
	if s == "" || s[0] == '+' || s[0] == '.' {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil && json.Valid([]byte(s))
}

// Record is one module: its function text, its dependency alias table and,
// once compiled, its executable unit.
type Record struct {
	Source string
	// Deps maps an import specifier used inside the module to the canonical
	// module name it resolves to.
	Deps map[string]string
	Unit script.Unit
}

// Resolve maps an import specifier through the alias table. Specifiers
// without an alias are already canonical names.
func (r *Record) Resolve(specifier string) string {
	if id := r.Deps[specifier]; id != "" {
		return id
	}
	return specifier
}

// Bundle is the unit of persistence and execution. Modules never contains
// nil records.
type Bundle struct {
	Version Version
	Entry   []string
	Modules map[string]*Record
}

// New returns an empty bundle.
func New() *Bundle {
	return &Bundle{Modules: make(map[string]*Record)}
}

// Clone returns a copy of b that shares records but not the entry slice or
// module map.
func (b *Bundle) Clone() *Bundle {
	c := &Bundle{
		Version: b.Version,
		Entry:   append([]string(nil), b.Entry...),
		Modules: make(map[string]*Record, len(b.Modules)),
	}
	for name, rec := range b.Modules {
		c.Modules[name] = rec
	}
	return c
}

// Payload is a decoded transport payload: either a full bundle (Version set)
// or a delta from From to To. A nil record in Modules is a tombstone.
type Payload struct {
	Version Version
	From    Version
	To      Version
	// Entry is nil when the payload does not specify an entry list.
	Entry   []string
	Modules map[string]*Record
}

// IsFull reports whether the payload describes a complete bundle.
func (p *Payload) IsFull() bool {
	return !p.Version.IsZero()
}

// Target is the version a bundle has after the payload is applied.
func (p *Payload) Target() Version {
	if !p.To.IsZero() {
		return p.To
	}
	return p.Version
}

// Bundle converts the payload to a bundle as-is. Tombstones are dropped.
func (p *Payload) Bundle() *Bundle {
	b := New()
	b.Version = p.Target()
	b.Entry = append([]string(nil), p.Entry...)
	for name, rec := range p.Modules {
		if rec != nil {
			b.Modules[name] = rec
		}
	}
	return b
}
