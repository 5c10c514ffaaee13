// Package resolver is the CommonJS-style module execution core.
//
// An Engine lazily runs module units on first import and memoizes their
// exports. Several engines can share one host (for example a base bundle and
// lazily loaded feature bundles). Lookups an engine cannot satisfy itself are
// forwarded to the resolver currently installed in the host's Slot, and then
// to the resolver that was installed when the engine was created.
package resolver

import (
	"fmt"
	"sync/atomic"

	"github.com/caffeineduck/deltabundle/script"
)

// Resolver returns the exports of a module by canonical name. delegated is
// set when the lookup was forwarded by another resolver; a delegated lookup
// is never forwarded to the current resolver again.
type Resolver interface {
	Resolve(name string, delegated bool) (script.Value, error)
}

// NotFoundError is returned when no resolver in the chain knows a module.
// It is raised lazily, when the module is actually imported.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find module %q", e.Name)
}

// Slot is the registration point for the resolver currently installed on a
// host. It is safe for concurrent use.
type Slot struct {
	cur atomic.Pointer[slotEntry]
}

type slotEntry struct {
	r Resolver
}

// DefaultSlot is the process-wide slot used when an engine is not given one.
var DefaultSlot = &Slot{}

// Current returns the installed resolver, or nil.
func (s *Slot) Current() Resolver {
	if e := s.cur.Load(); e != nil {
		return e.r
	}
	return nil
}

// Install makes r the current resolver and returns the one it replaced.
func (s *Slot) Install(r Resolver) Resolver {
	if prev := s.cur.Swap(&slotEntry{r: r}); prev != nil {
		return prev.r
	}
	return nil
}

// Reset clears the slot.
func (s *Slot) Reset() {
	s.cur.Store(nil)
}
