package bundle

import "fmt"

// ProtocolError reports a delta computed against a different ancestor than
// the bundle it was fetched for. No correct merge exists, so it is fatal.
type ProtocolError struct {
	Requested Version // version of the base bundle
	Received  Version // the delta's from field
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("received diff since version %q, but requested diff since version %q", e.Received, e.Requested)
}

// Apply merges p into base in place and returns it.
//
// A full payload (one with its own version) is authoritative for version and
// entry. A delta must name base's version as its from field; on mismatch a
// *ProtocolError is returned and base is left unmodified. Modules are merged
// per name for both kinds: a tombstone deletes the name, a record inserts or
// overwrites it, and names the payload does not mention are untouched.
// A nil payload means "already up to date" and returns base unchanged.
func Apply(base *Bundle, p *Payload) (*Bundle, error) {
	if base == nil {
		base = New()
	}
	if p == nil {
		return base, nil
	}
	if !p.IsFull() && p.From != base.Version {
		return base, &ProtocolError{Requested: base.Version, Received: p.From}
	}

	base.Version = p.Target()
	if p.Entry != nil {
		base.Entry = append([]string(nil), p.Entry...)
	}
	if base.Modules == nil {
		base.Modules = make(map[string]*Record, len(p.Modules))
	}
	for name, rec := range p.Modules {
		// Deleting instead of storing a nil keeps removed modules out of the
		// persisted payload.
		if rec == nil {
			delete(base.Modules, name)
			continue
		}
		base.Modules[name] = rec
	}
	return base, nil
}
