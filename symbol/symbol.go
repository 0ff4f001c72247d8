// Package symbol implements a minimal linker: symbols that code can refer
// to before they are defined, and the references that get patched once the
// definition is known.
package symbol

import (
	"fmt"

	"github.com/boxlang/boxvm/errz"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// ID identifies a symbol of a Table. The zero ID means "every symbol" where
// an operation accepts it.
type ID uint32

// All is the ID accepted by Resolve to resolve every defined symbol.
const All ID = 0

// Kind determines the layout of a symbol's definition blob.
type Kind int

const (
	// KindProc symbols are procedures; the definition is a call number.
	KindProc Kind = iota
	// KindLabel symbols are jump targets; the definition is a sheet and a
	// word position.
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindProc:
		return "proc"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Resolver patches a reference site given the definition of its symbol. def
// is nil when the reference is force-resolved before the symbol is defined.
type Resolver func(def, ref []byte) error

// Status controls when a new reference is resolved.
type Status int

const (
	// Deferred references wait for an explicit Resolve.
	Deferred Status = iota
	// Immediate references are resolved on the spot when the symbol is
	// already defined, and queued otherwise.
	Immediate
)

type reference struct {
	resolve  Resolver
	blob     []byte
	site     string
	resolved bool
}

type entry struct {
	id      ID
	kind    Kind
	name    string
	def     []byte
	defined bool
	refs    []*reference
}

// Table holds the symbols of one compilation.
type Table struct {
	entries []*entry
	byName  map[string]ID
	log     zerolog.Logger
}

// New returns an empty table.
func New(log zerolog.Logger) *Table {
	return &Table{
		entries: []*entry{nil},
		byName:  map[string]ID{},
		log:     log,
	}
}

func (t *Table) get(id ID) (*entry, error) {
	if id == All || int(id) >= len(t.entries) {
		return nil, fmt.Errorf("%w: %d", errz.ErrUnknownSymbol, id)
	}
	return t.entries[id], nil
}

// Create adds a symbol whose definition blob takes defSize bytes. Named
// symbols can be found again with Lookup; name may be empty.
func (t *Table) Create(kind Kind, name string, defSize int) ID {
	if defSize < 0 {
		errz.Fatalf("negative definition size %d", defSize)
	}
	id := ID(len(t.entries))
	t.entries = append(t.entries, &entry{id: id, kind: kind, name: name, def: make([]byte, defSize)})
	if name != "" {
		t.byName[name] = id
	}
	return id
}

// Lookup returns the ID of the named symbol.
func (t *Table) Lookup(name string) (ID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns a printable name for the symbol.
func (t *Table) Name(id ID) string {
	e, err := t.get(id)
	if err != nil || e.name == "" {
		return fmt.Sprintf("#%d", id)
	}
	return e.name
}

// Kind returns the kind of the symbol.
func (t *Table) Kind(id ID) (Kind, error) {
	e, err := t.get(id)
	if err != nil {
		return 0, err
	}
	return e.kind, nil
}

// IsDefined reports whether the symbol has been defined.
func (t *Table) IsDefined(id ID) bool {
	e, err := t.get(id)
	return err == nil && e.defined
}

// Definition returns the definition blob of the symbol. Before Define is
// called, the caller may write the definition directly into the returned
// slice and then call Define with a nil value.
func (t *Table) Definition(id ID) ([]byte, error) {
	e, err := t.get(id)
	if err != nil {
		return nil, err
	}
	return e.def, nil
}

// Define fixes the definition of the symbol. A nil value keeps what was
// written through Definition; otherwise value is copied into the blob.
// Defining a symbol twice fails and leaves the first definition unchanged.
func (t *Table) Define(id ID, value []byte) error {
	e, err := t.get(id)
	if err != nil {
		return err
	}
	if e.defined {
		return fmt.Errorf("%w: %s", errz.ErrAlreadyDefined, t.Name(id))
	}
	if value != nil {
		if len(value) != len(e.def) {
			return errz.NewStructuredErrorf(errz.ErrDefinition, nil,
				"definition of %s has %d bytes, want %d", t.Name(id), len(value), len(e.def))
		}
		copy(e.def, value)
	}
	e.defined = true
	t.log.Debug().Str("symbol", t.Name(id)).Stringer("kind", e.kind).Msg("symbol defined")
	return nil
}

// AddReference records a use of the symbol at site, to be patched by fn
// with blob as its reference data. With status Immediate and a defined
// symbol the reference is resolved right away.
func (t *Table) AddReference(id ID, fn Resolver, blob []byte, site string, status Status) error {
	e, err := t.get(id)
	if err != nil {
		return err
	}
	ref := &reference{resolve: fn, blob: blob, site: site}
	e.refs = append(e.refs, ref)
	if status == Immediate && e.defined {
		return t.resolveRef(e, ref, e.def)
	}
	return nil
}

func (t *Table) resolveRef(e *entry, ref *reference, def []byte) error {
	if err := ref.resolve(def, ref.blob); err != nil {
		return fmt.Errorf("resolving %s at %s: %w", t.Name(e.id), ref.site, err)
	}
	ref.resolved = true
	return nil
}

func (t *Table) resolveEntry(e *entry) error {
	if !e.defined {
		return nil
	}
	var result *multierror.Error
	for _, ref := range e.refs {
		if ref.resolved {
			continue
		}
		if err := t.resolveRef(e, ref, e.def); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Resolve patches the pending references of a defined symbol; it does
// nothing for undefined ones. With All it resolves every defined symbol
// and then reports each reference still unresolved as an *errz.LinkError.
func (t *Table) Resolve(id ID) error {
	if id != All {
		e, err := t.get(id)
		if err != nil {
			return err
		}
		return t.resolveEntry(e)
	}

	var result *multierror.Error
	for _, e := range t.entries[1:] {
		if err := t.resolveEntry(e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, e := range t.entries[1:] {
		for _, ref := range e.refs {
			if !ref.resolved {
				result = multierror.Append(result, &errz.LinkError{
					Symbol: t.Name(e.id),
					Site:   ref.site,
				})
			}
		}
	}
	t.log.Debug().Int("symbols", len(t.entries)-1).Bool("ok", result == nil).Msg("link pass")
	return result.ErrorOrNil()
}

// ForceResolve calls the resolver of every pending reference of the
// symbol, passing a nil definition when the symbol is still undefined.
func (t *Table) ForceResolve(id ID) error {
	e, err := t.get(id)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, ref := range e.refs {
		if ref.resolved {
			continue
		}
		var def []byte
		if e.defined {
			def = e.def
		}
		if err := t.resolveRef(e, ref, def); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Pending returns the number of unresolved references of the symbol, or of
// every symbol for All.
func (t *Table) Pending(id ID) int {
	count := func(e *entry) int {
		n := 0
		for _, ref := range e.refs {
			if !ref.resolved {
				n++
			}
		}
		return n
	}
	if id != All {
		e, err := t.get(id)
		if err != nil {
			return 0
		}
		return count(e)
	}
	n := 0
	for _, e := range t.entries[1:] {
		n += count(e)
	}
	return n
}
