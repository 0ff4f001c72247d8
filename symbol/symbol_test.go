package symbol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/boxlang/boxvm/errz"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func word(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

type patch struct {
	defs [][]byte
	refs [][]byte
}

func (p *patch) resolver(def, ref []byte) error {
	p.defs = append(p.defs, append([]byte(nil), def...))
	p.refs = append(p.refs, ref)
	return nil
}

func TestForwardReference(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "draw", 4)
	p := &patch{}

	require.Nil(t, table.AddReference(id, p.resolver, []byte("site"), "main+3", Deferred))
	require.Nil(t, table.Resolve(id))
	require.Empty(t, p.defs)
	require.Equal(t, 1, table.Pending(id))

	require.Nil(t, table.Define(id, word(7)))
	require.True(t, table.IsDefined(id))
	require.Nil(t, table.Resolve(id))
	require.Equal(t, [][]byte{word(7)}, p.defs)
	require.Equal(t, [][]byte{[]byte("site")}, p.refs)

	// Resolved references are never resolved again.
	require.Nil(t, table.Resolve(id))
	require.Nil(t, table.Resolve(All))
	require.Len(t, p.defs, 1)
	require.Equal(t, 0, table.Pending(All))
}

func TestResolveWithoutReferences(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindLabel, "", 8)
	require.Nil(t, table.Resolve(id))
	require.Nil(t, table.Define(id, make([]byte, 8)))
	require.Nil(t, table.Resolve(id))
	require.Nil(t, table.Resolve(All))
	require.Equal(t, "#1", table.Name(id))
}

func TestDefineTwice(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "f", 4)
	require.Nil(t, table.Define(id, word(3)))

	err := table.Define(id, word(9))
	require.True(t, errors.Is(err, errz.ErrAlreadyDefined))
	def, err := table.Definition(id)
	require.Nil(t, err)
	require.Equal(t, word(3), def)
}

func TestDefineInPlace(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "g", 4)
	p := &patch{}
	require.Nil(t, table.AddReference(id, p.resolver, nil, "", Deferred))

	def, err := table.Definition(id)
	require.Nil(t, err)
	binary.LittleEndian.PutUint32(def, 12)
	require.Nil(t, table.Define(id, nil))
	require.Nil(t, table.Resolve(All))
	require.Equal(t, [][]byte{word(12)}, p.defs)
}

func TestDefineWrongSize(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "h", 4)
	err := table.Define(id, []byte{1})
	require.Equal(t, errz.ErrDefinition, errz.KindOf(err))
	require.False(t, table.IsDefined(id))
}

func TestImmediateReference(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "f", 4)
	require.Nil(t, table.Define(id, word(5)))

	p := &patch{}
	require.Nil(t, table.AddReference(id, p.resolver, nil, "", Immediate))
	require.Equal(t, [][]byte{word(5)}, p.defs)

	require.Nil(t, table.AddReference(id, p.resolver, nil, "", Deferred))
	require.Len(t, p.defs, 1)
	require.Nil(t, table.Resolve(id))
	require.Len(t, p.defs, 2)

	undefined := table.Create(KindProc, "later", 4)
	require.Nil(t, table.AddReference(undefined, p.resolver, nil, "", Immediate))
	require.Len(t, p.defs, 2)
	require.Equal(t, 1, table.Pending(undefined))
}

func TestUnresolvedReportedIndividually(t *testing.T) {
	table := New(zerolog.Nop())
	a := table.Create(KindProc, "a", 4)
	b := table.Create(KindProc, "b", 4)
	p := &patch{}
	require.Nil(t, table.AddReference(a, p.resolver, nil, "main+0", Deferred))
	require.Nil(t, table.AddReference(a, p.resolver, nil, "main+5", Deferred))
	require.Nil(t, table.AddReference(b, p.resolver, nil, "main+9", Deferred))
	require.Nil(t, table.Define(b, word(1)))

	err := table.Resolve(All)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)

	var sites []string
	for _, e := range merr.Errors {
		var linkErr *errz.LinkError
		require.True(t, errors.As(e, &linkErr))
		require.Equal(t, "a", linkErr.Symbol)
		sites = append(sites, linkErr.Site)
	}
	require.Equal(t, []string{"main+0", "main+5"}, sites)
	require.Len(t, p.defs, 1)
}

func TestForceResolve(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "f", 4)
	var got [][]byte
	fn := func(def, ref []byte) error {
		got = append(got, def)
		return nil
	}
	require.Nil(t, table.AddReference(id, fn, nil, "", Deferred))
	require.Nil(t, table.ForceResolve(id))
	require.Equal(t, [][]byte{nil}, got)
	require.Equal(t, 0, table.Pending(id))
}

func TestResolverErrors(t *testing.T) {
	table := New(zerolog.Nop())
	id := table.Create(KindProc, "f", 4)
	fail := func(def, ref []byte) error { return errors.New("bad site") }
	require.Nil(t, table.AddReference(id, fail, nil, "x", Deferred))
	require.Nil(t, table.Define(id, word(1)))
	err := table.Resolve(id)
	require.ErrorContains(t, err, "resolving f at x: bad site")
	require.Equal(t, 1, table.Pending(id))
}

func TestUnknownSymbol(t *testing.T) {
	table := New(zerolog.Nop())
	require.True(t, errors.Is(table.Define(3, nil), errz.ErrUnknownSymbol))
	_, err := table.Definition(All)
	require.True(t, errors.Is(err, errz.ErrUnknownSymbol))

	id := table.Create(KindLabel, "loop", 8)
	found, ok := table.Lookup("loop")
	require.True(t, ok)
	require.Equal(t, id, found)
	kind, err := table.Kind(id)
	require.Nil(t, err)
	require.Equal(t, KindLabel, kind)
}
