// Package types implements the structural type system of the Box virtual
// machine: type nodes, their layout, comparison and naming, and the
// combinations that attach procedures to types.
package types

import (
	"fmt"

	"github.com/boxlang/boxvm/errz"
)

// Sizes of the handle-like types.
const (
	HandleSize  = 8  // pointers and callables
	HandleAlign = 8
	AnySize     = 16 // a pointer plus the dynamic type
)

// Kind is the variant of a type node.
type Kind int

const (
	KindIntrinsic Kind = iota
	KindPrimary
	KindIdent
	KindRaised
	KindStructure
	KindSpecies
	KindFunction
	KindPointer
	KindSubtype
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindIntrinsic:
		return "intrinsic"
	case KindPrimary:
		return "primary"
	case KindIdent:
		return "ident"
	case KindRaised:
		return "raised"
	case KindStructure:
		return "structure"
	case KindSpecies:
		return "species"
	case KindFunction:
		return "function"
	case KindPointer:
		return "pointer"
	case KindSubtype:
		return "subtype"
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}

// PrimaryID identifies one of the types built into the VM.
type PrimaryID int

const (
	PrimaryVoid PrimaryID = iota
	PrimaryChar
	PrimaryInt
	PrimaryReal
	PrimaryPoint
	PrimaryPtr
)

func (id PrimaryID) String() string {
	switch id {
	case PrimaryVoid:
		return "Void"
	case PrimaryChar:
		return "Char"
	case PrimaryInt:
		return "Int"
	case PrimaryReal:
		return "Real"
	case PrimaryPoint:
		return "Point"
	case PrimaryPtr:
		return "Ptr"
	default:
		return fmt.Sprintf("Primary%d", int(id))
	}
}

// Member is a member of a structure.
type Member struct {
	Type   *Type
	Name   string
	Offset int
}

// node is the variant-specific payload of a Type.
type node interface {
	kind() Kind
}

type intrinsicNode struct{}

type primaryNode struct {
	id PrimaryID
}

type identNode struct {
	name   string
	source *Type
}

type raisedNode struct {
	source *Type
}

type structureNode struct {
	members []Member
}

type speciesNode struct {
	members []*Type
}

type functionNode struct {
	child, parent *Type
}

type pointerNode struct {
	source *Type
}

type subtypeNode struct {
	name   string
	parent *Type
	child  *Type // nil until registered
}

type anyNode struct{}

func (*intrinsicNode) kind() Kind { return KindIntrinsic }
func (*primaryNode) kind() Kind   { return KindPrimary }
func (*identNode) kind() Kind     { return KindIdent }
func (*raisedNode) kind() Kind    { return KindRaised }
func (*structureNode) kind() Kind { return KindStructure }
func (*speciesNode) kind() Kind   { return KindSpecies }
func (*functionNode) kind() Kind  { return KindFunction }
func (*pointerNode) kind() Kind   { return KindPointer }
func (*subtypeNode) kind() Kind   { return KindSubtype }
func (*anyNode) kind() Kind       { return KindAny }

// Type is a node of the type graph. Types are immutable once built, except
// that structures and species accept new members while they are being
// defined.
type Type struct {
	sys      *System
	node     node
	size     int // intrinsic, primary and structure only
	align    int
	refs     int
	subtypes []*Type
	combs    []Combination
}

// Kind returns the variant of the type.
func (t *Type) Kind() Kind {
	return t.node.kind()
}

// Refs returns the link count of the type.
func (t *Type) Refs() int {
	return t.refs
}

// Name returns the name of an ident or subtype, and "" for other kinds.
func (t *Type) Name() string {
	switch n := t.node.(type) {
	case *identNode:
		return n.name
	case *subtypeNode:
		return n.name
	}
	return ""
}

// Source returns the type wrapped by an ident, raised or pointer type.
func (t *Type) Source() *Type {
	switch n := t.node.(type) {
	case *identNode:
		return n.source
	case *raisedNode:
		return n.source
	case *pointerNode:
		return n.source
	}
	return nil
}

// PrimaryID returns the id of a primary type.
func (t *Type) PrimaryID() (PrimaryID, bool) {
	if n, ok := t.node.(*primaryNode); ok {
		return n.id, true
	}
	return 0, false
}

// Members returns the members of a structure.
func (t *Type) Members() []Member {
	n, ok := t.node.(*structureNode)
	if !ok {
		return nil
	}
	members := make([]Member, len(n.members))
	copy(members, n.members)
	return members
}

// Alternatives returns the members of a species, target last.
func (t *Type) Alternatives() []*Type {
	n, ok := t.node.(*speciesNode)
	if !ok {
		return nil
	}
	members := make([]*Type, len(n.members))
	copy(members, n.members)
	return members
}

// Signature returns the child and parent of a function type.
func (t *Type) Signature() (child, parent *Type) {
	if n, ok := t.node.(*functionNode); ok {
		return n.child, n.parent
	}
	return nil, nil
}

// Parent returns the parent of a subtype.
func (t *Type) Parent() *Type {
	if n, ok := t.node.(*subtypeNode); ok {
		return n.parent
	}
	return nil
}

// Child returns the registered child of a subtype.
func (t *Type) Child() *Type {
	if n, ok := t.node.(*subtypeNode); ok {
		return n.child
	}
	return nil
}

// String returns the structural name of the type.
func (t *Type) String() string {
	return Repr(t)
}

// System creates types and keeps count of the live ones. Types from
// different systems must not be mixed.
type System struct {
	live int
}

// NewSystem returns an empty type system.
func NewSystem() *System {
	return &System{}
}

// Live returns the number of types created and not yet destroyed.
func (s *System) Live() int {
	return s.live
}

func (s *System) newType(n node, size, align int) *Type {
	s.live++
	return &Type{sys: s, node: n, size: size, align: align, refs: 1}
}

func checkAlign(align int) {
	if align <= 0 || align&(align-1) != 0 {
		errz.Fatalf("invalid alignment %d", align)
	}
}

// NewIntrinsic creates a type with the given raw size and alignment.
func (s *System) NewIntrinsic(size, align int) *Type {
	checkAlign(align)
	if size < 0 {
		errz.Fatalf("negative type size %d", size)
	}
	return s.newType(&intrinsicNode{}, size, align)
}

// NewPrimary creates one of the VM built-in types.
func (s *System) NewPrimary(id PrimaryID, size, align int) *Type {
	checkAlign(align)
	if size < 0 {
		errz.Fatalf("negative type size %d", size)
	}
	return s.newType(&primaryNode{id: id}, size, align)
}

// NewIdent creates a named alias of source.
func (s *System) NewIdent(source *Type, name string) *Type {
	source.Link()
	return s.newType(&identNode{name: name, source: source}, 0, 0)
}

// NewRaised creates a type structurally identical to source but distinct
// from it under comparison.
func (s *System) NewRaised(source *Type) *Type {
	source.Link()
	return s.newType(&raisedNode{source: source}, 0, 0)
}

// NewStructure creates an empty structure. Members are added with
// AddMember.
func (s *System) NewStructure() *Type {
	return s.newType(&structureNode{}, 0, 1)
}

// NewSpecies creates an empty species. Members are added with
// AddSpeciesMember; the last one added is the target.
func (s *System) NewSpecies() *Type {
	return s.newType(&speciesNode{}, 0, 1)
}

// NewFunction creates the type of procedures taking child inside parent.
// Either may be nil.
func (s *System) NewFunction(child, parent *Type) *Type {
	child.Link()
	parent.Link()
	return s.newType(&functionNode{child: child, parent: parent}, 0, 0)
}

// NewPointer creates a pointer to source.
func (s *System) NewPointer(source *Type) *Type {
	source.Link()
	return s.newType(&pointerNode{source: source}, 0, 0)
}

// NewAny creates the dynamic type.
func (s *System) NewAny() *Type {
	return s.newType(&anyNode{}, 0, 0)
}

// NewSubtype declares the subtype name of parent. The subtype has no
// definition until RegisterSubtype is called.
func (s *System) NewSubtype(parent *Type, name string) (*Type, error) {
	for _, sub := range parent.subtypes {
		if sub.Name() == name {
			return nil, errz.NewStructuredErrorf(errz.ErrDefinition, nil,
				"subtype %s already declared", Repr(sub))
		}
	}
	sub := s.newType(&subtypeNode{name: name, parent: parent}, 0, 0)
	sub.Link()
	parent.subtypes = append(parent.subtypes, sub)
	return sub, nil
}

// RegisterSubtype gives a declared subtype its definition.
func (s *System) RegisterSubtype(sub, child *Type) error {
	n, ok := sub.node.(*subtypeNode)
	if !ok {
		return errz.NewStructuredErrorf(errz.ErrDefinition, nil, "%s is not a subtype", Repr(sub))
	}
	if n.child != nil {
		return errz.NewStructuredErrorf(errz.ErrDefinition, nil,
			"subtype %s already registered", Repr(sub))
	}
	child.Link()
	n.child = child
	return nil
}

// FindSubtype looks up the subtype name of parent, following parent's
// aliases.
func FindSubtype(parent *Type, name string) (*Type, bool) {
	for t := parent; t != nil; t = aliasOf(t) {
		for _, sub := range t.subtypes {
			if sub.Name() == name {
				return sub, true
			}
		}
	}
	return nil, false
}

func aliasOf(t *Type) *Type {
	switch n := t.node.(type) {
	case *identNode:
		return n.source
	case *raisedNode:
		return n.source
	}
	return nil
}

func alignUp(offset, align int) int {
	return (offset + align - 1) &^ (align - 1)
}

// AddMember appends a member to a structure and updates its size and
// alignment.
func (s *System) AddMember(structure, member *Type, name string) {
	n, ok := structure.node.(*structureNode)
	if !ok {
		errz.Fatalf("AddMember on %s type", structure.Kind())
	}
	size, align := SizeAndAlign(member)
	offset := alignUp(structure.size, align)
	member.Link()
	n.members = append(n.members, Member{Type: member, Name: name, Offset: offset})
	structure.size = offset + size
	structure.align = max(structure.align, align)
}

// AddSpeciesMember appends an alternative to a species. The new member
// becomes the target.
func (s *System) AddSpeciesMember(species, member *Type) {
	n, ok := species.node.(*speciesNode)
	if !ok {
		errz.Fatalf("AddSpeciesMember on %s type", species.Kind())
	}
	member.Link()
	n.members = append(n.members, member)
}

// Link adds a reference to the type. Nil types are ignored.
func (t *Type) Link() {
	if t == nil {
		return
	}
	if t.refs <= 0 {
		errz.Fatalf("link of destroyed type")
	}
	t.refs++
}

// Unlink drops a reference to the type. When the last one goes, the type
// unlinks everything it owns. Nil types are ignored.
func (t *Type) Unlink() {
	if t == nil {
		return
	}
	if t.refs <= 0 {
		errz.Fatalf("unlink of destroyed type")
	}
	t.refs--
	if t.refs > 0 {
		return
	}
	for _, owned := range t.owned() {
		owned.Unlink()
	}
	t.sys.live--
}

// owned returns the types t holds a link to.
func (t *Type) owned() []*Type {
	var refs []*Type
	switch n := t.node.(type) {
	case *intrinsicNode, *primaryNode, *anyNode:
	case *identNode:
		refs = append(refs, n.source)
	case *raisedNode:
		refs = append(refs, n.source)
	case *pointerNode:
		refs = append(refs, n.source)
	case *structureNode:
		for _, m := range n.members {
			refs = append(refs, m.Type)
		}
	case *speciesNode:
		refs = append(refs, n.members...)
	case *functionNode:
		refs = append(refs, n.child, n.parent)
	case *subtypeNode:
		refs = append(refs, n.child)
	}
	refs = append(refs, t.subtypes...)
	for _, c := range t.combs {
		refs = append(refs, c.Child)
	}
	return refs
}
