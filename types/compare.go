package types

import (
	"fmt"
	"strings"
)

// ResolveMask selects which kinds of types Resolve unwraps.
type ResolveMask uint

const (
	ResolveIdent ResolveMask = 1 << iota
	ResolveRaised
	ResolveSpecies
	ResolvePointer
	ResolveSubtype

	ResolveAll = ResolveIdent | ResolveRaised | ResolveSpecies | ResolvePointer | ResolveSubtype
)

// Resolve unwraps t through the kinds selected by mask: idents and raised
// types to their source, species to their target, pointers to the pointed
// type, registered subtypes to their definition. It stops after steps
// unwraps, or never when steps is 0.
func Resolve(t *Type, mask ResolveMask, steps int) *Type {
	for i := 0; steps == 0 || i < steps; i++ {
		var next *Type
		switch n := t.node.(type) {
		case *identNode:
			if mask&ResolveIdent != 0 {
				next = n.source
			}
		case *raisedNode:
			if mask&ResolveRaised != 0 {
				next = n.source
			}
		case *speciesNode:
			if mask&ResolveSpecies != 0 && len(n.members) > 0 {
				next = n.members[len(n.members)-1]
			}
		case *pointerNode:
			if mask&ResolvePointer != 0 {
				next = n.source
			}
		case *subtypeNode:
			if mask&ResolveSubtype != 0 {
				next = n.child
			}
		}
		if next == nil {
			return t
		}
		t = next
	}
	return t
}

// Comparison is the result of comparing two types, from weakest to
// strongest.
type Comparison int

const (
	// Different types are incompatible.
	Different Comparison = iota
	// Matching types are compatible through a conversion.
	Matching
	// Equal types are structurally the same.
	Equal
	// Same types are the same node.
	Same
)

func (c Comparison) String() string {
	switch c {
	case Different:
		return "different"
	case Matching:
		return "matching"
	case Equal:
		return "equal"
	case Same:
		return "same"
	default:
		return "unknown"
	}
}

// Compare checks whether a value of type left can be used where right is
// expected. When right is a species, left is Equal if it equals the target
// and Matching if it equals one of the other alternatives.
func Compare(left, right *Type) Comparison {
	if left == right {
		return Same
	}
	l := Resolve(left, ResolveIdent, 0)
	r := Resolve(right, ResolveIdent, 0)
	if l == r {
		return Equal
	}

	if rn, ok := r.node.(*speciesNode); ok {
		return compareToSpecies(l, rn)
	}
	if ln, ok := l.node.(*speciesNode); ok {
		if len(ln.members) == 0 {
			return Different
		}
		return min(Compare(ln.members[len(ln.members)-1], r), Equal)
	}
	if _, ok := r.node.(*anyNode); ok {
		if _, ok := l.node.(*anyNode); ok {
			return Equal
		}
		return Matching
	}
	if l.Kind() != r.Kind() {
		return Different
	}

	switch ln := l.node.(type) {
	case *primaryNode:
		if ln.id == r.node.(*primaryNode).id {
			return Equal
		}
	case *structureNode:
		return compareMembers(ln.members, r.node.(*structureNode).members)
	case *functionNode:
		rn := r.node.(*functionNode)
		if compareOptional(ln.child, rn.child) >= Equal && compareOptional(ln.parent, rn.parent) >= Equal {
			return Equal
		}
	case *pointerNode:
		if Compare(ln.source, r.node.(*pointerNode).source) >= Equal {
			return Equal
		}
	case *subtypeNode:
		rn := r.node.(*subtypeNode)
		if ln.name == rn.name && Compare(ln.parent, rn.parent) >= Equal {
			return Equal
		}
	case *anyNode:
		return Equal
	case *intrinsicNode, *raisedNode:
		// Only identical nodes match, which was handled above.
	}
	return Different
}

func compareToSpecies(l *Type, species *speciesNode) Comparison {
	n := len(species.members)
	if n == 0 {
		return Different
	}
	if c := Compare(l, species.members[n-1]); c != Different {
		return min(c, Equal)
	}
	for _, m := range species.members[:n-1] {
		if Compare(l, m) != Different {
			return Matching
		}
	}
	return Different
}

func compareMembers(left, right []Member) Comparison {
	if len(left) != len(right) {
		return Different
	}
	result := Equal
	for i := range left {
		c := Compare(left[i].Type, right[i].Type)
		if c == Different {
			return Different
		}
		result = min(result, c)
	}
	return result
}

func compareOptional(left, right *Type) Comparison {
	if left == nil || right == nil {
		if left == right {
			return Same
		}
		return Different
	}
	return Compare(left, right)
}

// SizeAndAlign returns the size and alignment of values of type t. It walks
// through idents, raised types, species and subtypes iteratively until it
// reaches a type with its own layout. Unregistered subtypes and empty
// species have size 0.
func SizeAndAlign(t *Type) (size, align int) {
	for {
		switch n := t.node.(type) {
		case *identNode:
			t = n.source
		case *raisedNode:
			t = n.source
		case *speciesNode:
			if len(n.members) == 0 {
				return 0, 1
			}
			t = n.members[len(n.members)-1]
		case *subtypeNode:
			if n.child == nil {
				return 0, 1
			}
			t = n.child
		case *intrinsicNode, *primaryNode, *structureNode:
			return t.size, t.align
		case *functionNode, *pointerNode:
			return HandleSize, HandleAlign
		case *anyNode:
			return AnySize, HandleAlign
		default:
			panic(fmt.Sprintf("unexpected type node %T", n))
		}
	}
}

// Repr returns a readable structural name of the type. It is computed on
// every call.
func Repr(t *Type) string {
	if t == nil {
		return "Void"
	}
	switch n := t.node.(type) {
	case *intrinsicNode:
		return fmt.Sprintf("<size=%d,align=%d>", t.size, t.align)
	case *primaryNode:
		return n.id.String()
	case *identNode:
		return n.name
	case *raisedNode:
		return "++" + Repr(n.source)
	case *structureNode:
		parts := make([]string, 0, len(n.members))
		for i, m := range n.members {
			switch {
			case i > 0 && m.Name != "" && n.members[i-1].Type == m.Type:
				parts = append(parts, m.Name)
			case m.Name != "":
				parts = append(parts, Repr(m.Type)+" "+m.Name)
			default:
				parts = append(parts, Repr(m.Type))
			}
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *speciesNode:
		parts := make([]string, 0, len(n.members))
		for _, m := range n.members {
			parts = append(parts, Repr(m))
		}
		return "(" + strings.Join(parts, "->") + ")"
	case *functionNode:
		return Repr(n.child) + "@" + Repr(n.parent)
	case *pointerNode:
		return "*" + Repr(n.source)
	case *subtypeNode:
		return Repr(n.parent) + "." + n.name
	case *anyNode:
		return "Any"
	}
	return "?"
}
