package types

import (
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/op"
)

// CombKind distinguishes the roles a procedure can play for a pair of
// types.
type CombKind int

const (
	// CombAt is an ordinary procedure: child applied at parent.
	CombAt CombKind = iota
	// CombInit is the constructor of the parent type.
	CombInit
	// CombFinish is the destructor of the parent type.
	CombFinish
	// CombCopy copies the child into the parent.
	CombCopy
	// CombMove moves the child into the parent.
	CombMove
)

func (k CombKind) String() string {
	switch k {
	case CombAt:
		return "at"
	case CombInit:
		return "init"
	case CombFinish:
		return "finish"
	case CombCopy:
		return "copy"
	case CombMove:
		return "move"
	default:
		return "unknown"
	}
}

// Combination binds a procedure to a child type applied to the type that
// holds the combination.
type Combination struct {
	Kind  CombKind
	Child *Type
	Call  op.CallNum
}

// DefineCombination attaches call to parent for child under kind. Defining
// the same combination twice is an error and leaves the first in place.
func DefineCombination(parent *Type, kind CombKind, child *Type, call op.CallNum) error {
	for _, c := range parent.combs {
		if c.Kind == kind && compareOptional(c.Child, child) >= Equal {
			return errz.NewStructuredErrorf(errz.ErrDefinition, nil,
				"%s combination %s@%s already defined", kind, Repr(child), Repr(parent))
		}
	}
	child.Link()
	parent.combs = append(parent.combs, Combination{Kind: kind, Child: child, Call: call})
	return nil
}

// FindCombination looks up the procedure for child applied at parent. The
// parent's aliases are searched in turn, and the best match wins: an Equal
// combination is taken over a Matching one.
func FindCombination(parent *Type, kind CombKind, child *Type) (op.CallNum, Comparison, bool) {
	var (
		best  op.CallNum
		level = Different
	)
	for t := parent; t != nil; t = aliasOf(t) {
		for _, c := range t.combs {
			if c.Kind != kind {
				continue
			}
			cmp := compareOptional(child, c.Child)
			if cmp > level {
				best, level = c.Call, cmp
			}
			if level >= Equal {
				return best, level, true
			}
		}
	}
	return best, level, level != Different
}

// FindMethod looks up a special method of t: a combination of kind with no
// child for init and finish, or with t itself as child for copy and move.
func FindMethod(t *Type, kind CombKind) (op.CallNum, bool) {
	var child *Type
	if kind == CombCopy || kind == CombMove {
		child = t
	}
	call, cmp, ok := FindCombination(t, kind, child)
	if !ok || cmp < Equal {
		return op.NoCall, false
	}
	return call, true
}
